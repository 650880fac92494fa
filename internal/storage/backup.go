package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kingrea/timeless/internal/logging"
)

const (
	// BackupsDirName is the sub-directory of the data dir that holds snapshots.
	BackupsDirName = "backups"

	backupPrefix = "backup_"
	// backupLayout must stay fixed-width: List and pruning sort names
	// lexicographically and rely on that matching chronological order.
	backupLayout = "20060102_150405"
	// maxSameSecondBackups bounds the _NN suffix; two digits keep the
	// lexicographic order intact.
	maxSameSecondBackups = 99
)

// BackupManager snapshots a data directory into <dataDir>/backups/<name> and
// keeps at most maxBackups snapshots.
type BackupManager struct {
	dataDir    string
	backupDir  string
	maxBackups int
	now        func() time.Time
	log        *logging.Logger
}

// BackupOption customizes a BackupManager during construction.
type BackupOption func(*BackupManager)

// WithClock overrides the clock used to name snapshots.
func WithClock(clock func() time.Time) BackupOption {
	return func(m *BackupManager) {
		if clock != nil {
			m.now = clock
		}
	}
}

// WithLogger attaches a logger for snapshot and pruning events.
func WithLogger(log *logging.Logger) BackupOption {
	return func(m *BackupManager) {
		m.log = log
	}
}

// NewBackupManager builds a manager for dataDir. maxBackups <= 0 disables pruning.
func NewBackupManager(dataDir string, maxBackups int, opts ...BackupOption) *BackupManager {
	m := &BackupManager{
		dataDir:    dataDir,
		backupDir:  filepath.Join(dataDir, BackupsDirName),
		maxBackups: maxBackups,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Dir returns the directory holding snapshots.
func (m *BackupManager) Dir() string {
	return m.backupDir
}

// Create copies the data directory (minus the backups directory itself) into a
// new timestamped snapshot, prunes old snapshots and returns the new name.
// Snapshots taken within the same second get a _01.._99 suffix so names keep
// sorting in creation order; ErrBackupExists means the suffixes ran out.
func (m *BackupManager) Create() (string, error) {
	if err := os.MkdirAll(m.backupDir, 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure backup dir: %w", err)
	}
	name, err := m.claim(BackupName(m.now()))
	if err != nil {
		return "", err
	}
	if err := copyTree(m.dataDir, filepath.Join(m.backupDir, name), m.skipBackups); err != nil {
		return "", fmt.Errorf("storage: snapshot %s: %w", name, err)
	}
	m.log.Infof("backup %s created from %s", name, m.dataDir)
	if err := m.prune(); err != nil {
		return name, err
	}
	return name, nil
}

// claim creates the snapshot directory for base, or the first free suffixed
// variant of it, and returns the chosen name.
func (m *BackupManager) claim(base string) (string, error) {
	for n := 0; n <= maxSameSecondBackups; n++ {
		name := base
		if n > 0 {
			name = fmt.Sprintf("%s_%02d", base, n)
		}
		err := os.Mkdir(filepath.Join(m.backupDir, name), 0o755)
		if err == nil {
			return name, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("storage: create %s: %w", name, err)
		}
	}
	return "", fmt.Errorf("%w: %s (and %d suffixed snapshots)", ErrBackupExists, base, maxSameSecondBackups)
}

// Restore replaces the contents of the data directory with the named snapshot.
// Anything written after the snapshot was taken is lost; the backups directory
// is left in place.
func (m *BackupManager) Restore(name string) error {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrBackupNotFound, name)
	}
	source := filepath.Join(m.backupDir, name)
	info, err := os.Stat(source)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrBackupNotFound, name)
		}
		return fmt.Errorf("storage: stat %s: %w", name, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrBackupNotFound, name)
	}
	if err := m.clearDataDir(); err != nil {
		return err
	}
	if err := copyTree(source, m.dataDir, nil); err != nil {
		return fmt.Errorf("storage: restore %s: %w", name, err)
	}
	m.log.Infof("backup %s restored into %s", name, m.dataDir)
	return nil
}

// List returns snapshot names sorted oldest first. A missing backups directory
// yields an empty list.
func (m *BackupManager) List() ([]string, error) {
	entries, err := os.ReadDir(m.backupDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("storage: list backups: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), backupPrefix) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Latest returns the newest snapshot name and its timestamp.
func (m *BackupManager) Latest() (string, time.Time, bool, error) {
	names, err := m.List()
	if err != nil {
		return "", time.Time{}, false, err
	}
	for i := len(names) - 1; i >= 0; i-- {
		ts, err := ParseBackupTime(names[i])
		if err != nil {
			continue
		}
		return names[i], ts, true, nil
	}
	return "", time.Time{}, false, nil
}

// Due reports whether a new snapshot is needed given the interval between
// snapshots. No snapshot at all is always due.
func (m *BackupManager) Due(interval time.Duration, now time.Time) (bool, error) {
	_, last, ok, err := m.Latest()
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return now.Sub(last) >= interval, nil
}

// BackupName renders the snapshot name for t.
func BackupName(t time.Time) string {
	return backupPrefix + t.UTC().Format(backupLayout)
}

// ParseBackupTime extracts the timestamp encoded in a snapshot name. A
// same-second suffix (_NN) is accepted and ignored.
func ParseBackupTime(name string) (time.Time, error) {
	if !strings.HasPrefix(name, backupPrefix) {
		return time.Time{}, fmt.Errorf("storage: %q is not a backup name", name)
	}
	stamp := strings.TrimPrefix(name, backupPrefix)
	if len(stamp) == len(backupLayout)+3 && stamp[len(backupLayout)] == '_' {
		if _, err := strconv.Atoi(stamp[len(backupLayout)+1:]); err == nil {
			stamp = stamp[:len(backupLayout)]
		}
	}
	ts, err := time.ParseInLocation(backupLayout, stamp, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("storage: parse backup name %q: %w", name, err)
	}
	return ts, nil
}

func (m *BackupManager) prune() error {
	if m.maxBackups <= 0 {
		return nil
	}
	names, err := m.List()
	if err != nil {
		return err
	}
	if len(names) <= m.maxBackups {
		return nil
	}
	excess := len(names) - m.maxBackups
	for _, name := range names[:excess] {
		if err := os.RemoveAll(filepath.Join(m.backupDir, name)); err != nil {
			return fmt.Errorf("storage: prune %s: %w", name, err)
		}
		m.log.Infof("backup %s pruned (max %d)", name, m.maxBackups)
	}
	return nil
}

func (m *BackupManager) clearDataDir() error {
	entries, err := os.ReadDir(m.dataDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("storage: read data dir: %w", err)
	}
	for _, entry := range entries {
		if m.skipBackups(entry.Name()) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(m.dataDir, entry.Name())); err != nil {
			return fmt.Errorf("storage: clear data dir: %w", err)
		}
	}
	return nil
}

// skipBackups excludes the top-level backups directory from snapshots.
func (m *BackupManager) skipBackups(rel string) bool {
	return rel == BackupsDirName
}

// copyTree recursively copies src into dst. skip receives paths relative to src.
func copyTree(src, dst string, skip func(rel string) bool) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if skip != nil && skip(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
