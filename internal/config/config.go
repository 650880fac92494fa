// internal/config/config.go
//
// This package handles configuration and the project directory layout.
// A timeless project looks like:
//
// <project>/
// ├── config/config.yaml  <- this file's schema
// ├── .env                <- optional TIMELESS_* overrides
// ├── logs/               <- timeless.log and activity.log
// └── data/               <- entity documents + backups/ (app.data_dir)

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/timeless/internal/automation"
	"github.com/kingrea/timeless/internal/logging"
)

const (
	// ConfigDir holds config.yaml inside the project directory.
	ConfigDir = "config"
	// ConfigFile is the default config file name.
	ConfigFile = "config.yaml"
	// LogsDir holds the log file and the activity journal.
	LogsDir = "logs"

	defaultDataDir = "./data"
)

// Environment overrides applied after the file is parsed.
const (
	EnvDataDir          = "TIMELESS_DATA_DIR"
	EnvLogLevel         = "TIMELESS_LOG_LEVEL"
	EnvAssistantCommand = "TIMELESS_ASSISTANT_COMMAND"
)

const defaultConfigYAML = `# timeless configuration
version: 1

app:
  name: Smart Team Manager
  data_dir: ./data
  log_level: info

team:
  name: Engineering Team
  timezone: UTC
  working_hours:
    start: "09:00"
    end: "17:00"
  working_days: [Monday, Tuesday, Wednesday, Thursday, Friday]

# External assistant process. The prompt is appended after args.
assistant:
  enabled: true
  command: claude
  args: ["--"]
  timeout: 2m

storage:
  backup_enabled: true
  backup_interval: daily   # hourly | daily | weekly
  max_backups: 7
  # Accepted for compatibility; not implemented by the store.
  compression: false
  encryption: false

automation:
  rules:
    - name: scheduled-backup
      when:
        - kind: backup_due
      then:
        - kind: create_backup
    - name: health-watch
      when:
        - kind: concerning_metrics
      then:
        - kind: record_decision
        - kind: journal
          params:
            level: warn
            message: team metrics need attention
`

// AppConfig holds process-wide settings.
type AppConfig struct {
	Name     string `yaml:"name"`
	DataDir  string `yaml:"data_dir"`
	LogLevel string `yaml:"log_level"`
}

// WorkingHours is a HH:MM window.
type WorkingHours struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// TeamConfig describes the managed team.
type TeamConfig struct {
	Name         string       `yaml:"name"`
	Timezone     string       `yaml:"timezone"`
	WorkingHours WorkingHours `yaml:"working_hours"`
	WorkingDays  []string     `yaml:"working_days"`
}

// AssistantConfig controls the external assistant process.
type AssistantConfig struct {
	Enabled bool          `yaml:"enabled"`
	Command string        `yaml:"command"`
	Args    []string      `yaml:"args"`
	Timeout time.Duration `yaml:"timeout"`
}

// StorageConfig controls backups. Compression and Encryption are parsed but
// never applied to the store.
type StorageConfig struct {
	BackupEnabled  bool   `yaml:"backup_enabled"`
	BackupInterval string `yaml:"backup_interval"`
	MaxBackups     int    `yaml:"max_backups"`
	Compression    bool   `yaml:"compression"`
	Encryption     bool   `yaml:"encryption"`
}

// AutomationConfig lists the rules `timeless automate` evaluates.
type AutomationConfig struct {
	Rules []automation.Rule `yaml:"rules"`
}

// Config models config/config.yaml plus the resolved project paths.
type Config struct {
	Version    int              `yaml:"version"`
	App        AppConfig        `yaml:"app"`
	Team       TeamConfig       `yaml:"team"`
	Assistant  AssistantConfig  `yaml:"assistant"`
	Storage    StorageConfig    `yaml:"storage"`
	Automation AutomationConfig `yaml:"automation"`

	// ProjectDir is the directory timeless was pointed at.
	ProjectDir string `yaml:"-"`
	// Path is the config file that was loaded (it may not exist).
	Path string `yaml:"-"`
}

// Init creates the project layout and writes a default config file if none
// exists. It returns the config file path.
func Init(projectDir, path string) (string, error) {
	if path == "" {
		path = DefaultPath(projectDir)
	}
	dirs := []string{
		filepath.Dir(path),
		filepath.Join(projectDir, LogsDir),
		resolvePath(projectDir, defaultDataDir),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("config: ensure %s: %w", dir, err)
		}
	}
	if err := ensureConfigFile(path); err != nil {
		return "", err
	}
	return path, nil
}

// DefaultPath returns <projectDir>/config/config.yaml.
func DefaultPath(projectDir string) string {
	return filepath.Join(projectDir, ConfigDir, ConfigFile)
}

// Default returns the built-in configuration for projectDir.
func Default(projectDir string) *Config {
	cfg := builtin(projectDir)
	cfg.normalize()
	return cfg
}

// Load reads the config file over the built-in defaults, applies .env and
// environment overrides, and validates the result. A missing file is not an
// error.
func Load(projectDir, path string) (*Config, error) {
	if path == "" {
		path = DefaultPath(projectDir)
	}
	if err := loadDotEnv(projectDir); err != nil {
		return nil, err
	}
	cfg := builtin(projectDir)
	cfg.Path = path
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.applyDefaults()
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func builtin(projectDir string) *Config {
	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(defaultConfigYAML), cfg); err != nil {
		panic(fmt.Sprintf("config: default config is invalid: %v", err))
	}
	cfg.ProjectDir = projectDir
	cfg.Path = DefaultPath(projectDir)
	cfg.applyDefaults()
	return cfg
}

// DataDir returns the absolute data directory.
func (c *Config) DataDir() string {
	return c.App.DataDir
}

// LogsDir returns the directory for timeless.log and activity.log.
func (c *Config) LogsDir() string {
	return filepath.Join(c.ProjectDir, LogsDir)
}

// ActivityLogPath returns the activity journal path.
func (c *Config) ActivityLogPath() string {
	return filepath.Join(c.LogsDir(), "activity.log")
}

// LogLevel returns the parsed log level.
func (c *Config) LogLevel() logging.Level {
	level, _ := logging.ParseLevel(c.App.LogLevel)
	return level
}

// BackupInterval converts storage.backup_interval into a duration.
func (c *Config) BackupInterval() time.Duration {
	d, _ := parseInterval(c.Storage.BackupInterval)
	return d
}

// Location returns the team's time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Team.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// UnimplementedStorageOptions lists storage switches that are set but have no
// effect.
func (c *Config) UnimplementedStorageOptions() []string {
	var out []string
	if c.Storage.Compression {
		out = append(out, "compression")
	}
	if c.Storage.Encryption {
		out = append(out, "encryption")
	}
	return out
}

func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if strings.TrimSpace(c.App.DataDir) == "" {
		c.App.DataDir = defaultDataDir
	}
	if strings.TrimSpace(c.App.LogLevel) == "" {
		c.App.LogLevel = "info"
	}
	if strings.TrimSpace(c.Team.Timezone) == "" {
		c.Team.Timezone = "UTC"
	}
	if c.Team.WorkingHours == (WorkingHours{}) {
		c.Team.WorkingHours = WorkingHours{Start: "09:00", End: "17:00"}
	}
	if c.Assistant.Command == "" {
		c.Assistant.Command = "claude"
	}
	if c.Assistant.Timeout <= 0 {
		c.Assistant.Timeout = 2 * time.Minute
	}
	if strings.TrimSpace(c.Storage.BackupInterval) == "" {
		c.Storage.BackupInterval = "daily"
	}
	if c.Storage.MaxBackups == 0 {
		c.Storage.MaxBackups = 7
	}
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvDataDir)); v != "" {
		c.App.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.App.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAssistantCommand)); v != "" {
		c.Assistant.Command = v
	}
}

func (c *Config) normalize() {
	c.App.DataDir = resolvePath(c.ProjectDir, c.App.DataDir)
	c.App.LogLevel = strings.ToLower(strings.TrimSpace(c.App.LogLevel))
	c.Storage.BackupInterval = strings.ToLower(strings.TrimSpace(c.Storage.BackupInterval))
	for i, day := range c.Team.WorkingDays {
		c.Team.WorkingDays[i] = strings.TrimSpace(day)
	}
	c.Assistant.Command = strings.TrimSpace(c.Assistant.Command)
}

func (c *Config) validate() error {
	if c.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if _, err := logging.ParseLevel(c.App.LogLevel); err != nil {
		return fmt.Errorf("app.log_level: %w", err)
	}
	if _, err := time.LoadLocation(c.Team.Timezone); err != nil {
		return fmt.Errorf("team.timezone: %w", err)
	}
	if err := c.Team.WorkingHours.validate(); err != nil {
		return fmt.Errorf("team.working_hours: %w", err)
	}
	for i, day := range c.Team.WorkingDays {
		if _, ok := parseWeekday(day); !ok {
			return fmt.Errorf("team.working_days[%d]: unknown day %q", i, day)
		}
	}
	if c.Assistant.Enabled && c.Assistant.Command == "" {
		return fmt.Errorf("assistant.command is required when the assistant is enabled")
	}
	if _, err := parseInterval(c.Storage.BackupInterval); err != nil {
		return fmt.Errorf("storage.backup_interval: %w", err)
	}
	if c.Storage.MaxBackups < 1 {
		return fmt.Errorf("storage.max_backups must be >= 1")
	}
	if err := automation.Validate(c.Automation.Rules); err != nil {
		return fmt.Errorf("automation: %w", err)
	}
	return nil
}

func (w WorkingHours) validate() error {
	start, err := time.Parse("15:04", strings.TrimSpace(w.Start))
	if err != nil {
		return fmt.Errorf("start must be HH:MM")
	}
	end, err := time.Parse("15:04", strings.TrimSpace(w.End))
	if err != nil {
		return fmt.Errorf("end must be HH:MM")
	}
	if !start.Before(end) {
		return fmt.Errorf("start must be before end")
	}
	return nil
}

func parseInterval(value string) (time.Duration, error) {
	switch value {
	case "hourly":
		return time.Hour, nil
	case "daily":
		return 24 * time.Hour, nil
	case "weekly":
		return 7 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("must be 'hourly', 'daily' or 'weekly'")
}

func parseWeekday(value string) (time.Weekday, bool) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), value) {
			return d, true
		}
	}
	return 0, false
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func loadDotEnv(projectDir string) error {
	path := filepath.Join(projectDir, ".env")
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

func ensureConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}
