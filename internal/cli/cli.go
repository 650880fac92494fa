// Package cli implements the timeless command line: global flags, subcommand
// dispatch and the wiring between configuration, storage, the assistant and
// automation.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/kingrea/timeless/internal/assistant"
	"github.com/kingrea/timeless/internal/config"
	"github.com/kingrea/timeless/internal/logbook"
	"github.com/kingrea/timeless/internal/logging"
	"github.com/kingrea/timeless/internal/repository"
	"github.com/kingrea/timeless/internal/storage"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

// Env carries the process surroundings so tests can replace them.
type Env struct {
	Stdout io.Writer
	Stderr io.Writer
	// Assistant overrides the client built from configuration.
	Assistant assistant.Client
	Now       func() time.Time
	// IsTerminal reports whether stdout is an interactive terminal.
	IsTerminal func() bool
	// RunDashboard runs the bubbletea program; nil uses the real terminal.
	RunDashboard func(app tea.Model) error
}

// App holds everything a subcommand needs once the project is open.
type App struct {
	env        Env
	projectDir string
	configPath string
	verbose    bool

	cfg       *config.Config
	log       *logging.Logger
	repo      *repository.TeamRepository
	backups   *storage.BackupManager
	journal   *logbook.Logbook
	assistant assistant.Client
}

type command struct {
	summary string
	// open loads config and storage before run.
	open bool
	run  func(ctx context.Context, a *App, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"init":           {summary: "create config/, logs/ and the data directory", run: runInit},
		"add-user":       {summary: "add a team member", open: true, run: runAddUser},
		"users":          {summary: "list team members", open: true, run: runUsers},
		"remove-user":    {summary: "remove a team member", open: true, run: runRemoveUser},
		"project":        {summary: "add|list|status projects", open: true, run: runProject},
		"status":         {summary: "record a status update", open: true, run: runStatus},
		"updates":        {summary: "show recent status updates", open: true, run: runUpdates},
		"metrics":        {summary: "record|latest|range|export team metrics", open: true, run: runMetrics},
		"report":         {summary: "summary|analysis of team health (-out writes a file)", open: true, run: runReport},
		"decisions":      {summary: "list recent recommendations", open: true, run: runDecisions},
		"decide-outcome": {summary: "record what came of a recommendation", open: true, run: runDecideOutcome},
		"conversation":   {summary: "start|say|show|list|trim conversations with a member", open: true, run: runConversation},
		"backup":         {summary: "create|list|restore data snapshots (same-second snapshots get a _NN suffix)", open: true, run: runBackup},
		"automate":       {summary: "evaluate automation rules", open: true, run: runAutomate},
		"ask":            {summary: "send a question about the team to the assistant", open: true, run: runAsk},
		"history":        {summary: "show the activity journal", open: true, run: runHistory},
		"health":         {summary: "check configuration, storage and assistant", open: true, run: runHealth},
		"dashboard":      {summary: "interactive team dashboard", open: true, run: runDashboard},
		"version":        {summary: "print the version", run: runVersion},
		"help":           {summary: "show this help", run: runHelp},
	}
}

// usageError marks mistakes in how a command was invoked (exit status 2).
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

var (
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#3CCB7F"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F5A623"))
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

// Run executes one timeless invocation and returns the process exit status.
func Run(ctx context.Context, args []string, env Env) int {
	if env.Stdout == nil {
		env.Stdout = os.Stdout
	}
	if env.Stderr == nil {
		env.Stderr = os.Stderr
	}
	if env.Now == nil {
		env.Now = time.Now
	}
	a := &App{env: env}

	global := flag.NewFlagSet("timeless", flag.ContinueOnError)
	global.SetOutput(env.Stderr)
	global.StringVar(&a.projectDir, "project", "", "project directory (defaults to cwd)")
	global.StringVar(&a.configPath, "config", "", "config file (defaults to <project>/config/config.yaml)")
	global.BoolVar(&a.verbose, "verbose", false, "log debug output to logs/timeless.log")
	global.Usage = func() { printUsage(env.Stderr) }
	if err := global.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	rest := global.Args()
	if len(rest) == 0 {
		printUsage(env.Stderr)
		return 2
	}
	name, cmdArgs := rest[0], rest[1:]
	cmd, ok := commands[name]
	if !ok {
		a.fail(fmt.Errorf("unknown command %q (see `timeless help`)", name))
		return 2
	}
	if err := a.resolveProject(); err != nil {
		a.fail(err)
		return 1
	}
	if cmd.open {
		if err := a.open(); err != nil {
			a.fail(err)
			return 1
		}
		defer a.close()
	}
	if err := cmd.run(ctx, a, cmdArgs); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		a.log.Errorf("%s: %v", name, err)
		a.fail(err)
		var usage usageError
		if errors.As(err, &usage) {
			return 2
		}
		return 1
	}
	return 0
}

func (a *App) resolveProject() error {
	dir := a.projectDir
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("determine working directory: %w", err)
		}
		dir = cwd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve project dir: %w", err)
	}
	a.projectDir = abs
	if a.configPath != "" {
		if a.configPath, err = filepath.Abs(a.configPath); err != nil {
			return fmt.Errorf("resolve config path: %w", err)
		}
	}
	return nil
}

func (a *App) open() error {
	cfg, err := config.Load(a.projectDir, a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	level := cfg.LogLevel()
	if a.verbose {
		level = logging.LevelDebug
	}
	if a.log, err = logging.New(cfg.LogsDir(), level); err != nil {
		return err
	}
	if a.journal, err = logbook.New(cfg.ActivityLogPath()); err != nil {
		return err
	}
	a.journal.SetClock(a.env.Now)
	a.repo, err = repository.Open(cfg.DataDir(),
		repository.WithLogger(a.log),
		repository.WithClock(a.env.Now),
	)
	if err != nil {
		return err
	}
	a.backups = storage.NewBackupManager(cfg.DataDir(), cfg.Storage.MaxBackups,
		storage.WithLogger(a.log),
		storage.WithClock(a.env.Now),
	)
	a.assistant = a.env.Assistant
	if a.assistant == nil {
		a.assistant = assistant.New(assistant.Options{
			Enabled: cfg.Assistant.Enabled,
			Command: cfg.Assistant.Command,
			Args:    cfg.Assistant.Args,
			Timeout: cfg.Assistant.Timeout,
			Logger:  a.log,
		})
	}
	a.log.Debugf("opened project %s (data %s)", a.projectDir, cfg.DataDir())
	return nil
}

func (a *App) close() {
	_ = a.log.Close()
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.env.Stdout, format, args...)
}

func (a *App) success(format string, args ...any) {
	fmt.Fprintln(a.env.Stdout, okStyle.Render("✓ "+fmt.Sprintf(format, args...)))
}

func (a *App) warn(format string, args ...any) {
	fmt.Fprintln(a.env.Stdout, warnStyle.Render("! "+fmt.Sprintf(format, args...)))
}

func (a *App) heading(text string) {
	fmt.Fprintln(a.env.Stdout, headingStyle.Render(text))
}

func (a *App) table(headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headingStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(headers...).
		Rows(rows...)
	fmt.Fprintln(a.env.Stdout, t.String())
}

func (a *App) fail(err error) {
	fmt.Fprintln(a.env.Stderr, failStyle.Render("✗ "+err.Error()))
}

func (a *App) now() time.Time {
	return a.env.Now()
}

// newFlagSet returns a subcommand flag set that reports to stderr.
func (a *App) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("timeless "+name, flag.ContinueOnError)
	fs.SetOutput(a.env.Stderr)
	return fs
}

// parse parses args and turns flag errors into usage errors.
func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return usageError{msg: err.Error()}
	}
	return nil
}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string {
	if s == nil {
		return ""
	}
	return strings.Join(*s, ", ")
}

func (s *stringList) Set(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("value must not be empty")
	}
	*s = append(*s, value)
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: timeless [-project dir] [-config file] [-verbose] <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-15s %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run `timeless <command> -h` for command flags.")
}

func runHelp(_ context.Context, a *App, _ []string) error {
	printUsage(a.env.Stdout)
	return nil
}

func runVersion(_ context.Context, a *App, _ []string) error {
	a.printf("timeless %s\n", Version)
	return nil
}

func runInit(_ context.Context, a *App, args []string) error {
	fs := a.newFlagSet("init")
	if err := parse(fs, args); err != nil {
		return err
	}
	path, err := config.Init(a.projectDir, a.configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(a.projectDir, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir(), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	journal, err := logbook.New(cfg.ActivityLogPath())
	if err != nil {
		return err
	}
	journal.SetClock(a.env.Now)
	journal.Info("project initialized")
	a.success("Initialized timeless project in %s", a.projectDir)
	a.printf("  config: %s\n  data:   %s\n  logs:   %s\n", path, cfg.DataDir(), cfg.LogsDir())
	return nil
}
