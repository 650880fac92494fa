package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/kingrea/timeless/internal/assistant"
	"github.com/kingrea/timeless/internal/automation"
	"github.com/kingrea/timeless/internal/storage"
	"github.com/kingrea/timeless/internal/tui"
)

const defaultHistoryLines = 20

func runBackup(_ context.Context, a *App, args []string) error {
	if len(args) == 0 {
		return usagef("usage: timeless backup create|list|restore")
	}
	switch args[0] {
	case "create":
		fs := a.newFlagSet("backup create")
		if err := parse(fs, args[1:]); err != nil {
			return err
		}
		name, err := a.backups.Create()
		if errors.Is(err, storage.ErrBackupExists) {
			return fmt.Errorf("%w; too many backups this second, wait and retry", err)
		}
		if err != nil {
			return err
		}
		a.journal.Info("backup %s created", name)
		a.success("Created backup %s", name)
		return nil
	case "list":
		fs := a.newFlagSet("backup list")
		if err := parse(fs, args[1:]); err != nil {
			return err
		}
		names, err := a.backups.List()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			a.printf("No backups in %s.\n", a.backups.Dir())
			return nil
		}
		rows := make([][]string, 0, len(names))
		for i := len(names) - 1; i >= 0; i-- {
			taken := "-"
			if ts, err := storage.ParseBackupTime(names[i]); err == nil {
				taken = ts.In(a.cfg.Location()).Format("2006-01-02 15:04:05 MST")
			}
			rows = append(rows, []string{names[i], taken})
		}
		a.table([]string{"NAME", "TAKEN"}, rows)
		return nil
	case "restore":
		fs := a.newFlagSet("backup restore")
		latest := fs.Bool("latest", false, "restore the newest backup")
		if err := parse(fs, args[1:]); err != nil {
			return err
		}
		var name string
		switch {
		case *latest && fs.NArg() == 0:
			n, _, ok, err := a.backups.Latest()
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no backups to restore")
			}
			name = n
		case !*latest && fs.NArg() == 1:
			name = fs.Arg(0)
		default:
			return usagef("usage: timeless backup restore <name> | -latest")
		}
		if err := a.backups.Restore(name); err != nil {
			return err
		}
		a.journal.Warn("data restored from backup %s", name)
		a.success("Restored %s", name)
		return nil
	}
	return usagef("unknown backup subcommand %q", args[0])
}

func runAutomate(ctx context.Context, a *App, args []string) error {
	fs := a.newFlagSet("automate")
	dryRun := fs.Bool("dry-run", false, "validate the rules without running them")
	if err := parse(fs, args); err != nil {
		return err
	}
	rules := a.cfg.Automation.Rules
	if len(rules) == 0 {
		a.printf("No automation rules configured.\n")
		return nil
	}
	runner := automation.NewRunner(automation.Deps{
		Repo:           a.repo,
		Backups:        a.backups,
		Assistant:      a.assistant,
		Journal:        a.journal,
		Logger:         a.log,
		BackupEnabled:  a.cfg.Storage.BackupEnabled,
		BackupInterval: a.cfg.BackupInterval(),
		MetricsPath:    a.defaultMetricsPath(),
		Now:            a.env.Now,
	})
	if *dryRun {
		if err := runner.Validate(rules); err != nil {
			return err
		}
		for _, rule := range rules {
			state := "enabled"
			if rule.Disabled {
				state = "disabled"
			}
			a.printf("%s (%s): %d condition(s), %d action(s)\n", rule.Name, state, len(rule.When), len(rule.Then))
		}
		a.success("%d rule(s) are valid", len(rules))
		return nil
	}
	results, err := runner.Run(ctx, rules)
	for _, r := range results {
		switch r.Status {
		case automation.StatusCompleted:
			a.success("%s completed", r.Rule)
		case automation.StatusSkipped:
			a.printf("%s\n", mutedStyle.Render("- "+r.Rule+" skipped: "+r.Detail))
		case automation.StatusFailed:
			a.printf("%s\n", failStyle.Render("✗ "+r.Rule+" failed: "+r.Detail))
		}
		for _, act := range r.Actions {
			if act.Err == nil && act.Output != "" {
				a.printf("    %s: %s\n", act.Kind, act.Output)
			}
		}
	}
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.Status == automation.StatusFailed {
			return fmt.Errorf("automation rule %s failed", r.Rule)
		}
	}
	return nil
}

func runAsk(ctx context.Context, a *App, args []string) error {
	fs := a.newFlagSet("ask")
	checkin := fs.String("checkin", "", "draft a check-in message for this member instead")
	if err := parse(fs, args); err != nil {
		return err
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if *checkin == "" && question == "" {
		return usagef("usage: timeless ask <question> | -checkin <member>")
	}
	team, err := assistant.BuildTeamContext(a.repo)
	if err != nil {
		return err
	}
	var prompt string
	if *checkin != "" {
		member, err := a.findMember(*checkin)
		if err != nil {
			return err
		}
		updates, err := a.repo.StatusUpdatesForMember(member.ID)
		if err != nil {
			return err
		}
		if prompt, err = assistant.CheckInPrompt(member, updates, team); err != nil {
			return err
		}
	} else {
		prompt = team.String() + "\n\nQuestion: " + question
	}
	a.log.Debugf("ask: sending %d byte prompt", len(prompt))
	answer, err := a.assistant.Send(ctx, prompt)
	if err != nil {
		return assistantError(err)
	}
	a.printf("%s\n", answer)
	return nil
}

func runHistory(_ context.Context, a *App, args []string) error {
	fs := a.newFlagSet("history")
	n := fs.Int("n", defaultHistoryLines, "number of entries to show")
	if err := parse(fs, args); err != nil {
		return err
	}
	lines, total := a.journal.Tail(*n)
	if total == 0 {
		a.printf("No activity recorded yet.\n")
		return nil
	}
	a.heading(fmt.Sprintf("Activity (%d of %d)", len(lines), total))
	for _, line := range lines {
		a.printf("%s\n", line)
	}
	return nil
}

func runHealth(_ context.Context, a *App, args []string) error {
	fs := a.newFlagSet("health")
	if err := parse(fs, args); err != nil {
		return err
	}
	failed := 0
	check := func(ok bool, format string, args ...any) {
		if ok {
			a.success(format, args...)
			return
		}
		failed++
		a.printf("%s\n", failStyle.Render("✗ "+fmt.Sprintf(format, args...)))
	}

	if _, err := os.Stat(a.cfg.Path); err == nil {
		a.success("config %s", a.cfg.Path)
	} else {
		a.warn("config %s missing, using defaults (run `timeless init`)", a.cfg.Path)
	}

	counts, err := a.repo.Counts()
	check(err == nil, "data dir %s readable", a.cfg.DataDir())
	if err == nil {
		keys := make([]string, 0, len(counts))
		for k := range counts {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			a.printf("    %-15s %d\n", k, counts[k])
		}
	}

	names, err := a.backups.List()
	check(err == nil, "%d backup(s) in %s", len(names), a.backups.Dir())
	if a.cfg.Storage.BackupEnabled && err == nil {
		due, derr := a.backups.Due(a.cfg.BackupInterval(), a.now())
		if derr == nil && due {
			a.warn("a backup is due (interval %s)", a.cfg.BackupInterval())
		}
	}
	for _, opt := range a.cfg.UnimplementedStorageOptions() {
		a.warn("storage.%s is set but not implemented", opt)
	}

	if a.cfg.Assistant.Enabled {
		path, err := exec.LookPath(a.cfg.Assistant.Command)
		check(err == nil, "assistant command %q found %s", a.cfg.Assistant.Command, path)
	} else {
		a.printf("%s\n", mutedStyle.Render("- assistant disabled"))
	}

	if failed > 0 {
		return fmt.Errorf("%d health check(s) failed", failed)
	}
	return nil
}

func runDashboard(_ context.Context, a *App, args []string) error {
	fs := a.newFlagSet("dashboard")
	if err := parse(fs, args); err != nil {
		return err
	}
	isTerminal := a.env.IsTerminal
	if isTerminal == nil {
		isTerminal = func() bool { return term.IsTerminal(int(os.Stdout.Fd())) }
	}
	if !isTerminal() {
		return fmt.Errorf("dashboard needs an interactive terminal; try `timeless report`")
	}
	app := tui.NewApp(a.repo, tui.WithLogbook(a.journal), tui.WithTitle(a.cfg.Team.Name))
	run := a.env.RunDashboard
	if run == nil {
		run = func(m tea.Model) error {
			_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
			return err
		}
	}
	a.log.Infof("dashboard started")
	if err := run(app); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}
