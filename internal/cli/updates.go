package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kingrea/timeless/internal/assistant"
	"github.com/kingrea/timeless/internal/model"
)

const (
	defaultListLimit = 10

	// transcriptMessages and transcriptBudget bound what `conversation say
	// -reply` sends; older turns are left out of the prompt.
	transcriptMessages = 20
	transcriptBudget   = 64 << 10
)

func runStatus(_ context.Context, a *App, args []string) error {
	fs := a.newFlagSet("status")
	memberRef := fs.String("member", "", "member id, name or email (required)")
	message := fs.String("message", "", "what the member is working on (or pass it as arguments)")
	mood := fs.String("mood", "", "optional mood")
	var blockers, achievements stringList
	fs.Var(&blockers, "blocker", "a blocker (repeatable)")
	fs.Var(&achievements, "achievement", "an achievement (repeatable)")
	if err := parse(fs, args); err != nil {
		return err
	}
	content := strings.TrimSpace(*message)
	if content == "" {
		content = strings.TrimSpace(strings.Join(fs.Args(), " "))
	}
	if *memberRef == "" || content == "" {
		return usagef("usage: timeless status -member <ref> [-mood m] [-blocker b]... [-achievement a]... <message>")
	}
	member, err := a.findMember(*memberRef)
	if err != nil {
		return err
	}
	update := model.NewStatusUpdate(member.ID, content)
	if m := strings.TrimSpace(*mood); m != "" {
		update = update.WithMood(m)
	}
	for _, b := range blockers {
		update.AddBlocker(b)
	}
	for _, ach := range achievements {
		update.AddAchievement(ach)
	}
	if err := a.repo.SaveStatusUpdate(update); err != nil {
		return err
	}
	if update.HasBlockers() {
		a.journal.Warn("status from %s with %d blocker(s)", member.Name, len(update.Blockers))
	} else {
		a.journal.Info("status from %s", member.Name)
	}
	a.success("Recorded status update for %s", member.Name)
	return nil
}

func runUpdates(_ context.Context, a *App, args []string) error {
	fs := a.newFlagSet("updates")
	memberRef := fs.String("member", "", "only this member's updates")
	limit := fs.Int("limit", defaultListLimit, "maximum number of updates")
	if err := parse(fs, args); err != nil {
		return err
	}
	var updates []model.StatusUpdate
	var err error
	if *memberRef != "" {
		member, ferr := a.findMember(*memberRef)
		if ferr != nil {
			return ferr
		}
		updates, err = a.repo.StatusUpdatesForMember(member.ID)
		if err == nil && *limit >= 0 && len(updates) > *limit {
			updates = updates[len(updates)-*limit:]
		}
	} else {
		updates, err = a.repo.RecentStatusUpdates(*limit)
	}
	if err != nil {
		return err
	}
	if len(updates) == 0 {
		a.printf("No status updates.\n")
		return nil
	}
	names, err := a.memberNames()
	if err != nil {
		return err
	}
	a.heading(fmt.Sprintf("Status updates (%d)", len(updates)))
	for _, u := range updates {
		a.printf("%s  %s: %s\n", u.Timestamp.Format("2006-01-02 15:04"), nameOr(names, u.MemberID), u.Content)
		if u.Mood != nil {
			a.printf("    mood: %s\n", *u.Mood)
		}
		for _, b := range u.Blockers {
			a.printf("    %s\n", warnStyle.Render("blocker: "+b))
		}
		for _, ach := range u.Achievements {
			a.printf("    %s\n", okStyle.Render("achieved: "+ach))
		}
	}
	return nil
}

func runConversation(ctx context.Context, a *App, args []string) error {
	if len(args) == 0 {
		return usagef("usage: timeless conversation start|say|show|list|trim")
	}
	switch args[0] {
	case "start":
		fs := a.newFlagSet("conversation start")
		memberRef := fs.String("member", "", "member id, name or email (required)")
		if err := parse(fs, args[1:]); err != nil {
			return err
		}
		if *memberRef == "" {
			return usagef("conversation start: -member is required")
		}
		member, err := a.findMember(*memberRef)
		if err != nil {
			return err
		}
		conv := model.NewConversation(member.ID)
		if opening := strings.TrimSpace(strings.Join(fs.Args(), " ")); opening != "" {
			conv.AddMessage(model.RoleSystem, opening)
		}
		if err := a.repo.SaveConversation(conv); err != nil {
			return err
		}
		a.journal.Info("conversation %s started with %s", shortID(conv.ID), member.Name)
		a.success("Started conversation %s with %s", conv.ID, member.Name)
		return nil
	case "say":
		fs := a.newFlagSet("conversation say")
		id := fs.String("id", "", "conversation id (required)")
		role := fs.String("role", "user", "message role: user, assistant or system")
		reply := fs.Bool("reply", false, "ask the assistant to answer and store its reply")
		if err := parse(fs, args[1:]); err != nil {
			return err
		}
		text := strings.TrimSpace(strings.Join(fs.Args(), " "))
		if *id == "" || text == "" {
			return usagef("usage: timeless conversation say -id <conversation> [-role r] [-reply] <message>")
		}
		msgRole, err := parseRole(*role)
		if err != nil {
			return err
		}
		conv, err := a.findConversation(*id)
		if err != nil {
			return err
		}
		conv.AddMessage(msgRole, text)
		if *reply {
			answer, err := a.assistant.Send(ctx, transcript(conv))
			if err != nil {
				return assistantError(err)
			}
			conv.AddMessage(model.RoleAssistant, answer)
			a.printf("%s\n", answer)
		}
		if err := a.repo.SaveConversation(conv); err != nil {
			return err
		}
		a.success("Conversation %s has %d messages", shortID(conv.ID), len(conv.Messages))
		return nil
	case "show":
		fs := a.newFlagSet("conversation show")
		if err := parse(fs, args[1:]); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return usagef("usage: timeless conversation show <id>")
		}
		conv, err := a.findConversation(fs.Arg(0))
		if err != nil {
			return err
		}
		names, err := a.memberNames()
		if err != nil {
			return err
		}
		a.heading(fmt.Sprintf("Conversation %s with %s", conv.ID, nameOr(names, conv.MemberID)))
		if len(conv.Messages) == 0 {
			a.printf("No messages yet.\n")
		}
		for _, m := range conv.Messages {
			a.printf("[%s] %s: %s\n", m.Timestamp.Format("2006-01-02 15:04"), m.Role, m.Content)
		}
		return nil
	case "list":
		fs := a.newFlagSet("conversation list")
		memberRef := fs.String("member", "", "only this member's conversations")
		if err := parse(fs, args[1:]); err != nil {
			return err
		}
		var convs []model.Conversation
		var err error
		if *memberRef != "" {
			member, ferr := a.findMember(*memberRef)
			if ferr != nil {
				return ferr
			}
			convs, err = a.repo.ConversationsForMember(member.ID)
		} else {
			convs, err = a.repo.ListConversations()
		}
		if err != nil {
			return err
		}
		if len(convs) == 0 {
			a.printf("No conversations.\n")
			return nil
		}
		names, err := a.memberNames()
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(convs))
		for _, c := range convs {
			rows = append(rows, []string{c.ID.String(), nameOr(names, c.MemberID), fmt.Sprint(len(c.Messages)), c.UpdatedAt.Format("2006-01-02 15:04")})
		}
		a.table([]string{"ID", "MEMBER", "MESSAGES", "UPDATED"}, rows)
		return nil
	case "trim":
		fs := a.newFlagSet("conversation trim")
		id := fs.String("id", "", "conversation id (required)")
		keep := fs.Int("keep", transcriptMessages, "number of most recent messages to keep")
		if err := parse(fs, args[1:]); err != nil {
			return err
		}
		if *id == "" || *keep < 0 {
			return usagef("usage: timeless conversation trim -id <conversation> [-keep n]")
		}
		conv, err := a.findConversation(*id)
		if err != nil {
			return err
		}
		dropped := conv.ClearOldMessages(*keep)
		if dropped == 0 {
			a.printf("Conversation %s has %d messages; nothing to trim.\n", shortID(conv.ID), len(conv.Messages))
			return nil
		}
		if err := a.repo.SaveConversation(conv); err != nil {
			return err
		}
		a.journal.Info("conversation %s trimmed, %d old message(s) dropped", shortID(conv.ID), dropped)
		a.success("Dropped %d old message(s) from %s", dropped, shortID(conv.ID))
		return nil
	}
	return usagef("unknown conversation subcommand %q", args[0])
}

func (a *App) findConversation(ref string) (model.Conversation, error) {
	id, err := uuid.Parse(strings.TrimSpace(ref))
	if err != nil {
		return model.Conversation{}, usagef("invalid conversation id %q", ref)
	}
	conv, ok, err := a.repo.GetConversation(id)
	if err != nil {
		return model.Conversation{}, err
	}
	if !ok {
		return model.Conversation{}, fmt.Errorf("no conversation with id %s", id)
	}
	return conv, nil
}

func parseRole(value string) (model.MessageRole, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "user":
		return model.RoleUser, nil
	case "assistant":
		return model.RoleAssistant, nil
	case "system":
		return model.RoleSystem, nil
	}
	return "", usagef("unknown role %q", value)
}

func transcript(conv model.Conversation) string {
	const preamble = "You are a smart team manager assistant continuing a conversation with a team member.\n" +
		"Reply to the last message in two or three sentences.\n\n"
	lines := make([]string, 0, transcriptMessages)
	size := len(preamble)
	for _, m := range conv.RecentMessages(transcriptMessages) {
		line := fmt.Sprintf("%s: %s\n", m.Role, m.Content)
		lines = append(lines, line)
		size += len(line)
	}
	for len(lines) > 1 && size > transcriptBudget {
		size -= len(lines[0])
		lines = lines[1:]
	}
	return strings.TrimSpace(preamble + strings.Join(lines, ""))
}

func assistantError(err error) error {
	if errors.Is(err, assistant.ErrDisabled) {
		return fmt.Errorf("%w (set assistant.enabled in config/config.yaml)", err)
	}
	return err
}
