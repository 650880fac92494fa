package cli

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/kingrea/timeless/internal/model"
)

func runAddUser(_ context.Context, a *App, args []string) error {
	fs := a.newFlagSet("add-user")
	name := fs.String("name", "", "member name (required)")
	email := fs.String("email", "", "member email (required)")
	role := fs.String("role", "Developer", "member role")
	slack := fs.String("slack", "", "slack user id")
	if err := parse(fs, args); err != nil {
		return err
	}
	if strings.TrimSpace(*name) == "" || strings.TrimSpace(*email) == "" {
		return usagef("add-user: -name and -email are required")
	}
	if _, err := mail.ParseAddress(*email); err != nil {
		return usagef("add-user: invalid email %q", *email)
	}
	members, err := a.repo.ListTeamMembers()
	if err != nil {
		return err
	}
	for _, m := range members {
		if strings.EqualFold(m.Email, strings.TrimSpace(*email)) {
			return fmt.Errorf("add-user: %s is already on the team as %s", m.Email, m.Name)
		}
	}
	member := model.NewTeamMember(strings.TrimSpace(*name), strings.TrimSpace(*email), strings.TrimSpace(*role))
	if s := strings.TrimSpace(*slack); s != "" {
		member = member.WithSlackID(s)
	}
	if err := a.repo.SaveTeamMember(member); err != nil {
		return err
	}
	a.journal.Info("member %s (%s) added", member.Name, member.Role)
	a.success("Added %s (%s)", member.Name, member.ID)
	return nil
}

func runUsers(_ context.Context, a *App, args []string) error {
	fs := a.newFlagSet("users")
	if err := parse(fs, args); err != nil {
		return err
	}
	members, err := a.repo.ListTeamMembers()
	if err != nil {
		return err
	}
	if len(members) == 0 {
		a.printf("No team members yet. Add one with `timeless add-user`.\n")
		return nil
	}
	a.heading(fmt.Sprintf("Team members (%d)", len(members)))
	rows := make([][]string, 0, len(members))
	for _, m := range members {
		slack := "-"
		if m.SlackID != nil {
			slack = *m.SlackID
		}
		rows = append(rows, []string{shortID(m.ID), m.Name, m.Email, m.Role, slack})
	}
	a.table([]string{"ID", "NAME", "EMAIL", "ROLE", "SLACK"}, rows)
	return nil
}

func runRemoveUser(_ context.Context, a *App, args []string) error {
	fs := a.newFlagSet("remove-user")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usagef("usage: timeless remove-user <id|name|email>")
	}
	member, err := a.findMember(fs.Arg(0))
	if err != nil {
		return err
	}
	if _, _, err := a.repo.RemoveTeamMember(member.ID); err != nil {
		return err
	}
	a.journal.Info("member %s removed", member.Name)
	a.success("Removed %s", member.Name)
	return nil
}

func runProject(_ context.Context, a *App, args []string) error {
	if len(args) == 0 {
		return usagef("usage: timeless project add|list|status")
	}
	switch args[0] {
	case "add":
		fs := a.newFlagSet("project add")
		name := fs.String("name", "", "project name (required)")
		description := fs.String("description", "", "what the project is about")
		if err := parse(fs, args[1:]); err != nil {
			return err
		}
		if strings.TrimSpace(*name) == "" {
			return usagef("project add: -name is required")
		}
		project := model.NewProject(strings.TrimSpace(*name), strings.TrimSpace(*description))
		if err := a.repo.SaveProject(project); err != nil {
			return err
		}
		a.journal.Info("project %s added", project.Name)
		a.success("Added project %s (%s)", project.Name, project.ID)
		return nil
	case "list":
		fs := a.newFlagSet("project list")
		if err := parse(fs, args[1:]); err != nil {
			return err
		}
		projects, err := a.repo.ListProjects()
		if err != nil {
			return err
		}
		if len(projects) == 0 {
			a.printf("No projects yet.\n")
			return nil
		}
		a.heading(fmt.Sprintf("Projects (%d)", len(projects)))
		rows := make([][]string, 0, len(projects))
		for _, p := range projects {
			rows = append(rows, []string{shortID(p.ID), p.Name, string(p.Status), p.Description})
		}
		a.table([]string{"ID", "NAME", "STATUS", "DESCRIPTION"}, rows)
		return nil
	case "status":
		fs := a.newFlagSet("project status")
		if err := parse(fs, args[1:]); err != nil {
			return err
		}
		if fs.NArg() != 2 {
			return usagef("usage: timeless project status <id|name> <Active|Completed|OnHold|Cancelled>")
		}
		status, err := model.ParseProjectStatus(fs.Arg(1))
		if err != nil {
			return usageError{msg: err.Error()}
		}
		project, err := a.findProject(fs.Arg(0))
		if err != nil {
			return err
		}
		previous := project.Status
		project.SetStatus(status)
		if err := a.repo.SaveProject(project); err != nil {
			return err
		}
		a.journal.Info("project %s moved %s -> %s", project.Name, previous, status)
		a.success("%s is now %s", project.Name, status)
		return nil
	}
	return usagef("unknown project subcommand %q", args[0])
}

// findMember resolves a full id, an id prefix of at least 4 characters, a
// name or an email. Names and emails match case-insensitively.
func (a *App) findMember(ref string) (model.TeamMember, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return model.TeamMember{}, usagef("member reference is required")
	}
	if id, err := uuid.Parse(ref); err == nil {
		member, ok, err := a.repo.GetTeamMember(id)
		if err != nil {
			return model.TeamMember{}, err
		}
		if !ok {
			return model.TeamMember{}, fmt.Errorf("no team member with id %s", id)
		}
		return member, nil
	}
	members, err := a.repo.ListTeamMembers()
	if err != nil {
		return model.TeamMember{}, err
	}
	var matches []model.TeamMember
	for _, m := range members {
		if strings.EqualFold(m.Name, ref) || strings.EqualFold(m.Email, ref) ||
			(len(ref) >= 4 && strings.HasPrefix(m.ID.String(), strings.ToLower(ref))) {
			matches = append(matches, m)
		}
	}
	switch len(matches) {
	case 0:
		return model.TeamMember{}, fmt.Errorf("no team member matches %q", ref)
	case 1:
		return matches[0], nil
	}
	return model.TeamMember{}, fmt.Errorf("%q matches %d members; use the id", ref, len(matches))
}

func (a *App) findProject(ref string) (model.Project, error) {
	ref = strings.TrimSpace(ref)
	if id, err := uuid.Parse(ref); err == nil {
		project, ok, err := a.repo.GetProject(id)
		if err != nil {
			return model.Project{}, err
		}
		if !ok {
			return model.Project{}, fmt.Errorf("no project with id %s", id)
		}
		return project, nil
	}
	projects, err := a.repo.ListProjects()
	if err != nil {
		return model.Project{}, err
	}
	var matches []model.Project
	for _, p := range projects {
		if strings.EqualFold(p.Name, ref) || (len(ref) >= 4 && strings.HasPrefix(p.ID.String(), strings.ToLower(ref))) {
			matches = append(matches, p)
		}
	}
	switch len(matches) {
	case 0:
		return model.Project{}, fmt.Errorf("no project matches %q", ref)
	case 1:
		return matches[0], nil
	}
	return model.Project{}, fmt.Errorf("%q matches %d projects; use the id", ref, len(matches))
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}

func (a *App) memberNames() (map[uuid.UUID]string, error) {
	members, err := a.repo.ListTeamMembers()
	if err != nil {
		return nil, err
	}
	names := make(map[uuid.UUID]string, len(members))
	for _, m := range members {
		names[m.ID] = m.Name
	}
	return names, nil
}

func nameOr(names map[uuid.UUID]string, id uuid.UUID) string {
	if name, ok := names[id]; ok {
		return name
	}
	return shortID(id)
}
