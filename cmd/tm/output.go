package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"
	"github.com/spf13/viper"

	"teaminova/internal/viewmodel"
)

// wantJSON is true with --json or when stdout is not a terminal.
func wantJSON() bool {
	if viper.GetBool("json") {
		return true
	}
	fd := os.Stdout.Fd()
	return !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printResult renders v as JSON or, on a terminal, as the table built by fill.
func printResult(v any, header table.Row, fill func(tw table.Writer)) error {
	if wantJSON() {
		return printJSON(v)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(header)
	fill(tw)
	tw.Render()
	return nil
}

func date(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(viewmodel.DateLayout)
}

func text(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func personName(p *viewmodel.Person) string {
	if p == nil {
		return ""
	}
	return p.Name
}

func printTasks(tasks []viewmodel.Task) error {
	return printResult(tasks, table.Row{"ID", "Title", "Status", "Priority", "Project", "Assignee", "Due", "%"}, func(tw table.Writer) {
		for _, t := range tasks {
			tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.Priority, t.Project.Name, t.AssigneeName(), date(t.DueDate), t.PercentComplete})
		}
	})
}

func printTask(t viewmodel.Task) error {
	if wantJSON() {
		return printJSON(t)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	for _, row := range []table.Row{
		{"ID", t.ID},
		{"Title", t.Title},
		{"Description", t.Description},
		{"Status", t.Status},
		{"Priority", t.Priority},
		{"Project", t.Project.Name},
		{"Assignee", t.AssigneeName()},
		{"Start", date(t.StartDate)},
		{"Due", date(t.DueDate)},
		{"Completed", date(t.CompletionDate)},
		{"Progress", fmt.Sprintf("%d%% (%.1fh of %.1fh)", t.PercentComplete, t.ActualHours, t.EstimatedHours)},
		{"Related", len(t.RelatedTaskIDs)},
	} {
		tw.AppendRow(row)
	}
	tw.Render()
	for _, u := range t.Updates {
		fmt.Printf("  #%d %s  %s\n", u.Seq, u.At.Format("2006-01-02 15:04"), u.Text)
	}
	return nil
}

func printProjects(projects []viewmodel.Project) error {
	return printResult(projects, table.Row{"ID", "Name", "Status", "Manager", "Start", "Target", "Milestones"}, func(tw table.Writer) {
		for _, p := range projects {
			tw.AppendRow(table.Row{p.ID, p.Name, p.Status, personName(p.Manager), date(p.StartDate), date(p.TargetDate), len(p.Milestones)})
		}
	})
}

func printProject(p viewmodel.Project) error {
	return printResult(p, table.Row{"Milestone", "Title", "Due", "Done"}, func(tw table.Writer) {
		tw.SetTitle(fmt.Sprintf("%s (%s)", p.Name, p.Status))
		for _, m := range p.Milestones {
			tw.AppendRow(table.Row{m.ID, m.Title, date(m.DueDate), m.Completed})
		}
	})
}

func printIssues(issues []viewmodel.Issue) error {
	return printResult(issues, table.Row{"ID", "Title", "Severity", "Type", "Status", "Project", "Owner", "Target"}, func(tw table.Writer) {
		for _, i := range issues {
			tw.AppendRow(table.Row{i.ID, i.Title, i.Severity, i.ItemType, i.Status, i.Project.Name, personName(i.Owner), date(i.TargetResolutionDate)})
		}
	})
}

func printMembers(members []viewmodel.Member) error {
	return printResult(members, table.Row{"ID", "Name", "Email", "Role", "Access"}, func(tw table.Writer) {
		for _, m := range members {
			tw.AppendRow(table.Row{m.ID, m.Name, m.Email, m.Role, m.AccessLevel})
		}
	})
}
