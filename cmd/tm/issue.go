package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"teaminova/internal/authz"
	"teaminova/internal/derive"
	"teaminova/internal/domain"
	"teaminova/internal/engine"
	"teaminova/internal/repo"
)

func issueCmd() *cobra.Command {
	issue := &cobra.Command{Use: "issue", Short: "Manage issues and risks"}
	issue.AddCommand(issueListCmd())
	issue.AddCommand(issueCreateCmd())
	issue.AddCommand(issueShowCmd())
	issue.AddCommand(issueUpdateCmd())
	issue.AddCommand(issueDeleteCmd())
	return issue
}

func issueListCmd() *cobra.Command {
	var f repo.IssueFilters
	var project, group string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List issues",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := derive.ParseGroupKey(group)
			if err != nil {
				return err
			}
			return withViewer(cmd.Context(), func(ctx context.Context, e engine.Engine, v authz.Viewer) error {
				if project != "" {
					p, err := e.ResolveProject(ctx, v, project)
					if err != nil {
						return err
					}
					f.ProjectID = p.ID
				}
				if key == derive.GroupByNone {
					items, err := e.ListIssues(ctx, v, f)
					if err != nil {
						return err
					}
					return printIssues(items)
				}
				groups, err := e.GroupedIssues(ctx, v, f, key)
				if err != nil {
					return err
				}
				return printResult(groups, table.Row{"Group", "Title", "Severity", "Status", "Owner"}, func(tw table.Writer) {
					for _, g := range groups {
						for _, i := range g.Issues {
							tw.AppendRow(table.Row{g.Name, i.Title, i.Severity, i.Status, personName(i.Owner)})
						}
						tw.AppendSeparator()
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project id or name")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Severity, "severity", "", "severity filter")
	cmd.Flags().StringVar(&f.OwnerID, "owner-id", "", "owner filter")
	cmd.Flags().StringVar(&group, "group", "", "group by project, severity, date or owner")
	return cmd
}

func issueCreateCmd() *cobra.Command {
	var opts engine.IssueCreateOptions
	var severity, itemType, status string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Log an issue",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Severity = domain.Severity(severity)
			opts.ItemType = domain.IssueType(itemType)
			opts.Status = domain.IssueStatus(status)
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, v authz.Viewer) error {
				issue, err := e.CreateIssue(ctx, v, opts)
				if err != nil {
					return err
				}
				return printJSON(issue)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Project, "project", "", "project id or name")
	cmd.Flags().StringVar(&severity, "severity", "", "critical, high, medium or low")
	cmd.Flags().StringVar(&itemType, "type", "", "issue, bug, dependency, blocker, risk or other")
	cmd.Flags().StringVar(&status, "status", "", "initial status (default open)")
	cmd.Flags().StringVar(&opts.DateIdentified, "identified", "", "date identified (default today)")
	cmd.Flags().StringVar(&opts.Owner, "owner", "", "owner id, email or name")
	cmd.Flags().StringVar(&opts.TargetResolutionDate, "target", "", "target resolution date")
	cmd.Flags().StringVar(&opts.RecommendedAction, "action", "", "recommended action")
	cmd.Flags().StringVar(&opts.Comments, "comments", "", "comments")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func issueShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show an issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withViewer(cmd.Context(), func(ctx context.Context, e engine.Engine, v authz.Viewer) error {
				issue, err := e.GetIssue(ctx, v, args[0])
				if err != nil {
					return err
				}
				return printResult(issue, table.Row{"Field", "Value"}, func(tw table.Writer) {
					tw.AppendRows([]table.Row{
						{"Title", issue.Title},
						{"Description", text(issue.Description)},
						{"Project", issue.Project.Name},
						{"Author", issue.Author.Name},
						{"Owner", personName(issue.Owner)},
						{"Severity", issue.Severity},
						{"Type", issue.ItemType},
						{"Status", issue.Status},
						{"Identified", issue.DateIdentified.Format("2006-01-02")},
						{"Target", date(issue.TargetResolutionDate)},
						{"Action", text(issue.RecommendedAction)},
						{"Resolution", text(issue.ResolutionNotes)},
					})
				})
			})
		},
	}
}

func issueUpdateCmd() *cobra.Command {
	var project, title, desc, severity, itemType, status, identified, owner, target, action, comments, resolution string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update an issue you logged",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := engine.IssuePatch{
				Project:              optionalString(cmd, "project", project),
				Title:                optionalString(cmd, "title", title),
				Description:          optionalString(cmd, "description", desc),
				DateIdentified:       optionalString(cmd, "identified", identified),
				Owner:                optionalString(cmd, "owner", owner),
				TargetResolutionDate: optionalString(cmd, "target", target),
				RecommendedAction:    optionalString(cmd, "action", action),
				Comments:             optionalString(cmd, "comments", comments),
				ResolutionNotes:      optionalString(cmd, "resolution", resolution),
			}
			if cmd.Flags().Changed("severity") {
				s := domain.Severity(severity)
				patch.Severity = &s
			}
			if cmd.Flags().Changed("type") {
				t := domain.IssueType(itemType)
				patch.ItemType = &t
			}
			if cmd.Flags().Changed("status") {
				s := domain.IssueStatus(status)
				patch.Status = &s
			}
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, v authz.Viewer) error {
				issue, err := e.UpdateIssue(ctx, v, args[0], patch)
				if err != nil {
					return err
				}
				return printJSON(issue)
			})
		},
	}
	for _, f := range []struct {
		name  string
		value *string
		usage string
	}{
		{"project", &project, "project id or name"},
		{"title", &title, "title"},
		{"description", &desc, "description (empty clears)"},
		{"severity", &severity, "severity"},
		{"type", &itemType, "item type"},
		{"status", &status, "status"},
		{"identified", &identified, "date identified"},
		{"owner", &owner, "owner (empty clears)"},
		{"target", &target, "target resolution date (empty clears)"},
		{"action", &action, "recommended action"},
		{"comments", &comments, "comments"},
		{"resolution", &resolution, "resolution notes"},
	} {
		cmd.Flags().StringVar(f.value, f.name, "", f.usage)
	}
	return cmd
}

func issueDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, v authz.Viewer) error {
				if err := e.DeleteIssue(ctx, v, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}
