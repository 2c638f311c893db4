package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"teaminova/internal/authz"
	"teaminova/internal/derive"
	"teaminova/internal/domain"
	"teaminova/internal/engine"
	"teaminova/internal/sheet"
)

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskStatusCmd())
	task.AddCommand(taskLogCmd())
	task.AddCommand(taskCancelCmd())
	task.AddCommand(taskLinkCmd())
	task.AddCommand(taskUnlinkCmd())
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(taskBoardCmd())
	task.AddCommand(taskOverdueCmd())
	task.AddCommand(taskStatsCmd())
	task.AddCommand(taskImportCmd())
	task.AddCommand(taskExportCmd())
	return task
}

type taskFilterFlags struct {
	status, priority, project, assignee, search string
	overdue                                     bool
}

func (f *taskFilterFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.priority, "priority", "", "priority filter")
	cmd.Flags().StringVar(&f.project, "project", "", "project id or name")
	cmd.Flags().StringVar(&f.assignee, "assignee", "", "assignee id, email or name")
	cmd.Flags().StringVar(&f.search, "search", "", "match title or description")
	cmd.Flags().BoolVar(&f.overdue, "overdue", false, "only overdue tasks")
}

// resolve turns names into the ids TaskFilter matches on.
func (f *taskFilterFlags) resolve(ctx context.Context, e engine.Engine, v authz.Viewer) (derive.TaskFilter, error) {
	out := derive.TaskFilter{
		Status:      domain.TaskStatus(f.status),
		Priority:    domain.Priority(f.priority),
		Search:      f.search,
		OverdueOnly: f.overdue,
	}
	if f.project != "" {
		p, err := e.ResolveProject(ctx, v, f.project)
		if err != nil {
			return out, err
		}
		out.ProjectID = p.ID
	}
	if f.assignee != "" {
		assignee, err := e.ViewerForProfile(ctx, f.assignee)
		if err != nil {
			return out, err
		}
		out.AssigneeID = assignee.ProfileID
	}
	return out, nil
}

func taskListCmd() *cobra.Command {
	var f taskFilterFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withViewer(cmd.Context(), func(ctx context.Context, e engine.Engine, v authz.Viewer) error {
				filter, err := f.resolve(ctx, e, v)
				if err != nil {
					return err
				}
				tasks, err := e.ListTasks(ctx, v, filter)
				if err != nil {
					return err
				}
				return printTasks(tasks)
			})
		},
	}
	f.bind(cmd)
	return cmd
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	var status, priority string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Status = domain.TaskStatus(status)
			opts.Priority = domain.Priority(priority)
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, v authz.Viewer) error {
				t, err := e.CreateTask(ctx, v, opts)
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Project, "project", "", "project id or name (defaults to defaults.project)")
	cmd.Flags().StringVar(&status, "status", "", "initial status (default todo)")
	cmd.Flags().StringVar(&priority, "priority", "", "priority (default medium)")
	cmd.Flags().StringVar(&opts.Assignee, "assignee", "", "assignee id, email or name")
	cmd.Flags().StringVar(&opts.StartDate, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.DueDate, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&opts.PercentComplete, "percent", 0, "percent complete")
	cmd.Flags().Float64Var(&opts.EstimatedHours, "estimate", 0, "estimated hours")
	cmd.Flags().Float64Var(&opts.ActualHours, "actual", 0, "actual hours")
	cmd.Flags().StringVar(&opts.ReferenceURL, "url", "", "reference URL")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task with its updates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withViewer(cmd.Context(), func(ctx context.Context, e engine.Engine, v authz.Viewer) error {
				t, err := e.GetTask(ctx, v, args[0])
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
}

func taskUpdateCmd() *cobra.Command {
	var title, desc, status, priority, assignee, project, start, due, url string
	var percent int
	var estimate, actual float64
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update task fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := engine.TaskPatch{
				Title:        optionalString(cmd, "title", title),
				Description:  optionalString(cmd, "description", desc),
				Assignee:     optionalString(cmd, "assignee", assignee),
				Project:      optionalString(cmd, "project", project),
				StartDate:    optionalString(cmd, "start", start),
				DueDate:      optionalString(cmd, "due", due),
				ReferenceURL: optionalString(cmd, "url", url),
			}
			if cmd.Flags().Changed("status") {
				s := domain.TaskStatus(status)
				patch.Status = &s
			}
			if cmd.Flags().Changed("priority") {
				p := domain.Priority(priority)
				patch.Priority = &p
			}
			if cmd.Flags().Changed("percent") {
				patch.PercentComplete = &percent
			}
			if cmd.Flags().Changed("estimate") {
				patch.EstimatedHours = &estimate
			}
			if cmd.Flags().Changed("actual") {
				patch.ActualHours = &actual
			}
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, v authz.Viewer) error {
				t, err := e.UpdateTask(ctx, v, args[0], patch)
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&status, "status", "", "status")
	cmd.Flags().StringVar(&priority, "priority", "", "priority")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee (empty unassigns)")
	cmd.Flags().StringVar(&project, "project", "", "project id or name")
	cmd.Flags().StringVar(&start, "start", "", "start date (empty clears)")
	cmd.Flags().StringVar(&due, "due", "", "due date (empty clears)")
	cmd.Flags().StringVar(&url, "url", "", "reference URL (empty clears)")
	cmd.Flags().IntVar(&percent, "percent", 0, "percent complete")
	cmd.Flags().Float64Var(&estimate, "estimate", 0, "estimated hours")
	cmd.Flags().Float64Var(&actual, "actual", 0, "actual hours")
	return cmd
}

func taskStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Move a task to another status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, v authz.Viewer) error {
				t, err := e.ChangeStatus(ctx, v, args[0], domain.TaskStatus(args[1]))
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
}

func taskLogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "log <id> <text>",
		Short: "Append a progress note",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, v authz.Viewer) error {
				t, err := e.AppendUpdate(ctx, v, args[0], args[1])
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
}

func taskCancelCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a task with a justification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, v authz.Viewer) error {
				t, err := e.CancelTask(ctx, v, args[0], reason)
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "justification")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func taskLinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link <id> <related-id>",
		Short: "Mark a task as related to another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, v authz.Viewer) error {
				t, err := e.LinkTasks(ctx, v, args[0], args[1])
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
}

func taskUnlinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <id> <related-id>",
		Short: "Remove a related task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, v authz.Viewer) error {
				t, err := e.UnlinkTasks(ctx, v, args[0], args[1])
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, v authz.Viewer) error {
				if err := e.DeleteTask(ctx, v, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func taskBoardCmd() *cobra.Command {
	var f taskFilterFlags
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Show tasks by board column",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withViewer(cmd.Context(), func(ctx context.Context, e engine.Engine, v authz.Viewer) error {
				filter, err := f.resolve(ctx, e, v)
				if err != nil {
					return err
				}
				cols, err := e.Board(ctx, v, filter)
				if err != nil {
					return err
				}
				return printResult(cols, table.Row{"Column", "Task", "Priority", "Assignee", "Due"}, func(tw table.Writer) {
					for _, c := range cols {
						for _, t := range c.Tasks {
							tw.AppendRow(table.Row{c.Status, t.Title, t.Priority, t.AssigneeName(), date(t.DueDate)})
						}
						tw.AppendSeparator()
					}
				})
			})
		},
	}
	f.bind(cmd)
	return cmd
}

func taskOverdueCmd() *cobra.Command {
	var f taskFilterFlags
	cmd := &cobra.Command{
		Use:   "overdue",
		Short: "Overdue report grouped by priority",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withViewer(cmd.Context(), func(ctx context.Context, e engine.Engine, v authz.Viewer) error {
				filter, err := f.resolve(ctx, e, v)
				if err != nil {
					return err
				}
				groups, err := e.Overdue(ctx, v, filter)
				if err != nil {
					return err
				}
				return printResult(groups, table.Row{"Priority", "Task", "Assignee", "Due", "Days overdue"}, func(tw table.Writer) {
					for _, g := range groups {
						for _, item := range g.Items {
							tw.AppendRow(table.Row{g.Priority, item.Task.Title, item.Task.AssigneeName(), date(item.Task.DueDate), item.DaysOverdue})
						}
					}
				})
			})
		},
	}
	f.bind(cmd)
	return cmd
}

func taskStatsCmd() *cobra.Command {
	var f taskFilterFlags
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Task counts and workload per member",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, v authz.Viewer) error {
				filter, err := f.resolve(ctx, e, v)
				if err != nil {
					return err
				}
				members, err := e.ListMembers(ctx, v)
				if err != nil {
					return err
				}
				stats, err := e.Stats(ctx, v, members, filter)
				if err != nil {
					return err
				}
				return printResult(stats, table.Row{"Member", "Assigned", "Overdue"}, func(tw table.Writer) {
					tw.SetTitle(fmt.Sprintf("%d tasks, %d overdue", stats.Tasks.Total, stats.Tasks.Overdue))
					for _, l := range stats.Workload {
						tw.AppendRow(table.Row{l.Name, l.Assigned, l.Overdue})
					}
				})
			})
		},
	}
	f.bind(cmd)
	return cmd
}

func taskImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.xlsx>",
		Short: "Create tasks from a spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			rows, err := sheet.Read(f)
			if err != nil {
				return err
			}
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, v authz.Viewer) error {
				summary, err := e.ImportTasks(ctx, v, rows)
				if err != nil {
					return err
				}
				return printResult(summary, table.Row{"Line", "Title", "Skipped because"}, func(tw table.Writer) {
					tw.SetTitle(fmt.Sprintf("%d imported, %d skipped", summary.Succeeded, summary.Skipped))
					for _, s := range summary.Skips {
						tw.AppendRow(table.Row{s.Line, s.Title, s.Reason})
					}
				})
			})
		},
	}
}

func taskExportCmd() *cobra.Command {
	var f taskFilterFlags
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write tasks to a spreadsheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withViewer(cmd.Context(), func(ctx context.Context, e engine.Engine, v authz.Viewer) error {
				filter, err := f.resolve(ctx, e, v)
				if err != nil {
					return err
				}
				tasks, err := e.ListTasks(ctx, v, filter)
				if err != nil {
					return err
				}
				file, err := os.Create(out)
				if err != nil {
					return err
				}
				if err := sheet.Write(file, engine.ExportTasks(tasks)); err != nil {
					file.Close()
					return err
				}
				if err := file.Close(); err != nil {
					return err
				}
				fmt.Printf("wrote %d task(s) to %s\n", len(tasks), out)
				return nil
			})
		},
	}
	f.bind(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "tasks.xlsx", "output file")
	return cmd
}
