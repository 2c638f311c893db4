package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"teaminova/internal/authz"
	"teaminova/internal/domain"
	"teaminova/internal/engine"
)

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectDeleteCmd())
	prj.AddCommand(milestoneCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withViewer(cmd.Context(), func(ctx context.Context, e engine.Engine, v authz.Viewer) error {
				items, err := e.ListProjects(ctx, v)
				if err != nil {
					return err
				}
				return printProjects(items)
			})
		},
	}
}

func projectCreateCmd() *cobra.Command {
	var opts engine.ProjectCreateOptions
	var status string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Status = domain.ProjectStatus(status)
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, v authz.Viewer) error {
				p, err := e.CreateProject(ctx, v, opts)
				if err != nil {
					return err
				}
				return printProject(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "project name")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&status, "status", "", "planned, started, in-progress, completed or cancelled")
	cmd.Flags().StringVar(&opts.Manager, "manager", "", "manager (defaults to --as)")
	cmd.Flags().StringVar(&opts.StartDate, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.TargetDate, "target", "", "target date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.Color, "color", "", "display color")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id|name>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withViewer(cmd.Context(), func(ctx context.Context, e engine.Engine, v authz.Viewer) error {
				p, err := e.ResolveProject(ctx, v, args[0])
				if err != nil {
					return err
				}
				return printProject(p)
			})
		},
	}
}

func projectUpdateCmd() *cobra.Command {
	var name, desc, status, manager, start, target, color string
	cmd := &cobra.Command{
		Use:   "update <id|name>",
		Short: "Update a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := engine.ProjectPatch{
				Name:        optionalString(cmd, "name", name),
				Description: optionalString(cmd, "description", desc),
				Manager:     optionalString(cmd, "manager", manager),
				StartDate:   optionalString(cmd, "start", start),
				TargetDate:  optionalString(cmd, "target", target),
				Color:       optionalString(cmd, "color", color),
			}
			if cmd.Flags().Changed("status") {
				s := domain.ProjectStatus(status)
				patch.Status = &s
			}
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, v authz.Viewer) error {
				p, err := e.ResolveProject(ctx, v, args[0])
				if err != nil {
					return err
				}
				updated, err := e.UpdateProject(ctx, v, p.ID, patch)
				if err != nil {
					return err
				}
				return printProject(updated)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&desc, "description", "", "description (empty clears)")
	cmd.Flags().StringVar(&status, "status", "", "status")
	cmd.Flags().StringVar(&manager, "manager", "", "manager (empty clears)")
	cmd.Flags().StringVar(&start, "start", "", "start date (empty clears)")
	cmd.Flags().StringVar(&target, "target", "", "target date (empty clears)")
	cmd.Flags().StringVar(&color, "color", "", "display color")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id|name>",
		Short: "Delete a project without tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, v authz.Viewer) error {
				p, err := e.ResolveProject(ctx, v, args[0])
				if err != nil {
					return err
				}
				if err := e.DeleteProject(ctx, v, p.ID); err != nil {
					return err
				}
				fmt.Println("deleted", p.Name)
				return nil
			})
		},
	}
}

func milestoneCmd() *cobra.Command {
	ms := &cobra.Command{Use: "milestone", Short: "Manage project milestones"}

	var due string
	add := &cobra.Command{
		Use:   "add <project> <title>",
		Short: "Add a milestone",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, v authz.Viewer) error {
				p, err := e.ResolveProject(ctx, v, args[0])
				if err != nil {
					return err
				}
				updated, err := e.AddMilestone(ctx, v, p.ID, args[1], due)
				if err != nil {
					return err
				}
				return printProject(updated)
			})
		},
	}
	add.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")

	toggle := &cobra.Command{
		Use:   "toggle <project> <milestone-id>",
		Short: "Flip a milestone's completion",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, v authz.Viewer) error {
				p, err := e.ResolveProject(ctx, v, args[0])
				if err != nil {
					return err
				}
				updated, err := e.ToggleMilestone(ctx, v, p.ID, args[1])
				if err != nil {
					return err
				}
				return printProject(updated)
			})
		},
	}

	remove := &cobra.Command{
		Use:   "remove <project> <milestone-id>",
		Short: "Remove a milestone",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, v authz.Viewer) error {
				p, err := e.ResolveProject(ctx, v, args[0])
				if err != nil {
					return err
				}
				updated, err := e.RemoveMilestone(ctx, v, p.ID, args[1])
				if err != nil {
					return err
				}
				return printProject(updated)
			})
		},
	}
	ms.AddCommand(add, toggle, remove)
	return ms
}
