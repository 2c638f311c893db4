package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"teaminova/internal/authz"
	"teaminova/internal/domain"
	"teaminova/internal/engine"
	"teaminova/internal/repo"
	"teaminova/internal/viewmodel"
)

func memberCmd() *cobra.Command {
	m := &cobra.Command{Use: "member", Short: "Manage the team directory"}
	m.AddCommand(memberListCmd())
	m.AddCommand(memberRegisterCmd())
	m.AddCommand(memberRoleCmd())
	m.AddCommand(memberDeleteCmd())
	m.AddCommand(memberResetCmd())
	return m
}

func memberListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List members (emails masked unless permitted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, v authz.Viewer) error {
				members, err := e.ListMembers(ctx, v)
				if err != nil {
					return err
				}
				return printMembers(members)
			})
		},
	}
}

func memberRegisterCmd() *cobra.Command {
	var opts engine.RegisterOptions
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a member and create their account",
		Long:  "The first member registered in an empty workspace becomes the administrator.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.RegisterMember(ctx, authz.Viewer{}, opts)
				if err != nil {
					return err
				}
				return printMembers([]viewmodel.Member{m})
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email")
	cmd.Flags().StringVar(&opts.Password, "password", "", "initial password for the hosted account")
	cmd.Flags().StringVar(&opts.AccountID, "account-id", "", "link an existing hosted account instead of creating one")
	cmd.Flags().StringVar(&opts.AvatarURL, "avatar", "", "avatar URL")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func memberRoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "role <member> <role>",
		Short: "Replace a member's role (administrators only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, v authz.Viewer) error {
				target, err := e.ViewerForProfile(ctx, args[0])
				if err != nil {
					return err
				}
				m, err := e.SetRole(ctx, v, target.ProfileID, domain.Role(args[1]))
				if err != nil {
					return err
				}
				return printMembers([]viewmodel.Member{m})
			})
		},
	}
}

func memberDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <member>",
		Short: "Delete a member and their hosted account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, v authz.Viewer) error {
				target, err := e.ViewerForProfile(ctx, args[0])
				if err != nil {
					return err
				}
				if err := e.DeleteMember(ctx, v, target.ProfileID); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func memberResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-password <member>",
		Short: "Generate a password reset link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, v authz.Viewer) error {
				target, err := e.ViewerForProfile(ctx, args[0])
				if err != nil {
					return err
				}
				link, err := e.SendPasswordReset(ctx, v, target.ProfileID)
				if err != nil {
					return err
				}
				fmt.Println(link)
				return nil
			})
		},
	}
}

func apiKeyCmd() *cobra.Command {
	keys := &cobra.Command{Use: "apikey", Short: "Manage API keys for the acting member"}
	keys.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create an API key; the secret is shown once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, v authz.Viewer) error {
				key, secret, err := e.CreateAPIKey(ctx, v, args[0])
				if err != nil {
					return err
				}
				if wantJSON() {
					return printJSON(map[string]any{"key": key, "secret": secret})
				}
				fmt.Printf("%s  %s\n", key.ID, secret)
				return nil
			})
		},
	})
	keys.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, v authz.Viewer) error {
				items, err := e.ListAPIKeys(ctx, v)
				if err != nil {
					return err
				}
				return printResult(items, table.Row{"ID", "Name", "Created"}, func(tw table.Writer) {
					for _, k := range items {
						tw.AppendRow(table.Row{k.ID, k.Name, k.CreatedAt})
					}
				})
			})
		},
	})
	keys.AddCommand(&cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, v authz.Viewer) error {
				if err := e.RevokeAPIKey(ctx, v, args[0]); err != nil {
					return err
				}
				fmt.Println("revoked", args[0])
				return nil
			})
		},
	})
	return keys
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Event log"}
	var f repo.EventFilters
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the newest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.ListEvents(ctx, f)
				if err != nil {
					return err
				}
				return printResult(events, table.Row{"When", "Type", "Entity", "Actor", "Payload"}, func(tw table.Writer) {
					for _, evt := range events {
						tw.AppendRow(table.Row{evt.TS, evt.Type, evt.EntityKind + " " + evt.EntityID, evt.ActorID, evt.PayloadJSON})
					}
				})
			})
		},
	}
	tail.Flags().IntVarP(&f.Limit, "n", "n", 20, "number of events")
	tail.Flags().StringVar(&f.ProjectID, "project-id", "", "project filter")
	tail.Flags().StringVar(&f.Type, "type", "", "event type filter")
	tail.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	tail.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	lg.AddCommand(tail)
	return lg
}
