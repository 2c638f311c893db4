package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"teaminova/internal/app"
	"teaminova/internal/authz"
	"teaminova/internal/config"
	"teaminova/internal/db"
	"teaminova/internal/engine"
)

var rootCmd = &cobra.Command{
	Use:   "tm",
	Short: "TeamInova CLI",
	Long: `TeamInova tracks projects, tasks and issues for a small team.
- Projects own tasks and issues and carry milestones.
- Tasks move freely between todo, in-progress, on-hold, blocked and completed; cancelling needs a justification.
- Issues are logged by a member and can only be edited by their author.
- Members have a primary role; the first registered member administers the team.
- Every change is written to the event log, view it with 'tm log tail'.
Act as a member with --as <id|email|name> (or TEAMINOVA_AS).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if err := godotenv.Load(filepath.Join(workspace, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		level, err := logrus.ParseLevel(viper.GetString("log-level"))
		if err != nil {
			return err
		}
		logrus.SetLevel(level)
		logrus.SetOutput(os.Stderr)
		_, err = db.EnsureWorkspace(workspace)
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TEAMINOVA")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("as", "", "act as this member (id, email or name)")
	flags.String("dsn", "", "store DSN (overrides teaminova.yml)")
	flags.String("log-level", "warn", "log level")
	for _, name := range []string{"workspace", "json", "as", "dsn", "log-level"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(issueCmd())
	rootCmd.AddCommand(memberCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())
}

func openRuntime(ctx context.Context) (*app.Runtime, error) {
	return app.Open(ctx, app.Options{
		Workspace: viper.GetString("workspace"),
		DSN:       viper.GetString("dsn"),
		Logger:    logrus.StandardLogger(),
	})
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt.Engine)
}

// withActor is withEngine for commands that act as a member.
func withActor(ctx context.Context, fn func(context.Context, engine.Engine, authz.Viewer) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		as := strings.TrimSpace(viper.GetString("as"))
		if as == "" {
			return errors.New("--as <member> is required")
		}
		v, err := e.ViewerForProfile(ctx, as)
		if err != nil {
			return err
		}
		return fn(ctx, e, v)
	})
}

// withViewer is withActor for reads: --as is optional, and without it every
// email is shown masked.
func withViewer(ctx context.Context, fn func(context.Context, engine.Engine, authz.Viewer) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		var v authz.Viewer
		if as := strings.TrimSpace(viper.GetString("as")); as != "" {
			var err error
			if v, err = e.ViewerForProfile(ctx, as); err != nil {
				return err
			}
		}
		return fn(ctx, e, v)
	})
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Workspace config (teaminova.yml)",
	}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default teaminova.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(c)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
	cfg.AddCommand(initCmd, showCmd)
	return cfg
}

func optionalString(cmd *cobra.Command, flag, value string) *string {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &value
}
