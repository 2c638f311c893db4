package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"teaminova/internal/config"
	"teaminova/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			secretEnv := rt.Config.JWTSecretEnv()
			authCfg := server.AuthConfig{
				JWTSecret: os.Getenv(secretEnv),
				Verifier:  rt.Verifier,
				Logger:    rt.Logger,
			}
			if authCfg.JWTSecret == "" && authCfg.Verifier == nil {
				return fmt.Errorf("%s is required for bearer auth when no identity provider is configured", secretEnv)
			}
			if addr == "" {
				addr = rt.Config.Addr()
			}
			if basePath == "" {
				basePath = rt.Config.BasePath()
			}
			handler, err := server.New(server.Config{
				Engine:      rt.Engine,
				BasePath:    basePath,
				Auth:        authCfg,
				CORSOrigins: rt.Config.Server.CORSOrigins,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			rt.Logger.WithFields(logrus.Fields{"addr": addr, "base_path": basePath}).Info("serving TeamInova API")
			fmt.Printf("Serving TeamInova API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default server.base_path)")
	return cmd
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the --as member",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			secret := os.Getenv(cfg.JWTSecretEnv())
			if secret == "" {
				return fmt.Errorf("%s is not set", cfg.JWTSecretEnv())
			}
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()
			as := viper.GetString("as")
			if as == "" {
				return errors.New("--as <member> is required")
			}
			v, err := rt.Engine.ViewerForProfile(cmd.Context(), as)
			if err != nil {
				return err
			}
			token, err := server.SignToken(secret, v.AccountID, v.Email, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
