package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/daily-brief/internal/config"
	"github.com/jonathan/daily-brief/internal/server"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start an HTTP server exposing POST /v1/runs, POST /v1/runs/stream,
GET /v1/profiles/{user_id} and GET /v1/runs/{run_id}.

When JWT_SECRET is set every /v1 route requires a bearer token whose subject
is the user id.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := root.cfg
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			b, err := openBackend(ctx, cfg)
			if err != nil {
				return err
			}
			defer b.close()

			orch, closeOrch, err := newOrchestrator(ctx, cfg, b, root.logger)
			if err != nil {
				return err
			}
			defer closeOrch()

			jwtCfg, err := config.JWTFromEnv()
			if err != nil {
				return err
			}
			if jwtCfg == nil {
				root.logger.Warn("JWT_SECRET not set, API is unauthenticated")
			}

			srv, err := server.New(server.Config{
				Addr:          cfg.Server.Addr,
				Orchestrator:  orch,
				Profiles:      b.profiles,
				Traces:        b.traces,
				JWT:           jwtCfg,
				RatePerSecond: cfg.Server.RatePerSecond,
				Burst:         cfg.Server.Burst,
				Logger:        root.logger,
			})
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}
			return srv.Start(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Address to listen on (default from config, :8080)")
	return cmd
}

func newTokenCmd(_ *rootOptions) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			jwtCfg, err := config.JWTFromEnv()
			if err != nil {
				return err
			}
			if jwtCfg == nil {
				return errors.New("JWT_SECRET environment variable is required")
			}
			token, err := server.NewJWTService(jwtCfg).GenerateToken(user)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "User id to put in the token subject")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
