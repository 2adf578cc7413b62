package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/erazemk/inventura/internal/api"
	"github.com/erazemk/inventura/internal/config"
	"github.com/erazemk/inventura/internal/store"
)

type serveOptions struct {
	addr      string
	adminUser string
	adminUnit string
}

func newServeCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the HTTP API.

On first run against an empty database an admin account is created and its
password printed once. If the server starts online with writes still queued
in the replica, they are flushed before serving.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = opts.addr
			}
			return runServe(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.addr, "addr", "a", ":8080", "listen address")
	cmd.Flags().StringVarP(&opts.adminUser, "user", "u", "admin", "admin username on first run")
	cmd.Flags().StringVar(&opts.adminUnit, "unit", "hq", "admin unit on first run")
	return cmd
}

func runServe(ctx context.Context, cfg config.Config, opts *serveOptions) error {
	level, _ := cfg.Level()
	closeLog, err := setupLogger(cfg.LogFile, level)
	if err != nil {
		return err
	}
	defer closeLog()

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	password, err := bootstrapAdmin(ctx, a.db, opts.adminUser, opts.adminUnit)
	if err != nil {
		return err
	}
	if password != "" {
		printInitResult(cfg.Database, opts.adminUser, opts.adminUnit, password)
		slog.Info("admin account created", "user", opts.adminUser)
	}

	jwtSecret := cfg.JWTSecret
	if jwtSecret == "" {
		if jwtSecret, err = store.GetJWTSecret(ctx, a.db); err != nil {
			return err
		}
	}

	if a.conn.Online() && len(a.replica.Pending()) > 0 {
		if err := a.manager.Start(ctx); err != nil {
			slog.Warn("flushing queued writes failed, continuing", "error", err)
		}
	}

	server := &http.Server{
		Addr: cfg.Addr,
		Handler: api.NewRouter(api.Deps{
			DB:        a.db,
			JWTSecret: jwtSecret,
			Data:      a.data,
			Protocol:  a.protocol,
			Engine:    a.engine,
			Conn:      a.conn,
			Replica:   a.manager,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		// No WriteTimeout: session event streams stay open.
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	go func() {
		sig := <-quit
		slog.Info("shutdown signal received", "signal", sig.String())

		// Closing the hub ends open event streams so Shutdown can finish.
		a.hub.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", cfg.Addr, "mode", a.conn.CurrentMode())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	if err := a.replica.Persist(context.Background()); err != nil {
		slog.Error("persisting replica", "error", err)
	}
	slog.Info("server stopped, closing database")
	return nil
}
