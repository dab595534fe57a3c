package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"wsrooms/pkg/config"
	"wsrooms/pkg/logging"
	"wsrooms/pkg/server"
)

const shutdownTimeout = 10 * time.Second

type serveFlags struct {
	configPath string
	addr       string
	adminAddr  string
	logLevel   string
	logFormat  string
}

func newServeCmd() *cobra.Command {
	var f serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the wsrooms server until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadServeConfig(cmd, f)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "path to a YAML configuration file")
	fl.StringVar(&f.addr, "addr", "", "listen address (default \":3000\")")
	fl.StringVar(&f.adminAddr, "admin-addr", "", "admin API listen address; empty disables it")
	fl.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fl.StringVar(&f.logFormat, "log-format", "", "log format: text, json")

	return cmd
}

// loadServeConfig resolves the configuration file and environment, then
// applies the flags that were set explicitly.
func loadServeConfig(cmd *cobra.Command, f serveFlags) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, err
	}

	fl := cmd.Flags()
	if fl.Changed("addr") {
		cfg.Addr = f.addr
	}
	if fl.Changed("admin-addr") {
		cfg.AdminAddr = f.adminAddr
	}
	if fl.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if fl.Changed("log-format") {
		cfg.Log.Format = f.logFormat
	}

	return cfg, cfg.Validate()
}

func runServe(ctx context.Context, cfg config.Config) error {
	logger := logging.New(cfg.Logging())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, logger)
	serveErr := srv.ListenAndServe(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", logging.Err(err))
	}

	if errors.Is(serveErr, server.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("serve: %w", serveErr)
}
