// Copyright 2025 GleamOps
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	flagAddr        string
	flagDatabaseURL string
	flagJWTSecret   string
	flagLogLevel    string
	flagMaxBatch    int
)

var rootCmd = &cobra.Command{
	Use:   "gleamops-syncd",
	Short: "GleamOps mutation sync server",
	Long:  "gleamops-syncd accepts batched offline mutations from field-mobile clients and applies them exactly-once against the central store.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", envOr("GLEAMOPS_ADDR", ":8080"), "listen address")
	serveCmd.Flags().StringVar(&flagDatabaseURL, "database-url", envOr("GLEAMOPS_DATABASE_URL", ""), "Postgres connection URL")
	serveCmd.Flags().StringVar(&flagJWTSecret, "jwt-secret", envOr("GLEAMOPS_JWT_SECRET", ""), "HS256 secret for client tokens")
	serveCmd.Flags().StringVar(&flagLogLevel, "log-level", envOr("GLEAMOPS_LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	serveCmd.Flags().IntVar(&flagMaxBatch, "max-batch", 100, "maximum items per sync request")
	rootCmd.AddCommand(serveCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func runServe() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(flagLogLevel),
	}))

	if flagJWTSecret == "" {
		return fmt.Errorf("--jwt-secret (or GLEAMOPS_JWT_SECRET) is required")
	}

	components, err := SetupServer(&ServerConfig{
		DatabaseURL:   flagDatabaseURL,
		JWTSecret:     flagJWTSecret,
		Logger:        logger,
		AppName:       "gleamops-syncd",
		MaxBatchItems: flagMaxBatch,
	})
	if err != nil {
		return fmt.Errorf("failed to set up server: %w", err)
	}
	defer components.Shutdown()

	srv := &http.Server{
		Addr:              flagAddr,
		Handler:           components.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Sync server listening", "addr", flagAddr)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("Shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
