// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/curation-engine/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the scheduled resume job",
	Long: `Serve starts the JSON HTTP API for ingestion, document lookup, memory
review and prompt-cache control, and exposes Prometheus metrics at /metrics.

Documents whose edge or memory step did not finish are retried on the
pipeline.resume_schedule cron spec. Changes to the config file are picked
up while running; a new API key or provider swaps the model provider and
drops cached prompt sessions.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	resume := func() {
		n, err := a.pipeline.Resume(ctx)
		if err != nil {
			logger.Error("scheduled resume failed", "completed", n, "error", err)
		}
	}
	resume()

	sched := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := sched.AddFunc(cfg.Pipeline.ResumeSchedule, resume); err != nil {
		return fmt.Errorf("parsing pipeline.resume_schedule %q: %w", cfg.Pipeline.ResumeSchedule, err)
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	if viper.ConfigFileUsed() != "" {
		viper.OnConfigChange(func(e fsnotify.Event) {
			next, err := loadConfig()
			if err != nil {
				logger.Error("config reload failed", "file", e.Name, "error", err)
				return
			}
			a.reconfigure(ctx, next)
		})
		viper.WatchConfig()
	}

	srv := server.New(server.Deps{
		Pipeline:  a.pipeline,
		Documents: a.store,
		Memories:  a.memories,
		Sessions:  a.sessions,
		Metrics:   a.metrics,
	}, cfg.Server, logger, os.Stderr)

	errc := make(chan error, 1)
	go func() { errc <- srv.Listen() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default: server.addr or :8080)")

	rootCmd.AddCommand(serveCmd)
}
