package main

import (
	"context"
	"errors"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/m-aliabbas/whisper-at-server/internal/client"
	"github.com/m-aliabbas/whisper-at-server/internal/logging"
	"github.com/m-aliabbas/whisper-at-server/internal/worker"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	var redisAddr string
	var serviceURL string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume transcription jobs from the Redis queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			workerCfg := cfg.Worker
			if addr := strings.TrimSpace(redisAddr); addr != "" {
				workerCfg.RedisAddr = addr
			}
			if url := strings.TrimSpace(serviceURL); url != "" {
				workerCfg.ServiceURL = url
			}
			if workerCfg.ServiceURL == "" {
				url, err := ctx.serviceURL()
				if err != nil {
					return err
				}
				workerCfg.ServiceURL = url
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return err
			}

			svc, err := client.New(workerCfg.ServiceURL)
			if err != nil {
				return err
			}

			w := worker.New(workerCfg, svc, logger)
			defer w.Close()

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := w.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&redisAddr, "redis", "", "Redis address (overrides config)")
	cmd.Flags().StringVar(&serviceURL, "service", "", "Transcription service URL (overrides config)")

	return cmd
}
