package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/lms-log-explorer/internal/index"
	"github.com/Zuo-Peng/lms-log-explorer/internal/watch"
)

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the index up to date while LM Studio writes logs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := os.MkdirAll(a.cfg.LogRoot, 0o755); err != nil {
				return fmt.Errorf("log root: %w", err)
			}
			w, err := watch.New(a.cfg.LogRoot, a.cfg.WatchDebounce.Duration)
			if err != nil {
				return fmt.Errorf("watch: %w", err)
			}
			if err := w.Start(); err != nil {
				return fmt.Errorf("watch %s: %w", a.cfg.LogRoot, err)
			}
			defer w.Stop()

			// changes that land during a rebuild queue exactly one follow-up
			rebuild := func() {
				_, stats, err := rebuildWithLog(ctx, a.svc, index.Options{})
				if err != nil {
					log.Error().Err(err).Msg("rebuild failed")
					return
				}
				log.Info().Str("stats", stats.String()).Msg("index updated")
			}

			log.Info().Str("root", a.cfg.LogRoot).Dur("debounce", a.cfg.WatchDebounce.Duration).Msg("watching logs")
			rebuild()
			for {
				select {
				case <-ctx.Done():
					log.Info().Msg("stopping")
					return nil
				case <-w.Changes():
					rebuild()
				}
			}
		},
	}
	return cmd
}
