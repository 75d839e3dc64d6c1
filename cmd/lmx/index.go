package main

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/lms-log-explorer/internal/index"
	"github.com/Zuo-Peng/lms-log-explorer/internal/tui"
)

func indexCmd() *cobra.Command {
	var force, plain bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Scan the LM Studio log root and bring the session index up to date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Fprintf(os.Stderr, "Indexing %s\n", a.cfg.LogRoot)
			opts := index.Options{ReparseAll: force}

			var stats index.Stats
			if stdoutIsTerminal() && !plain {
				// info lines would tear through the progress view
				zerolog.SetGlobalLevel(max(zerolog.GlobalLevel(), zerolog.WarnLevel))
				_, stats, err = tui.RunRebuild(cmd.Context(), a.svc, opts)
			} else {
				_, stats, err = rebuildWithLog(cmd.Context(), a.svc, opts)
			}
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			fmt.Fprintf(os.Stderr, "Done. %s\n", stats)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Reparse every file, ignoring stored checksums")
	cmd.Flags().BoolVar(&plain, "plain", false, "Log progress instead of drawing a progress bar")
	return cmd
}

// rebuildWithLog runs a rebuild and logs each file as it completes.
func rebuildWithLog(ctx context.Context, svc *index.Service, opts index.Options) (*index.Index, index.Stats, error) {
	lastFile := -1
	opts.Progress = func(p index.Progress) {
		done := int(math.Floor(p.ProcessedFiles))
		if done == lastFile || p.TotalFiles == 0 {
			return
		}
		lastFile = done
		log.Debug().Int("done", done).Int("total", p.TotalFiles).
			Int("sessions", p.SessionsIndexed).Str("file", p.CurrentFile).Msg("indexing")
	}
	return svc.Rebuild(ctx, opts)
}

// refresh updates the index before a read command, unless skipped. Failures
// are logged and the last good index is served.
func refresh(ctx context.Context, a *app, skip bool) (*index.Index, error) {
	if !skip {
		if _, _, err := rebuildWithLog(ctx, a.svc, index.Options{}); err != nil {
			log.Warn().Err(err).Msg("index update failed, showing stored sessions")
		}
	}
	return a.svc.Index(ctx)
}
