package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Zuo-Peng/lms-log-explorer/internal/config"
	"github.com/Zuo-Peng/lms-log-explorer/internal/index"
	"github.com/Zuo-Peng/lms-log-explorer/internal/scan"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "lmx",
		Short:         "LM Studio log explorer - index and inspect chat sessions from server logs",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(indexCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(browseCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(groupsCmd())
	rootCmd.AddCommand(renameCmd())
	rootCmd.AddCommand(openCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(doctorCmd())
	rootCmd.AddCommand(settingsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:     os.Stderr,
		NoColor: !term.IsTerminal(int(os.Stderr.Fd())),
	})
}

// app bundles what every command needs: config, store and the indexing
// service over them.
type app struct {
	cfg *config.Config
	db  *index.DB
	svc *index.Service
}

func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	setupLogging(cfg.LogLevel)

	db, err := index.OpenDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	svc := index.NewService(db, scan.New(cfg.LogRoot), index.WithYieldEvery(cfg.YieldEvery))
	return &app{cfg: cfg, db: db, svc: svc}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// terminalWidth returns the stdout width, or 0 when it is not a terminal.
func terminalWidth() int {
	if !stdoutIsTerminal() {
		return 0
	}
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 0
	}
	return w
}
