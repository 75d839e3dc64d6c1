package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/lms-log-explorer/internal/index"
	"github.com/Zuo-Peng/lms-log-explorer/internal/render"
	"github.com/Zuo-Peng/lms-log-explorer/internal/search"
)

type filterFlags struct {
	query, model, client, since string
	limit                       int
	noUpdate                    bool
}

func (f *filterFlags) register(cmd *cobra.Command, defaultLimit int) {
	cmd.Flags().StringVarP(&f.query, "query", "q", "", "Match ids, group name, model, response or request text")
	cmd.Flags().StringVar(&f.model, "model", "", "Filter by model (substring)")
	cmd.Flags().StringVar(&f.client, "client", "", "Filter by client (codex/opencode/claude/unknown)")
	cmd.Flags().StringVar(&f.since, "since", "", "Only sessions since a date (YYYY-MM-DD) or duration (36h, 7d)")
	cmd.Flags().IntVar(&f.limit, "limit", defaultLimit, "Max sessions")
	cmd.Flags().BoolVar(&f.noUpdate, "no-update", false, "Skip the index update before reading")
}

func (f *filterFlags) options() search.Options {
	return search.Options{
		Query:  f.query,
		Model:  f.model,
		Client: f.client,
		Since:  f.since,
		Limit:  f.limit,
	}
}

func listCmd() *cobra.Command {
	var filters filterFlags
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := render.ParseFormat(format)
			if err != nil {
				return err
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ix, err := refresh(cmd.Context(), a, filters.noUpdate)
			if err != nil {
				return err
			}
			names, err := a.svc.GroupNames(cmd.Context())
			if err != nil {
				return err
			}

			results, err := search.Search(ix, names, filters.options())
			if err != nil {
				return err
			}

			items := make([]index.ListItem, len(results))
			for i, r := range results {
				items[i] = r.Item
			}
			if f != render.FormatText {
				return render.Encode(os.Stdout, items, f)
			}
			if len(items) == 0 {
				fmt.Fprintln(os.Stderr, "No sessions found.")
				return nil
			}
			fmt.Print(render.RenderList(items, terminalWidth(), time.Now()))
			return nil
		},
	}

	filters.register(cmd, 50)
	cmd.Flags().StringVar(&format, "format", "text", "Output format (text/json/yaml)")
	return cmd
}
