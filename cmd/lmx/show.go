package main

import (
	"fmt"
	"os"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/lms-log-explorer/internal/render"
)

func showCmd() *cobra.Command {
	var (
		format, query    string
		body, copyBody   bool
		noUpdate, noWrap bool
	)

	cmd := &cobra.Command{
		Use:   "show <sessionId|chatId>",
		Short: "Show one session: metrics, timeline, tool calls and response",
		Args:  cobra.ExactArgs(1),
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

			ix, err := refresh(cmd.Context(), a, noUpdate)
			if err != nil {
				return err
			}
			s, err := ix.Get(args[0])
			if err != nil {
				return fmt.Errorf("%w: %s", err, args[0])
			}

			if copyBody {
				if s.Request == nil || len(s.Request.Body) == 0 {
					return fmt.Errorf("session %s has no request body", s.SessionID)
				}
				if err := clipboard.WriteAll(string(s.Request.Body)); err != nil {
					return fmt.Errorf("copy request body: %w", err)
				}
				fmt.Fprintf(os.Stderr, "Copied request body of %s to clipboard\n", s.SessionID)
			}

			if f != render.FormatText {
				return render.Encode(os.Stdout, s, f)
			}

			name, err := a.db.GetGroupName(cmd.Context(), s.SessionGroupID)
			if err != nil {
				return err
			}
			width := terminalWidth()
			if noWrap {
				width = 0
			}
			fmt.Print(render.RenderSession(s, render.Options{
				Width:     width,
				Color:     stdoutIsTerminal(),
				Query:     query,
				ShowBody:  body,
				GroupName: name,
			}))
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "Output format (text/json/yaml)")
	cmd.Flags().StringVar(&query, "query", "", "Highlight a term in the response")
	cmd.Flags().BoolVar(&body, "body", false, "Include the full request body")
	cmd.Flags().BoolVar(&copyBody, "copy", false, "Copy the request body to the clipboard")
	cmd.Flags().BoolVar(&noUpdate, "no-update", false, "Skip the index update before reading")
	cmd.Flags().BoolVar(&noWrap, "no-wrap", false, "Do not wrap long lines")
	return cmd
}
