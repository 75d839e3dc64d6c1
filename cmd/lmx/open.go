package main

import (
	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/lms-log-explorer/internal/open"
)

func openCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <sessionId|chatId>",
		Short: "Open the source log in $EDITOR at the session's request line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ix, err := a.svc.Index(cmd.Context())
			if err != nil {
				return err
			}
			return open.OpenSession(ix, args[0])
		},
	}
}
