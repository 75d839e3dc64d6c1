package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/lms-log-explorer/internal/tui"
)

func browseCmd() *cobra.Command {
	var filters filterFlags

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Browse sessions interactively with a live filter and preview",
		Long:  `Opens a TUI panel listing indexed sessions, newest first. Type to filter by id, group name, model or text; Enter copies the session id.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !stdoutIsTerminal() {
				return errors.New("browse needs a terminal; use 'lmx list' instead")
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
			return tui.Browse(ix, names, filters.options())
		},
	}

	filters.register(cmd, 0)
	return cmd
}
