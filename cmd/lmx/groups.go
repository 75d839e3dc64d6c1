package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/lms-log-explorer/internal/index"
	"github.com/Zuo-Peng/lms-log-explorer/internal/render"
)

func groupsCmd() *cobra.Command {
	var (
		format   string
		limit    int
		noUpdate bool
	)

	cmd := &cobra.Command{
		Use:   "groups",
		Short: "List conversations: requests grouped by their opening messages",
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

			if _, err := refresh(cmd.Context(), a, noUpdate); err != nil {
				return err
			}
			byID, err := a.svc.Groups(cmd.Context())
			if err != nil {
				return err
			}

			groups := lo.Values(byID)
			sort.Slice(groups, func(i, j int) bool {
				if !groups[i].StartedAt.Equal(groups[j].StartedAt) {
					return groups[i].StartedAt.After(groups[j].StartedAt)
				}
				return groups[i].SessionGroupID < groups[j].SessionGroupID
			})
			if limit > 0 && len(groups) > limit {
				groups = groups[:limit]
			}

			if f != render.FormatText {
				return render.Encode(os.Stdout, groups, f)
			}
			if len(groups) == 0 {
				fmt.Fprintln(os.Stderr, "No sessions found.")
				return nil
			}
			fmt.Print(render.RenderGroups(groups, terminalWidth(), time.Now()))
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "Output format (text/json/yaml)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Max groups (0 = no limit)")
	cmd.Flags().BoolVar(&noUpdate, "no-update", false, "Skip the index update before reading")
	return cmd
}

func renameCmd() *cobra.Command {
	var clearName bool

	cmd := &cobra.Command{
		Use:   "rename <groupId|sessionId> [name...]",
		Short: "Set or clear the display name of a conversation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.Join(args[1:], " ")
			if name == "" && !clearName {
				return fmt.Errorf("give a name, or --clear to remove it")
			}
			if clearName {
				name = ""
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			groupID, err := resolveGroup(cmd, a, args[0])
			if err != nil {
				return err
			}
			if err := a.svc.RenameGroup(cmd.Context(), groupID, name); err != nil {
				return err
			}
			if name == "" {
				fmt.Fprintf(os.Stderr, "Cleared name of %s\n", groupID)
			} else {
				fmt.Fprintf(os.Stderr, "Renamed %s to %q\n", groupID, strings.TrimSpace(name))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&clearName, "clear", false, "Remove the display name")
	return cmd
}

// resolveGroup accepts a group id as is, or finds the group of a session.
func resolveGroup(cmd *cobra.Command, a *app, id string) (string, error) {
	if strings.HasPrefix(id, "session-group-") {
		return id, nil
	}
	ix, err := a.svc.Index(cmd.Context())
	if err != nil {
		return "", err
	}
	s, err := ix.Get(id)
	if err != nil {
		if errors.Is(err, index.ErrSessionNotFound) {
			return "", fmt.Errorf("%w: %s", err, id)
		}
		return "", err
	}
	return s.SessionGroupID, nil
}
