package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/lms-log-explorer/internal/index"
	"github.com/Zuo-Peng/lms-log-explorer/internal/render"
)

func settingsCmd() *cobra.Command {
	var (
		format, provider, model string
		renamer, override       bool
		tokens                  []string
	)

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the session renamer settings",
		Long: `Without flags, prints the stored settings with API tokens masked.
Unknown providers or models fall back to defaults when saved.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := render.ParseFormat(format)
			if err != nil {
				return err
			}
			if f == render.FormatText {
				f = render.FormatYAML
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.db.LoadSettings(cmd.Context())
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			changed := false
			if flags.Changed("renamer") {
				s.EnableSessionRenamer, changed = renamer, true
			}
			if flags.Changed("override-token") {
				s.OverrideAPIToken, changed = override, true
			}
			if flags.Changed("provider") {
				s.Provider, changed = index.Provider(provider), true
			}
			if flags.Changed("model") {
				s.Model, changed = model, true
			}
			for _, kv := range tokens {
				p, tok, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("--token wants provider=token, got %q", kv)
				}
				if s.APITokenByProvider == nil {
					s.APITokenByProvider = map[index.Provider]string{}
				}
				s.APITokenByProvider[index.Provider(p)] = tok
				changed = true
			}

			if changed {
				if s, err = a.db.SaveSettings(cmd.Context(), s); err != nil {
					return err
				}
				fmt.Fprintln(os.Stderr, "Settings saved.")
			}
			return render.Encode(os.Stdout, maskTokens(s), f)
		},
	}

	cmd.Flags().StringVar(&format, "format", "yaml", "Output format (json/yaml)")
	cmd.Flags().BoolVar(&renamer, "renamer", false, "Enable the session renamer")
	cmd.Flags().BoolVar(&override, "override-token", false, "Use the stored API token instead of the environment")
	cmd.Flags().StringVar(&provider, "provider", "", "Renamer provider (google/openai/anthropic)")
	cmd.Flags().StringVar(&model, "model", "", "Renamer model for the provider")
	cmd.Flags().StringArrayVar(&tokens, "token", nil, "API token as provider=token (repeatable, empty token clears)")
	return cmd
}

func maskTokens(s index.Settings) index.Settings {
	if len(s.APITokenByProvider) == 0 {
		return s
	}
	masked := make(map[index.Provider]string, len(s.APITokenByProvider))
	for p, tok := range s.APITokenByProvider {
		if len(tok) > 8 {
			masked[p] = tok[:4] + strings.Repeat("*", 4) + tok[len(tok)-2:]
		} else {
			masked[p] = strings.Repeat("*", len(tok))
		}
	}
	s.APITokenByProvider = masked
	return s
}
