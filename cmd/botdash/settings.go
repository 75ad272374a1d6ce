package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/app"
)

func newSettingsCommand(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage the settings injected into a bot's environment",
		Long: `Manage per-bot settings. Each setting becomes an environment variable of
the bot's container on the next deploy.`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <bot-id> KEY=VALUE...",
			Short: "Set one or more settings",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				values, err := parseAssignments(args[1:])
				if err != nil {
					return err
				}
				keys := sortedKeys(values)
				return g.withApp(cmd, func(a *app.App) error {
					for _, k := range keys {
						if err := a.Bots().SetSetting(cmd.Context(), args[0], k, values[k]); err != nil {
							return err
						}
					}
					fmt.Fprintf(cmd.OutOrStdout(), "✓ %d setting(s) saved; run `botdash bots deploy %s` to apply\n", len(keys), args[0])
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "unset <bot-id> KEY...",
			Short: "Remove settings",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return g.withApp(cmd, func(a *app.App) error {
					for _, k := range args[1:] {
						if err := a.Bots().UnsetSetting(cmd.Context(), args[0], k); err != nil {
							return err
						}
					}
					fmt.Fprintf(cmd.OutOrStdout(), "✓ %d setting(s) removed\n", len(args)-1)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:     "list <bot-id>",
			Aliases: []string{"ls"},
			Short:   "List a bot's settings",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return g.withApp(cmd, func(a *app.App) error {
					values, err := a.Bots().Settings(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					if g.output == outputJSON {
						return printJSON(cmd.OutOrStdout(), values)
					}
					keys := sortedKeys(values)
					rows := make([][]string, 0, len(keys))
					for _, k := range keys {
						rows = append(rows, []string{k, values[k]})
					}
					return table(cmd.OutOrStdout(), []string{"KEY", "VALUE"}, rows)
				})
			},
		},
	)
	return cmd
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
