package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/app"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/manifest"
)

func newApplyCommand(g *globalOptions) *cobra.Command {
	var (
		file     string
		noDeploy bool
		dryRun   bool
	)
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Create or update bots from a manifest file",
		Long: `Create or update bots from a YAML manifest. Bots missing from the
database are created; existing ones get their fields overwritten and their
settings replaced. Entries with "deploy: true" are deployed afterwards.

Examples:
  # Apply a manifest
  botdash apply -f bots.yaml

  # Check a manifest without touching anything
  botdash apply -f bots.yaml --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manifest.Load(file)
			if err != nil {
				return err
			}
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is valid (%d bots)\n", file, len(m.Bots))
				return nil
			}
			return g.withApp(cmd, func(a *app.App) error {
				out, applyErr := manifest.Apply(cmd.Context(), a.Bots(), m, manifest.ApplyOptions{
					Actor:    g.actor,
					NoDeploy: noDeploy,
				})
				if g.output == outputJSON {
					if err := printJSON(cmd.OutOrStdout(), outcomeViews(out)); err != nil {
						return err
					}
				} else {
					rows := make([][]string, 0, len(out))
					for _, o := range out {
						result := "ok"
						if o.Err != nil {
							result = describe(o.Err)
						}
						rows = append(rows, []string{o.BotID, orDash(string(o.Action)), fmt.Sprint(o.Deployed), result})
					}
					if err := table(cmd.OutOrStdout(), []string{"BOT", "ACTION", "DEPLOYED", "RESULT"}, rows); err != nil {
						return err
					}
				}
				if applyErr != nil {
					return errors.New("some manifest entries failed")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "manifest file (required)")
	cmd.Flags().BoolVar(&noDeploy, "no-deploy", false, "skip deploys even for entries asking for one")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only validate the manifest")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

type outcomeView struct {
	BotID    string `json:"bot_id"`
	Action   string `json:"action,omitempty"`
	Deployed bool   `json:"deployed"`
	Error    string `json:"error,omitempty"`
}

func outcomeViews(out []manifest.Outcome) []outcomeView {
	views := make([]outcomeView, 0, len(out))
	for _, o := range out {
		v := outcomeView{BotID: o.BotID, Action: string(o.Action), Deployed: o.Deployed}
		if o.Err != nil {
			v.Error = o.Err.Error()
		}
		views = append(views, v)
	}
	return views
}
