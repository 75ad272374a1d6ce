package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/app"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/bots"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/store"
)

func newBotsCommand(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "bots",
		Aliases: []string{"bot"},
		Short:   "Register, deploy and operate bots",
	}
	cmd.AddCommand(
		newBotsCreateCommand(g),
		newBotsListCommand(g),
		newBotsGetCommand(g),
		newBotsUpdateCommand(g),
		newBotsDeployCommand(g),
		newBotsActionCommand(g, "start", "Start a deployed bot", (*bots.Service).Start),
		newBotsActionCommand(g, "stop", "Stop a running bot; its container and data are kept", (*bots.Service).Stop),
		newBotsActionCommand(g, "restart", "Restart a deployed bot", (*bots.Service).Restart),
		newBotsLogsCommand(g),
		newBotsStatsCommand(g),
		newBotsStatusCommand(g),
		newBotsDeleteCommand(g, false),
		newBotsDeleteCommand(g, true),
		newBotsHistoryCommand(g),
		newBotsEventsCommand(g),
	)
	return cmd
}

type secretOptions struct {
	value string
	env   string
	file  string
}

func (o *secretOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.value, "secret", "", "bot token (visible in shell history; prefer --secret-env or --secret-file)")
	cmd.Flags().StringVar(&o.env, "secret-env", "", "read the bot token from this environment variable")
	cmd.Flags().StringVar(&o.file, "secret-file", "", "read the bot token from this file, or - for stdin")
	cmd.MarkFlagsMutuallyExclusive("secret", "secret-env", "secret-file")
}

func (o *secretOptions) set() bool {
	return o.value != "" || o.env != "" || o.file != ""
}

// read returns the token from whichever source was given.
func (o *secretOptions) read(stdin io.Reader) (string, error) {
	switch {
	case o.value != "":
		return o.value, nil
	case o.env != "":
		v := os.Getenv(o.env)
		if v == "" {
			return "", fmt.Errorf("environment variable %s is not set", o.env)
		}
		return v, nil
	case o.file == "-":
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("read secret from stdin: %w", err)
		}
		return strings.TrimSpace(line), nil
	case o.file != "":
		data, err := os.ReadFile(o.file)
		if err != nil {
			return "", fmt.Errorf("read secret: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return "", nil
}

func newBotsCreateCommand(g *globalOptions) *cobra.Command {
	var (
		req      bots.CreateRequest
		secret   secretOptions
		settings []string
	)
	cmd := &cobra.Command{
		Use:   "create <bot-id>",
		Short: "Register a bot",
		Long: `Register a bot. The bot starts out stopped with no container; run
"botdash bots deploy" to provision and start it.

Examples:
  botdash bots create welcome --name "Welcome Bot" --secret-env WELCOME_TOKEN
  botdash bots create music --secret-file - --set PREFIX=! < token.txt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.ID = args[0]
			var err error
			if req.Secret, err = secret.read(cmd.InOrStdin()); err != nil {
				return err
			}
			if req.Settings, err = parseAssignments(settings); err != nil {
				return err
			}
			return g.withApp(cmd, func(a *app.App) error {
				b, err := a.Bots().Create(cmd.Context(), req, g.actor)
				if err != nil {
					return err
				}
				return g.printBot(cmd, b)
			})
		},
	}
	cmd.Flags().StringVar(&req.Name, "name", "", "display name (defaults to the bot id)")
	cmd.Flags().StringVar(&req.Description, "description", "", "free-form description")
	cmd.Flags().StringVar(&req.OwnerID, "owner", "", "owner id")
	cmd.Flags().BoolVar(&req.AutoRestart, "auto-restart", false, "let the engine restart the bot unless it was stopped")
	cmd.Flags().StringArrayVar(&settings, "set", nil, "setting KEY=VALUE, repeatable")
	secret.register(cmd)
	return cmd
}

func newBotsListCommand(g *globalOptions) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List registered bots",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, func(a *app.App) error {
				list, err := a.Bots().List(cmd.Context(), owner)
				if err != nil {
					return err
				}
				if g.output == outputJSON {
					views := make([]botView, 0, len(list))
					for _, b := range list {
						views = append(views, viewOf(b))
					}
					return printJSON(cmd.OutOrStdout(), views)
				}
				rows := make([][]string, 0, len(list))
				for _, b := range list {
					rows = append(rows, []string{b.ID, b.Name, string(b.Status), orDash(shortID(b.ContainerID.String)), orDash(b.OwnerID), ago(b.UpdatedAt)})
				}
				return table(cmd.OutOrStdout(), []string{"ID", "NAME", "STATUS", "CONTAINER", "OWNER", "UPDATED"}, rows)
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "only list bots of this owner")
	return cmd
}

func newBotsGetCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <bot-id>",
		Short: "Show one bot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, func(a *app.App) error {
				b, err := a.Bots().Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return g.printBot(cmd, b)
			})
		},
	}
}

func newBotsUpdateCommand(g *globalOptions) *cobra.Command {
	var (
		name, description string
		autoRestart       bool
		secret            secretOptions
	)
	cmd := &cobra.Command{
		Use:   "update <bot-id>",
		Short: "Change a bot's name, description, token or restart policy",
		Long: `Change a bot's record. Changes reach the container on the next deploy.

Example:
  botdash bots update welcome --secret-env NEW_TOKEN && botdash bots deploy welcome`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var u store.BotUpdate
			flags := cmd.Flags()
			if flags.Changed("name") {
				u.Name = &name
			}
			if flags.Changed("description") {
				u.Description = &description
			}
			if flags.Changed("auto-restart") {
				u.AutoRestart = &autoRestart
			}
			if secret.set() {
				v, err := secret.read(cmd.InOrStdin())
				if err != nil {
					return err
				}
				u.Secret = &v
			}
			return g.withApp(cmd, func(a *app.App) error {
				b, err := a.Bots().Update(cmd.Context(), args[0], u, g.actor)
				if err != nil {
					return err
				}
				return g.printBot(cmd, b)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&description, "description", "", "free-form description")
	cmd.Flags().BoolVar(&autoRestart, "auto-restart", false, "let the engine restart the bot unless it was stopped")
	secret.register(cmd)
	return cmd
}

func newBotsDeployCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "deploy <bot-id>",
		Short: "Provision a fresh container for a bot and start it",
		Long: `Provision the bot's network, volume and container and start it. Any
existing container of the bot is replaced; the data volume is kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, func(a *app.App) error {
				b, err := a.Bots().Deploy(cmd.Context(), args[0], g.actor)
				if err != nil {
					return err
				}
				if g.output == outputJSON {
					return printJSON(cmd.OutOrStdout(), viewOf(b))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ %s deployed as %s (%s)\n", b.ID, b.ContainerName.String, shortID(b.ContainerID.String))
				return nil
			})
		},
	}
}

type botAction func(*bots.Service, context.Context, string, string) error

func newBotsActionCommand(g *globalOptions, use, short string, action botAction) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <bot-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, func(a *app.App) error {
				if err := action(a.Bots(), cmd.Context(), args[0], g.actor); err != nil {
					return err
				}
				return g.printStatus(cmd, a, args[0])
			})
		},
	}
}

func newBotsLogsCommand(g *globalOptions) *cobra.Command {
	var tail int
	cmd := &cobra.Command{
		Use:   "logs <bot-id>",
		Short: "Print the last lines of a bot's output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, func(a *app.App) error {
				out, err := a.Bots().Logs(cmd.Context(), args[0], tail)
				if err != nil {
					return err
				}
				if g.output == outputJSON {
					return printJSON(cmd.OutOrStdout(), map[string]string{"bot_id": args[0], "logs": out})
				}
				fmt.Fprint(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&tail, "tail", "n", 0, "number of lines (default BOTDASH_LOG_TAIL, 100)")
	return cmd
}

func newBotsStatsCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <bot-id>",
		Short: "Sample a bot's CPU and memory use once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, func(a *app.App) error {
				v, err := a.Bots().Stats(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if g.output == outputJSON {
					return printJSON(cmd.OutOrStdout(), v)
				}
				return table(cmd.OutOrStdout(), []string{"CPU %", "MEM USAGE / LIMIT", "MEM %"}, [][]string{{
					strconv.FormatFloat(v.CPUPercent, 'f', 2, 64) + "%",
					fmt.Sprintf("%.2fMiB / %.2fMiB", v.MemoryUsageMiB, v.MemoryLimitMiB),
					strconv.FormatFloat(v.MemoryPercent, 'f', 2, 64) + "%",
				}})
			})
		},
	}
}

func newBotsStatusCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <bot-id>",
		Short: "Show a bot's status reconciled with its container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, func(a *app.App) error {
				return g.printStatus(cmd, a, args[0])
			})
		},
	}
}

func newBotsDeleteCommand(g *globalOptions, purge bool) *cobra.Command {
	use, short := "delete", "Remove a bot and its container; the data volume is kept"
	if purge {
		use, short = "purge", "Remove a bot, its container and its data volume"
	}
	return &cobra.Command{
		Use:     use + " <bot-id>",
		Aliases: aliasesFor(purge),
		Short:   short,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, func(a *app.App) error {
				svc := a.Bots()
				remove := svc.Delete
				if purge {
					remove = svc.Purge
				}
				res, err := remove(cmd.Context(), args[0], g.actor)
				if err != nil {
					return err
				}
				if g.output == outputJSON {
					return printJSON(cmd.OutOrStdout(), res)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ %s %sd\n", args[0], use)
				if res.Warning != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", res.Warning)
				}
				return nil
			})
		},
	}
}

func aliasesFor(purge bool) []string {
	if purge {
		return nil
	}
	return []string{"rm"}
}

func newBotsHistoryCommand(g *globalOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <bot-id>",
		Short: "List a bot's deploy attempts, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, func(a *app.App) error {
				list, err := a.Bots().History(cmd.Context(), args[0], limit)
				if err != nil {
					return err
				}
				if g.output == outputJSON {
					return printJSON(cmd.OutOrStdout(), list)
				}
				rows := make([][]string, 0, len(list))
				for _, d := range list {
					rows = append(rows, []string{d.CreatedAt.Format("2006-01-02 15:04:05"), d.Outcome, orDash(d.TriggeredBy), orDash(shortID(d.InstanceID)), d.Message})
				}
				return table(cmd.OutOrStdout(), []string{"TIME", "OUTCOME", "BY", "CONTAINER", "MESSAGE"}, rows)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of entries")
	return cmd
}

func newBotsEventsCommand(g *globalOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "events <bot-id>",
		Short: "List a bot's lifecycle events, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, func(a *app.App) error {
				list, err := a.Bots().Events(cmd.Context(), args[0], limit)
				if err != nil {
					return err
				}
				if g.output == outputJSON {
					return printJSON(cmd.OutOrStdout(), list)
				}
				rows := make([][]string, 0, len(list))
				for _, e := range list {
					rows = append(rows, []string{e.CreatedAt.Format("2006-01-02 15:04:05"), e.Level, e.Action, e.Message})
				}
				return table(cmd.OutOrStdout(), []string{"TIME", "LEVEL", "ACTION", "MESSAGE"}, rows)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of entries")
	return cmd
}

func (g *globalOptions) printBot(cmd *cobra.Command, b *store.Bot) error {
	v := viewOf(b)
	if g.output == outputJSON {
		return printJSON(cmd.OutOrStdout(), v)
	}
	rows := [][]string{
		{"ID", v.ID},
		{"Name", v.Name},
		{"Description", orDash(v.Description)},
		{"Owner", orDash(v.OwnerID)},
		{"Auto restart", strconv.FormatBool(v.AutoRestart)},
		{"Status", v.Status},
		{"Message", orDash(v.StatusMessage)},
		{"Container", orDash(v.ContainerName)},
		{"Container ID", orDash(shortID(v.ContainerID))},
		{"Updated", ago(v.UpdatedAt)},
	}
	return table(cmd.OutOrStdout(), []string{"FIELD", "VALUE"}, rows)
}

func (g *globalOptions) printStatus(cmd *cobra.Command, a *app.App, id string) error {
	rep, err := a.Bots().Status(cmd.Context(), id)
	if err != nil {
		return err
	}
	if g.output == outputJSON {
		return printJSON(cmd.OutOrStdout(), rep)
	}
	status := string(rep.Status)
	if rep.Stale {
		status += " (stale)"
	}
	return table(cmd.OutOrStdout(), []string{"ID", "STATUS", "CONTAINER", "INSTANCE", "EXIT", "MESSAGE"}, [][]string{{
		rep.BotID, status, orDash(rep.InstanceName), string(rep.Instance.Status),
		strconv.Itoa(rep.Instance.ExitCode), orDash(rep.Message),
	}})
}

// parseAssignments turns KEY=VALUE pairs into a map.
func parseAssignments(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("setting %q: want KEY=VALUE", p)
		}
		out[k] = v
	}
	return out, nil
}
