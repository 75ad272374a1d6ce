package main

import (
	"fmt"
	"os"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/IDKDeadXD/DiscordBotDashboard/common/version"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/app"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/observability"
)

// globalOptions are the persistent flags. Each one overrides the matching
// BOTDASH_* variable when set.
type globalOptions struct {
	dbPath      string
	engine      string
	dockerHost  string
	network     string
	image       string
	memoryLimit string
	logLevel    string
	logFormat   string
	output      string
	actor       string
}

func newRootCommand() *cobra.Command {
	g := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "botdash",
		Short: "Run and manage Discord bot containers",
		Long: `botdash deploys each registered Discord bot into its own container on a
shared network, with a persistent data volume and the bot's settings
injected as environment variables.

Configuration is read from BOTDASH_* environment variables; the flags below
override them for one invocation.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, format := g.logLevel, g.logFormat
			if level == "" {
				level = os.Getenv("BOTDASH_LOG_LEVEL")
			}
			if format == "" {
				format = os.Getenv("BOTDASH_LOG_FORMAT")
			}
			observability.Setup(level, format)
			switch g.output {
			case outputTable, outputJSON:
				return nil
			default:
				return fmt.Errorf("unknown output format %q (want %s or %s)", g.output, outputTable, outputJSON)
			}
		},
	}
	cmd.SetVersionTemplate(version.String() + "\n")

	f := cmd.PersistentFlags()
	f.StringVar(&g.dbPath, "db", "", "SQLite database path (BOTDASH_DATABASE_PATH)")
	f.StringVar(&g.engine, "engine", "", "container engine: docker or memory (BOTDASH_ENGINE)")
	f.StringVar(&g.dockerHost, "docker-host", "", "engine endpoint, e.g. unix:///var/run/docker.sock (BOTDASH_DOCKER_HOST)")
	f.StringVar(&g.network, "network", "", "shared bot network (BOTDASH_NETWORK)")
	f.StringVar(&g.image, "image", "", "base image bots run (BOTDASH_IMAGE)")
	f.StringVar(&g.memoryLimit, "memory-limit", "", "per-bot memory limit, e.g. 512m (BOTDASH_MEMORY_LIMIT)")
	f.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn or error (BOTDASH_LOG_LEVEL)")
	f.StringVar(&g.logFormat, "log-format", "", "log format: text or json (BOTDASH_LOG_FORMAT)")
	f.StringVarP(&g.output, "output", "o", outputTable, "output format: table or json")
	f.StringVar(&g.actor, "actor", defaultActor(), "name recorded as the trigger of changes")

	cmd.AddCommand(
		newServeCommand(g),
		newBotsCommand(g),
		newSettingsCommand(g),
		newApplyCommand(g),
		newVersionCommand(g),
	)
	return cmd
}

// config loads the environment configuration and applies flag overrides.
func (g *globalOptions) config(cmd *cobra.Command) (*app.Config, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DatabasePath = g.dbPath
	}
	if flags.Changed("engine") {
		cfg.Engine = g.engine
	}
	if flags.Changed("docker-host") {
		cfg.DockerHost = g.dockerHost
	}
	if flags.Changed("network") {
		cfg.Lifecycle.NetworkName = g.network
	}
	if flags.Changed("image") {
		cfg.Lifecycle.Image = g.image
	}
	if flags.Changed("memory-limit") {
		n, err := units.RAMInBytes(g.memoryLimit)
		if err != nil {
			return nil, fmt.Errorf("--memory-limit: %w", err)
		}
		cfg.Lifecycle.MemoryLimit = n
	}
	return cfg, cfg.Validate()
}

// open builds an App for one command. The caller must Stop it.
func (g *globalOptions) open(cmd *cobra.Command) (*app.App, error) {
	cfg, err := g.config(cmd)
	if err != nil {
		return nil, err
	}
	return app.New(cfg)
}

// withApp opens an App, runs fn and releases the App.
func (g *globalOptions) withApp(cmd *cobra.Command, fn func(*app.App) error) error {
	a, err := g.open(cmd)
	if err != nil {
		return err
	}
	defer a.Stop()
	return fn(a)
}

func defaultActor() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}

func newVersionCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if g.output == outputJSON {
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"version":    version.Version,
					"commit":     version.GitCommit,
					"build_time": version.BuildTime,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
			return nil
		},
	}
}
