package app

import (
	"fmt"
	"time"

	"github.com/IDKDeadXD/DiscordBotDashboard/common/environment"
	"github.com/IDKDeadXD/DiscordBotDashboard/common/sealbox"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/bots"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/lifecycle"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/notify"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/reconcile"
)

// Engine names accepted by Config.Engine.
const (
	EngineDocker = "docker"
	EngineMemory = "memory"
)

// DefaultDatabasePath is used when BOTDASH_DATABASE_PATH is unset.
const DefaultDatabasePath = "./botdash.db"

// Config holds everything New needs.
type Config struct {
	DatabasePath string
	// MasterKey encrypts bot secrets at rest. When nil, secrets are stored as
	// given.
	MasterKey []byte

	// Engine selects the container engine: "docker" (default) or "memory".
	Engine string
	// DockerHost overrides DOCKER_HOST.
	DockerHost string
	Lifecycle  lifecycle.Config
	// DeployLease is how old a deploying lock must be before startup
	// recovery releases it.
	DeployLease time.Duration

	// ReconcileInterval between reconciliation passes. Zero uses
	// reconcile.DefaultInterval; a negative value disables the loop.
	ReconcileInterval time.Duration

	// HTTPAddr is the TCP address of the health/status/metrics server
	// (e.g. ":8080"). When empty the server is disabled.
	HTTPAddr string

	// Matrix enables room notices when Homeserver, UserID, AccessToken and
	// Room are all set.
	Matrix     notify.MatrixConfig
	MatrixRoom string

	LogLevel  string
	LogFormat string
}

// MatrixEnabled reports whether enough Matrix settings are present to post
// notices.
func (c *Config) MatrixEnabled() bool {
	return c.Matrix.Homeserver != "" && c.Matrix.UserID != "" && c.Matrix.AccessToken != "" && c.MatrixRoom != ""
}

// LoadConfig reads the configuration from BOTDASH_* environment variables.
func LoadConfig() (*Config, error) {
	return loadConfig(environment.Default())
}

func loadConfig(env environment.Env) (*Config, error) {
	cfg := &Config{
		DatabasePath: env.String("DATABASE_PATH", DefaultDatabasePath),
		Engine:       env.String("ENGINE", EngineDocker),
		DockerHost:   env.String("DOCKER_HOST", ""),
		Lifecycle: lifecycle.Config{
			NetworkName:        env.String("NETWORK", lifecycle.DefaultNetworkName),
			Image:              env.String("IMAGE", lifecycle.DefaultImage),
			DataPath:           env.String("DATA_PATH", lifecycle.DefaultDataPath),
			MemoryLimit:        env.Bytes("MEMORY_LIMIT", lifecycle.DefaultMemoryLimit),
			StopGrace:          env.Duration("STOP_GRACE", lifecycle.DefaultStopGrace),
			DrainBeforeReplace: env.Bool("DRAIN_BEFORE_REPLACE", false),
			DefaultLogTail:     env.Int("LOG_TAIL", lifecycle.DefaultLogTail),
		},
		DeployLease:       env.Duration("DEPLOY_LEASE", bots.DefaultDeployLease),
		ReconcileInterval: env.Duration("RECONCILE_INTERVAL", reconcile.DefaultInterval),
		HTTPAddr:          env.String("HTTP_ADDR", ""),
		Matrix: notify.MatrixConfig{
			Homeserver:  env.String("MATRIX_HOMESERVER", ""),
			UserID:      env.String("MATRIX_USER_ID", ""),
			AccessToken: env.String("MATRIX_ACCESS_TOKEN", ""),
		},
		MatrixRoom: env.String("MATRIX_ROOM", ""),
		LogLevel:   env.String("LOG_LEVEL", "info"),
		LogFormat:  env.String("LOG_FORMAT", "text"),
	}

	if raw := env.String("MASTER_KEY", ""); raw != "" {
		key, err := sealbox.ParseKey(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", env.Key("MASTER_KEY"), err)
		}
		cfg.MasterKey = key
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values LoadConfig cannot default.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database path is required")
	}
	switch c.Engine {
	case EngineDocker, EngineMemory:
	default:
		return fmt.Errorf("unknown engine %q (want %s or %s)", c.Engine, EngineDocker, EngineMemory)
	}
	if c.Lifecycle.MemoryLimit < 0 {
		return fmt.Errorf("memory limit must not be negative")
	}
	return nil
}
