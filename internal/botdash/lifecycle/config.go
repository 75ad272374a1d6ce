package lifecycle

import "time"

// Defaults applied by Config.withDefaults.
const (
	DefaultNetworkName = "discord-bots-network"
	DefaultImage       = "node:18-alpine"
	DefaultDataPath    = "/app/data"
	DefaultMemoryLimit = 512 << 20
	DefaultStopGrace   = 10 * time.Second
	DefaultLogTail     = 100
)

// Config is passed to NewManager. There is no process-wide state; two
// managers with different configs can share one engine.
type Config struct {
	// EngineEndpoint is the engine address the adapter was built with. The
	// manager only logs it.
	EngineEndpoint string
	// NetworkName is the shared network every instance joins.
	NetworkName string
	// Image is the base image instances run.
	Image string
	// DataPath is where the per-bot volume is mounted inside the instance.
	DataPath string
	// MemoryLimit caps instance memory in bytes; swap is capped to the same
	// value.
	MemoryLimit int64
	// StopGrace is how long stop and restart wait before killing.
	StopGrace time.Duration
	// DrainBeforeReplace stops a stale instance gracefully before deploy
	// force-removes it.
	DrainBeforeReplace bool
	// DefaultLogTail is used when Logs is called with tail <= 0.
	DefaultLogTail int
}

// DefaultConfig returns a Config with every default filled in.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.NetworkName == "" {
		c.NetworkName = DefaultNetworkName
	}
	if c.Image == "" {
		c.Image = DefaultImage
	}
	if c.DataPath == "" {
		c.DataPath = DefaultDataPath
	}
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = DefaultMemoryLimit
	}
	if c.StopGrace <= 0 {
		c.StopGrace = DefaultStopGrace
	}
	if c.DefaultLogTail <= 0 {
		c.DefaultLogTail = DefaultLogTail
	}
	return c
}
