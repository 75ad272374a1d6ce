package runtime

import (
	"fmt"
	"regexp"
)

const (
	instancePrefix = "bot-"
	volumePrefix   = "bot-data-"
)

// botIDPattern keeps derived names inside the engine's container/volume name
// charset ([a-zA-Z0-9][a-zA-Z0-9_.-]+).
var botIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// Names are the runtime resource names derived from a bot ID.
type Names struct {
	Instance string
	Volume   string
}

// DeriveNames returns the instance and volume names for botID. The mapping
// is a fixed-prefix concatenation, so distinct IDs never collide.
func DeriveNames(botID string) Names {
	return Names{
		Instance: InstanceNameFor(botID),
		Volume:   VolumeNameFor(botID),
	}
}

// InstanceNameFor returns the container name for botID.
func InstanceNameFor(botID string) string {
	return instancePrefix + botID
}

// VolumeNameFor returns the data volume name for botID.
func VolumeNameFor(botID string) string {
	return volumePrefix + botID
}

// ValidateBotID returns an error when id cannot be turned into engine
// resource names.
func ValidateBotID(id string) error {
	if id == "" {
		return fmt.Errorf("bot id must not be empty")
	}
	if !botIDPattern.MatchString(id) {
		return fmt.Errorf("bot id %q is invalid: must match %s", id, botIDPattern)
	}
	return nil
}
