package main

import (
	"errors"

	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/lifecycle"
)

// describe renders err with a hint on what to do next.
func describe(err error) string {
	msg := err.Error()
	var le *lifecycle.Error
	if !errors.As(err, &le) {
		return msg
	}
	if hint := hintFor(le); hint != "" {
		msg += "\n  hint: " + hint
	}
	return msg
}

func hintFor(le *lifecycle.Error) string {
	switch le.Kind {
	case lifecycle.KindNotFound:
		if le.Op == "create" || le.BotID == "" {
			return ""
		}
		return "run `botdash bots list` to see registered bots, or `botdash bots deploy " + le.BotID + "` if its container was removed"
	case lifecycle.KindConflict:
		if le.Op == "create" {
			return "choose another bot id, or update the existing bot"
		}
		return "wait for the deploy in progress to finish and retry"
	case lifecycle.KindPreconditionFailed:
		return "run `botdash bots deploy " + le.BotID + "` first"
	case lifecycle.KindRuntimeUnavailable:
		return "check that the Docker daemon is running and BOTDASH_DOCKER_HOST or DOCKER_HOST points at it"
	case lifecycle.KindProvisioningFailed:
		if le.BotID == "" {
			return ""
		}
		return "see `botdash bots history " + le.BotID + "` for the failed attempt"
	default:
		return ""
	}
}
