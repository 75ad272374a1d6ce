package lifecycle

import (
	"errors"
	"fmt"

	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/runtime"
)

// Kind classifies lifecycle failures so callers can map them to messages
// without parsing engine errors.
type Kind int

const (
	KindUnknown Kind = iota
	// KindNotFound: the logical bot or its runtime instance is absent.
	KindNotFound
	// KindConflict: duplicate bot ID, or a deploy is already in flight.
	KindConflict
	// KindPreconditionFailed: the action needs a deployed instance.
	KindPreconditionFailed
	// KindRuntimeUnavailable: the engine is unreachable or failing.
	KindRuntimeUnavailable
	// KindProvisioningFailed: deploy aborted partway.
	KindProvisioningFailed
	// KindInvalid: the request itself is malformed (bad ID, bad settings).
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindPreconditionFailed:
		return "precondition_failed"
	case KindRuntimeUnavailable:
		return "runtime_unavailable"
	case KindProvisioningFailed:
		return "provisioning_failed"
	case KindInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Error is the error type returned by Manager and the bots service.
type Error struct {
	Kind  Kind
	Op    string
	BotID string
	Err   error
}

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrConflict           = &Error{Kind: KindConflict}
	ErrPreconditionFailed = &Error{Kind: KindPreconditionFailed}
	ErrRuntimeUnavailable = &Error{Kind: KindRuntimeUnavailable}
	ErrProvisioningFailed = &Error{Kind: KindProvisioningFailed}
	ErrInvalid            = &Error{Kind: KindInvalid}
)

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.BotID != "" {
		msg += " (bot " + e.BotID + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches a sentinel of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.BotID == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindUnknown
}

// Errorf builds an *Error with a formatted cause.
func Errorf(kind Kind, op, botID, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, BotID: botID, Err: fmt.Errorf(format, args...)}
}

// fromEngine tags an engine error with the matching Kind. Errors the engine
// does not classify count as the engine failing.
func fromEngine(op, botID string, err error) error {
	if err == nil {
		return nil
	}
	kind := KindRuntimeUnavailable
	switch {
	case errors.Is(err, runtime.ErrNotFound):
		kind = KindNotFound
	case errors.Is(err, runtime.ErrConflict):
		kind = KindConflict
	}
	return &Error{Kind: kind, Op: op, BotID: botID, Err: err}
}
