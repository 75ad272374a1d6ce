package redact_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/IDKDeadXD/DiscordBotDashboard/common/redact"
)

func TestString(t *testing.T) {
	const token = "MTIzNDU2Nzg5.discord.token"
	got := redact.String("create failed: env SECRET_TOKEN="+token+" rejected", token)
	want := "create failed: env SECRET_TOKEN=[REDACTED] rejected"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestString_ShortValuesKept(t *testing.T) {
	line := "bot abc started"
	if got := redact.String(line, "abc"); got != line {
		t.Fatalf("short value should not be masked, got %q", got)
	}
}

func TestError_PreservesChain(t *testing.T) {
	sentinel := errors.New("engine refused")
	err := fmt.Errorf("create with secret s3cr3t-value: %w", sentinel)

	clean := redact.Error(err, "s3cr3t-value")
	if clean.Error() != "create with secret [REDACTED]: engine refused" {
		t.Fatalf("message = %q", clean.Error())
	}
	if !errors.Is(clean, sentinel) {
		t.Fatal("scrubbed error must still match the wrapped sentinel")
	}
	if !redact.Is(clean) {
		t.Fatal("Is should report scrubbed error")
	}
}

func TestError_UntouchedWhenNothingToScrub(t *testing.T) {
	err := errors.New("plain failure")
	if got := redact.Error(err, "not-present"); got != err {
		t.Fatal("expected the same error value back")
	}
	if redact.Error(nil, "x") != nil {
		t.Fatal("nil in, nil out")
	}
}

func TestEnv(t *testing.T) {
	in := []string{"SECRET_TOKEN=abc123", "BOT_ID=42", "OPENAI_API_KEY=sk-1", "PREFIX=!", "NOEQUALS"}
	got := redact.Env(in)
	want := []string{"SECRET_TOKEN=[REDACTED]", "BOT_ID=42", "OPENAI_API_KEY=[REDACTED]", "PREFIX=!", "NOEQUALS"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] got %q, want %q", i, got[i], want[i])
		}
	}
	if in[0] != "SECRET_TOKEN=abc123" {
		t.Error("input slice must not be modified")
	}
}
