package trace_test

import (
	"context"
	"strings"
	"testing"

	"github.com/IDKDeadXD/DiscordBotDashboard/common/trace"
)

func TestNewID(t *testing.T) {
	a, b := trace.NewID(), trace.NewID()
	if a == b {
		t.Fatal("IDs must be unique")
	}
	if !strings.HasPrefix(a, "t_") || len(a) != 34 {
		t.Fatalf("unexpected ID shape %q", a)
	}
}

func TestEnsure(t *testing.T) {
	ctx, id := trace.Ensure(context.Background())
	if id == "" || trace.From(ctx) != id {
		t.Fatalf("Ensure did not attach ID: %q", id)
	}
	ctx2, id2 := trace.Ensure(ctx)
	if id2 != id || ctx2 != ctx {
		t.Fatal("Ensure must keep an existing ID")
	}
	if trace.From(context.Background()) != "" {
		t.Fatal("empty context must have no ID")
	}
}
