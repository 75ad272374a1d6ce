package lifecycle_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/IDKDeadXD/DiscordBotDashboard/common/trace"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/lifecycle"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/runtime"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/runtime/enginetest"
)

func TestEnsureNetwork_Idempotent(t *testing.T) {
	eng := enginetest.New()
	p := lifecycle.NewProvisioner(eng, "net")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := p.EnsureNetwork(ctx); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if n := eng.Calls(enginetest.OpCreateNetwork); n != 1 {
		t.Errorf("create calls = %d, want 1", n)
	}
}

func TestEnsureVolume_Idempotent(t *testing.T) {
	eng := enginetest.New()
	p := lifecycle.NewProvisioner(eng, "net")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := p.EnsureVolume(ctx, "bot-data-x"); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if n := eng.Calls(enginetest.OpCreateVolume); n != 1 {
		t.Errorf("create calls = %d, want 1", n)
	}
}

// raceEngine reports the network as absent but fails the create as a
// duplicate, as happens when two deploys check at the same moment.
type raceEngine struct {
	*enginetest.Engine
}

func (raceEngine) NetworkExists(context.Context, string) (bool, error) { return false, nil }

func (raceEngine) CreateNetwork(context.Context, string) error { return runtime.ErrConflict }

func TestEnsureNetwork_LostRaceIsSuccess(t *testing.T) {
	p := lifecycle.NewProvisioner(raceEngine{enginetest.New()}, "net")
	if err := p.EnsureNetwork(context.Background()); err != nil {
		t.Fatalf("duplicate on create must be success: %v", err)
	}
}

func TestEnsureVolume_OtherErrorsFail(t *testing.T) {
	eng := enginetest.New()
	boom := errors.New("disk full")
	eng.FailOn(enginetest.OpCreateVolume, boom)
	p := lifecycle.NewProvisioner(eng, "net")

	if err := p.EnsureVolume(context.Background(), "v"); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestEnsure_LogsTraceID(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	p := lifecycle.NewProvisioner(enginetest.New(), "net")
	ctx := trace.With(context.Background(), "trace-123")
	if err := p.EnsureNetwork(ctx); err != nil {
		t.Fatal(err)
	}
	if err := p.EnsureVolume(ctx, "bot-data-x"); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if n := strings.Count(out, "trace_id=trace-123"); n != 2 {
		t.Errorf("traced lines = %d, want 2:\n%s", n, out)
	}
}
