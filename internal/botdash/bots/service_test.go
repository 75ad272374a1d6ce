package bots_test

import (
	"context"
	"errors"
	"os"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/bots"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/lifecycle"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/notify"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/runtime"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/runtime/enginetest"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/store"
)

const secret = "MTIzNDU2Nzg5.discord-token"

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Notify(_ context.Context, evt notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) has(k notify.Kind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Kind == k {
			return true
		}
	}
	return false
}

type fixture struct {
	svc   *bots.Service
	eng   *enginetest.Engine
	store *store.Store
	rec   *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "bots-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	s, err := store.New(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	eng := enginetest.New()
	rec := &recorder{}
	svc := bots.New(s, lifecycle.NewManager(eng, lifecycle.Config{}), bots.Options{Notifier: rec})
	return &fixture{svc: svc, eng: eng, store: s, rec: rec}
}

func (f *fixture) create(t *testing.T, id string) {
	t.Helper()
	_, err := f.svc.Create(context.Background(), bots.CreateRequest{
		ID: id, Name: "Bot " + id, Secret: secret, OwnerID: "u1", AutoRestart: true,
	}, "alice")
	if err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) bot(t *testing.T, id string) *store.Bot {
	t.Helper()
	b, err := f.svc.Get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestLifecycleScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "b1")

	if b := f.bot(t, "b1"); b.Status != lifecycle.StatusStopped || b.InstanceID() != "" {
		t.Fatalf("new bot = %s/%q", b.Status, b.InstanceID())
	}

	b, err := f.svc.Deploy(ctx, "b1", "alice")
	if err != nil {
		t.Fatal(err)
	}
	id := b.InstanceID()
	if b.Status != lifecycle.StatusRunning || id == "" {
		t.Fatalf("after deploy = %s/%q", b.Status, id)
	}

	if err := f.svc.Stop(ctx, "b1", "alice"); err != nil {
		t.Fatal(err)
	}
	if got := f.bot(t, "b1").Status; got != lifecycle.StatusStopped {
		t.Errorf("after stop = %s", got)
	}
	if _, ok := f.eng.Instance(id); !ok {
		t.Error("stop must keep the instance")
	}

	if err := f.svc.Start(ctx, "b1", "alice"); err != nil {
		t.Fatal(err)
	}
	b = f.bot(t, "b1")
	if b.Status != lifecycle.StatusRunning || b.InstanceID() != id {
		t.Errorf("after start = %s/%q, want running/%q", b.Status, b.InstanceID(), id)
	}
	if n := f.eng.Calls(enginetest.OpCreateInstance); n != 1 {
		t.Errorf("CreateInstance calls = %d, start must not re-provision", n)
	}

	res, err := f.svc.Delete(ctx, "b1", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if res.Warning != "" {
		t.Errorf("Warning = %q", res.Warning)
	}
	if _, err := f.svc.Get(ctx, "b1"); !errors.Is(err, lifecycle.ErrNotFound) {
		t.Errorf("Get after delete = %v, want not found", err)
	}
	if _, ok := f.eng.Instance(id); ok {
		t.Error("instance still exists after delete")
	}
	if !f.eng.HasVolume("bot-data-b1") {
		t.Error("data volume must survive delete")
	}

	hist, _ := f.store.ListDeployments(ctx, "b1", 0)
	if len(hist) != 0 {
		t.Errorf("history survives delete: %d rows", len(hist))
	}
}

func TestDeploy_StartFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "b1")
	f.eng.FailOn(enginetest.OpStartInstance, errors.New("OCI runtime create failed: token "+secret))

	_, err := f.svc.Deploy(ctx, "b1", "alice")
	if !errors.Is(err, lifecycle.ErrProvisioningFailed) {
		t.Fatalf("err = %v, want provisioning failed", err)
	}
	if strings.Contains(err.Error(), secret) {
		t.Error("returned error leaks the secret")
	}

	b := f.bot(t, "b1")
	if b.Status != lifecycle.StatusError {
		t.Errorf("status = %s, want error", b.Status)
	}
	if b.InstanceID() != "" {
		t.Errorf("failed deploy left instance %q bound", b.InstanceID())
	}
	if ids := f.eng.InstancesNamed("bot-b1"); len(ids) != 0 {
		t.Errorf("failed deploy left instances %v", ids)
	}

	hist, err := f.store.ListDeployments(ctx, "b1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 1 || hist[0].Outcome != store.OutcomeFailed || hist[0].Message == "" {
		t.Fatalf("history = %+v", hist)
	}
	if strings.Contains(hist[0].Message, secret) {
		t.Error("history leaks the secret")
	}
	if hist[0].TriggeredBy != "alice" || hist[0].TraceID == "" {
		t.Errorf("history row = %+v", hist[0])
	}

	events, _ := f.store.ListEvents(ctx, "b1", 0)
	for _, e := range events {
		if strings.Contains(e.Message, "running") {
			t.Errorf("running observed in event %q", e.Message)
		}
	}
	if !f.rec.has(notify.KindDeployFailed) {
		t.Error("no deploy failure notice")
	}
}

func TestDeploy_SuccessHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "b1")
	b, err := f.svc.Deploy(ctx, "b1", "bob")
	if err != nil {
		t.Fatal(err)
	}
	hist, _ := f.svc.History(ctx, "b1", 10)
	if len(hist) != 1 || hist[0].Outcome != store.OutcomeSuccess || hist[0].InstanceID != b.InstanceID() {
		t.Errorf("history = %+v", hist)
	}
	if !f.rec.has(notify.KindBotDeployed) {
		t.Error("no deployed notice")
	}
}

func TestDeploy_Redeploy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "b1")
	first, err := f.svc.Deploy(ctx, "b1", "")
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.svc.Deploy(ctx, "b1", "")
	if err != nil {
		t.Fatal(err)
	}
	if first.InstanceID() == second.InstanceID() {
		t.Error("redeploy must bind a fresh instance")
	}
	if ids := f.eng.InstancesNamed("bot-b1"); len(ids) != 1 || ids[0] != second.InstanceID() {
		t.Errorf("instances = %v", ids)
	}
}

func TestDeploy_FailureKeepsLiveInstance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "b1")
	b, err := f.svc.Deploy(ctx, "b1", "")
	if err != nil {
		t.Fatal(err)
	}
	f.eng.FailOn("NetworkExists", runtime.ErrUnavailable)

	if _, err := f.svc.Deploy(ctx, "b1", ""); err == nil {
		t.Fatal("expected failure")
	}
	got := f.bot(t, "b1")
	if got.Status != lifecycle.StatusError || got.InstanceID() != b.InstanceID() {
		t.Fatalf("after failed redeploy = %s/%q", got.Status, got.InstanceID())
	}

	// error is left by an explicit start of the instance still bound.
	f.eng.FailOn("NetworkExists", nil)
	if err := f.svc.Start(ctx, "b1", ""); err != nil {
		t.Fatal(err)
	}
	if got := f.bot(t, "b1").Status; got != lifecycle.StatusRunning {
		t.Errorf("status = %s", got)
	}
}

func TestDeploy_AlreadyDeploying(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "b1")
	if _, err := f.store.TryMarkDeploying(ctx, "b1"); err != nil {
		t.Fatal(err)
	}

	_, err := f.svc.Deploy(ctx, "b1", "")
	if !errors.Is(err, lifecycle.ErrConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
	if n := f.eng.Calls(enginetest.OpCreateInstance); n != 0 {
		t.Errorf("CreateInstance calls = %d", n)
	}
	if err := f.svc.Start(ctx, "b1", ""); !errors.Is(err, lifecycle.ErrConflict) && !errors.Is(err, lifecycle.ErrPreconditionFailed) {
		t.Errorf("Start while deploying = %v", err)
	}
}

func TestDeploy_ConcurrentOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "b1")

	const n = 4
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.Deploy(ctx, "b1", "")
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, lifecycle.ErrConflict):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok < 1 {
		t.Error("no deploy succeeded")
	}
	if ids := f.eng.InstancesNamed("bot-b1"); len(ids) != 1 {
		t.Errorf("instances = %v, want exactly one", ids)
	}
}

func TestDeploy_InjectsSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "b1")
	if err := f.svc.SetSetting(ctx, "b1", "PREFIX", "!"); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.SetSetting(ctx, "b1", "GUILD", "42"); err != nil {
		t.Fatal(err)
	}
	b, err := f.svc.Deploy(ctx, "b1", "")
	if err != nil {
		t.Fatal(err)
	}
	inst, _ := f.eng.Instance(b.InstanceID())
	want := []string{"SECRET_TOKEN=" + secret, "BOT_ID=b1", "BOT_NAME=Bot b1", "GUILD=42", "PREFIX=!"}
	if !slices.Equal(inst.Spec.Env, want) {
		t.Errorf("Env = %v, want %v", inst.Spec.Env, want)
	}
}

func TestStart_NotDeployed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "b1")

	for name, call := range map[string]func() error{
		"start":   func() error { return f.svc.Start(ctx, "b1", "") },
		"stop":    func() error { return f.svc.Stop(ctx, "b1", "") },
		"restart": func() error { return f.svc.Restart(ctx, "b1", "") },
		"logs":    func() error { _, err := f.svc.Logs(ctx, "b1", 10); return err },
		"stats":   func() error { _, err := f.svc.Stats(ctx, "b1"); return err },
	} {
		err := call()
		if !errors.Is(err, lifecycle.ErrPreconditionFailed) {
			t.Errorf("%s: err = %v, want precondition failed", name, err)
			continue
		}
		if !strings.Contains(err.Error(), "deploy first") {
			t.Errorf("%s: message %q is not actionable", name, err)
		}
	}
	if got := f.bot(t, "b1").Status; got != lifecycle.StatusStopped {
		t.Errorf("status changed to %s", got)
	}
	if n := f.eng.Calls(enginetest.OpStartInstance); n != 0 {
		t.Errorf("engine was called %d times", n)
	}
}

func TestStart_VanishedInstance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "b1")
	b, _ := f.svc.Deploy(ctx, "b1", "")
	f.svc.Stop(ctx, "b1", "")
	f.eng.Vanish(b.InstanceID())

	err := f.svc.Start(ctx, "b1", "")
	if !errors.Is(err, lifecycle.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
	var le *lifecycle.Error
	if !errors.As(err, &le) || le.BotID != "b1" {
		t.Errorf("error %v does not name the bot", err)
	}
	if got := f.bot(t, "b1").Status; got != lifecycle.StatusStopped {
		t.Errorf("status = %s, want unchanged", got)
	}
}

func TestStatus_Reconciles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "b1")
	b, _ := f.svc.Deploy(ctx, "b1", "")
	f.eng.Exit(b.InstanceID(), 1, "")

	rep, err := f.svc.Status(ctx, "b1")
	if err != nil {
		t.Fatal(err)
	}
	if rep.Status != lifecycle.StatusError || rep.Instance.ExitCode != 1 || rep.Message == "" {
		t.Errorf("report = %+v", rep)
	}
	if got := f.bot(t, "b1").Status; got != lifecycle.StatusError {
		t.Errorf("persisted = %s", got)
	}

	// error is cleared by an explicit restart.
	if err := f.svc.Restart(ctx, "b1", ""); err != nil {
		t.Fatal(err)
	}
	rep, _ = f.svc.Status(ctx, "b1")
	if rep.Status != lifecycle.StatusRunning {
		t.Errorf("after restart = %s", rep.Status)
	}
}

func TestStatus_EngineDown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "b1")
	f.svc.Deploy(ctx, "b1", "")
	f.eng.FailOn(enginetest.OpInspectInstance, runtime.ErrUnavailable)

	rep, err := f.svc.Status(ctx, "b1")
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Stale || rep.Status != lifecycle.StatusRunning {
		t.Errorf("report = %+v", rep)
	}
}

func TestLogsAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "b1")
	b, _ := f.svc.Deploy(ctx, "b1", "")
	f.eng.AppendLogs(b.InstanceID(), "ready", "logged in")
	f.eng.SetStats(b.InstanceID(), runtime.Snapshot{
		CPUTotal: 200, PreCPUTotal: 100, SystemTotal: 1200, PreSystemTotal: 1000, OnlineCPUs: 4,
		MemoryUsage: 64 << 20, MemoryLimit: 512 << 20,
	})

	logs, err := f.svc.Logs(ctx, "b1", 1)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(logs, " logged in\n") || strings.Contains(logs, "ready") {
		t.Errorf("logs = %q", logs)
	}

	view, err := f.svc.Stats(ctx, "b1")
	if err != nil {
		t.Fatal(err)
	}
	if view.CPUPercent != 200 || view.MemoryUsageMiB != 64 || view.MemoryPercent != 12.5 {
		t.Errorf("stats = %+v", view)
	}
}

func TestDelete_RemovalFailureIsWarning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "b1")
	f.svc.Deploy(ctx, "b1", "")
	f.eng.FailOn(enginetest.OpRemoveInstance, runtime.ErrUnavailable)

	res, err := f.svc.Delete(ctx, "b1", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if res.Warning == "" {
		t.Error("expected a warning")
	}
	if _, err := f.svc.Get(ctx, "b1"); !errors.Is(err, lifecycle.ErrNotFound) {
		t.Errorf("record survives: %v", err)
	}
	if !f.rec.has(notify.KindCleanupFailed) {
		t.Error("no cleanup notice")
	}
}

func TestPurge_RemovesVolume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "b1")
	f.svc.Deploy(ctx, "b1", "")

	res, err := f.svc.Purge(ctx, "b1", "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Warning != "" {
		t.Errorf("Warning = %q", res.Warning)
	}
	if f.eng.HasVolume("bot-data-b1") {
		t.Error("purge must remove the data volume")
	}
}

func TestDelete_Unknown(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Delete(context.Background(), "nope", ""); !errors.Is(err, lifecycle.ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "b1")

	cases := []struct {
		name string
		req  bots.CreateRequest
		want error
	}{
		{"duplicate", bots.CreateRequest{ID: "b1", Secret: "x"}, lifecycle.ErrConflict},
		{"bad id", bots.CreateRequest{ID: "../etc", Secret: "x"}, lifecycle.ErrInvalid},
		{"no secret", bots.CreateRequest{ID: "b2"}, lifecycle.ErrInvalid},
		{"reserved setting", bots.CreateRequest{ID: "b3", Secret: "x", Settings: map[string]string{"BOT_ID": "x"}}, lifecycle.ErrInvalid},
		{"newline value", bots.CreateRequest{ID: "b4", Secret: "x", Settings: map[string]string{"A": "1\n2"}}, lifecycle.ErrInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.Create(ctx, tc.req, ""); !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestCreate_DuplicateKeepsSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Create(ctx, bots.CreateRequest{ID: "b1", Secret: "x", Settings: map[string]string{"PREFIX": "!"}}, ""); err != nil {
		t.Fatal(err)
	}

	_, err := f.svc.Create(ctx, bots.CreateRequest{ID: "b1", Secret: "y", Settings: map[string]string{"PREFIX": "?", "EXTRA": "1"}}, "")
	if lifecycle.KindOf(err) != lifecycle.KindConflict {
		t.Fatalf("err = %v, want conflict", err)
	}
	settings, _ := f.svc.Settings(ctx, "b1")
	if len(settings) != 1 || settings["PREFIX"] != "!" {
		t.Errorf("settings = %v", settings)
	}
}

func TestCreate_NameDefaultsToID(t *testing.T) {
	f := newFixture(t)
	b, err := f.svc.Create(context.Background(), bots.CreateRequest{ID: "b9", Secret: "x", Settings: map[string]string{"A": "1"}}, "")
	if err != nil {
		t.Fatal(err)
	}
	if b.Name != "b9" {
		t.Errorf("Name = %q", b.Name)
	}
	settings, _ := f.svc.Settings(context.Background(), "b9")
	if settings["A"] != "1" {
		t.Errorf("settings = %v", settings)
	}
}

func TestSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "b1")

	if err := f.svc.SetSetting(ctx, "b1", "SECRET_TOKEN", "x"); !errors.Is(err, lifecycle.ErrInvalid) {
		t.Errorf("reserved key: err = %v", err)
	}
	if err := f.svc.SetSetting(ctx, "nope", "A", "1"); !errors.Is(err, lifecycle.ErrNotFound) {
		t.Errorf("unknown bot: err = %v", err)
	}
	if err := f.svc.SetSetting(ctx, "b1", "A", "1"); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.UnsetSetting(ctx, "b1", "A"); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.UnsetSetting(ctx, "b1", "A"); err != nil {
		t.Errorf("second unset: %v", err)
	}
	if err := f.svc.ReplaceSettings(ctx, "b1", map[string]string{"X": "1", "Y": "2"}); err != nil {
		t.Fatal(err)
	}
	got, _ := f.svc.Settings(ctx, "b1")
	if len(got) != 2 {
		t.Errorf("settings = %v", got)
	}
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "b1")

	name := "Renamed"
	b, err := f.svc.Update(ctx, "b1", store.BotUpdate{Name: &name}, "")
	if err != nil {
		t.Fatal(err)
	}
	if b.Name != name {
		t.Errorf("Name = %q", b.Name)
	}
	empty := ""
	if _, err := f.svc.Update(ctx, "b1", store.BotUpdate{Secret: &empty}, ""); !errors.Is(err, lifecycle.ErrInvalid) {
		t.Errorf("empty secret: err = %v", err)
	}
	if _, err := f.svc.Update(ctx, "nope", store.BotUpdate{Name: &name}, ""); !errors.Is(err, lifecycle.ErrNotFound) {
		t.Errorf("unknown bot: err = %v", err)
	}
}

func TestList_OwnerFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "b1")
	if _, err := f.svc.Create(ctx, bots.CreateRequest{ID: "b2", Secret: "x", OwnerID: "u2"}, ""); err != nil {
		t.Fatal(err)
	}
	mine, _ := f.svc.List(ctx, "u2")
	if len(mine) != 1 || mine[0].ID != "b2" {
		t.Errorf("List(u2) = %d bots", len(mine))
	}
	all, _ := f.svc.List(ctx, "")
	if len(all) != 2 {
		t.Errorf("List() = %d bots", len(all))
	}
}

func TestRecoverInterrupted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "b1")
	f.create(t, "b2")
	if _, err := f.store.TryMarkDeploying(ctx, "b1"); err != nil {
		t.Fatal(err)
	}

	// Any lock is older than a nanosecond lease.
	svc := bots.New(f.store, f.svc.Manager(), bots.Options{Notifier: f.rec, DeployLease: time.Nanosecond})
	time.Sleep(time.Millisecond)
	n, err := svc.RecoverInterrupted(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("recovered %d, want 1", n)
	}
	if got := f.bot(t, "b1").Status; got != lifecycle.StatusError {
		t.Errorf("b1 = %s", got)
	}
	if got := f.bot(t, "b2").Status; got != lifecycle.StatusStopped {
		t.Errorf("b2 = %s", got)
	}
	hist, _ := f.svc.History(ctx, "b1", 0)
	if len(hist) != 1 || hist[0].Outcome != store.OutcomeFailed {
		t.Errorf("history = %+v", hist)
	}

	// The lock is released.
	if _, err := f.svc.Deploy(ctx, "b1", ""); err != nil {
		t.Errorf("deploy after recovery: %v", err)
	}
}

func TestRecoverInterrupted_KeepsFreshLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "b1")
	if _, err := f.store.TryMarkDeploying(ctx, "b1"); err != nil {
		t.Fatal(err)
	}

	n, err := f.svc.RecoverInterrupted(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("recovered %d, want 0", n)
	}
	if got := f.bot(t, "b1").Status; got != lifecycle.StatusDeploying {
		t.Errorf("b1 = %s, want deploying", got)
	}
	if _, err := f.svc.Deploy(ctx, "b1", ""); !errors.Is(err, lifecycle.ErrConflict) {
		t.Errorf("deploy while locked: err = %v, want conflict", err)
	}
}

// deployDuringStop takes the deploy lock of botID while a stop is in the
// engine, the way a concurrent deploy from another process would.
type deployDuringStop struct {
	*enginetest.Engine
	store *store.Store
	botID string
}

func (d *deployDuringStop) StopInstance(ctx context.Context, id string, grace time.Duration) error {
	if _, err := d.store.TryMarkDeploying(ctx, d.botID); err != nil {
		return err
	}
	return d.Engine.StopInstance(ctx, id, grace)
}

func TestStop_KeepsLockTakenDuringStop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "b1")
	if _, err := f.svc.Deploy(ctx, "b1", ""); err != nil {
		t.Fatal(err)
	}

	eng := &deployDuringStop{Engine: f.eng, store: f.store, botID: "b1"}
	svc := bots.New(f.store, lifecycle.NewManager(eng, lifecycle.Config{}), bots.Options{Notifier: f.rec})

	err := svc.Stop(ctx, "b1", "alice")
	if lifecycle.KindOf(err) != lifecycle.KindConflict {
		t.Fatalf("err = %v, want conflict", err)
	}
	if got := f.bot(t, "b1").Status; got != lifecycle.StatusDeploying {
		t.Errorf("status = %s, want deploying", got)
	}
	if ok, _ := f.store.TryMarkDeploying(ctx, "b1"); ok {
		t.Error("the deploy lock must still be held")
	}
}
