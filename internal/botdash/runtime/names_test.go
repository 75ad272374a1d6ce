package runtime_test

import (
	"strings"
	"testing"

	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/runtime"
)

func TestDeriveNames(t *testing.T) {
	n := runtime.DeriveNames("b1")
	if n.Instance != "bot-b1" {
		t.Errorf("Instance = %q, want bot-b1", n.Instance)
	}
	if n.Volume != "bot-data-b1" {
		t.Errorf("Volume = %q, want bot-data-b1", n.Volume)
	}
	if again := runtime.DeriveNames("b1"); again != n {
		t.Errorf("DeriveNames not deterministic: %+v vs %+v", again, n)
	}
}

func TestDeriveNames_Injective(t *testing.T) {
	ids := []string{"1", "12", "123", "a", "A", "a-1", "a_1", "a.1", "1234567890123456789", "bot", "data", "b1", "b-1"}
	instances := make(map[string]string)
	volumes := make(map[string]string)
	for _, id := range ids {
		n := runtime.DeriveNames(id)
		if prev, ok := instances[n.Instance]; ok {
			t.Errorf("instance name %q shared by %q and %q", n.Instance, prev, id)
		}
		if prev, ok := volumes[n.Volume]; ok {
			t.Errorf("volume name %q shared by %q and %q", n.Volume, prev, id)
		}
		instances[n.Instance] = id
		volumes[n.Volume] = id
	}
}

func TestValidateBotID(t *testing.T) {
	valid := []string{"b1", "123456789012345678", "my.bot_v2-prod", strings.Repeat("a", 128)}
	for _, id := range valid {
		if err := runtime.ValidateBotID(id); err != nil {
			t.Errorf("ValidateBotID(%q) = %v, want nil", id, err)
		}
	}
	invalid := []string{"", "-leading", ".dot", "has space", "slash/bot", "uni✓", strings.Repeat("a", 129)}
	for _, id := range invalid {
		if err := runtime.ValidateBotID(id); err == nil {
			t.Errorf("ValidateBotID(%q) = nil, want error", id)
		}
	}
}
