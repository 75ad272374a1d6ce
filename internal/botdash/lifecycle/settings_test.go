package lifecycle

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateSettings(t *testing.T) {
	cases := []struct {
		name    string
		in      []Setting
		wantErr string
	}{
		{"ok", []Setting{{"PREFIX", "!"}, {"GUILD", "123"}}, ""},
		{"empty value ok", []Setting{{"EMPTY", ""}}, ""},
		{"empty key", []Setting{{"", "x"}}, "must not be empty"},
		{"equals in key", []Setting{{"A=B", "x"}}, "contains"},
		{"newline in key", []Setting{{"A\nB", "x"}}, "contains"},
		{"nul in value", []Setting{{"A", "x\x00y"}}, "value contains"},
		{"cr in value", []Setting{{"A", "x\ry"}}, "value contains"},
		{"reserved", []Setting{{"SECRET_TOKEN", "x"}}, "reserved"},
		{"reserved bot id", []Setting{{"BOT_ID", "x"}}, "reserved"},
		{"duplicate", []Setting{{"A", "1"}, {"A", "2"}}, "more than once"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateSettings(tc.in)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestSettingsFromMap_Sorted(t *testing.T) {
	got := SettingsFromMap(map[string]string{"b": "2", "a": "1", "c": "3"})
	if len(got) != 3 || got[0].Key != "a" || got[1].Key != "b" || got[2].Key != "c" {
		t.Fatalf("got %v", got)
	}
}

func TestEnvEntries_Order(t *testing.T) {
	in := []Setting{{"Z", "1"}, {"A", "2"}}
	got := envEntries(in)
	if strings.Join(got, ",") != "A=2,Z=1" {
		t.Fatalf("got %v", got)
	}
	if in[0].Key != "Z" {
		t.Error("input must not be reordered")
	}
}

func TestErrorKinds(t *testing.T) {
	err := &Error{Kind: KindConflict, Op: "create", BotID: "b1", Err: errors.New("exists")}
	if !errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
		t.Fatal("sentinel matching by kind")
	}
	if KindOf(err) != KindConflict || KindOf(errors.New("x")) != KindUnknown {
		t.Fatal("KindOf")
	}
	if err.Error() != "create: conflict (bot b1): exists" {
		t.Errorf("message = %q", err.Error())
	}
}
