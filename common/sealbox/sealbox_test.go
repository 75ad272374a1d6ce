package sealbox_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/IDKDeadXD/DiscordBotDashboard/common/sealbox"
)

func testKey() []byte { return bytes.Repeat([]byte{0x42}, sealbox.KeySize) }

func TestSealOpen(t *testing.T) {
	box, err := sealbox.New(testKey())
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := box.Seal("discord-token-value")
	if err != nil {
		t.Fatal(err)
	}
	if !sealbox.IsSealed(sealed) || strings.Contains(sealed, "discord-token-value") {
		t.Fatalf("value not sealed: %q", sealed)
	}
	plain, err := box.Open(sealed)
	if err != nil {
		t.Fatal(err)
	}
	if plain != "discord-token-value" {
		t.Fatalf("Open = %q", plain)
	}
}

func TestSeal_NonceDiffers(t *testing.T) {
	box, _ := sealbox.New(testKey())
	a, _ := box.Seal("same")
	b, _ := box.Seal("same")
	if a == b {
		t.Fatal("two seals of the same value must differ")
	}
}

func TestOpen_WrongKey(t *testing.T) {
	box, _ := sealbox.New(testKey())
	other, _ := sealbox.New(bytes.Repeat([]byte{0x01}, sealbox.KeySize))
	sealed, _ := box.Seal("secret")
	if _, err := other.Open(sealed); err == nil {
		t.Fatal("expected failure with the wrong key")
	}
}

func TestOpen_Malformed(t *testing.T) {
	box, _ := sealbox.New(testKey())
	for _, in := range []string{"plaintext", "v1:!!!", "v1:AAAA"} {
		if _, err := box.Open(in); !errors.Is(err, sealbox.ErrMalformed) {
			t.Errorf("Open(%q) err = %v, want ErrMalformed", in, err)
		}
	}
}

func TestParseKey(t *testing.T) {
	key, err := sealbox.ParseKey(strings.Repeat("ab", 32))
	if err != nil || len(key) != sealbox.KeySize {
		t.Fatalf("ParseKey: %v (len %d)", err, len(key))
	}
	if _, err := sealbox.ParseKey("abcd"); !errors.Is(err, sealbox.ErrKeySize) {
		t.Errorf("short key err = %v", err)
	}
	if _, err := sealbox.ParseKey("zz"); err == nil {
		t.Error("expected hex error")
	}
	if _, err := sealbox.New([]byte("short")); !errors.Is(err, sealbox.ErrKeySize) {
		t.Errorf("New short key err = %v", err)
	}
}
