package notice

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault_HasWellKnownKeys(t *testing.T) {
	c := Default()
	for _, key := range []string{
		StatusConnecting, StatusQR, StatusAuthenticated, StatusReady,
		StatusAuthFailure, StatusDisconnected, APIInvalidValue, APINotRegistered,
		APIFileExclusive, Pong, GroupOnly, JoinedGroup, InvalidInvite,
		DeleteOwnOnly, EditOwnOnly, StatusUpdated, ChatsCount, ResendCaption,
		Mention, Unsupported,
	} {
		if got := c.Get(key); got == key || got == "" {
			t.Errorf("missing notice for %s", key)
		}
	}
}

func TestGet_UnknownKeyReturnsKey(t *testing.T) {
	if got := Default().Get("nope.nothing"); got != "nope.nothing" {
		t.Errorf("got %q", got)
	}
	var c *Catalog
	if got := c.Get(Pong); got != Pong {
		t.Errorf("nil catalog: got %q", got)
	}
}

func TestFormat(t *testing.T) {
	if got := Default().Format(ChatsCount, 3); got != "The bot has 3 chats open." {
		t.Errorf("got %q", got)
	}
}

func TestLoad_OverridesSingleKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notices.yaml")
	data := "command:\n  group_only: \"Este comando só pode ser usado em um grupo!\"\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Get(GroupOnly); got != "Este comando só pode ser usado em um grupo!" {
		t.Errorf("override not applied: %q", got)
	}
	if got := c.Get(Pong); got != "pong" {
		t.Errorf("default lost: %q", got)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("command: [unclosed"), 0o644)
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid yaml")
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if c.Get(Pong) != "pong" {
		t.Error("expected defaults")
	}
}
