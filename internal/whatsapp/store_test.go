package whatsapp

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"wagate/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "index.db"), testLogger())
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunMigrations_Idempotent(t *testing.T) {
	s := testStore(t)
	if err := runMigrations(s.db, testLogger()); err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	version, err := getSchemaVersion(s.db)
	if err != nil {
		t.Fatal(err)
	}
	if version != schemaVersion {
		t.Errorf("expected schema version %d, got %d", schemaVersion, version)
	}
}

func TestStore_Chats(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, err := s.GetChat(ctx, "62811@c.us"); !errors.Is(err, domain.ErrChatNotFound) {
		t.Fatalf("expected ErrChatNotFound, got %v", err)
	}

	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.UpsertChat(ctx, ChatRecord{ID: "62811@c.us", Name: "Alice", UpdatedAt: t0})
	s.UpsertChat(ctx, ChatRecord{ID: "62822@c.us", Name: "Bob", UpdatedAt: t0.Add(time.Minute)})
	// An update without a name keeps the stored one.
	s.UpsertChat(ctx, ChatRecord{ID: "62811@c.us", UpdatedAt: t0.Add(2 * time.Minute)})

	rec, err := s.GetChat(ctx, "62811@c.us")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Name != "Alice" {
		t.Errorf("name = %q, want Alice", rec.Name)
	}

	chats, err := s.ListChats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 2 || chats[0].ID != "62811@c.us" {
		t.Errorf("expected most recent first, got %+v", chats)
	}
}

func TestStore_Messages(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	s.SaveMessage(ctx, MessageRecord{ID: "in-1", ChatID: "62811@c.us", Body: "hi", SentAt: t0})
	s.SaveMessage(ctx, MessageRecord{ID: "in-2", ChatID: "62811@c.us", Type: "location", SentAt: t0.Add(time.Second),
		Location: &domain.Location{Latitude: 1.5, Longitude: 2.5, Description: "here"}})
	s.SaveMessage(ctx, MessageRecord{ID: "out-1", ChatID: "62811@c.us", Body: "hello", FromMe: true, SentAt: t0.Add(2 * time.Second)})
	s.SaveMessage(ctx, MessageRecord{ID: "other", ChatID: "62822@c.us", Body: "x", SentAt: t0})

	got, err := s.GetMessage(ctx, "in-2")
	if err != nil || got == nil {
		t.Fatalf("GetMessage: %v %v", got, err)
	}
	if got.Location == nil || got.Location.Latitude != 1.5 || got.Location.Description != "here" {
		t.Errorf("location not round-tripped: %+v", got.Location)
	}
	if got.Type != "location" || got.FromMe {
		t.Errorf("unexpected record %+v", got)
	}

	if missing, err := s.GetMessage(ctx, "nope"); err != nil || missing != nil {
		t.Errorf("expected nil for unknown id, got %v %v", missing, err)
	}

	last, err := s.LastInbound(ctx, "62811@c.us")
	if err != nil || last == nil || last.ID != "in-2" {
		t.Errorf("LastInbound = %+v, %v", last, err)
	}

	n, err := s.ClearMessages(ctx, "62811@c.us")
	if err != nil || n != 3 {
		t.Errorf("ClearMessages = %d, %v", n, err)
	}
	if m, _ := s.GetMessage(ctx, "other"); m == nil {
		t.Error("other chats must keep their history")
	}
}

func TestStore_Contacts(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if name, err := s.ContactName(ctx, "62811@c.us"); err != nil || name != "" {
		t.Errorf("unknown contact: %q %v", name, err)
	}
	s.SaveContact(ctx, "62811@c.us", "Alice")
	s.SaveContact(ctx, "62811@c.us", "Alice B")
	if name, _ := s.ContactName(ctx, "62811@c.us"); name != "Alice B" {
		t.Errorf("name = %q", name)
	}
}
