package whatsapp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"wagate/internal/domain"
)

// Store is the local index of chats and messages. The Cloud API keeps no
// queryable history, so everything the bot has seen or sent is recorded here.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// ChatRecord is a stored conversation.
type ChatRecord struct {
	ID        string
	Name      string
	IsGroup   bool
	UpdatedAt time.Time
}

// MessageRecord is a stored message, inbound or own.
type MessageRecord struct {
	ID       string
	ChatID   string
	Author   string
	Body     string
	Type     string
	FromMe   bool
	QuotedID string
	MediaID  string
	MimeType string
	Filename string
	Location *domain.Location
	SentAt   time.Time
}

// OpenStore opens (creating if needed) the SQLite index at dbPath.
func OpenStore(dbPath string, logger *slog.Logger) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := runMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertChat records a chat, keeping the existing name when rec.Name is empty.
func (s *Store) UpsertChat(ctx context.Context, rec ChatRecord) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (id, name, is_group, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE chats.name END,
			updated_at = excluded.updated_at`,
		rec.ID, rec.Name, rec.IsGroup, rec.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert chat %s: %w", rec.ID, err)
	}
	return nil
}

// GetChat returns the chat or domain.ErrChatNotFound.
func (s *Store) GetChat(ctx context.Context, id string) (*ChatRecord, error) {
	var rec ChatRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, is_group, updated_at FROM chats WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.Name, &rec.IsGroup, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chat %s: %w", id, err)
	}
	return &rec, nil
}

// ListChats returns every chat, most recently active first.
func (s *Store) ListChats(ctx context.Context) ([]ChatRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, is_group, updated_at FROM chats ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var out []ChatRecord
	for rows.Next() {
		var rec ChatRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.IsGroup, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SaveMessage records a message. Re-delivered webhooks overwrite the row.
func (s *Store) SaveMessage(ctx context.Context, rec MessageRecord) error {
	var lat, lng sql.NullFloat64
	var desc string
	if rec.Location != nil {
		lat = sql.NullFloat64{Float64: rec.Location.Latitude, Valid: true}
		lng = sql.NullFloat64{Float64: rec.Location.Longitude, Valid: true}
		desc = rec.Location.Description
	}
	if rec.Type == "" {
		rec.Type = "chat"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO messages
			(id, chat_id, author, body, type, from_me, quoted_id, media_id, mime_type, filename,
			 latitude, longitude, location_desc, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ChatID, rec.Author, rec.Body, rec.Type, rec.FromMe, rec.QuotedID,
		rec.MediaID, rec.MimeType, rec.Filename, lat, lng, desc, rec.SentAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save message %s: %w", rec.ID, err)
	}
	return nil
}

const messageColumns = `id, chat_id, author, body, type, from_me, quoted_id, media_id, mime_type,
	filename, latitude, longitude, location_desc, sent_at`

// GetMessage returns a message by id, or nil when unknown.
func (s *Store) GetMessage(ctx context.Context, id string) (*MessageRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	rec, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	return rec, nil
}

// LastInbound returns the newest message in chat not sent by us, or nil.
func (s *Store) LastInbound(ctx context.Context, chatID string) (*MessageRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE chat_id = ? AND from_me = 0
		 ORDER BY sent_at DESC LIMIT 1`, chatID)
	rec, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last inbound in %s: %w", chatID, err)
	}
	return rec, nil
}

// ClearMessages deletes the stored history of chat and reports how many
// messages were removed.
func (s *Store) ClearMessages(ctx context.Context, chatID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ?`, chatID)
	if err != nil {
		return 0, fmt.Errorf("clear messages in %s: %w", chatID, err)
	}
	return res.RowsAffected()
}

// SaveContact records the push name of a participant.
func (s *Store) SaveContact(ctx context.Context, id, pushName string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (id, push_name, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET push_name = excluded.push_name, updated_at = excluded.updated_at`,
		id, pushName, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save contact %s: %w", id, err)
	}
	return nil
}

// ContactName returns the stored push name, or "" when unknown.
func (s *Store) ContactName(ctx context.Context, id string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT push_name FROM contacts WHERE id = ?`, id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return name, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*MessageRecord, error) {
	var rec MessageRecord
	var lat, lng sql.NullFloat64
	var desc string
	if err := row.Scan(&rec.ID, &rec.ChatID, &rec.Author, &rec.Body, &rec.Type, &rec.FromMe,
		&rec.QuotedID, &rec.MediaID, &rec.MimeType, &rec.Filename, &lat, &lng, &desc, &rec.SentAt); err != nil {
		return nil, err
	}
	if lat.Valid && lng.Valid {
		rec.Location = &domain.Location{Latitude: lat.Float64, Longitude: lng.Float64, Description: desc}
	}
	return &rec, nil
}
