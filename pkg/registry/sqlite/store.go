package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashgraph-online/poetry-registry-go/pkg/registry"
	"github.com/hashgraph-online/poetry-registry-go/pkg/registry/sqlite/migrations"
	_ "modernc.org/sqlite"
)

const timeFormat = time.RFC3339Nano

// Store is a SQLite-backed registry.Store.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// Open opens (creating if needed) the SQLite database at path and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := "file:" + cleanPath +
		"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection keeps the registry's one-writer model inside SQLite too.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{
		sqlDB: sqlDB,
		now:   func() time.Time { return time.Now().UTC() },
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Load reads the full registry state.
func (s *Store) Load(ctx context.Context) (registry.State, bool, error) {
	if err := s.ready(ctx); err != nil {
		return registry.State{}, false, err
	}

	var (
		state    registry.State
		nextID   int64
		sequence int64
		paused   int64
	)
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT name, symbol, next_id, sequence, max_text_length, paused, admin
FROM registry_settings WHERE id = 1`)
	err := row.Scan(
		&state.Name,
		&state.Symbol,
		&nextID,
		&sequence,
		&state.Settings.MaxTextLength,
		&paused,
		&state.Settings.Admin,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.State{}, false, nil
	}
	if err != nil {
		return registry.State{}, false, fmt.Errorf("load registry settings: %w", err)
	}
	state.NextID = uint64(nextID)
	state.Sequence = uint64(sequence)
	state.Settings.Paused = paused != 0

	tokens, err := s.loadTokens(ctx)
	if err != nil {
		return registry.State{}, false, err
	}
	state.Tokens = tokens
	return state, true, nil
}

func (s *Store) loadTokens(ctx context.Context) (map[uint64]registry.Token, error) {
	rows, err := s.sqlDB.QueryContext(ctx, "SELECT id, text, owner FROM tokens ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("load tokens: %w", err)
	}
	defer rows.Close()

	tokens := map[uint64]registry.Token{}
	for rows.Next() {
		var (
			id    int64
			token registry.Token
		)
		if err := rows.Scan(&id, &token.Text, &token.Owner); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		token.ID = uint64(id)
		tokens[token.ID] = token
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tokens: %w", err)
	}
	return tokens, nil
}

// Initialize writes the initial settings row and any tokens already in state.
func (s *Store) Initialize(ctx context.Context, state registry.State) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	nextID, err := toInt64(state.NextID)
	if err != nil {
		return err
	}
	sequence, err := toInt64(state.Sequence)
	if err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin initialize: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().Format(timeFormat)
	if _, err := tx.ExecContext(ctx, `
INSERT INTO registry_settings (id, name, symbol, next_id, sequence, max_text_length, paused, admin, updated_at)
VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)`,
		state.Name,
		state.Symbol,
		nextID,
		sequence,
		state.Settings.MaxTextLength,
		boolToInt(state.Settings.Paused),
		state.Settings.Admin,
		now,
	); err != nil {
		return fmt.Errorf("insert registry settings: %w", err)
	}
	for _, token := range registry.SortedTokens(state.Tokens) {
		if err := insertToken(ctx, tx, token, now); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit initialize: %w", err)
	}
	return nil
}

// AppendToken inserts token and advances the counters in one transaction.
func (s *Store) AppendToken(ctx context.Context, token registry.Token, commit registry.Commit) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append token: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().Format(timeFormat)
	if err := insertToken(ctx, tx, token, now); err != nil {
		return err
	}
	if err := updateCounters(ctx, tx, commit, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append token: %w", err)
	}
	return nil
}

// SaveSettings replaces the governance settings and counters in one transaction.
func (s *Store) SaveSettings(ctx context.Context, settings registry.Settings, commit registry.Commit) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save settings: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().Format(timeFormat)
	result, err := tx.ExecContext(ctx, `
UPDATE registry_settings SET max_text_length = ?, paused = ?, admin = ?, updated_at = ?
WHERE id = 1`,
		settings.MaxTextLength,
		boolToInt(settings.Paused),
		settings.Admin,
		now,
	)
	if err != nil {
		return fmt.Errorf("update registry settings: %w", err)
	}
	if err := expectOneRow(result); err != nil {
		return err
	}
	if err := updateCounters(ctx, tx, commit, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save settings: %w", err)
	}
	return nil
}

func insertToken(ctx context.Context, tx *sql.Tx, token registry.Token, now string) error {
	id, err := toInt64(token.ID)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(
		ctx,
		"INSERT INTO tokens (id, text, owner, created_at) VALUES (?, ?, ?, ?)",
		id,
		token.Text,
		token.Owner,
		now,
	); err != nil {
		return fmt.Errorf("insert token %d: %w", token.ID, err)
	}
	return nil
}

// AnchoredSequence returns the highest sequence confirmed on the anchor topic.
func (s *Store) AnchoredSequence(ctx context.Context) (uint64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	var anchored int64
	err := s.sqlDB.QueryRowContext(ctx, "SELECT anchored_seq FROM registry_settings WHERE id = 1").Scan(&anchored)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load anchored sequence: %w", err)
	}
	return uint64(anchored), nil
}

// EventsAfter returns journaled events with a sequence above sequence, oldest first.
func (s *Store) EventsAfter(ctx context.Context, sequence uint64) ([]registry.Event, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	after, err := toInt64(sequence)
	if err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, "SELECT sequence, payload FROM events WHERE sequence > ? ORDER BY sequence", after)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	defer rows.Close()

	events := make([]registry.Event, 0)
	for rows.Next() {
		var (
			rowSequence int64
			payload     string
			event       registry.Event
		)
		if err := rows.Scan(&rowSequence, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return nil, fmt.Errorf("decode event %d: %w", rowSequence, err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// MarkAnchored raises the anchored sequence. Lower values leave it unchanged.
func (s *Store) MarkAnchored(ctx context.Context, sequence uint64) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	value, err := toInt64(sequence)
	if err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(
		ctx,
		"UPDATE registry_settings SET anchored_seq = ? WHERE id = 1 AND anchored_seq < ?",
		value,
		value,
	); err != nil {
		return fmt.Errorf("mark anchored sequence: %w", err)
	}
	return nil
}

// journalEvent records the event of commit. Commits without an event are not journaled.
func journalEvent(ctx context.Context, tx *sql.Tx, commit registry.Commit, now string) error {
	if commit.Event.Type == "" {
		return nil
	}
	if commit.Event.Sequence != commit.Sequence {
		return fmt.Errorf("event sequence %d does not match commit sequence %d", commit.Event.Sequence, commit.Sequence)
	}
	sequence, err := toInt64(commit.Sequence)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(commit.Event)
	if err != nil {
		return fmt.Errorf("encode event %d: %w", commit.Sequence, err)
	}
	if _, err := tx.ExecContext(
		ctx,
		"INSERT INTO events (sequence, type, payload, created_at) VALUES (?, ?, ?, ?)",
		sequence,
		string(commit.Event.Type),
		string(payload),
		now,
	); err != nil {
		return fmt.Errorf("insert event %d: %w", commit.Sequence, err)
	}
	return nil
}

func updateCounters(ctx context.Context, tx *sql.Tx, commit registry.Commit, now string) error {
	nextID, err := toInt64(commit.NextID)
	if err != nil {
		return err
	}
	sequence, err := toInt64(commit.Sequence)
	if err != nil {
		return err
	}
	result, err := tx.ExecContext(
		ctx,
		"UPDATE registry_settings SET next_id = ?, sequence = ?, updated_at = ? WHERE id = 1",
		nextID,
		sequence,
		now,
	)
	if err != nil {
		return fmt.Errorf("update registry counters: %w", err)
	}
	if err := expectOneRow(result); err != nil {
		return err
	}
	return journalEvent(ctx, tx, commit, now)
}

func expectOneRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected != 1 {
		return fmt.Errorf("registry is not initialized")
	}
	return nil
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

func toInt64(value uint64) (int64, error) {
	if value > math.MaxInt64 {
		return 0, fmt.Errorf("value %d exceeds sqlite integer range", value)
	}
	return int64(value), nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

var (
	_ registry.Store        = (*Store)(nil)
	_ registry.EventJournal = (*Store)(nil)
)
