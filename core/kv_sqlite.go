package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/nil071n/N14/migrations"
	"github.com/pressly/goose/v3"
)

type SQLiteDBOption struct {
	// mode can be ro | rw | rwc | memory
	Mode string
	// cache can be shared | private
	Cache string
	// JournalMode be DELETE | TRUNCATE | PERSIST | MEMORY | WAL | OFF
	JournalMode string
}

func (config *SQLiteDBOption) DSN(sb *strings.Builder) {
	if config == nil {
		return
	}

	params := make([]string, 0, 3)
	if config.Mode != "" {
		params = append(params, "mode="+config.Mode)
	}
	if config.Cache != "" {
		params = append(params, "cache="+config.Cache)
	}
	if config.JournalMode != "" {
		params = append(params, "_journal_mode="+config.JournalMode)
	}
	if len(params) == 0 {
		return
	}
	sb.WriteString("?")
	sb.WriteString(strings.Join(params, "&"))
}

type SQLiteDB struct {
	*sql.DB
	config *SQLiteDBOption
	file   string
}

func NewSQLiteDB(file string, config *SQLiteDBOption) (*SQLiteDB, error) {
	db := &SQLiteDB{config: config, file: file}

	var dsn strings.Builder
	dsn.WriteString("file:")
	dsn.WriteString(db.file)
	config.DSN(&dsn)

	d, err := sql.Open("sqlite3", dsn.String())
	if err != nil {
		return nil, err
	}

	db.DB = d
	return db, nil
}

// Migrate applies the embedded migrations.
func (db *SQLiteDB) Migrate() error {
	goose.SetBaseFS(migrations.FS)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}

	if err := goose.Up(db.DB, "."); err != nil {
		return err
	}
	return nil
}

// SQLiteStore is a durable KVStore on the entries table.
type SQLiteStore struct {
	db    *sql.DB
	clock Clock
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, clock: SystemClock}
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	row := s.db.QueryRowContext(ctx, "SELECT value FROM entries WHERE name = ? LIMIT 1", key)

	var value string
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("scanning entry: %w", err)
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO entries (name, value, updated_at) VALUES (@name, @value, @updated_at)
		ON CONFLICT (name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	_, err := s.db.ExecContext(ctx, query,
		sql.Named("name", key), sql.Named("value", value),
		sql.Named("updated_at", s.clock.Now().UnixMilli()))
	if err != nil {
		return fmt.Errorf("ExecContext(upsert entry): %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM entries WHERE name = ?", key); err != nil {
		return fmt.Errorf("ExecContext(delete entry): %w", err)
	}
	return nil
}

// Keys returns the stored keys starting with prefix in lexical order.
func (s *SQLiteStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name FROM entries WHERE substr(name, 1, length(@prefix)) = @prefix ORDER BY name",
		sql.Named("prefix", prefix))
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}
	return keys, nil
}

// UpdatedAt returns when key was last written. The zero time is returned
// for absent keys.
func (s *SQLiteStore) UpdatedAt(ctx context.Context, key string) (time.Time, error) {
	row := s.db.QueryRowContext(ctx, "SELECT updated_at FROM entries WHERE name = ? LIMIT 1", key)
	var ms int64
	if err := row.Scan(&ms); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("scanning updated_at: %w", err)
	}
	return time.UnixMilli(ms), nil
}
