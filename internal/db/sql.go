package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/models"
)

const createKVTable = `CREATE TABLE IF NOT EXISTS kvstore (
	id    TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

// SQLStore keeps settings as JSON documents in a kvstore table.
// driver is "postgres" or "sqlite".
type SQLStore struct {
	db *sqlx.DB
}

func NewSQLStore(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if driver == "sqlite" {
		// in-memory databases are per connection
		db.SetMaxOpenConns(1)
	}

	if _, err := db.ExecContext(ctx, createKVTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate kvstore table: %w", err)
	}

	log.Info().Str("driver", driver).Msg("Database connection established successfully.")
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Get(ctx context.Context, projectID string) (*models.ChannelSettings, error) {
	var raw string
	err := s.db.GetContext(ctx, &raw, s.db.Rebind("SELECT value FROM kvstore WHERE id = ?"), models.SettingsKey(projectID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSettingsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings of project %s: %w", projectID, err)
	}

	var settings models.ChannelSettings
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return nil, fmt.Errorf("corrupted settings of project %s: %w", projectID, err)
	}
	return &settings, nil
}

func (s *SQLStore) Set(ctx context.Context, settings *models.ChannelSettings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	query := s.db.Rebind(`INSERT INTO kvstore (id, value) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET value = excluded.value`)
	if _, err := s.db.ExecContext(ctx, query, models.SettingsKey(settings.ProjectID), string(raw)); err != nil {
		return fmt.Errorf("failed to write settings of project %s: %w", settings.ProjectID, err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, projectID string) error {
	if _, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM kvstore WHERE id = ?"), models.SettingsKey(projectID)); err != nil {
		return fmt.Errorf("failed to delete settings of project %s: %w", projectID, err)
	}
	return nil
}

func (s *SQLStore) Close(context.Context) error {
	return s.db.Close()
}
