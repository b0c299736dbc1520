// Package db holds the per-project ChannelSettings store.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/visioninhope/tiledesk-whatsapp-connector/config"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/models"
)

// ErrSettingsNotFound is returned when a project has no WhatsApp configuration.
var ErrSettingsNotFound = errors.New("settings not found")

// SettingsStore reads and writes ChannelSettings atomically by project.
type SettingsStore interface {
	Get(ctx context.Context, projectID string) (*models.ChannelSettings, error)
	Set(ctx context.Context, settings *models.ChannelSettings) error
	Delete(ctx context.Context, projectID string) error
	Close(ctx context.Context) error
}

// Open connects the backend selected by SETTINGS_STORE and wraps it with the
// settings cache when SETTINGS_CACHE_TTL is positive.
func Open(ctx context.Context, cfg *config.Config) (SettingsStore, error) {
	var (
		store SettingsStore
		err   error
	)

	switch cfg.SettingsStore {
	case "mongo":
		store, err = NewMongoStore(ctx, cfg.MongoDBURL)
	case "postgres":
		store, err = NewSQLStore(ctx, "postgres", cfg.DatabaseURL)
	case "sqlite":
		store, err = NewSQLStore(ctx, "sqlite", cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unsupported settings store %q", cfg.SettingsStore)
	}
	if err != nil {
		return nil, err
	}

	log.Info().Str("store", cfg.SettingsStore).Dur("cacheTTL", cfg.SettingsCacheTTL).Msg("Settings store ready")
	if cfg.SettingsCacheTTL > 0 {
		return NewCachedStore(store, cfg.SettingsCacheTTL), nil
	}
	return store, nil
}
