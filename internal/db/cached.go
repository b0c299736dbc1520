package db

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/models"
)

// CachedStore keeps recently read settings in memory. Every webhook delivery
// reads the settings of its project, so this saves a round trip per message.
// Writes through this store invalidate the entry; writes made by other
// processes are visible after the TTL.
type CachedStore struct {
	store SettingsStore
	cache *cache.Cache
}

func NewCachedStore(store SettingsStore, ttl time.Duration) *CachedStore {
	return &CachedStore{
		store: store,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (s *CachedStore) Get(ctx context.Context, projectID string) (*models.ChannelSettings, error) {
	if v, found := s.cache.Get(projectID); found {
		settings := *v.(*models.ChannelSettings)
		return &settings, nil
	}

	settings, err := s.store.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	cached := *settings
	s.cache.SetDefault(projectID, &cached)
	return settings, nil
}

func (s *CachedStore) Set(ctx context.Context, settings *models.ChannelSettings) error {
	s.cache.Delete(settings.ProjectID)
	return s.store.Set(ctx, settings)
}

func (s *CachedStore) Delete(ctx context.Context, projectID string) error {
	s.cache.Delete(projectID)
	return s.store.Delete(ctx, projectID)
}

func (s *CachedStore) Close(ctx context.Context) error {
	s.cache.Flush()
	return s.store.Close(ctx)
}
