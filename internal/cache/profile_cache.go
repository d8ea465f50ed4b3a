package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tubeinsight/dashboard/internal/models"
	"tubeinsight/dashboard/internal/repository"
)

// ErrProfileLookup marks a profile that could not be read. Callers must deny
// access rather than fall back to a default role.
var ErrProfileLookup = errors.New("profile lookup failed")

type ProfileSource interface {
	GetByID(ctx context.Context, id string) (models.Profile, error)
}

// ProfileCache is a read-through Redis cache in front of the profiles table.
// Entries are dropped by the session watcher whenever the user's session or
// profile changes, so the TTL only bounds staleness for missed events.
type ProfileCache struct {
	client *redis.Client
	source ProfileSource
	ttl    time.Duration
	log    zerolog.Logger
}

func NewProfileCache(client *redis.Client, source ProfileSource, ttl time.Duration, log zerolog.Logger) *ProfileCache {
	return &ProfileCache{
		client: client,
		source: source,
		ttl:    ttl,
		log:    log,
	}
}

func profileKey(id string) string {
	return "profile:" + id
}

// Get returns the profile for id. A missing row yields
// repository.ErrProfileNotFound; any other failure wraps ErrProfileLookup.
func (c *ProfileCache) Get(ctx context.Context, id string) (models.Profile, error) {
	if p, ok := c.cached(ctx, id); ok {
		return p, nil
	}

	p, err := c.source.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			return models.Profile{}, err
		}
		return models.Profile{}, fmt.Errorf("%w: %w", ErrProfileLookup, err)
	}

	c.store(ctx, p)
	return p, nil
}

// Invalidate drops the cached profile for id.
func (c *ProfileCache) Invalidate(ctx context.Context, id string) error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, profileKey(id)).Err(); err != nil {
		return fmt.Errorf("invalidate profile %s: %w", id, err)
	}
	return nil
}

func (c *ProfileCache) cached(ctx context.Context, id string) (models.Profile, bool) {
	if c.client == nil || c.ttl <= 0 {
		return models.Profile{}, false
	}

	raw, err := c.client.Get(ctx, profileKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Str("user_id", id).Msg("profile cache read failed")
		}
		return models.Profile{}, false
	}

	var p models.Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		c.log.Warn().Err(err).Str("user_id", id).Msg("discarding corrupt profile cache entry")
		return models.Profile{}, false
	}
	return p, true
}

func (c *ProfileCache) store(ctx context.Context, p models.Profile) {
	if c.client == nil || c.ttl <= 0 {
		return
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, profileKey(p.ID), raw, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("user_id", p.ID).Msg("profile cache write failed")
	}
}
