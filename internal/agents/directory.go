package agents

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"voicedesk/internal/telephony"

	"github.com/redis/go-redis/v9"
)

// Directory is the read-only view over the provider's voice agents.
//
// Listings are cached for a short TTL so repeated dashboard views do not
// re-hit the provider. Cache failures are logged and ignored; the provider
// remains the source of truth.
type Directory struct {
	provider telephony.Provider
	cache    Cache
	ttl      time.Duration
}

const (
	directoryCacheKey   = "agents:directory"
	defaultDirectoryTTL = 60 * time.Second
)

var ErrProviderNotConfigured = errors.New("agents: provider not configured")

// Cache is the minimal cache contract the directory needs.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

func NewDirectory(provider telephony.Provider, cache Cache, ttl time.Duration) *Directory {
	if ttl <= 0 {
		ttl = defaultDirectoryTTL
	}
	return &Directory{provider: provider, cache: cache, ttl: ttl}
}

// List returns the agent directory, from cache when fresh.
func (d *Directory) List(ctx context.Context) ([]telephony.Agent, error) {
	if d.provider == nil {
		return nil, ErrProviderNotConfigured
	}

	if d.cache != nil {
		if raw, ok, err := d.cache.Get(ctx, directoryCacheKey); err != nil {
			slog.Default().Warn("agent directory cache read failed", "err", err)
		} else if ok {
			var cached []telephony.Agent
			if err := json.Unmarshal([]byte(raw), &cached); err == nil {
				return cached, nil
			}
			// Corrupt cache entries fall through to a provider fetch.
		}
	}

	list, err := d.provider.ListAgents(ctx)
	if err != nil {
		return nil, err
	}

	if d.cache != nil {
		if raw, err := json.Marshal(list); err == nil {
			if err := d.cache.Set(ctx, directoryCacheKey, string(raw), d.ttl); err != nil {
				slog.Default().Warn("agent directory cache write failed", "err", err)
			}
		}
	}
	return list, nil
}

// Get returns one agent's full configuration. Details are not cached: the
// details view is rare and should reflect live provider state.
func (d *Directory) Get(ctx context.Context, agentID string) (telephony.AgentConfig, error) {
	if d.provider == nil {
		return telephony.AgentConfig{}, ErrProviderNotConfigured
	}
	return d.provider.GetAgent(ctx, agentID)
}

// RedisCache adapts a redis client to the directory Cache contract.
type RedisCache struct {
	RDB *redis.Client
}

func (c RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.RDB.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

func (c RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.RDB.Set(ctx, key, value, ttl).Err()
}
