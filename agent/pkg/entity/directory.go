package entity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const (
	defaultDirectoryTTL = 5 * time.Minute

	playersCacheKey = "players"
	teamsCacheKey   = "teams"
)

// CachedDirectory memoises a Directory for a TTL. Failed loads are not cached.
type CachedDirectory struct {
	next Directory
	ttl  time.Duration

	cache   *ttlcache.Cache[string, any]
	cacheMu sync.RWMutex
}

func NewCachedDirectory(next Directory, ttl time.Duration) (*CachedDirectory, error) {
	if next == nil {
		return nil, errors.New("directory is required")
	}
	if ttl == 0 {
		ttl = defaultDirectoryTTL
	}
	return &CachedDirectory{
		next:  next,
		ttl:   ttl,
		cache: ttlcache.New(ttlcache.WithTTL[string, any](ttl)),
	}, nil
}

func (d *CachedDirectory) Players(ctx context.Context) ([]Player, error) {
	if v, ok := d.get(playersCacheKey); ok {
		return v.([]Player), nil
	}
	players, err := d.next.Players(ctx)
	if err != nil {
		return nil, err
	}
	d.set(playersCacheKey, players)
	return players, nil
}

func (d *CachedDirectory) Teams(ctx context.Context) ([]Team, error) {
	if v, ok := d.get(teamsCacheKey); ok {
		return v.([]Team), nil
	}
	teams, err := d.next.Teams(ctx)
	if err != nil {
		return nil, err
	}
	d.set(teamsCacheKey, teams)
	return teams, nil
}

// Invalidate drops cached entries; called after a data refresh.
func (d *CachedDirectory) Invalidate() {
	d.cacheMu.Lock()
	defer d.cacheMu.Unlock()
	d.cache.DeleteAll()
}

func (d *CachedDirectory) get(key string) (any, bool) {
	d.cacheMu.RLock()
	defer d.cacheMu.RUnlock()
	item := d.cache.Get(key)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

func (d *CachedDirectory) set(key string, v any) {
	d.cacheMu.Lock()
	defer d.cacheMu.Unlock()
	d.cache.Set(key, v, d.ttl)
}
