package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	versionKeyPrefix = "billing:catalog:version"
	bumpChannel      = "billing.catalog.bump"

	// DefaultTTL is used when no TTL is configured.
	DefaultTTL = 5 * time.Minute

	// versionMemoTTL bounds how long a memoized version is trusted if a
	// bump message is lost.
	versionMemoTTL = 30 * time.Second
)

// Cache is a versioned JSON cache keyed per business. Bumping a business
// version orphans every entry written under the previous one.
//
// While subscribed to bump notifications the cache memoizes versions in
// process, so a lookup costs one redis round trip instead of two.
type Cache struct {
	client *redis.Client
	ttl    time.Duration

	listening atomic.Bool
	versions  sync.Map // business id -> memoVersion
	now       func() time.Time
}

type memoVersion struct {
	ver int64
	at  time.Time
}

// NewCache returns a cache writing entries with ttl. A nil client disables
// caching and every fetch goes straight to the loader.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl, now: time.Now}
}

func versionKey(businessID int64) string {
	return versionKeyPrefix + ":" + strconv.FormatInt(businessID, 10)
}

// Version returns the catalog version for businessID, initialising it to 1.
func (c *Cache) Version(ctx context.Context, businessID int64) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	if v, ok := c.memoized(businessID); ok {
		return v, nil
	}
	key := versionKey(businessID)
	ver, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		// SetNX so two first readers agree on the initial version.
		if err := c.client.SetNX(ctx, key, 1, 0).Err(); err != nil {
			return 0, err
		}
		ver, err = c.client.Get(ctx, key).Int64()
	}
	if err != nil {
		return 0, err
	}
	if c.listening.Load() {
		c.versions.Store(businessID, memoVersion{ver: ver, at: c.now()})
	}
	return ver, nil
}

func (c *Cache) memoized(businessID int64) (int64, bool) {
	if !c.listening.Load() {
		return 0, false
	}
	v, ok := c.versions.Load(businessID)
	if !ok {
		return 0, false
	}
	m := v.(memoVersion)
	if c.now().Sub(m.at) > versionMemoTTL {
		c.versions.Delete(businessID)
		return 0, false
	}
	return m.ver, true
}

// BuildKey composes a cache key carrying the current business version.
func (c *Cache) BuildKey(ctx context.Context, businessID int64, parts ...string) (string, error) {
	joined := strings.Join(append([]string{"billing", "catalog", strconv.FormatInt(businessID, 10)}, parts...), ":")
	if c == nil || c.client == nil {
		return joined, nil
	}
	ver, err := c.Version(ctx, businessID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:v%d", joined, ver), nil
}

// FetchJSON loads key into dest, calling loader and storing its result on a
// miss. Loader errors are returned and never cached.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("catalog cache: loader required")
	}
	if c != nil && c.client != nil {
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			return json.Unmarshal(payload, dest)
		}
		if !errors.Is(err, redis.Nil) {
			return err
		}
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if c != nil && c.client != nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return err
		}
	}
	return json.Unmarshal(raw, dest)
}

// Bump invalidates every cached entry for businessID and notifies peers.
func (c *Cache) Bump(ctx context.Context, businessID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Incr(ctx, versionKey(businessID)).Err(); err != nil {
		return err
	}
	c.versions.Delete(businessID)
	return c.client.Publish(ctx, bumpChannel, strconv.FormatInt(businessID, 10)).Err()
}

// ListenForInvalidation subscribes to bumps from every process sharing the
// redis instance and enables the version memo. Each bump drops the memoized
// version before onBump, which may be nil, is called. It returns once
// subscribed; the memo is disabled again when ctx ends.
func (c *Cache) ListenForInvalidation(ctx context.Context, onBump func(businessID int64)) error {
	if c == nil || c.client == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, bumpChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	c.listening.Store(true)
	go func() {
		defer func() {
			c.listening.Store(false)
			c.versions.Clear()
			_ = pubsub.Close()
		}()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				id, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					continue
				}
				c.versions.Delete(id)
				if onBump != nil {
					onBump(id)
				}
			}
		}
	}()
	return nil
}
