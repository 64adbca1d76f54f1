package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lyrebird/internal/config"

	"github.com/sirupsen/logrus"
)

// Entry is what the fallback cache knows about one title. Lyrics and
// cover are independent: either, both or neither may be present.
type Entry struct {
	Lyrics    string
	HasLyrics bool
	Cover     []byte
}

// FallbackCache maps normalized track titles to cached lyric text and
// cover bytes. Reads never fail; any storage error is reported as a miss.
type FallbackCache struct {
	store  Store
	memory *MemoryCache
	logger *logrus.Logger
}

// New builds a fallback cache from configuration, choosing the backend.
func New(cfg config.CacheConfig, logger *logrus.Logger) (*FallbackCache, error) {
	var (
		store Store
		err   error
	)

	switch cfg.Backend {
	case "redis":
		store, err = NewRedisStore(cfg.Redis)
	default:
		store, err = NewFileStore(cfg.Directory)
	}
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"backend":   cfg.Backend,
		"directory": cfg.Directory,
	}).Info("Fallback cache initialized")

	return NewFallbackCache(store, cfg.MemoryTTL(), logger), nil
}

// NewFallbackCache wraps store. A positive memoryTTL enables the in-memory front.
func NewFallbackCache(store Store, memoryTTL time.Duration, logger *logrus.Logger) *FallbackCache {
	fc := &FallbackCache{
		store:  store,
		logger: logger,
	}
	if memoryTTL > 0 {
		fc.memory = NewMemoryCache(memoryTTL)
	}
	return fc
}

// Get looks up both entries for title.
func (fc *FallbackCache) Get(ctx context.Context, title string) Entry {
	key := Key(title)

	var entry Entry
	if data, ok := fc.read(ctx, key, KindLyrics); ok {
		entry.Lyrics = string(data)
		entry.HasLyrics = true
	}
	if data, ok := fc.read(ctx, key, KindCover); ok {
		entry.Cover = data
	}
	return entry
}

func (fc *FallbackCache) read(ctx context.Context, key string, kind Kind) ([]byte, bool) {
	memKey := string(kind) + "/" + key
	if fc.memory != nil {
		if data, ok := fc.memory.Get(memKey); ok {
			return data, true
		}
	}

	data, err := fc.store.Get(ctx, key, kind)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			fc.logger.WithError(err).WithFields(logrus.Fields{
				"key":  key,
				"kind": kind,
			}).Warn("Fallback cache read failed")
		}
		return nil, false
	}

	if fc.memory != nil {
		fc.memory.Set(memKey, data)
	}
	return data, true
}

// Put writes whichever parts of entry are present, overwriting silently.
func (fc *FallbackCache) Put(ctx context.Context, title string, entry Entry) error {
	key := Key(title)

	var errs []error
	if entry.HasLyrics && entry.Lyrics != "" {
		errs = append(errs, fc.write(ctx, key, KindLyrics, []byte(entry.Lyrics)))
	}
	if len(entry.Cover) > 0 {
		errs = append(errs, fc.write(ctx, key, KindCover, entry.Cover))
	}
	return errors.Join(errs...)
}

func (fc *FallbackCache) write(ctx context.Context, key string, kind Kind, data []byte) error {
	if err := fc.store.Put(ctx, key, kind, data); err != nil {
		return fmt.Errorf("failed to store %s for %q: %w", kind, key, err)
	}
	if fc.memory != nil {
		fc.memory.Set(string(kind)+"/"+key, data)
	}
	fc.logger.WithFields(logrus.Fields{
		"key":   key,
		"kind":  kind,
		"bytes": len(data),
	}).Debug("Fallback cache entry written")
	return nil
}

// Ping reports whether the backing store is reachable
func (fc *FallbackCache) Ping(ctx context.Context) error {
	return fc.store.Ping(ctx)
}

// Close releases the backing store and stops the memory front.
func (fc *FallbackCache) Close() error {
	if fc.memory != nil {
		fc.memory.Close()
	}
	return fc.store.Close()
}
