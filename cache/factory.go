package cache

import (
	"fmt"

	"weatherdash.app/config"
)

// New builds the cache backend selected by configuration. The memory
// backend loads its snapshot file when one exists.
func New(cfg *config.CacheConfig) (Cache, error) {
	switch cfg.Backend {
	case "memory":
		store := NewStore(StoreOptions{
			MaxEntries:           cfg.MaxEntries,
			MaxBytes:             cfg.MaxBytes,
			CompressionThreshold: cfg.CompressionThreshold,
			EvictionFraction:     cfg.EvictionFraction,
			StaleAcceptable:      cfg.StaleAcceptable,
		})
		if cfg.SnapshotPath != "" {
			if err := store.LoadSnapshot(cfg.SnapshotPath); err != nil {
				return nil, fmt.Errorf("load cache snapshot: %w", err)
			}
		}
		return store, nil

	case "redis":
		return NewRedisCache(&RedisConfig{
			Addr:            cfg.RedisAddr,
			Password:        cfg.RedisPassword,
			DB:              cfg.RedisDB,
			DialTimeout:     cfg.RedisTimeout,
			ReadTimeout:     cfg.RedisTimeout,
			WriteTimeout:    cfg.RedisTimeout,
			StaleAcceptable: cfg.StaleAcceptable,
		})

	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
