package kv

import (
	"context"
	"fmt"

	"promotion/internal/config"
)

// Open builds the Store cfg selects. The returned close func is never nil.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Kind {
	case config.StoreMemory:
		return NewMemory(), noop, nil
	case config.StoreRedis:
		r, err := ConnectRedis(ctx, RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, noop, err
		}
		return r, r.Close, nil
	case config.StoreFile, "":
		path := cfg.Path
		if path == "" {
			p, err := DefaultFilePath()
			if err != nil {
				return nil, noop, err
			}
			path = p
		}
		f, err := NewFile(path)
		if err != nil {
			return nil, noop, err
		}
		return f, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown store %q", cfg.Kind)
	}
}
