package kv

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"promotion/internal/config"
)

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()

	s, closeFn, err := Open(ctx, config.StoreConfig{Kind: config.StoreMemory})
	require.NoError(t, err)
	require.IsType(t, &Memory{}, s)
	require.NoError(t, closeFn())

	s, _, err = Open(ctx, config.StoreConfig{Kind: config.StoreFile, Path: filepath.Join(t.TempDir(), "state.json")})
	require.NoError(t, err)
	require.IsType(t, &File{}, s)

	mr := miniredis.RunT(t)
	s, closeFn, err = Open(ctx, config.StoreConfig{Kind: config.StoreRedis, RedisAddr: mr.Addr()})
	require.NoError(t, err)
	require.IsType(t, &Redis{}, s)
	require.NoError(t, closeFn())

	_, _, err = Open(ctx, config.StoreConfig{Kind: "etcd"})
	require.Error(t, err)
}
