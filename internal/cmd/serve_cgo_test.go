//go:build cgo

package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hookgate/hookgate/internal/config"
)

func TestOpenServeStoreOpensLocalStore(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	cfg := &config.Config{Store: config.StoreConfig{Driver: "libsql", Path: "file:" + t.TempDir() + "/serve.db"}}

	db := openServeStore(context.Background(), cfg, zap.New(core))
	require.NotNil(t, db)
	defer func() { _ = db.Close() }()
	assert.Zero(t, logs.Len())
	assert.NoError(t, db.Ping(context.Background()))
}
