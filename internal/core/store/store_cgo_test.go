//go:build cgo

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookgate/hookgate/internal/config"
	"github.com/hookgate/hookgate/internal/core"
)

func openMemoryStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(context.Background(), config.StoreConfig{Driver: "libsql", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestOpenMemoryStore(t *testing.T) {
	ctx := context.Background()
	cfg := config.StoreConfig{
		Driver: "libsql",
		Path:   ":memory:",
	}

	store, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, store)
	require.Equal(t, "libsql", store.Driver())
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx), "migrations are idempotent")
	require.NoError(t, store.Close())
}

func TestIntegrationRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openMemoryStore(t)

	missing, err := store.FindIntegration(ctx, "int-1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, store.UpsertIntegration(ctx, &core.Integration{
		ID:              "int-1",
		Name:            "Production alerts",
		Type:            core.IntegrationGrafana,
		Key:             "secret-key",
		ServiceID:       "svc-1",
		Enabled:         true,
		SignatureSecret: "hmac-secret",
	}))

	got, err := store.FindIntegration(ctx, "int-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, core.IntegrationGrafana, got.Type)
	assert.Equal(t, "secret-key", got.Key)
	assert.Equal(t, "svc-1", got.ServiceID)
	assert.True(t, got.Enabled)
	assert.True(t, got.HasSignatureSecret())

	got.Enabled = false
	require.NoError(t, store.UpsertIntegration(ctx, got))

	list, err := store.ListIntegrations(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].Enabled)

	removed, err := store.DeleteIntegration(ctx, "int-1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = store.DeleteIntegration(ctx, "int-1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestIncidentLookupSkipsResolved(t *testing.T) {
	ctx := context.Background()
	store := openMemoryStore(t)

	incident := &core.Incident{
		ID:        "inc-1",
		DedupKey:  "disk-full",
		ServiceID: "svc-1",
		Title:     "Disk full",
		Status:    core.IncidentOpen,
		Urgency:   "HIGH",
	}
	require.NoError(t, store.SaveIncident(ctx, incident))

	open, err := store.FindOpenIncident(ctx, "svc-1", "disk-full")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, "inc-1", open.ID)

	incident.Status = core.IncidentResolved
	require.NoError(t, store.SaveIncident(ctx, incident))

	open, err = store.FindOpenIncident(ctx, "svc-1", "disk-full")
	require.NoError(t, err)
	assert.Nil(t, open)
}
