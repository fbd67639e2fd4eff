package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hookgate/hookgate/internal/config"
	"github.com/hookgate/hookgate/internal/metrics"
	"github.com/hookgate/hookgate/internal/server/handlers"
)

func TestWebhookHealth(t *testing.T) {
	recorder := metrics.NewRecorder()
	check := webhookHealth(recorder)
	assert.NoError(t, check(context.Background()))

	// 1 error in 9: 11.11%, degraded.
	for i := 0; i < 8; i++ {
		recorder.RecordWebhookReceived("github", "gh-1", true, 5, "")
	}
	recorder.RecordWebhookReceived("github", "gh-1", false, 5, "INVALID_PAYLOAD")
	err := check(context.Background())
	var degraded *handlers.DegradedError
	assert.True(t, errors.As(err, &degraded))

	// 3 errors in 11: 27.27%, unhealthy.
	recorder.RecordWebhookReceived("github", "gh-1", false, 5, "INVALID_PAYLOAD")
	recorder.RecordWebhookReceived("github", "gh-1", false, 5, "INVALID_PAYLOAD")
	err = check(context.Background())
	assert.Error(t, err)
	assert.False(t, errors.As(err, &degraded))
}

func TestOpenServeStoreDegradesOnFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	cfg := &config.Config{Store: config.StoreConfig{Driver: "postgres"}}

	db := openServeStore(context.Background(), cfg, zap.New(core))
	assert.Nil(t, db)

	entries := logs.FilterMessage("Integration store unavailable, webhook routes disabled").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "postgres", entries[0].ContextMap()["driver"])
	assert.Contains(t, entries[0].ContextMap()["error"], "store initialization failed")
}
