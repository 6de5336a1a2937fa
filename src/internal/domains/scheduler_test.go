package domains

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casapps/caslinks/src/internal/database/models"
)

func TestSchedulerTick(t *testing.T) {
	resolver := &fakeResolver{}
	cfg := testConfig()
	service, _, userID := newTestService(t, resolver, cfg)
	scheduler := NewScheduler(service, cfg)

	ready, err := service.Claim(userID, "ready.example.com")
	require.NoError(t, err)
	publishCorrectRecords(resolver, ready)

	waiting, err := service.Claim(userID, "waiting.example.com")
	require.NoError(t, err)

	scheduler.tick(context.Background())

	verified, err := service.GetByID(ready.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DomainStatusVerifiedDNS, verified.Status)

	pending, err := service.GetByID(waiting.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DomainStatusPendingDNS, pending.Status)
	assert.NotNil(t, pending.LastCheckedAt)
	assert.Zero(t, pending.FailureCount)
}

func TestSchedulerTickHonorsCancellation(t *testing.T) {
	resolver := &fakeResolver{}
	service, _, userID := newTestService(t, resolver, nil)
	scheduler := NewScheduler(service, testConfig())

	record, err := service.Claim(userID, "example.com")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	scheduler.tick(ctx)

	// Nothing was checked under a cancelled context.
	reloaded, err := service.GetByID(record.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.LastCheckedAt)
}
