//go:build integration

package infra

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"salesforce-bulk/salesforce/domain"
)

// startRedis sobe um redis descartável; exige Docker.
func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = container.Terminate(cleanupCtx)
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(ctx).Err())
	return rdb
}

func TestRedisStatsStore_RecordIntegration(t *testing.T) {
	rdb := startRedis(t)
	ctx := context.Background()

	s := NewRedisStatsStore(rdb, WithStatsPrefix("test:calls:"), WithStatsTrackKeys(true), WithStatsTTL(time.Minute))

	at := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	path := "/services/data/v64.0/jobs/ingest/7508c00000AbCdEAAV/batches"
	require.NoError(t, s.Record(ctx, domain.CallEvent{Key: "acme", Allowed: true, Method: "PUT", Path: path, At: at}))
	require.NoError(t, s.Record(ctx, domain.CallEvent{Key: "acme", Allowed: true, Method: "PUT", Path: path, At: at, Waited: 250 * time.Millisecond}))
	require.NoError(t, s.Record(ctx, domain.CallEvent{Key: "acme", Allowed: false, Method: "PUT", Path: path, At: at}))

	totals, err := s.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2", totals["allowed"])
	assert.Equal(t, "1", totals["denied"])
	assert.Equal(t, "1", totals["throttled"])
	assert.Equal(t, "250", totals["waited_ms"])

	minute, err := rdb.HGetAll(ctx, "test:calls:minute:202506011230").Result()
	require.NoError(t, err)
	assert.Equal(t, "2", minute["allowed"])

	ttl, err := rdb.TTL(ctx, "test:calls:key:acme").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	route, err := rdb.HGet(ctx, "test:calls:route", "PUT /services/data/v64.0/jobs/ingest/:id/batches:allowed").Result()
	require.NoError(t, err)
	assert.Equal(t, "2", route)
}
