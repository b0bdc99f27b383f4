package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesforce-bulk/salesforce/domain"
)

func TestRouteLabel_ReplacesRecordIDs(t *testing.T) {
	tests := []struct {
		method, path, want string
	}{
		{"GET", "/services/data/v64.0/jobs/query/7508c00000AbCdEAAV/results", "GET /services/data/v64.0/jobs/query/:id/results"},
		{"GET", "/services/data/v64.0/jobs/ingest/7508c00000AbCdE/successfulResults", "GET /services/data/v64.0/jobs/ingest/:id/successfulResults"},
		{"GET", "/services/data/v64.0/jobs/ingest/7508c00000AbCdEAAV/unprocessedrecords", "GET /services/data/v64.0/jobs/ingest/:id/unprocessedrecords"},
		{"POST", "/services/data/v64.0/jobs/ingest", "POST /services/data/v64.0/jobs/ingest"},
		{"GET", "/services/data/v64.0/query/?q=SELECT+Id+FROM+Account", "GET /services/data/v64.0/query/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RouteLabel(tt.method, tt.path))
	}
}

func TestMemoryStatsStore_Record(t *testing.T) {
	s := NewMemoryStatsStore(WithTrackKeys(true))
	ctx := context.Background()

	path := "/services/data/v64.0/jobs/query/7508c00000AbCdEAAV"
	require.NoError(t, s.Record(ctx, domain.CallEvent{Key: "a", Allowed: true, Method: "GET", Path: path}))
	require.NoError(t, s.Record(ctx, domain.CallEvent{Key: "a", Allowed: true, Method: "GET", Path: path, Waited: 300 * time.Millisecond}))
	require.NoError(t, s.Record(ctx, domain.CallEvent{Key: "b", Allowed: false, Method: "GET", Path: path}))

	total := s.Total()
	assert.Equal(t, int64(2), total.Allowed)
	assert.Equal(t, int64(1), total.Denied)
	assert.Equal(t, int64(1), total.Throttled)
	assert.Equal(t, 300*time.Millisecond, total.Waited)

	routes := s.ByRoute()
	require.Len(t, routes, 1)
	assert.Equal(t, int64(2), routes["GET /services/data/v64.0/jobs/query/:id"].Allowed)

	keys := s.ByKey()
	assert.Equal(t, int64(2), keys["a"].Allowed)
	assert.Equal(t, int64(1), keys["b"].Denied)
}

type failingStats struct{ err error }

func (f failingStats) Record(context.Context, domain.CallEvent) error { return f.err }

func TestMultiStats_RecordsEverywhereAndReturnsFirstError(t *testing.T) {
	mem := NewMemoryStatsStore()
	boom := errors.New("redis down")

	err := MultiStats{failingStats{err: boom}, nil, mem}.Record(context.Background(), domain.CallEvent{Allowed: true})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int64(1), mem.Total().Allowed)
}
