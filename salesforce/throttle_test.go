package salesforce

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesforce-bulk/salesforce/infra"
)

func okTransport(calls *int) http.RoundTripper {
	return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		*calls++
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader("ok")),
			Request:    r,
		}, nil
	})
}

func TestThrottle_WaitsWhenBucketIsEmpty(t *testing.T) {
	store := infra.NewStore(0.02, 1)
	stats := infra.NewMemoryStatsStore()

	calls := 0
	rt := Throttle(ThrottleOptions{
		Store: store,
		Stats: stats,
	})(okTransport(&calls))

	// 1) primeira passa direto
	r1 := httptest.NewRequest(http.MethodGet, "https://acme.my.salesforce.com/services/data/v64.0/jobs/query", nil)
	resp, err := rt.RoundTrip(r1)
	require.NoError(t, err)
	_ = resp.Body.Close()

	// 2) segunda fica retida (burst=1, rps baixo) até o ctx encerrar
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	r2 := httptest.NewRequest(http.MethodGet, "https://acme.my.salesforce.com/services/data/v64.0/jobs/query", nil).WithContext(ctx)
	_, err = rt.RoundTrip(r2)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, 1, calls)
	total := stats.Total()
	assert.Equal(t, int64(1), total.Allowed)
	assert.Equal(t, int64(1), total.Denied)
	assert.True(t, total.Waited > 0, "expected waited time to be recorded")
}

func TestThrottle_ReleasesAfterRefill(t *testing.T) {
	// 50 rps: o segundo token chega em ~20ms
	store := infra.NewStore(50, 1)

	calls := 0
	rt := Throttle(ThrottleOptions{Store: store})(okTransport(&calls))

	for i := 0; i < 2; i++ {
		r := httptest.NewRequest(http.MethodGet, "https://acme.my.salesforce.com/", nil)
		resp, err := rt.RoundTrip(r)
		require.NoError(t, err)
		_ = resp.Body.Close()
	}
	assert.Equal(t, 2, calls)
}

func TestThrottle_SustainsConfiguredRateWithBurstOne(t *testing.T) {
	// 10 rps, burst 1: 11 chamadas em sequência levam ~1s (a primeira é imediata)
	store := infra.NewStore(10, 1)

	calls := 0
	rt := Throttle(ThrottleOptions{Store: store})(okTransport(&calls))

	start := time.Now()
	for i := 0; i < 11; i++ {
		r := httptest.NewRequest(http.MethodGet, "https://acme.my.salesforce.com/", nil)
		resp, err := rt.RoundTrip(r)
		require.NoError(t, err)
		_ = resp.Body.Close()
	}
	elapsed := time.Since(start)

	assert.Equal(t, 11, calls)
	assert.GreaterOrEqual(t, elapsed, 900*time.Millisecond)
	assert.Less(t, elapsed, 1500*time.Millisecond, "throttle delivered well below 10 rps")
}

func TestThrottle_ConcurrentCallersShareTheRate(t *testing.T) {
	store := infra.NewStore(20, 1)

	var mu sync.Mutex
	calls := 0
	rt := Throttle(ThrottleOptions{Store: store})(RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("")), Request: r}, nil
	}))

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := httptest.NewRequest(http.MethodGet, "https://acme.my.salesforce.com/", nil)
			resp, err := rt.RoundTrip(r)
			if err == nil {
				_ = resp.Body.Close()
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	assert.Equal(t, 10, calls)
	// 9 tokens a 20 rps: ~450ms
	assert.GreaterOrEqual(t, elapsed, 400*time.Millisecond)
	assert.Less(t, elapsed, 1000*time.Millisecond)
}

func TestThrottle_KeyByHeader(t *testing.T) {
	store := infra.NewStore(0.02, 1)

	calls := 0
	rt := Throttle(ThrottleOptions{
		Store:     store,
		KeyHeader: "X-Org-Id",
	})(okTransport(&calls))

	// duas chaves diferentes => ambas passam (cada chave tem seu próprio limiter)
	for _, org := range []string{"00D1", "00D2"} {
		r := httptest.NewRequest(http.MethodGet, "https://acme.my.salesforce.com/", nil)
		r.Header.Set("X-Org-Id", org)
		resp, err := rt.RoundTrip(r)
		require.NoError(t, err, org)
		_ = resp.Body.Close()
	}
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, store.Len())
}

func TestThrottle_NilStoreAllowsEverything(t *testing.T) {
	calls := 0
	rt := Throttle(ThrottleOptions{})(okTransport(&calls))
	for i := 0; i < 5; i++ {
		resp, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "https://x/", nil))
		require.NoError(t, err)
		_ = resp.Body.Close()
	}
	assert.Equal(t, 5, calls)
}
