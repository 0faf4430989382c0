package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func probe(t *testing.T, handler http.HandlerFunc) (int, statusResponse) {
	t.Helper()

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var resp statusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	return rec.Code, resp
}

// toggle is a check whose outcome the test controls.
type toggle struct {
	failing atomic.Bool
	calls   atomic.Int32
}

func (c *toggle) check(context.Context) error {
	c.calls.Add(1)
	if c.failing.Load() {
		return errors.New("database is down")
	}
	return nil
}

func TestCheck_Thresholds(t *testing.T) {
	tg := &toggle{}
	c := newCheck("db", time.Second, tg.check, []CheckOption{FailureThreshold(2), SuccessThreshold(2)})
	ctx := context.Background()

	tg.failing.Store(true)
	c.run(ctx)
	_, failed := c.failure()
	assert.False(t, failed, "one failure is below the threshold")

	c.run(ctx)
	msg, failed := c.failure()
	require.True(t, failed)
	assert.Equal(t, "database is down", msg)

	tg.failing.Store(false)
	c.run(ctx)
	_, failed = c.failure()
	assert.True(t, failed, "one success is below the recovery threshold")

	c.run(ctx)
	_, failed = c.failure()
	assert.False(t, failed)
}

func TestCheck_Timeout(t *testing.T) {
	c := newCheck("slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, []CheckOption{FailureThreshold(1)})

	c.run(context.Background())
	msg, failed := c.failure()
	require.True(t, failed)
	assert.Contains(t, msg, "deadline exceeded")
}

func TestLiveEndpoint(t *testing.T) {
	h := New()
	code, resp := probe(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", resp.Status)

	tg := &toggle{}
	tg.failing.Store(true)
	h.AddLivenessCheck("goroutines", time.Second, tg.check, FailureThreshold(1))
	h.live[0].run(context.Background())

	code, resp = probe(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, map[string]string{"goroutines": "database is down"}, resp.Checks)
}

func TestReadyEndpoint(t *testing.T) {
	h := New()
	pg, rdb := &toggle{}, &toggle{}
	h.AddReadinessCheck("postgres", time.Second, pg.check, FailureThreshold(1))
	h.AddReadinessCheck("redis", time.Second, rdb.check, FailureThreshold(1))

	code, resp := probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code, "not ready until the gate opens")
	assert.Contains(t, resp.Checks, "_readiness")
	assert.False(t, h.IsReady())

	h.SetReady(true)
	code, resp = probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, resp.Checks)
	assert.True(t, h.IsReady())

	rdb.failing.Store(true)
	for _, c := range h.readyz {
		c.run(context.Background())
	}
	code, resp = probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, map[string]string{"redis": "database is down"}, resp.Checks)
	assert.False(t, h.IsReady())

	// Liveness ignores readiness checks.
	code, _ = probe(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code)
}

func TestStartStop(t *testing.T) {
	h := New()
	tg := &toggle{}
	h.AddReadinessCheck("postgres", time.Second, tg.check)

	h.Start(context.Background(), 5*time.Millisecond)
	require.Eventually(t, func() bool { return tg.calls.Load() >= 3 }, time.Second, time.Millisecond)

	h.Stop()
	h.Stop()
	time.Sleep(20 * time.Millisecond)
	calls := tg.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, tg.calls.Load(), "checks keep running after Stop")
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestCheckers(t *testing.T) {
	ctx := context.Background()

	require.NoError(t, PingCheck(pingerFunc(func(context.Context) error { return nil }))(ctx))
	err := PingCheck(pingerFunc(func(context.Context) error { return errors.New("refused") }))(ctx)
	require.ErrorContains(t, err, "ping: refused")

	require.NoError(t, GoroutineCountCheck(1_000_000)(ctx))
	require.ErrorContains(t, GoroutineCountCheck(0)(ctx), "exceeds threshold")

	require.NoError(t, GCMaxPauseCheck(time.Hour)(ctx))
}
