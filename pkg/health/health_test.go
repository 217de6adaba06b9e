package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func probeOf(h *Health, name string) *probe {
	for _, p := range h.probes {
		if p.name == name {
			return p
		}
	}
	return nil
}

func runN(p *probe, n int) {
	for range n {
		p.run(context.Background())
	}
}

func serve(t *testing.T, endpoint http.HandlerFunc) (int, statusBody) {
	t.Helper()
	w := httptest.NewRecorder()
	endpoint(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var body statusBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return w.Code, body
}

type fakePinger struct{ err atomic.Pointer[error] }

func (f *fakePinger) Ping(context.Context) error {
	if e := f.err.Load(); e != nil {
		return *e
	}
	return nil
}

func (f *fakePinger) fail(err error) { f.err.Store(&err) }

func TestLiveEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		runs       int
		err        error
		wantStatus int
		wantChecks map[string]string
	}{
		{name: "untested probe is healthy", runs: 0, err: errors.New("down"), wantStatus: http.StatusOK},
		{name: "passing", runs: 5, wantStatus: http.StatusOK},
		{name: "below threshold", runs: FailureThreshold - 1, err: errors.New("down"), wantStatus: http.StatusOK},
		{
			name: "at threshold", runs: FailureThreshold, err: errors.New("connection refused"),
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"db": "connection refused"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			h.AddLivenessCheck("db", time.Second, func(context.Context) error { return tt.err })
			runN(probeOf(h, "db"), tt.runs)

			code, body := serve(t, h.LiveEndpoint)
			assert.Equal(t, tt.wantStatus, code)
			if tt.wantChecks == nil {
				assert.Equal(t, "ok", body.Status)
				assert.Empty(t, body.Checks)
				return
			}
			assert.Equal(t, "unhealthy", body.Status)
			assert.Equal(t, tt.wantChecks, body.Checks)
		})
	}
}

func TestReadyEndpoint(t *testing.T) {
	pg := &fakePinger{}
	h := New()
	h.AddReadinessCheck("postgres", time.Second, PingCheck(pg))
	h.AddLivenessCheck("goroutines", time.Second, GoroutineCountCheck(1_000_000))

	code, body := serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code, "not ready before SetReady")
	assert.Contains(t, body.Checks, "_readiness")
	assert.False(t, h.IsReady())

	h.SetReady(true)
	code, _ = serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, h.IsReady())

	pg.fail(errors.New("too many connections"))
	runN(probeOf(h, "postgres"), FailureThreshold)
	code, body = serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, map[string]string{"postgres": "too many connections"}, body.Checks)
	assert.False(t, h.IsReady())

	// Readiness failures do not affect liveness.
	code, _ = serve(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code)

	pg.err.Store(nil)
	runN(probeOf(h, "postgres"), SuccessThreshold)
	assert.True(t, h.IsReady())

	h.SetReady(false)
	code, _ = serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestStartStop(t *testing.T) {
	var calls atomic.Int32
	h := New()
	h.AddReadinessCheck("redis", time.Second, func(context.Context) error {
		calls.Add(1)
		return errors.New("no route to host")
	})
	h.SetReady(true)

	h.Start(t.Context(), 5*time.Millisecond)
	require.Eventually(t, func() bool { return !h.IsReady() }, time.Second, 5*time.Millisecond)

	h.Stop()
	h.Stop()
	time.Sleep(20 * time.Millisecond)
	stopped := calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, calls.Load(), "probes keep running after Stop")
}

func TestConcurrentAccess(t *testing.T) {
	h := New()
	pg := &fakePinger{}
	h.AddReadinessCheck("postgres", time.Second, PingCheck(pg))
	h.SetReady(true)
	h.Start(t.Context(), time.Millisecond)
	defer h.Stop()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				if i%2 == 0 {
					h.ReadyEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/readyz", nil))
				} else {
					h.SetReady(true)
					_ = h.IsReady()
				}
			}
		}()
	}
	wg.Wait()
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(1_000_000)(context.Background()))
	err := GoroutineCountCheck(0)(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds threshold 0")
}
