package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/RichardoC/relaychat/internal/config"
	"github.com/RichardoC/relaychat/internal/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(mark("a"), mark("b"), mark("c"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"a", "b", "c", "handler"}, order)
}

func TestLoggingRecordsStatusAndRoute(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := metrics.New()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = io.WriteString(w, "short and stout")
	})

	h := Chain(WithRequestID(), Logging(zap.New(core), m))(mux)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/7", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	_, err := uuid.Parse(rec.Header().Get(RequestIDHeader))
	assert.NoError(t, err)

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.EqualValues(t, http.StatusTeapot, fields["status"])
	assert.EqualValues(t, len("short and stout"), fields["bytes"])
	assert.Equal(t, "/items/7", fields["path"])

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET /items/{id}", "418")))
}

func TestRequestIDReusesValidHeader(t *testing.T) {
	id := uuid.NewString()
	var seen string
	h := WithRequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, id)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, id, seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "not-a-uuid\r\ninjected")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.NotEqual(t, "not-a-uuid\r\ninjected", seen)
}

func TestStatusRecorderFlushes(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rec}

	require.NoError(t, http.NewResponseController(sr).Flush())
	assert.True(t, rec.Flushed)
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	h := Recovery(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestRateLimit(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	h := RateLimit(NewRateLimiter(0.001, 2), zap.NewNop())(ok)

	do := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("203.0.113.5:1000"))
	assert.Equal(t, http.StatusOK, do("203.0.113.5:1001"))
	assert.Equal(t, http.StatusTooManyRequests, do("203.0.113.5:1002"))
	// other clients have their own bucket
	assert.Equal(t, http.StatusOK, do("203.0.113.6:1000"))
}

func TestRateLimitDisabled(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	h := RateLimit(nil, zap.NewNop())(ok)
	for i := 0; i < 50; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{name: "direct", remote: "198.51.100.1:5000", want: "198.51.100.1"},
		{name: "untrusted forwarder ignored", remote: "198.51.100.1:5000", xff: "1.2.3.4", want: "198.51.100.1"},
		{name: "trusted proxy", remote: "127.0.0.1:5000", xff: "1.2.3.4, 10.0.0.1", want: "1.2.3.4"},
		{name: "garbage header", remote: "10.0.0.2:5000", xff: "<script>", want: "10.0.0.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestRunShutsDownAndClosesResources(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {})

	s := New(config.ServerConfig{Addr: "127.0.0.1:0"}, mux, zap.NewNop(), nil)
	closed := false
	s.OnShutdown(closerFunc(func() error {
		closed = true
		return errors.New("db close failed")
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.EqualError(t, err, "db close failed")
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.True(t, closed)
}
