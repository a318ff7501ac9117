package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/fleetmap/internal/core/services/audit"
)

func TestRequestContext(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	var actor, op string
	h := RequestContext(trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor = audit.ActorFrom(r.Context())
		op = audit.OperationFrom(r.Context())
	}))

	t.Run("defaults", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/map", nil)
		req.RemoteAddr = "10.1.2.3:4567"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "10.1.2.3", actor)
		assert.NotEmpty(t, op)
		assert.Equal(t, op, rec.Header().Get(RequestIDHeader))
	})

	t.Run("forwarded by trusted proxy", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/map", nil)
		req.RemoteAddr = "10.1.2.3:4567"
		req.Header.Set(ActorHeader, "alice")
		req.Header.Set(RequestIDHeader, "req-42")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "alice", actor)
		assert.Equal(t, "req-42", op)
	})

	t.Run("forwarded by untrusted peer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/map", nil)
		req.RemoteAddr = "192.0.2.7:4567"
		req.Header.Set(ActorHeader, "admin")
		h.ServeHTTP(httptest.NewRecorder(), req)

		assert.Equal(t, "192.0.2.7", actor)
	})

	t.Run("oversized request id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/map", nil)
		req.Header.Set(RequestIDHeader, strings.Repeat("x", 100))
		h.ServeHTTP(httptest.NewRecorder(), req)

		assert.Len(t, op, 36)
	})
}

func TestRequestContext_NoTrustedProxies(t *testing.T) {
	var actor string
	h := RequestContext(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor = audit.ActorFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/map", nil)
	req.RemoteAddr = "127.0.0.1:4567"
	req.Header.Set(ActorHeader, "alice")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "127.0.0.1", actor)
}

func TestParseTrustedProxies(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"127.0.0.1", " 172.16.0.0/12 ", "", "::1"})
	require.NoError(t, err)
	assert.Len(t, trusted, 3)

	tests := []struct {
		remote string
		want   bool
	}{
		{"127.0.0.1:1", true},
		{"127.0.0.2:1", false},
		{"172.20.1.1:1", true},
		{"[::1]:1", true},
		{"[::ffff:127.0.0.1]:1", true},
		{"garbage", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.remote
		assert.Equal(t, tt.want, trusted.Contains(req), tt.remote)
	}

	_, err = ParseTrustedProxies([]string{"not-an-ip"})
	assert.Error(t, err)
	_, err = ParseTrustedProxies([]string{"10.0.0.0/40"})
	assert.Error(t, err)
}
