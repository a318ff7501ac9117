package middleware

import (
	"fmt"
	"net/http"
	"net/netip"
	"strings"

	"github.com/google/uuid"

	"github.com/lcalzada-xor/fleetmap/internal/core/services/audit"
)

const (
	// RequestIDHeader carries the operation id in both directions.
	RequestIDHeader = "X-Request-ID"
	// ActorHeader names the operator when a trusted proxy authenticates users.
	ActorHeader = "X-Forwarded-User"
)

// TrustedProxies lists the peers allowed to set ActorHeader.
type TrustedProxies []netip.Prefix

// ParseTrustedProxies accepts single addresses and CIDR ranges.
func ParseTrustedProxies(entries []string) (TrustedProxies, error) {
	out := make(TrustedProxies, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			p, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", e, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", e, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// Contains reports whether the request peer is a trusted proxy.
func (t TrustedProxies) Contains(r *http.Request) bool {
	if len(t) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ClientIP(r))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range t {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// RequestContext stamps every request with the acting operator and an
// operation id, so audit entries written while serving it can be correlated.
// ActorHeader is only honoured from trusted peers; everyone else is recorded
// by address.
func RequestContext(trusted TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := ""
			if trusted.Contains(r) {
				actor = strings.TrimSpace(r.Header.Get(ActorHeader))
			}
			if actor == "" {
				actor = ClientIP(r)
			}

			op := strings.TrimSpace(r.Header.Get(RequestIDHeader))
			if op == "" || len(op) > 64 {
				op = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, op)

			ctx := audit.WithActor(r.Context(), actor)
			ctx = audit.WithOperation(ctx, op)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
