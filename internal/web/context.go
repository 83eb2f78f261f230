package web

import (
	"context"
	"net"
	"net/http"

	"github.com/JonMunkholm/TabSync/internal/core"
)

// withTrigger records the HTTP caller on ctx so sync logs can name it.
func withTrigger(ctx context.Context, r *http.Request) context.Context {
	return core.ContextWithTrigger(ctx, core.Trigger{
		Source:    "http",
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	})
}

// clientIP returns the request's IP without port. RemoteAddr has already
// been rewritten by TrustedRealIP when the peer is a trusted proxy.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
