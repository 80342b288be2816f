// internal/requestinfo/middleware.go
//
// HTTP middleware that enriches each request with *RequestInfo.
//
/*
Context
--------
This handler sits right after chi's RequestID and Recoverer.  For every
request it:

  1. Parses the User-Agent header into a device class.
  2. Extracts the left-most client IP from X-Forwarded-For or X-Real-IP,
     falling back to `r.RemoteAddr`.
  3. Resolves the pixel ratio: `?dpr=` when valid, else the device default.
  4. Stores a `*RequestInfo` in `request.Context` under an unexported key.

Instrumentation
---------------
Each invocation logs a DEBUG span with the client IP, device class, bot
flag, pixel ratio, and request path.
*/
package requestinfo

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/labelsprite/internal/ua"
)

/*──────────────────────────── middleware ───────────────────────────────────*/

// Enrich wraps an http.Handler, attaches *RequestInfo, and forwards.
func Enrich(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := ua.Parse(r.UserAgent())
		info := &RequestInfo{
			UA:         u,
			IP:         clientIP(r),
			PixelRatio: pixelRatio(r, u),
			Timestamp:  time.Now().UTC(),
		}

		zap.S().Debugw("request info",
			"ip", info.IP,
			"device", info.UA.Device,
			"bot", info.UA.IsBot,
			"dpr", info.PixelRatio,
			"path", r.URL.Path,
		)

		ctx := context.WithValue(r.Context(), ctxKey{}, info)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

/*──────────────────────────── client IP helper ─────────────────────────────*/

// clientIP extracts the left-most address from X-Forwarded-For or
// X-Real-IP, falling back to r.RemoteAddr ("ip:port").
func clientIP(r *http.Request) net.IP {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
				return ip
			}
		}
	}
	if xrip := r.Header.Get("X-Real-Ip"); xrip != "" {
		if ip := net.ParseIP(strings.TrimSpace(xrip)); ip != nil {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return net.ParseIP(host)
	}
	return nil
}
