//
//  internal/requestinfo/requestinfo.go
//
//  Per-request metadata for the preview server: the parsed User-Agent,
//  the client address, the pixel ratio a sprite should be rendered at,
//  and the arrival time.  The struct is inert and safe to log.
//

package requestinfo

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/yanizio/labelsprite/internal/ua"
)

// MaxPixelRatio caps the density a client can ask for.
const MaxPixelRatio = 4

// RequestInfo is stored in the request context by Enrich.
type RequestInfo struct {
	UA         ua.Info
	IP         net.IP
	PixelRatio float64 // "dpr" query value, else the UA default
	Timestamp  time.Time
}

type ctxKey struct{} // unexported, collision-proof

// FromContext returns the pointer previously stored by Enrich.
// It returns nil if the middleware has not run.
func FromContext(ctx context.Context) *RequestInfo {
	v, _ := ctx.Value(ctxKey{}).(*RequestInfo)
	return v
}

// pixelRatio reads ?dpr=, clamped to (0, MaxPixelRatio].  Anything else
// falls back to the device class default.
func pixelRatio(r *http.Request, info ua.Info) float64 {
	if s := r.URL.Query().Get("dpr"); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil && v > 0 {
			if v > MaxPixelRatio {
				return MaxPixelRatio
			}
			return v
		}
	}
	return info.PixelRatio()
}
