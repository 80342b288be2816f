package assets

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// HTTPLoader fetches images over HTTP with bounded retries.  Timeouts live
// here; the sprite cache itself never times out a build.
type HTTPLoader struct {
	client *retryablehttp.Client
}

// NewHTTPLoader returns a loader with the given per-attempt timeout and
// retry budget.
func NewHTTPLoader(timeout time.Duration, retries int, log *zap.SugaredLogger) *HTTPLoader {
	c := retryablehttp.NewClient()
	c.RetryMax = retries
	c.RetryWaitMin = 100 * time.Millisecond
	c.RetryWaitMax = time.Second
	c.HTTPClient.Timeout = timeout
	if log != nil {
		c.Logger = leveled{log}
	} else {
		c.Logger = nil
	}
	return &HTTPLoader{client: c}
}

// Load implements Loader.
func (l *HTTPLoader) Load(ctx context.Context, rawURL string) (image.Image, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rawURL)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}
	return decode(resp.Body, rawURL)
}

// leveled adapts zap to retryablehttp.LeveledLogger.
type leveled struct{ s *zap.SugaredLogger }

func (l leveled) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveled) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveled) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveled) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
