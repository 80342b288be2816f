// internal/assets/loader.go
//
// Image-loading collaborator for the composite builder.
//
// Context
// -------
// The builder asks for images by URL and gets back decoded image data or
// an error.  URLs are routed by scheme:
//
//   - http, https  → HTTPLoader (retrying client)
//   - file, bare   → FileLoader (rooted at a base directory)
//   - builtin      → Builtin (synthesised template backgrounds)
//
// Cache sits in front of any Loader so labels that share an icon do not
// reload it.
package assets

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/url"

	// Decoders registered for image.Decode.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ErrNotFound is returned when an asset does not exist.
var ErrNotFound = errors.New("asset not found")

// ErrUnsupported is returned for URL schemes no loader handles.
var ErrUnsupported = errors.New("unsupported asset scheme")

// Loader loads an image by URL.
type Loader interface {
	Load(ctx context.Context, rawURL string) (image.Image, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, rawURL string) (image.Image, error)

// Load implements Loader.
func (f LoaderFunc) Load(ctx context.Context, rawURL string) (image.Image, error) {
	return f(ctx, rawURL)
}

// Mux routes a URL to the loader registered for its scheme.  The empty
// scheme covers bare paths.
type Mux map[string]Loader

// Load implements Loader.
func (m Mux) Load(ctx context.Context, rawURL string) (image.Image, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse asset url %q: %w", rawURL, err)
	}
	l, ok := m[u.Scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, u.Scheme)
	}
	return l.Load(ctx, rawURL)
}

func decode(r io.Reader, rawURL string) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return img, nil
}
