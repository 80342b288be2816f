package assets

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"net/url"
	"os"
	"path"
	"strings"
)

// FileLoader reads images from an fs.FS.  file:///icons/a.png and
// icons/a.png both resolve to icons/a.png inside the FS.
type FileLoader struct {
	FS fs.FS
}

// NewFileLoader roots a FileLoader at dir.
func NewFileLoader(dir string) *FileLoader {
	return &FileLoader{FS: os.DirFS(dir)}
}

// Load implements Loader.
func (l *FileLoader) Load(_ context.Context, rawURL string) (image.Image, error) {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Scheme == "file" {
		p = u.Path
	}
	p = strings.TrimPrefix(path.Clean("/"+p), "/")

	f, err := l.FS.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, rawURL)
		}
		return nil, err
	}
	defer f.Close()
	return decode(f, rawURL)
}
