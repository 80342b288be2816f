package preview

import (
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yanizio/labelsprite/internal/assets"
	"github.com/yanizio/labelsprite/internal/composite"
	"github.com/yanizio/labelsprite/internal/sprite"
)

func newServer(t *testing.T, cfg sprite.Config) http.Handler {
	t.Helper()
	loader := assets.NewCache(assets.Mux{
		"builtin": assets.Builtin{},
		"":        assets.NewFileLoader(t.TempDir()),
	}, 16)
	b, err := composite.NewBuilder(loader, composite.DefaultStyle(), nil)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	return New(cfg, b, nil).Routes()
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	h.ServeHTTP(rec, req)
	return rec
}

func TestSprite_RendersPNG(t *testing.T) {
	h := newServer(t, sprite.Config{Capacity: 10})

	rec := do(h, http.MethodGet, "/sprite/e1.png?line1=Jazz+Night&line2=Blue+Room&icon=music&dpr=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	if rec.Header().Get("Content-Type") != "image/png" || rec.Header().Get("X-Pixel-Ratio") != "2" {
		t.Fatalf("headers = %v", rec.Header())
	}
	img, err := png.Decode(rec.Body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s := img.Bounds().Size(); s.X != 320 || s.Y != 80 {
		t.Fatalf("size = %v, want 320x80", s)
	}

	rec = do(h, http.MethodGet, "/sprite/e1.png?line1=Jazz+Night&line2=Blue+Room&icon=music&dpr=2&variant=highlight", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("highlight status %d", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/sprite/e1.png?variant=shadow", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad variant status %d", rec.Code)
	}
}

func TestViewportAndStats(t *testing.T) {
	h := newServer(t, sprite.Config{Capacity: 2, Headroom: 1})
	for _, id := range []string{"a", "b"} {
		if rec := do(h, http.MethodGet, "/sprite/"+id+".png?line1="+id+"&dpr=1", ""); rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d", id, rec.Code)
		}
	}

	rec := do(h, http.MethodPost, "/viewport", `{"ids":["a"],"zoom":12,"dpr":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("viewport status %d: %s", rec.Code, rec.Body)
	}
	var vp viewportResp
	if err := json.NewDecoder(rec.Body).Decode(&vp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(vp.InView) != 1 || vp.InView[0] != "a" {
		t.Fatalf("in view = %v", vp.InView)
	}

	// c pushes out b, not the in-view a.
	do(h, http.MethodGet, "/sprite/c.png?line1=c&dpr=1", "")

	rec = do(h, http.MethodGet, "/stats", "")
	var stats map[string]sprite.Stats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	st, ok := stats["preview@1x"]
	if !ok {
		t.Fatalf("stats = %v", stats)
	}
	if st.Entries != 3 || st.Generated != 2 || st.InView != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestInvalidate(t *testing.T) {
	h := newServer(t, sprite.Config{Capacity: 10})
	do(h, http.MethodPost, "/invalidate", `{"signature":"v1"}`)
	do(h, http.MethodGet, "/sprite/a.png?line1=a&dpr=1", "")

	rec := do(h, http.MethodPost, "/invalidate", `{"signature":"v2"}`)
	var dropped map[string]bool
	if err := json.NewDecoder(rec.Body).Decode(&dropped); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !dropped["preview@1x"] {
		t.Fatalf("dropped = %v", dropped)
	}
	if rec := do(h, http.MethodPost, "/invalidate", `{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestViewport_RatiosShareScenes(t *testing.T) {
	h := newServer(t, sprite.Config{Capacity: 10})
	for _, dpr := range []string{"1.0001", "1.0002", "0.9"} {
		rec := do(h, http.MethodPost, "/viewport", `{"ids":[],"zoom":12,"dpr":`+dpr+`}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("dpr %s: status %d", dpr, rec.Code)
		}
	}
	for _, dpr := range []string{"9", "-1"} {
		rec := do(h, http.MethodPost, "/viewport", `{"ids":[],"zoom":12,"dpr":`+dpr+`}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("dpr %s: status %d, want 400", dpr, rec.Code)
		}
	}

	rec := do(h, http.MethodGet, "/stats", "")
	var stats map[string]sprite.Stats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := stats["preview@1x"]; !ok || len(stats) != 1 {
		t.Fatalf("scenes = %v, want only preview@1x", stats)
	}

	rec = do(h, http.MethodGet, "/sprite/a.png?line1=a&dpr=2.2", "")
	if rec.Code != http.StatusOK || rec.Header().Get("X-Pixel-Ratio") != "2" {
		t.Fatalf("status %d, ratio %q", rec.Code, rec.Header().Get("X-Pixel-Ratio"))
	}
}
