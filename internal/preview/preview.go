// internal/preview/preview.go
//
// HTTP surface for previewing label sprites.
//
// Context
// -------
// The preview server drives the real sprite cache against in-memory
// engines, one per pixel ratio ("preview@2x" and so on), so a browser can
// request composites, simulate a viewport, and watch eviction happen.
//
// Routes
// ------
//
//	GET  /sprite/{id}.png   line1, line2, icon, multi, priority, variant, dpr
//	POST /viewport          {"ids": [...], "zoom": 14, "dpr": 2}
//	POST /invalidate        {"signature": "v2"}
//	GET  /stats             per-ratio sprite.Stats
//
// Ratios are rounded to RatioStep within (0, MaxPixelRatio], which bounds
// the number of scenes.
//
// `/metrics` is mounted by main.
package preview

import (
	"encoding/json"
	"fmt"
	"image/png"
	"math"
	"net/http"
	"sort"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/yanizio/labelsprite/internal/engine"
	"github.com/yanizio/labelsprite/internal/engine/memengine"
	"github.com/yanizio/labelsprite/internal/middleware"
	"github.com/yanizio/labelsprite/internal/requestinfo"
	"github.com/yanizio/labelsprite/internal/sprite"
)

// LabelLayer is the layer the viewport endpoint renders ids on.
const LabelLayer = "labels"

// RatioStep is the granularity scenes are keyed on.  Requested ratios are
// rounded to it, so at most MaxPixelRatio/RatioStep scenes exist.
const RatioStep = 0.5

// Server owns one cache and engine per pixel ratio.
type Server struct {
	cfg     sprite.Config
	builder sprite.Builder
	log     *zap.SugaredLogger

	mu        sync.Mutex
	scenes    map[float64]*scene
	signature string
}

type scene struct {
	cache *sprite.Cache
	eng   *memengine.Map
}

// New returns a Server.  cfg.LabelLayers is replaced by LabelLayer.
func New(cfg sprite.Config, builder sprite.Builder, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	cfg.LabelLayers = []string{LabelLayer}
	return &Server{
		cfg:     cfg,
		builder: builder,
		log:     log,
		scenes:  make(map[float64]*scene),
	}
}

// Routes builds the chi router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Security)
	r.Use(requestinfo.Enrich)

	r.Get("/sprite/{id}.png", s.sprite)
	r.Post("/viewport", s.viewport)
	r.Post("/invalidate", s.invalidate)
	r.Get("/stats", s.stats)
	return r
}

// snapRatio rounds a ratio in (0, MaxPixelRatio] to RatioStep.
func snapRatio(r float64) float64 {
	r = math.Round(r/RatioStep) * RatioStep
	if r < RatioStep {
		return RatioStep
	}
	if r > requestinfo.MaxPixelRatio {
		return requestinfo.MaxPixelRatio
	}
	return r
}

func (s *Server) scene(ratio float64) *scene {
	ratio = snapRatio(ratio)
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scenes[ratio]
	if !ok {
		eng := memengine.New(fmt.Sprintf("preview@%gx", ratio))
		eng.SetPixelRatio(ratio)
		sc = &scene{
			cache: sprite.New(s.cfg, s.builder, sprite.WithLogger(s.log)),
			eng:   eng,
		}
		if s.signature != "" {
			sc.cache.InvalidateSignature(eng, s.signature)
		}
		s.scenes[ratio] = sc
	}
	return sc
}

func (s *Server) each(fn func(sc *scene)) {
	s.mu.Lock()
	ratios := make([]float64, 0, len(s.scenes))
	for r := range s.scenes {
		ratios = append(ratios, r)
	}
	s.mu.Unlock()
	sort.Float64s(ratios)
	for _, r := range ratios {
		fn(s.scene(r))
	}
}

func ratioOf(r *http.Request) float64 {
	if ri := requestinfo.FromContext(r.Context()); ri != nil {
		return ri.PixelRatio
	}
	return 1
}

/*──────────────────────────── handlers ────────────────────────────────────*/

func (s *Server) sprite(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q := r.URL.Query()

	var highlight bool
	switch q.Get("variant") {
	case "", "base":
	case "highlight":
		highlight = true
	default:
		http.Error(w, "variant must be base or highlight", http.StatusBadRequest)
		return
	}
	sc := s.scene(ratioOf(r))

	req := sprite.Request{
		ID:      id,
		IconRef: q.Get("icon"),
		Line1:   q.Get("line1"),
		Line2:   q.Get("line2"),
		IsMulti: q.Get("multi") == "1" || q.Get("multi") == "true",
	}
	if p := q.Get("priority"); p != "" {
		b, err := strconv.ParseBool(p)
		if err != nil {
			http.Error(w, "priority must be a boolean", http.StatusBadRequest)
			return
		}
		req.Priority = &b
	}

	name, ok := sc.cache.RegisterOrBuild(r.Context(), sc.eng, req)
	if !ok {
		http.Error(w, "sprite build failed", http.StatusBadGateway)
		return
	}
	if highlight {
		name = engine.HighlightName(id)
	}

	img, ok := sc.eng.Image(name)
	if !ok {
		// Evicted between registration and lookup, or suspended registration.
		http.Error(w, "sprite not registered", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Pixel-Ratio", strconv.FormatFloat(img.Opts.PixelRatio, 'g', -1, 64))
	if err := png.Encode(w, img.Image); err != nil {
		s.log.Debugw("png encode failed", "id", id, "err", err)
	}
}

type viewportReq struct {
	IDs  []string `json:"ids"`
	Zoom float64  `json:"zoom"`
	DPR  float64  `json:"dpr"`
}

type viewportResp struct {
	InView  []string `json:"in_view"`
	Evicted []string `json:"evicted"`
}

func (s *Server) viewport(w http.ResponseWriter, r *http.Request) {
	var in viewportReq
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if in.DPR < 0 || in.DPR > requestinfo.MaxPixelRatio {
		http.Error(w, fmt.Sprintf("dpr must be within (0, %d]", requestinfo.MaxPixelRatio), http.StatusBadRequest)
		return
	}
	ratio := in.DPR
	if ratio == 0 {
		ratio = ratioOf(r)
	}
	sc := s.scene(ratio)
	sc.eng.SetZoom(in.Zoom)
	sc.eng.SetRendered(LabelLayer, s.labelProperty(), in.IDs...)

	out := viewportResp{InView: sc.cache.RefreshInView(sc.eng)}
	out.Evicted = sc.cache.Enforce(sc.eng, nil)
	sort.Strings(out.InView)
	writeJSON(w, out)
}

type invalidateReq struct {
	Signature string `json:"signature"`
}

func (s *Server) invalidate(w http.ResponseWriter, r *http.Request) {
	var in invalidateReq
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Signature == "" {
		http.Error(w, "signature required", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.signature = in.Signature
	s.mu.Unlock()

	dropped := map[string]bool{}
	s.each(func(sc *scene) {
		dropped[sc.eng.ID()] = sc.cache.InvalidateSignature(sc.eng, in.Signature)
	})
	writeJSON(w, dropped)
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	out := map[string]sprite.Stats{}
	s.each(func(sc *scene) {
		out[sc.eng.ID()] = sc.cache.Stats()
	})
	writeJSON(w, out)
}

func (s *Server) labelProperty() string {
	if s.cfg.LabelProperty == "" {
		return sprite.DefaultLabelProperty
	}
	return s.cfg.LabelProperty
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
