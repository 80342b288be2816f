// internal/viewport/tracker.go
//
// In-view bookkeeping driven by the engine's rendered features.
//
// Refresh is called after the viewport settles.  It asks the engine which
// features are drawn on the label layers, pulls the identity property from
// each, and hands the set to Registry.MarkInView.  Nothing else in the repo
// calls MarkInView.
package viewport

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/yanizio/labelsprite/internal/engine"
	"github.com/yanizio/labelsprite/internal/registry"
)

// Tracker is stateless apart from its configuration.
type Tracker struct {
	reg      *registry.Registry
	layers   []string
	property string
	log      *zap.SugaredLogger
}

// New returns a Tracker querying layers and reading property from each
// feature.
func New(reg *registry.Registry, layers []string, property string, log *zap.SugaredLogger) *Tracker {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Tracker{reg: reg, layers: layers, property: property, log: log}
}

// Refresh updates in-view flags and returns the identities currently in
// view.
func (t *Tracker) Refresh(eng engine.Engine) []string {
	features := eng.QueryRenderedFeatures(t.layers)
	present := make(map[string]struct{}, len(features))
	ids := make([]string, 0, len(features))
	for _, f := range features {
		id, ok := identity(f.Properties[t.property])
		if !ok {
			continue
		}
		if _, dup := present[id]; dup {
			continue
		}
		present[id] = struct{}{}
		ids = append(ids, id)
	}

	entered, left := t.reg.MarkInView(present)
	t.log.Debugw("viewport refreshed",
		"map", eng.ID(),
		"features", len(features),
		"in_view", len(ids),
		"entered", entered,
		"left", left,
	)
	return ids
}

// identity accepts string ids and, since vector-tile properties often
// arrive as numbers, integral numeric ids.
func identity(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, x != ""
	case int:
		return fmt.Sprint(x), true
	case int64:
		return fmt.Sprint(x), true
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprint(int64(x)), true
		}
		return "", false
	default:
		return "", false
	}
}
