package profile

import (
	"fmt"
	"strconv"
	"strings"
)

// NormalizePageID trims and lowercases a page id. Every page id stored in
// the model is normalized.
func NormalizePageID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// PageFolderName returns the on-disk folder name of a page (uppercase).
func PageFolderName(id string) string {
	return strings.ToUpper(NormalizePageID(id))
}

// UniquePageIDs normalizes ids and drops empties and case-insensitive
// duplicates, keeping first-seen order.
func UniquePageIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		n := NormalizePageID(id)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Coordinate formats a "column,row" action key.
func Coordinate(column, row int) string {
	return fmt.Sprintf("%d,%d", column, row)
}

// ParseCoordinate parses a "column,row" action key.
func ParseCoordinate(s string) (column, row int, ok bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	c, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, false
	}
	r, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, false
	}
	return c, r, true
}

// PageState is one page: its manifest metadata plus the keypad and encoder
// action maps. Manifest.Controllers is a projection of the two maps
// regenerated whenever they change.
type PageState struct {
	ID       string
	Manifest *PageManifest
	Keypad   ActionMap
	Encoder  ActionMap
}

// NewPageState returns an empty page whose controller projection follows t.
func NewPageState(id string, t *Template) *PageState {
	p := &PageState{
		ID:       NormalizePageID(id),
		Manifest: &PageManifest{},
		Keypad:   ActionMap{},
		Encoder:  ActionMap{},
	}
	p.RefreshControllers(t)
	return p
}

// PageStateFromManifest builds a page from a parsed manifest.
func PageStateFromManifest(id string, m *PageManifest) *PageState {
	if m == nil {
		m = &PageManifest{}
	}
	return &PageState{
		ID:       NormalizePageID(id),
		Manifest: m,
		Keypad:   m.Actions(Keypad),
		Encoder:  m.Actions(Encoder),
	}
}

// Actions returns the map for kind, or nil for kinds without actions.
func (p *PageState) Actions(kind ControllerKind) ActionMap {
	switch kind {
	case Keypad:
		return p.Keypad
	case Encoder:
		return p.Encoder
	}
	return nil
}

// HasActions reports whether the page holds any action.
func (p *PageState) HasActions() bool {
	return p != nil && (len(p.Keypad) > 0 || len(p.Encoder) > 0)
}

// RefreshControllers regenerates Manifest.Controllers in the template's controller order.
func (p *PageState) RefreshControllers(t *Template) {
	if p.Manifest == nil {
		p.Manifest = &PageManifest{}
	}
	if p.Keypad == nil {
		p.Keypad = ActionMap{}
	}
	if p.Encoder == nil {
		p.Encoder = ActionMap{}
	}
	controllers := make([]ControllerManifest, 0, len(t.ControllerOrder))
	for _, kind := range t.ControllerOrder {
		c := ControllerManifest{Type: kind}
		switch kind {
		case Keypad:
			c.Actions = p.Keypad.Clone()
		case Encoder:
			c.Actions = p.Encoder.Clone()
		}
		controllers = append(controllers, c)
	}
	p.Manifest.Controllers = controllers
}
