package diskindex

import "github.com/hupe1980/vecgo/internal/label"

// labelFilter adapts a resolved label id against a *label.Map into a
// beam.Filter.
type labelFilter struct {
	m     *label.Map
	label uint32
}

func (f labelFilter) Accepts(id uint32) bool {
	return f.m.Accepts(id, f.label)
}
