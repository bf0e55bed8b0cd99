package logging

import (
	"log/slog"
	"slices"
)

// scopedAttr is an attribute together with the groups open when it was added.
type scopedAttr struct {
	groups []string
	attr   slog.Attr
}

// attrSet is the WithAttrs/WithGroup state shared by the custom handlers.
type attrSet struct {
	attrs  []scopedAttr
	groups []string
}

func (s attrSet) withAttrs(attrs []slog.Attr) attrSet {
	next := slices.Clip(s.attrs)
	for _, a := range attrs {
		next = append(next, scopedAttr{groups: s.groups, attr: a})
	}
	return attrSet{attrs: next, groups: s.groups}
}

func (s attrSet) withGroup(name string) attrSet {
	if name == "" {
		return s
	}
	return attrSet{
		attrs:  s.attrs,
		groups: append(slices.Clip(s.groups), name),
	}
}

// each calls fn for the handler attrs followed by the record attrs.
func (s attrSet) each(r slog.Record, fn func(groups []string, a slog.Attr)) {
	for _, sa := range s.attrs {
		fn(sa.groups, sa.attr)
	}
	r.Attrs(func(a slog.Attr) bool {
		fn(s.groups, a)
		return true
	})
}
