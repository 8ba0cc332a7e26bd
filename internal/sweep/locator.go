package sweep

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/banshee-data/paramsweep/internal/configtree"
	"github.com/banshee-data/paramsweep/internal/monitoring"
)

// Segment is one step of a NodePath. A segment with only Tag set selects the
// first child with that tag.
type Segment struct {
	Tag        string
	Index      *int
	Attributes map[string]string
}

// Tag returns a segment that matches children by tag only.
func Tag(tag string) Segment {
	return Segment{Tag: tag}
}

// At returns a segment selecting the i-th child with the given tag.
func At(tag string, i int) Segment {
	return Segment{Tag: tag, Index: &i}
}

// Where returns a segment selecting the child whose attributes match attrs.
func Where(tag string, attrs map[string]string) Segment {
	return Segment{Tag: tag, Attributes: attrs}
}

func (s Segment) String() string {
	var b strings.Builder
	b.WriteString(s.Tag)
	if s.Index != nil {
		fmt.Fprintf(&b, "[%d]", *s.Index)
	}
	if len(s.Attributes) > 0 {
		keys := make([]string, 0, len(s.Attributes))
		for k := range s.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, len(keys))
		for i, k := range keys {
			pairs[i] = k + "=" + s.Attributes[k]
		}
		b.WriteString("{" + strings.Join(pairs, ",") + "}")
	}
	return b.String()
}

// NodePath is the walk from the document root element to a value node. The
// root element itself is not part of the path.
type NodePath []Segment

// Path builds a NodePath of tag-only segments.
func Path(tags ...string) NodePath {
	p := make(NodePath, len(tags))
	for i, t := range tags {
		p[i] = Tag(t)
	}
	return p
}

func (p NodePath) String() string {
	parts := make([]string, len(p))
	for i, s := range p {
		parts[i] = s.String()
	}
	return strings.Join(parts, " -> ")
}

// Clone returns a deep copy of p.
func (p NodePath) Clone() NodePath {
	out := make(NodePath, len(p))
	for i, s := range p {
		c := Segment{Tag: s.Tag}
		if s.Index != nil {
			idx := *s.Index
			c.Index = &idx
		}
		if s.Attributes != nil {
			c.Attributes = make(map[string]string, len(s.Attributes))
			for k, v := range s.Attributes {
				c.Attributes[k] = v
			}
		}
		out[i] = c
	}
	return out
}

// Locator resolves node paths against documents.
//
// By default ambiguous matches produce a warning and the first candidate in
// document order is used. With Strict set, ambiguity is an ErrAmbiguous
// failure instead.
type Locator struct {
	Strict bool

	// Warn receives non-fatal conditions. Defaults to monitoring.Warnf.
	Warn func(format string, args ...interface{})

	// Trace, when set, receives one [node-search] line per segment.
	Trace *log.Logger
}

func (l Locator) warnf(format string, args ...interface{}) {
	if l.Warn != nil {
		l.Warn(format, args...)
		return
	}
	monitoring.Warnf(format, args...)
}

func (l Locator) tracef(format string, args ...interface{}) {
	if l.Trace != nil {
		l.Trace.Printf(format, args...)
	}
}

// ambiguous reports an ambiguity, returning an error in strict mode.
func (l Locator) ambiguous(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	if l.Strict {
		return fmt.Errorf("%w: %s", ErrAmbiguous, msg)
	}
	l.warnf("%s; taking the first match", msg)
	return nil
}

// Resolve walks path from the root element of doc and returns exactly one
// node or an ErrAddressing failure.
func (l Locator) Resolve(doc *configtree.Document, path NodePath) (*configtree.Node, error) {
	if doc == nil || doc.Root() == nil {
		return nil, addressingErrorf("no document bound")
	}
	if len(path) == 0 {
		return nil, addressingErrorf("empty node path")
	}
	node := doc.Root()
	for depth, seg := range path {
		next, err := l.step(node, seg)
		if err != nil {
			return nil, fmt.Errorf("resolving %s at segment %d (%s): %w", path, depth, seg, err)
		}
		node = next
	}
	return node, nil
}

func (l Locator) step(parent *configtree.Node, seg Segment) (*configtree.Node, error) {
	candidates := configtree.FindChildren(parent, seg.Tag)
	l.tracef("[node-search] %s: %d candidate(s) under <%s>", seg.Tag, len(candidates), parent.Tag)
	if len(candidates) == 0 {
		return nil, addressingErrorf("no matching node for tag %q", seg.Tag)
	}

	if seg.Index != nil {
		idx := *seg.Index
		if idx >= 0 && idx < len(candidates) {
			l.tracef("[node-search] %s: selected index %d", seg.Tag, idx)
			return candidates[idx], nil
		}
		if len(seg.Attributes) == 0 {
			return nil, addressingErrorf("index %d out of range for tag %q (%d candidates)", idx, seg.Tag, len(candidates))
		}
		l.warnf("index %d invalid for tag %q (%d candidates), matching by attributes %v instead",
			idx, seg.Tag, len(candidates), seg.Attributes)
	}

	if len(seg.Attributes) > 0 {
		return l.matchAttributes(candidates, seg)
	}

	if len(candidates) > 1 {
		if err := l.ambiguous("%d nodes match tag %q and no index or attributes were given", len(candidates), seg.Tag); err != nil {
			return nil, err
		}
	}
	return candidates[0], nil
}

// matchAttributes prefers candidates whose attribute set equals the filter
// and falls back to candidates whose attributes are a superset of it.
func (l Locator) matchAttributes(candidates []*configtree.Node, seg Segment) (*configtree.Node, error) {
	var exact, partial []*configtree.Node
	for _, c := range candidates {
		attrs := configtree.Attributes(c)
		if !containsAll(attrs, seg.Attributes) {
			continue
		}
		if len(attrs) == len(seg.Attributes) {
			exact = append(exact, c)
		} else {
			partial = append(partial, c)
		}
	}
	l.tracef("[node-search] %s: attributes %v matched %d exactly, %d partially",
		seg.Tag, seg.Attributes, len(exact), len(partial))

	switch {
	case len(exact) == 1:
		return exact[0], nil
	case len(exact) > 1:
		if err := l.ambiguous("%d nodes with tag %q exactly match attributes %v", len(exact), seg.Tag, seg.Attributes); err != nil {
			return nil, err
		}
		return exact[0], nil
	case len(partial) == 1:
		return partial[0], nil
	case len(partial) > 1:
		if err := l.ambiguous("%d nodes with tag %q partially match attributes %v", len(partial), seg.Tag, seg.Attributes); err != nil {
			return nil, err
		}
		return partial[0], nil
	}
	return nil, addressingErrorf("no node with tag %q matches attributes %v", seg.Tag, seg.Attributes)
}

func containsAll(attrs, filter map[string]string) bool {
	for k, v := range filter {
		got, ok := attrs[k]
		if !ok || got != v {
			return false
		}
	}
	return true
}
