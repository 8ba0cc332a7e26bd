package sweep

import (
	"fmt"
	"io"
	"log"

	"github.com/banshee-data/paramsweep/internal/configtree"
)

// Parameter binds a typed value to one node of a configuration document.
//
// The resolved node is cached per instance. Parameters handed to concurrent
// tasks must be copied with Duplicate and rebound to the task's own document.
type Parameter struct {
	typ     Type
	path    NodePath
	locator Locator

	doc    *configtree.Document
	node   *configtree.Node
	logger *log.Logger
}

// NewParameter resolves path in doc and returns the bound parameter. The
// path must resolve to exactly one node.
func NewParameter(doc *configtree.Document, typ Type, path NodePath, loc Locator) (*Parameter, error) {
	if !typ.Valid() {
		return nil, configErrorf("invalid parameter type %v", typ)
	}
	p := &Parameter{
		typ:     typ,
		path:    path.Clone(),
		locator: loc,
		logger:  loc.Trace,
	}
	if err := p.Rebind(doc, loc.Trace); err != nil {
		return nil, err
	}
	return p, nil
}

// Type returns the declared value type.
func (p *Parameter) Type() Type { return p.typ }

// Path returns the node path the parameter is bound through.
func (p *Parameter) Path() NodePath { return p.path.Clone() }

// Document returns the document the parameter is currently bound to.
func (p *Parameter) Document() *configtree.Document { return p.doc }

func (p *Parameter) logf(format string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Printf(format, args...)
	}
}

// Rebind re-resolves the node path against doc. A nil logTarget discards
// the per-parameter trace.
func (p *Parameter) Rebind(doc *configtree.Document, logTarget *log.Logger) error {
	if logTarget == nil {
		logTarget = log.New(io.Discard, "", 0)
	}
	loc := p.locator
	loc.Trace = logTarget
	node, err := loc.Resolve(doc, p.path)
	if err != nil {
		return err
	}
	p.doc = doc
	p.node = node
	p.logger = logTarget
	p.locator = loc
	return nil
}

// Get reads the node text and parses it as the declared type.
func (p *Parameter) Get() (any, error) {
	if p.node == nil {
		if err := p.Rebind(p.doc, p.logger); err != nil {
			return nil, err
		}
	}
	v, err := p.typ.Parse(configtree.Text(p.node))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", p.path, err)
	}
	return v, nil
}

// Set writes v to the node and persists the document. The node is resolved
// again first so a reloaded document is never written through a stale node.
func (p *Parameter) Set(v any) error {
	if !p.typ.Matches(v) {
		return typeErrorf("cannot set %T value %v on %v parameter %s", v, v, p.typ, p.path)
	}
	node, err := p.locator.Resolve(p.doc, p.path)
	if err != nil {
		return err
	}
	p.node = node
	text := Format(v)
	configtree.SetText(node, text)
	if err := p.doc.Save(); err != nil {
		return fmt.Errorf("persisting %s: %w", p.path, err)
	}
	p.logf("[param-set] %s = %s in %s", p.path, text, p.doc.Path())
	return nil
}

// Duplicate returns an independent parameter with the same type and path.
// The copy shares no resolved-node state with p and resolves lazily until
// it is rebound.
func (p *Parameter) Duplicate() *Parameter {
	return &Parameter{
		typ:     p.typ,
		path:    p.path.Clone(),
		locator: p.locator,
		doc:     p.doc,
		logger:  p.logger,
	}
}
