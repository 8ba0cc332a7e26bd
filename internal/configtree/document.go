// Package configtree adapts an XML element tree to the small surface the
// sweep core needs: parse, find children by tag, read and write text, and
// serialize back to disk.
package configtree

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/beevik/etree"
)

// ErrInvalidDocument is returned for every parse failure. Callers should not
// expect structural repair.
var ErrInvalidDocument = errors.New("xml filename or file structure not valid")

// Node is one element of a configuration document.
type Node = etree.Element

// Document is a parsed configuration file bound to the path it was read from.
type Document struct {
	path string
	doc  *etree.Document
}

// Parse reads and parses the XML document at path.
func Parse(path string) (*Document, error) {
	d := etree.NewDocument()
	if err := d.ReadFromFile(path); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDocument, path, err)
	}
	if d.Root() == nil {
		return nil, fmt.Errorf("%w: %s: no root element", ErrInvalidDocument, path)
	}
	return &Document{path: filepath.Clean(path), doc: d}, nil
}

// ParseBytes parses an in-memory document that will be saved to path.
func ParseBytes(path string, data []byte) (*Document, error) {
	d := etree.NewDocument()
	if err := d.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDocument, path, err)
	}
	if d.Root() == nil {
		return nil, fmt.Errorf("%w: %s: no root element", ErrInvalidDocument, path)
	}
	return &Document{path: filepath.Clean(path), doc: d}, nil
}

// Path returns the file the document is persisted to.
func (d *Document) Path() string {
	return d.path
}

// Root returns the document element.
func (d *Document) Root() *Node {
	return d.doc.Root()
}

// Reload discards in-memory state and re-reads the document from disk.
func (d *Document) Reload() error {
	fresh, err := Parse(d.path)
	if err != nil {
		return err
	}
	d.doc = fresh.doc
	return nil
}

// Save writes the document back to its own path.
func (d *Document) Save() error {
	return d.SaveAs(d.path)
}

// SaveAs serializes the document to path without changing its binding.
func (d *Document) SaveAs(path string) error {
	if err := d.doc.WriteToFile(path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Bytes serializes the document.
func (d *Document) Bytes() ([]byte, error) {
	return d.doc.WriteToBytes()
}

// FindChildren returns the direct children of n whose tag equals tag, in
// document order.
func FindChildren(n *Node, tag string) []*Node {
	var out []*Node
	for _, c := range n.ChildElements() {
		if c.Tag == tag || c.FullTag() == tag {
			out = append(out, c)
		}
	}
	return out
}

// Text returns the character data of n.
func Text(n *Node) string {
	return n.Text()
}

// SetText replaces the character data of n.
func SetText(n *Node, s string) {
	n.SetText(s)
}

// Attributes returns the attribute set of n keyed by attribute name.
func Attributes(n *Node) map[string]string {
	out := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		out[a.FullKey()] = a.Value
	}
	return out
}
