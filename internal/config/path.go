package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/paramsweep/internal/sweep"
)

// Segment is one step of a node path in an experiment file: either a bare
// tag string or a mapping with keys node (alias tag), index and attributes.
type Segment struct {
	Tag        string            `json:"node" yaml:"node"`
	Index      *int              `json:"index,omitempty" yaml:"index,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// segmentFields is the mapping form of a Segment.
type segmentFields struct {
	Node       string            `json:"node" yaml:"node"`
	Tag        string            `json:"tag" yaml:"tag"`
	Index      *int              `json:"index" yaml:"index"`
	Attributes map[string]string `json:"attributes" yaml:"attributes"`
}

// segmentKeys are the keys accepted in the mapping form.
var segmentKeys = map[string]bool{"node": true, "tag": true, "index": true, "attributes": true}

func (s *Segment) fromFields(f segmentFields) error {
	switch {
	case f.Node != "" && f.Tag != "" && f.Node != f.Tag:
		return fmt.Errorf("path segment sets both node %q and tag %q", f.Node, f.Tag)
	case f.Node != "":
		s.Tag = f.Node
	case f.Tag != "":
		s.Tag = f.Tag
	default:
		return errors.New("path segment is missing its node name")
	}
	if f.Index != nil && *f.Index < 0 {
		return fmt.Errorf("path segment %q has negative index %d", s.Tag, *f.Index)
	}
	s.Index = f.Index
	s.Attributes = f.Attributes
	return nil
}

// UnmarshalYAML accepts a scalar tag or a segment mapping.
func (s *Segment) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*s = Segment{Tag: value.Value}
		if s.Tag == "" {
			return errors.New("path segment is empty")
		}
		return nil
	}
	if value.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(value.Content); i += 2 {
			key := value.Content[i]
			if !segmentKeys[key.Value] {
				return fmt.Errorf("line %d: unknown path segment key %q (want node, tag, index or attributes)", key.Line, key.Value)
			}
		}
	}
	var f segmentFields
	if err := value.Decode(&f); err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	return s.fromFields(f)
}

// UnmarshalJSON accepts a string tag or a segment object.
func (s *Segment) UnmarshalJSON(data []byte) error {
	var tag string
	if err := json.Unmarshal(data, &tag); err == nil {
		*s = Segment{Tag: tag}
		if tag == "" {
			return errors.New("path segment is empty")
		}
		return nil
	}
	var f segmentFields
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return fmt.Errorf("path segment: %w", err)
	}
	return s.fromFields(f)
}

// NodePath converts a file path to a sweep.NodePath.
func NodePath(segs []Segment) sweep.NodePath {
	out := make(sweep.NodePath, len(segs))
	for i, s := range segs {
		out[i] = sweep.Segment{Tag: s.Tag, Index: s.Index, Attributes: s.Attributes}
	}
	return out
}
