package graph

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// LoadEventTree reads a parent to children mapping. YAML and JSON inputs
// are both accepted:
//
//	"12": ["34", "56"]
//	ROOT: ["12"]
func LoadEventTree(r io.Reader) (EventTree, error) {
	var tree EventTree
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&tree); err != nil {
		if err == io.EOF {
			return EventTree{}, nil
		}
		return nil, fmt.Errorf("decode event tree: %w", err)
	}
	if tree == nil {
		tree = EventTree{}
	}
	return tree, nil
}
