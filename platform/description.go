// File: platform/description.go
// Package platform
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Device description tree. A description is a JSON document shaped like a
// flattened device tree: named nodes carrying compatible strings, a
// property map and children.

package platform

import (
	"fmt"
	"math"
	"os"

	"github.com/momentics/hioload-chrdev/api"
	"github.com/sugawarayuuta/sonnet"
)

// Node is one device-tree node.
type Node struct {
	Name       string         `json:"name"`
	Compatible []string       `json:"compatible,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	Children   []*Node        `json:"children,omitempty"`
}

// Description is a parsed description document.
type Description struct {
	Model string `json:"model,omitempty"`
	Root  *Node  `json:"root"`
}

// ParseDescription decodes a JSON description.
func ParseDescription(data []byte) (*Description, error) {
	var d Description
	if err := sonnet.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("platform: parse description: %w", err)
	}
	if d.Root == nil {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "description has no root node")
	}
	return &d, nil
}

// LoadDescription reads and parses the description file at path.
func LoadDescription(path string) (*Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("platform: load description: %w", err)
	}
	return ParseDescription(data)
}

// Marshal encodes the description back to JSON.
func (d *Description) Marshal() ([]byte, error) {
	return sonnet.Marshal(d)
}

// IsCompatible reports whether the node lists compat.
func (n *Node) IsCompatible(compat string) bool {
	for _, c := range n.Compatible {
		if c == compat {
			return true
		}
	}
	return false
}

// ChildCount returns the number of direct children.
func (n *Node) ChildCount() int { return len(n.Children) }

// PropertyPresent reports whether the property exists, whatever its value.
func (n *Node) PropertyPresent(name string) bool {
	_, ok := n.Properties[name]
	return ok
}

// ReadU32 reads an integer property. A one-element array is accepted, as
// for a single-cell "reg".
func (n *Node) ReadU32(name string) (uint32, error) {
	v, ok := n.Properties[name]
	if !ok {
		return 0, n.missing(name)
	}
	if arr, isArr := v.([]any); isArr && len(arr) == 1 {
		v = arr[0]
	}
	f, isNum := v.(float64)
	if !isNum || f < 0 || f > math.MaxUint32 || f != math.Trunc(f) {
		return 0, api.NewError(api.ErrCodeInvalidArgument, "property is not a u32").
			WithContext("node", n.Name).WithContext("property", name)
	}
	return uint32(f), nil
}

// ReadString reads a string property.
func (n *Node) ReadString(name string) (string, error) {
	v, ok := n.Properties[name]
	if !ok {
		return "", n.missing(name)
	}
	s, isStr := v.(string)
	if !isStr {
		return "", api.NewError(api.ErrCodeInvalidArgument, "property is not a string").
			WithContext("node", n.Name).WithContext("property", name)
	}
	return s, nil
}

func (n *Node) missing(name string) error {
	return api.NewError(api.ErrCodeInvalidArgument, "property not present").
		WithContext("node", n.Name).WithContext("property", name)
}
