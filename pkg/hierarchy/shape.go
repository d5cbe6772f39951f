package hierarchy

import (
	"fmt"
	"strings"
)

// Modifier flags of a declared method.
type Modifier uint8

const (
	Static Modifier = 1 << iota
	Abstract
	Native
	Final
)

// Has reports whether all bits of f are set.
func (m Modifier) Has(f Modifier) bool {
	return m&f == f
}

// MethodSignature identifies a declared method.
type MethodSignature struct {
	Name       string   `json:"name" yaml:"name"`
	ParamTypes []string `json:"params,omitempty" yaml:"params,omitempty"`
	ReturnType string   `json:"returns,omitempty" yaml:"returns,omitempty"`
	Modifiers  Modifier `json:"modifiers,omitempty" yaml:"modifiers,omitempty"`
}

// Key returns name(p1,p2,...), unique within a class.
func (m MethodSignature) Key() string {
	return m.Name + "(" + strings.Join(m.ParamTypes, ",") + ")"
}

// IsVoid reports whether the method returns nothing.
func (m MethodSignature) IsVoid() bool {
	return m.ReturnType == "" || m.ReturnType == "void"
}

// MethodShape is a declared method plus its annotations.
type MethodShape struct {
	MethodSignature `yaml:",inline"`
	Annotations     []string `json:"annotations,omitempty" yaml:"annotations,omitempty"`
}

// ClassShape is the raw structural descriptor a loader produces for a class.
type ClassShape struct {
	Name        string        `json:"name" yaml:"name"`
	SuperName   string        `json:"super,omitempty" yaml:"super,omitempty"`
	Interfaces  []string      `json:"interfaces,omitempty" yaml:"interfaces,omitempty"`
	Interface   bool          `json:"interface,omitempty" yaml:"interface,omitempty"`
	Annotations []string      `json:"annotations,omitempty" yaml:"annotations,omitempty"`
	Methods     []MethodShape `json:"methods,omitempty" yaml:"methods,omitempty"`
	// Shims are facade interfaces the class is treated as implementing.
	Shims []string `json:"shims,omitempty" yaml:"shims,omitempty"`
}

// validate rejects shapes that cannot be analyzed.
func (s *ClassShape) validate(requested string) error {
	if s == nil {
		return fmt.Errorf("loader returned no shape")
	}
	if s.Name == "" {
		return fmt.Errorf("shape has no class name")
	}
	if s.Name != requested {
		return fmt.Errorf("shape name %q does not match requested %q", s.Name, requested)
	}
	seen := make(map[string]struct{}, len(s.Methods))
	for i, m := range s.Methods {
		if m.Name == "" {
			return fmt.Errorf("method %d has no name", i)
		}
		for _, p := range m.ParamTypes {
			if p == "" {
				return fmt.Errorf("method %s has an empty parameter type", m.Name)
			}
		}
		key := m.Key()
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate method %s", key)
		}
		seen[key] = struct{}{}
	}
	for _, n := range s.Interfaces {
		if n == "" {
			return fmt.Errorf("empty interface name")
		}
	}
	return nil
}
