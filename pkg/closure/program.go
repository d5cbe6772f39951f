// Package closure computes the set of types reachable from the engine's
// bootstrap entry points, so that a maintained preinitialize list can be
// verified at build time.
//
// A Program is a whole-program description: classes, their supertypes and,
// per method, the types and methods its body references. Closure walks the
// method-reference graph breadth first. A call resolves to the most specific
// declaration at or above its owner; a virtual call also reaches every
// override declared by a subtype present in the program. Types outside the
// program are collected but never traversed.
package closure

import (
	"sort"

	"github.com/itsneelabh/weave/pkg/core"
)

// MethodRef names a method by owner, name and descriptor.
type MethodRef struct {
	Owner string `json:"owner" yaml:"owner"`
	Name  string `json:"name" yaml:"name"`
	Desc  string `json:"desc" yaml:"desc"`
}

func (r MethodRef) String() string { return r.Owner + "." + r.Name + r.Desc }

// Call is a call site in a method body.
type Call struct {
	MethodRef `yaml:",inline"`
	Virtual   bool `json:"virtual,omitempty" yaml:"virtual,omitempty"`
}

// Refs are the references made by a method body.
type Refs struct {
	Types []string `json:"types,omitempty" yaml:"types,omitempty"`
	Calls []Call   `json:"calls,omitempty" yaml:"calls,omitempty"`
}

// Method is one declared method.
type Method struct {
	Name     string `json:"name" yaml:"name"`
	Desc     string `json:"desc" yaml:"desc"`
	Static   bool   `json:"static,omitempty" yaml:"static,omitempty"`
	Abstract bool   `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	Refs     Refs   `json:"refs,omitempty" yaml:"refs,omitempty"`
}

// ClassFile is one class in the program.
type ClassFile struct {
	Name       string   `json:"name" yaml:"name"`
	Super      string   `json:"super,omitempty" yaml:"super,omitempty"`
	Interfaces []string `json:"interfaces,omitempty" yaml:"interfaces,omitempty"`
	Methods    []Method `json:"methods,omitempty" yaml:"methods,omitempty"`
}

// Program is the closed set of classes the closure is computed over.
// Entries and Preinitialize are optional; the CLI uses them when present.
type Program struct {
	Classes       []ClassFile `json:"classes" yaml:"classes"`
	Entries       []MethodRef `json:"entries,omitempty" yaml:"entries,omitempty"`
	Preinitialize []string    `json:"preinitialize,omitempty" yaml:"preinitialize,omitempty"`
}

// TypeSet is a set of type names.
type TypeSet map[string]struct{}

// Add inserts name.
func (s TypeSet) Add(name string) {
	if name != "" {
		s[name] = struct{}{}
	}
}

// Has reports membership.
func (s TypeSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the names in lexical order.
func (s TypeSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// program is the indexed form of a Program.
type program struct {
	classes  map[string]*ClassFile
	subtypes map[string][]string
}

func index(p *Program) *program {
	ix := &program{
		classes:  make(map[string]*ClassFile, len(p.Classes)),
		subtypes: make(map[string][]string),
	}
	for i := range p.Classes {
		c := &p.Classes[i]
		ix.classes[c.Name] = c
		if c.Super != "" {
			ix.subtypes[c.Super] = append(ix.subtypes[c.Super], c.Name)
		}
		for _, iface := range c.Interfaces {
			ix.subtypes[iface] = append(ix.subtypes[iface], c.Name)
		}
	}
	return ix
}

// checkSuperChains fails on the first class whose superclass chain loops.
func (ix *program) checkSuperChains() error {
	acyclic := make(map[string]bool, len(ix.classes))
	for _, name := range sortedKeys(ix.classes) {
		onChain := make(map[string]bool)
		for cur := name; cur != "" && !acyclic[cur]; {
			c, ok := ix.classes[cur]
			if !ok {
				break
			}
			if onChain[cur] {
				return core.ClassError("closure.Closure", cur, "superclass chain loops", core.ErrHierarchyCycle)
			}
			onChain[cur] = true
			cur = c.Super
		}
		for n := range onChain {
			acyclic[n] = true
		}
	}
	return nil
}

func sortedKeys(m map[string]*ClassFile) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (c *ClassFile) declared(name, desc string) *Method {
	for i := range c.Methods {
		if c.Methods[i].Name == name && c.Methods[i].Desc == desc {
			return &c.Methods[i]
		}
	}
	return nil
}

// allSubtypes lists transitive subtypes of name in breadth-first order.
func (ix *program) allSubtypes(name string) []string {
	var out []string
	seen := map[string]bool{name: true}
	queue := []string{name}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, sub := range ix.subtypes[cur] {
			if !seen[sub] {
				seen[sub] = true
				out = append(out, sub)
				queue = append(queue, sub)
			}
		}
	}
	return out
}
