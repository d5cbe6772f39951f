// Package matcher decides which registered advice applies to which declared
// methods of an analyzed class. Class criteria are checked against the class
// and every ancestor; method annotations are inherited from the same
// signature declared on an ancestor.
package matcher

import (
	"context"
	"sort"

	"github.com/itsneelabh/weave/pkg/advice"
	"github.com/itsneelabh/weave/pkg/hierarchy"
)

// MethodMatch is the advice selected for one method, in entry order.
type MethodMatch struct {
	Method hierarchy.MethodSignature
	Advice []*advice.Bound
}

// Result maps MethodSignature.Key() to its match. Methods without advice are
// absent.
type Result struct {
	Class   *hierarchy.AnalyzedClass
	Methods map[string]MethodMatch
}

// Empty reports whether nothing matched.
func (r Result) Empty() bool { return len(r.Methods) == 0 }

// Keys returns the matched method keys in declaration order.
func (r Result) Keys() []string {
	if r.Class == nil {
		keys := make([]string, 0, len(r.Methods))
		for k := range r.Methods {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys
	}
	keys := make([]string, 0, len(r.Methods))
	for _, m := range r.Class.Methods() {
		if _, ok := r.Methods[m.Key()]; ok {
			keys = append(keys, m.Key())
		}
	}
	return keys
}

// view is the class as seen by matching: every type name it can be referred
// to by and every class annotation in its hierarchy.
type view struct {
	names       []string
	annotations []string
	ancestors   []*hierarchy.AnalyzedClass
}

func buildView(ctx context.Context, idx *hierarchy.Index, class *hierarchy.AnalyzedClass) (view, error) {
	ancestors := []*hierarchy.AnalyzedClass{class}
	if l := class.Loader(); l != nil && idx != nil {
		as, err := idx.Ancestors(ctx, class.Name(), l)
		if err != nil {
			return view{}, err
		}
		ancestors = as
	}

	seen := make(map[string]bool)
	add := func(dst *[]string, n string) {
		if n != "" && !seen[n] {
			seen[n] = true
			*dst = append(*dst, n)
		}
	}
	var v view
	v.ancestors = ancestors
	for _, a := range ancestors {
		add(&v.names, a.Name())
		add(&v.names, a.SuperName())
		for _, n := range a.Interfaces() {
			add(&v.names, n)
		}
		for _, n := range a.Shims() {
			add(&v.names, n)
		}
	}
	seen = make(map[string]bool)
	for _, a := range ancestors {
		for _, n := range a.Annotations() {
			add(&v.annotations, n)
		}
	}
	return v, nil
}

func (v view) matchesClass(b *advice.Bound) bool {
	if b.MatchClassAnnotation(v.annotations) {
		return true
	}
	for _, n := range v.names {
		if b.MatchClassName(n) {
			return true
		}
	}
	return false
}

// methodAnnotations collects the annotations of key on the class and on any
// ancestor declaring the same signature.
func (v view) methodAnnotations(key string) []string {
	var out []string
	for _, a := range v.ancestors {
		out = append(out, a.MethodAnnotations(key)...)
	}
	return out
}

// Match evaluates bound against every declared, non-abstract method of class.
// It is deterministic for a given class, hierarchy and advice list.
func Match(ctx context.Context, idx *hierarchy.Index, class *hierarchy.AnalyzedClass, bound []*advice.Bound) (Result, error) {
	res := Result{Class: class, Methods: make(map[string]MethodMatch)}
	if len(bound) == 0 {
		return res, nil
	}
	v, err := buildView(ctx, idx, class)
	if err != nil {
		return res, err
	}

	candidates := make([]*advice.Bound, 0, len(bound))
	for _, b := range bound {
		if v.matchesClass(b) {
			candidates = append(candidates, b)
		}
	}
	if len(candidates) == 0 {
		return res, nil
	}

	for _, m := range class.Methods() {
		if m.Modifiers.Has(hierarchy.Abstract) {
			continue
		}
		key := m.Key()
		var annos []string
		var selected []*advice.Bound
		for _, b := range candidates {
			if !b.MatchParams(m.ParamTypes) {
				continue
			}
			if b.MatchMethodName(m.Name) {
				selected = append(selected, b)
				continue
			}
			if b.HasMethodAnnotation() {
				if annos == nil {
					annos = v.methodAnnotations(key)
				}
				if b.MatchMethodAnnotation(annos) {
					selected = append(selected, b)
				}
			}
		}
		if len(selected) > 0 {
			res.Methods[key] = MethodMatch{Method: m, Advice: selected}
		}
	}
	return res, nil
}
