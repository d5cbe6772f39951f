package hierarchy

import (
	"slices"
	"weak"
)

// AnalyzedClass is an immutable snapshot of one class as seen by its defining
// loader. It holds its loader weakly so cached entries never pin a loader.
// Slices returned by accessors must not be modified.
type AnalyzedClass struct {
	name        string
	superName   string
	interfaces  []string
	iface       bool
	annotations []string
	methods     []MethodSignature
	methodAnnos map[string][]string
	shims       []string
	loaderID    uint64
	loader      weak.Pointer[Loader]
	generation  uint64
}

func newAnalyzedClass(s *ClassShape, l *Loader, generation uint64, extraShims []string) *AnalyzedClass {
	ac := &AnalyzedClass{
		name:        s.Name,
		superName:   s.SuperName,
		interfaces:  slices.Clone(s.Interfaces),
		iface:       s.Interface,
		annotations: slices.Clone(s.Annotations),
		methods:     make([]MethodSignature, 0, len(s.Methods)),
		methodAnnos: make(map[string][]string, len(s.Methods)),
		shims:       slices.Clone(s.Shims),
		loaderID:    l.id,
		loader:      weak.Make(l),
		generation:  generation,
	}
	for _, sh := range extraShims {
		if !slices.Contains(ac.shims, sh) {
			ac.shims = append(ac.shims, sh)
		}
	}
	for _, m := range s.Methods {
		sig := m.MethodSignature
		sig.ParamTypes = slices.Clone(sig.ParamTypes)
		ac.methods = append(ac.methods, sig)
		if len(m.Annotations) > 0 {
			ac.methodAnnos[sig.Key()] = slices.Clone(m.Annotations)
		}
	}
	return ac
}

// Name returns the binary class name.
func (c *AnalyzedClass) Name() string { return c.name }

// SuperName returns the direct superclass name, "" for roots and interfaces.
func (c *AnalyzedClass) SuperName() string { return c.superName }

// Interfaces returns the direct interface names.
func (c *AnalyzedClass) Interfaces() []string { return c.interfaces }

// IsInterface reports whether the class is an interface.
func (c *AnalyzedClass) IsInterface() bool { return c.iface }

// Annotations returns class-level annotations.
func (c *AnalyzedClass) Annotations() []string { return c.annotations }

// Methods returns the declared methods in declaration order.
func (c *AnalyzedClass) Methods() []MethodSignature { return c.methods }

// MethodAnnotations returns the annotations of the method with the given key.
func (c *AnalyzedClass) MethodAnnotations(key string) []string { return c.methodAnnos[key] }

// Method returns the declared method with the given key.
func (c *AnalyzedClass) Method(key string) (MethodSignature, bool) {
	for _, m := range c.methods {
		if m.Key() == key {
			return m, true
		}
	}
	return MethodSignature{}, false
}

// Shims returns the facade interfaces the class is treated as implementing.
func (c *AnalyzedClass) Shims() []string { return c.shims }

// LoaderID returns the identity of the defining loader.
func (c *AnalyzedClass) LoaderID() uint64 { return c.loaderID }

// Loader returns the defining loader, or nil once it has been collected.
func (c *AnalyzedClass) Loader() *Loader { return c.loader.Value() }

// Generation increments each time the class is redefined.
func (c *AnalyzedClass) Generation() uint64 { return c.generation }

// supertypes returns the direct edges walked by assignability.
func (c *AnalyzedClass) supertypes() []string {
	out := make([]string, 0, 1+len(c.interfaces)+len(c.shims))
	if c.superName != "" {
		out = append(out, c.superName)
	}
	out = append(out, c.interfaces...)
	out = append(out, c.shims...)
	return out
}
