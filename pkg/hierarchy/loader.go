package hierarchy

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrShapeNotFound is returned by a ShapeSource that does not define a class.
// The index then delegates to nothing further and reports the class as not
// analyzable.
var ErrShapeNotFound = errors.New("class shape not found")

// ShapeSource produces raw class shapes for one loader.
type ShapeSource interface {
	Shape(ctx context.Context, name string) (*ClassShape, error)
}

// SourceFunc adapts a function to ShapeSource.
type SourceFunc func(ctx context.Context, name string) (*ClassShape, error)

// Shape calls f.
func (f SourceFunc) Shape(ctx context.Context, name string) (*ClassShape, error) {
	return f(ctx, name)
}

var loaderIDs atomic.Uint64

// Loader is a class loader identity. Two loaders may define unrelated classes
// with the same name. Lookups are parent-first.
type Loader struct {
	id     uint64
	name   string
	parent *Loader
	source ShapeSource
}

// NewLoader creates a loader delegating to parent (may be nil) before source.
func NewLoader(name string, parent *Loader, source ShapeSource) *Loader {
	return &Loader{
		id:     loaderIDs.Add(1),
		name:   name,
		parent: parent,
		source: source,
	}
}

// ID returns the loader's process-unique identity.
func (l *Loader) ID() uint64 { return l.id }

// Name returns the loader's display name.
func (l *Loader) Name() string { return l.name }

// Parent returns the parent loader or nil.
func (l *Loader) Parent() *Loader { return l.parent }

// define asks only this loader's own source.
func (l *Loader) define(ctx context.Context, name string) (*ClassShape, error) {
	if l.source == nil {
		return nil, ErrShapeNotFound
	}
	return l.source.Shape(ctx, name)
}

// MapSource is an in-memory ShapeSource.
type MapSource struct {
	mu     sync.RWMutex
	shapes map[string]*ClassShape
}

// NewMapSource creates a source holding shapes.
func NewMapSource(shapes ...*ClassShape) *MapSource {
	m := &MapSource{shapes: make(map[string]*ClassShape, len(shapes))}
	for _, s := range shapes {
		m.shapes[s.Name] = s
	}
	return m
}

// Put adds or replaces a shape, e.g. before a redefinition.
func (m *MapSource) Put(s *ClassShape) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shapes[s.Name] = s
}

// Shape implements ShapeSource.
func (m *MapSource) Shape(_ context.Context, name string) (*ClassShape, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.shapes[name]
	if !ok {
		return nil, ErrShapeNotFound
	}
	return s, nil
}
