package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"weak"

	"golang.org/x/sync/singleflight"

	"github.com/itsneelabh/weave/pkg/core"
	"github.com/itsneelabh/weave/pkg/logger"
)

type pair struct{ sub, super string }

// arena holds everything the index knows about one loader.
type arena struct {
	id     uint64
	loader weak.Pointer[Loader]

	mu          sync.RWMutex
	classes     map[string]*AnalyzedClass
	missing     map[string]struct{}
	generations map[string]uint64
	assignable  map[pair]bool
	excluded    map[pair]struct{}
	subtypes    map[string]map[string]struct{}
}

func newArena(l *Loader) *arena {
	return &arena{
		id:          l.id,
		loader:      weak.Make(l),
		classes:     make(map[string]*AnalyzedClass),
		missing:     make(map[string]struct{}),
		generations: make(map[string]uint64),
		assignable:  make(map[pair]bool),
		excluded:    make(map[pair]struct{}),
		subtypes:    make(map[string]map[string]struct{}),
	}
}

// link records c in the reverse index. Caller holds a.mu.
func (a *arena) link(c *AnalyzedClass) {
	for _, s := range c.supertypes() {
		set := a.subtypes[s]
		if set == nil {
			set = make(map[string]struct{})
			a.subtypes[s] = set
		}
		set[c.name] = struct{}{}
	}
}

// unlink removes c from the reverse index. Caller holds a.mu.
func (a *arena) unlink(c *AnalyzedClass) {
	for _, s := range c.supertypes() {
		if set := a.subtypes[s]; set != nil {
			delete(set, c.name)
			if len(set) == 0 {
				delete(a.subtypes, s)
			}
		}
	}
}

// Stats is a point-in-time summary of the index.
type Stats struct {
	Arenas  int `json:"arenas"`
	Classes int `json:"classes"`
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the index logger.
func WithLogger(l logger.Logger) Option {
	return func(x *Index) {
		if l != nil {
			x.log = l
		}
	}
}

// Index is the class hierarchy index. It analyzes each (class, loader) once
// and answers assignability queries across superclasses, interfaces and shims.
// Arenas are released when their loader is garbage collected.
type Index struct {
	log    logger.Logger
	flight singleflight.Group

	mu     sync.Mutex
	arenas map[uint64]*arena
	shims  map[string][]string

	// epoch moves whenever an analyzed class changes in place
	epoch atomic.Uint64
}

// NewIndex creates an empty index.
func NewIndex(opts ...Option) *Index {
	x := &Index{
		log:    logger.NewNop(),
		arenas: make(map[uint64]*arena),
		shims:  make(map[string][]string),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

func (x *Index) arenaFor(l *Loader) *arena {
	x.mu.Lock()
	defer x.mu.Unlock()
	if a, ok := x.arenas[l.id]; ok {
		return a
	}
	a := newArena(l)
	x.arenas[l.id] = a
	runtime.AddCleanup(l, x.release, l.id)
	return a
}

func (x *Index) lookupArena(id uint64) *arena {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.arenas[id]
}

func (x *Index) release(id uint64) {
	x.mu.Lock()
	delete(x.arenas, id)
	x.mu.Unlock()
	x.log.Debug("Loader collected, arena released", "loader_id", id)
}

func (x *Index) allArenas() []*arena {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make([]*arena, 0, len(x.arenas))
	for _, a := range x.arenas {
		out = append(out, a)
	}
	return out
}

func (x *Index) shimsFor(name string) []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return slices.Clone(x.shims[name])
}

// Resolve returns the analysis of name as seen through loader l. The parent
// chain is consulted first; the first loader that defines the class owns the
// cached entry.
func (x *Index) Resolve(ctx context.Context, name string, l *Loader) (*AnalyzedClass, error) {
	if l == nil {
		return nil, core.ClassError("hierarchy.Resolve", name, "no loader",
			fmt.Errorf("%w: %w", core.ErrClassNotAnalyzable, ErrShapeNotFound))
	}
	if l.parent != nil {
		c, err := x.Resolve(ctx, name, l.parent)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrShapeNotFound) {
			return nil, err
		}
	}
	return x.resolveOwn(ctx, name, l)
}

func (x *Index) resolveOwn(ctx context.Context, name string, l *Loader) (*AnalyzedClass, error) {
	a := x.arenaFor(l)
	a.mu.RLock()
	c := a.classes[name]
	_, miss := a.missing[name]
	a.mu.RUnlock()
	if c != nil {
		return c, nil
	}
	if miss {
		return nil, notAnalyzable(name, "not defined by loader "+l.name, ErrShapeNotFound)
	}

	key := fmt.Sprintf("%d/%s", l.id, name)
	v, err, _ := x.flight.Do(key, func() (interface{}, error) {
		a.mu.RLock()
		c := a.classes[name]
		a.mu.RUnlock()
		if c != nil {
			return c, nil
		}

		shape, err := l.define(ctx, name)
		if err != nil {
			if errors.Is(err, ErrShapeNotFound) {
				a.mu.Lock()
				a.missing[name] = struct{}{}
				a.mu.Unlock()
			}
			return nil, notAnalyzable(name, "load failed", err)
		}
		if err := shape.validate(name); err != nil {
			x.log.Warn("Class shape rejected", "class", name, "loader", l.name, "error", err)
			return nil, notAnalyzable(name, "malformed shape", err)
		}

		a.mu.Lock()
		defer a.mu.Unlock()
		gen := a.generations[name]
		if gen == 0 {
			gen = 1
			a.generations[name] = gen
		}
		c = newAnalyzedClass(shape, l, gen, x.shimsFor(name))
		a.classes[name] = c
		delete(a.missing, name)
		a.link(c)
		x.log.Debug("Class analyzed", "class", name, "loader", l.name, "generation", gen)
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*AnalyzedClass), nil
}

func notAnalyzable(name, msg string, cause error) error {
	return core.ClassError("hierarchy.Resolve", name, msg,
		fmt.Errorf("%w: %w", core.ErrClassNotAnalyzable, cause))
}

// IsAssignable reports whether sub is super or transitively extends or
// implements it, following shims. A hierarchy cycle yields ErrHierarchyCycle
// once; the pair is excluded and later calls return false.
func (x *Index) IsAssignable(ctx context.Context, sub, super string, l *Loader) (bool, error) {
	if sub == super {
		return true, nil
	}
	c, err := x.Resolve(ctx, sub, l)
	if err != nil {
		return false, err
	}
	a := x.lookupArena(c.loaderID)
	if a == nil {
		a = x.arenaFor(l)
	}
	key := pair{sub, super}

	a.mu.RLock()
	_, excluded := a.excluded[key]
	v, memo := a.assignable[key]
	a.mu.RUnlock()
	if excluded {
		return false, nil
	}
	if memo {
		return v, nil
	}

	w := &walker{
		x:      x,
		ctx:    ctx,
		target: super,
		loader: l,
		onPath: make(map[string]bool),
		done:   make(map[string]bool),
	}
	found, err := w.walk(c)
	if err != nil {
		if errors.Is(err, core.ErrHierarchyCycle) {
			a.mu.Lock()
			_, seen := a.excluded[key]
			a.excluded[key] = struct{}{}
			a.mu.Unlock()
			if !seen {
				x.log.Warn("Hierarchy cycle, pair excluded from matching",
					"sub", sub, "super", super, "error", err)
			}
		}
		return false, err
	}

	a.mu.Lock()
	a.assignable[key] = found
	a.mu.Unlock()
	return found, nil
}

type walker struct {
	x      *Index
	ctx    context.Context
	target string
	loader *Loader
	onPath map[string]bool
	done   map[string]bool
}

func (w *walker) walk(c *AnalyzedClass) (bool, error) {
	if err := w.ctx.Err(); err != nil {
		return false, err
	}
	w.onPath[c.name] = true
	defer delete(w.onPath, c.name)

	l := c.Loader()
	if l == nil {
		l = w.loader
	}
	for _, s := range c.supertypes() {
		if s == w.target {
			return true, nil
		}
		if w.onPath[s] {
			return false, core.ClassError("hierarchy.IsAssignable", s, "type re-entered", core.ErrHierarchyCycle)
		}
		if w.done[s] {
			continue
		}
		sc, err := w.x.Resolve(w.ctx, s, l)
		if err != nil {
			w.x.log.Debug("Supertype not analyzable, skipped", "class", c.name, "super", s)
			w.done[s] = true
			continue
		}
		found, err := w.walk(sc)
		if err != nil || found {
			return found, err
		}
		w.done[s] = true
	}
	return false, nil
}

// Ancestors returns the class followed by its superclass chain and then its
// interfaces and shims breadth first. Unresolvable ancestors are skipped.
func (x *Index) Ancestors(ctx context.Context, name string, l *Loader) ([]*AnalyzedClass, error) {
	c, err := x.Resolve(ctx, name, l)
	if err != nil {
		return nil, err
	}
	visited := map[string]bool{c.name: true}
	out := []*AnalyzedClass{c}

	resolve := func(from *AnalyzedClass, n string) *AnalyzedClass {
		fl := from.Loader()
		if fl == nil {
			fl = l
		}
		sc, err := x.Resolve(ctx, n, fl)
		if err != nil {
			x.log.Debug("Ancestor not analyzable, skipped", "class", from.name, "ancestor", n)
			return nil
		}
		return sc
	}

	for cur := c; cur.superName != "" && !visited[cur.superName]; {
		visited[cur.superName] = true
		next := resolve(cur, cur.superName)
		if next == nil {
			break
		}
		out = append(out, next)
		cur = next
	}

	queue := slices.Clone(out)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		edges := append(slices.Clone(cur.interfaces), cur.shims...)
		for _, n := range edges {
			if visited[n] {
				continue
			}
			visited[n] = true
			if ic := resolve(cur, n); ic != nil {
				out = append(out, ic)
				queue = append(queue, ic)
			}
		}
	}
	return out, nil
}

// Preload resolves each hint on a best-effort basis and returns how many
// were analyzed. Failures are logged and never returned.
func (x *Index) Preload(ctx context.Context, l *Loader, hints ...string) int {
	n := 0
	for _, h := range hints {
		if ctx.Err() != nil {
			break
		}
		if _, err := x.Resolve(ctx, h, l); err != nil {
			x.log.Debug("Preload skipped", "class", h, "error", err)
			continue
		}
		n++
	}
	return n
}

// Redefine discards the cached analysis of name and analyzes it again. The
// new instance carries the next generation. Negative lookups for name are
// forgotten too.
func (x *Index) Redefine(ctx context.Context, name string, l *Loader) (*AnalyzedClass, error) {
	for cur := l; cur != nil; cur = cur.parent {
		a := x.arenaFor(cur)
		a.mu.Lock()
		delete(a.missing, name)
		if old := a.classes[name]; old != nil {
			a.unlink(old)
			delete(a.classes, name)
			a.generations[name] = old.generation + 1
		}
		a.mu.Unlock()
	}
	x.forgetPairs(name)
	x.epoch.Add(1)
	return x.Resolve(ctx, name, l)
}

// Epoch is bumped by Redefine and RegisterShim. Results derived from a class
// and its ancestors stay valid only while the epoch is unchanged.
func (x *Index) Epoch() uint64 { return x.epoch.Load() }

// forgetPairs clears memoized assignability in every arena, since any cached
// answer may have walked through name, and the exclusions naming it.
func (x *Index) forgetPairs(name string) {
	for _, a := range x.allArenas() {
		a.mu.Lock()
		clear(a.assignable)
		for k := range a.excluded {
			if k.sub == name || k.super == name {
				delete(a.excluded, k)
			}
		}
		a.mu.Unlock()
	}
}

// KnownSubtypes lists, sorted, the classes analyzed so far under l that
// directly extend, implement or shim super.
func (x *Index) KnownSubtypes(super string, l *Loader) []string {
	a := x.lookupArena(l.id)
	if a == nil {
		return nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.subtypes[super]))
	for n := range a.subtypes[super] {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// RegisterShim declares that class is treated as implementing facade.
// Already analyzed instances are replaced in place.
func (x *Index) RegisterShim(class, facade string) {
	x.mu.Lock()
	if slices.Contains(x.shims[class], facade) {
		x.mu.Unlock()
		return
	}
	x.shims[class] = append(x.shims[class], facade)
	x.mu.Unlock()

	for _, a := range x.allArenas() {
		a.mu.Lock()
		if old := a.classes[class]; old != nil && !slices.Contains(old.shims, facade) {
			nc := *old
			nc.shims = append(slices.Clone(old.shims), facade)
			a.classes[class] = &nc
			a.subtypes[facade] = setWith(a.subtypes[facade], class)
		}
		for k, v := range a.assignable {
			if !v {
				delete(a.assignable, k)
			}
		}
		a.mu.Unlock()
	}
	x.epoch.Add(1)
	x.log.Info("Shim registered", "class", class, "facade", facade)
}

func setWith(set map[string]struct{}, v string) map[string]struct{} {
	if set == nil {
		set = make(map[string]struct{})
	}
	set[v] = struct{}{}
	return set
}

// Stats returns arena and class counts.
func (x *Index) Stats() Stats {
	var s Stats
	for _, a := range x.allArenas() {
		s.Arenas++
		a.mu.RLock()
		s.Classes += len(a.classes)
		a.mu.RUnlock()
	}
	return s
}
