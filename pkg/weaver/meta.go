package weaver

import (
	"sync"

	"github.com/itsneelabh/weave/pkg/advice"
	"github.com/itsneelabh/weave/pkg/hierarchy"
)

type metaSlot struct {
	once  sync.Once
	build func() any
	val   any
}

func (s *metaSlot) get() any {
	s.once.Do(func() {
		s.val = s.build()
		s.build = nil
	})
	return s.val
}

// MetaCache holds the class and method metadata of one woven class. Each
// slot is built on first use, exactly once, even under concurrent calls.
type MetaCache struct {
	mu          sync.Mutex
	classSlots  []*metaSlot
	methodSlots []*metaSlot
	classIndex  map[classMetaKey]int
	methodIndex map[methodMetaKey]int
}

type classMetaKey struct {
	advice *advice.Bound
	i      int
}

type methodMetaKey struct {
	advice *advice.Bound
	method string
	i      int
}

func newMetaCache() *MetaCache {
	return &MetaCache{
		classIndex:  make(map[classMetaKey]int),
		methodIndex: make(map[methodMetaKey]int),
	}
}

// classSlot assigns, or reuses, the slot of factory i of b.
func (mc *MetaCache) classSlot(c *hierarchy.AnalyzedClass, b *advice.Bound, i int) int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	k := classMetaKey{b, i}
	if idx, ok := mc.classIndex[k]; ok {
		return idx
	}
	fn := b.Descriptor.ClassMeta[i]
	idx := len(mc.classSlots)
	mc.classSlots = append(mc.classSlots, &metaSlot{build: func() any { return fn(c) }})
	mc.classIndex[k] = idx
	return idx
}

func (mc *MetaCache) methodSlot(c *hierarchy.AnalyzedClass, m hierarchy.MethodSignature, b *advice.Bound, i int) int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	k := methodMetaKey{b, m.Key(), i}
	if idx, ok := mc.methodIndex[k]; ok {
		return idx
	}
	fn := b.Descriptor.MethodMeta[i]
	idx := len(mc.methodSlots)
	mc.methodSlots = append(mc.methodSlots, &metaSlot{build: func() any { return fn(c, m) }})
	mc.methodIndex[k] = idx
	return idx
}

// ClassMeta returns class metadata slot i.
func (mc *MetaCache) ClassMeta(i int) any {
	mc.mu.Lock()
	s := mc.classSlots[i]
	mc.mu.Unlock()
	return s.get()
}

// MethodMeta returns method metadata slot i.
func (mc *MetaCache) MethodMeta(i int) any {
	mc.mu.Lock()
	s := mc.methodSlots[i]
	mc.mu.Unlock()
	return s.get()
}

// Len returns the number of class and method slots.
func (mc *MetaCache) Len() (classSlots, methodSlots int) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return len(mc.classSlots), len(mc.methodSlots)
}
