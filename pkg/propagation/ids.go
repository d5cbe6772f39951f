package propagation

import "sync"

// GroupID identifies a nesting group. Zero means "no group".
type GroupID int32

// KeyID identifies a suppression key. Zero means "no key".
type KeyID int32

// Interner assigns small stable integers to labels so the hot path compares
// ints instead of strings. The mapping is injective and never shrinks.
type Interner struct {
	mu     sync.RWMutex
	ids    map[string]int32
	labels []string
}

// NewInterner creates an empty interner. Ids start at 1.
func NewInterner() *Interner {
	return &Interner{
		ids:    make(map[string]int32),
		labels: []string{""},
	}
}

func (in *Interner) intern(label string) int32 {
	if label == "" {
		return 0
	}

	in.mu.RLock()
	id, ok := in.ids[label]
	in.mu.RUnlock()
	if ok {
		return id
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if id, ok := in.ids[label]; ok {
		return id
	}
	id = int32(len(in.labels))
	in.ids[label] = id
	in.labels = append(in.labels, label)
	return id
}

// Group returns the id for a nesting group label.
func (in *Interner) Group(label string) GroupID {
	return GroupID(in.intern(label))
}

// Key returns the id for a suppression key label.
func (in *Interner) Key(label string) KeyID {
	return KeyID(in.intern(label))
}

// Label returns the label interned as id, or "" when unknown.
func (in *Interner) Label(id int32) string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if id <= 0 || int(id) >= len(in.labels) {
		return ""
	}
	return in.labels[id]
}

// Len returns the number of interned labels.
func (in *Interner) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.labels) - 1
}
