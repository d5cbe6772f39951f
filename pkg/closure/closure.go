package closure

import (
	"context"
	"fmt"

	"github.com/itsneelabh/weave/pkg/core"
)

type reachedMethod struct {
	owner string
	m     *Method
}

// Closure returns every type the entry methods need: owners of reachable
// methods, the types their bodies reference, and the supertypes of all of
// those. An entry whose owner is in the program but declares no such method
// anywhere up its chain is an error, and so is a superclass chain that loops.
func Closure(ctx context.Context, entries []MethodRef, prog *Program) (TypeSet, error) {
	ix := index(prog)
	if err := ix.checkSuperChains(); err != nil {
		return nil, err
	}
	types := make(TypeSet)
	visited := make(map[string]bool)
	queue := make([]reachedMethod, 0, len(entries))

	reach := func(ref MethodRef) bool {
		owner, m, external := ix.resolve(ref)
		types.Add(ref.Owner)
		if external != "" {
			types.Add(external)
			return true
		}
		if m == nil {
			return false
		}
		key := owner + "." + m.Name + m.Desc
		if m.Abstract || visited[key] {
			return true
		}
		visited[key] = true
		queue = append(queue, reachedMethod{owner: owner, m: m})
		return true
	}

	for _, e := range entries {
		if !reach(e) {
			return nil, core.NewWeaveError("closure.Closure", "closure",
				fmt.Errorf("entry point %s is not declared: %w", e, core.ErrReachabilityMismatch))
		}
	}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cur := queue[0]
		queue = queue[1:]
		types.Add(cur.owner)
		for _, t := range cur.m.Refs.Types {
			types.Add(t)
		}
		for _, call := range cur.m.Refs.Calls {
			// unresolved calls inside the program are dead references; the
			// owner is still collected
			reach(call.MethodRef)
			if !call.Virtual {
				continue
			}
			for _, sub := range ix.allSubtypes(call.Owner) {
				if ix.classes[sub].declared(call.Name, call.Desc) != nil {
					reach(MethodRef{Owner: sub, Name: call.Name, Desc: call.Desc})
				}
			}
		}
	}

	ix.addSupertypes(types)
	return types, nil
}

// resolve finds the most specific declaration of ref at or above its owner:
// the superclass chain first, then interfaces breadth first. When the walk
// leaves the program, the first type outside it is returned as external.
func (ix *program) resolve(ref MethodRef) (owner string, m *Method, external string) {
	var ifaces []string
	for name := ref.Owner; name != ""; {
		c, ok := ix.classes[name]
		if !ok {
			return "", nil, name
		}
		if d := c.declared(ref.Name, ref.Desc); d != nil {
			return name, d, ""
		}
		ifaces = append(ifaces, c.Interfaces...)
		name = c.Super
	}

	seen := make(map[string]bool)
	for len(ifaces) > 0 {
		name := ifaces[0]
		ifaces = ifaces[1:]
		if seen[name] {
			continue
		}
		seen[name] = true
		c, ok := ix.classes[name]
		if !ok {
			continue
		}
		if d := c.declared(ref.Name, ref.Desc); d != nil {
			return name, d, ""
		}
		ifaces = append(ifaces, c.Interfaces...)
	}
	return "", nil, ""
}

// addSupertypes closes types over super and interface edges. Supertypes
// outside the program are added but not expanded.
func (ix *program) addSupertypes(types TypeSet) {
	queue := types.Sorted()
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		c, ok := ix.classes[name]
		if !ok {
			continue
		}
		supers := append([]string{c.Super}, c.Interfaces...)
		for _, s := range supers {
			if s != "" && !types.Has(s) {
				types.Add(s)
				queue = append(queue, s)
			}
		}
	}
}
