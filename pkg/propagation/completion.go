package propagation

import "sync"

// CompletionState is the state of a TwoPartCompletion.
type CompletionState uint8

const (
	Neither CompletionState = iota
	Part1
	Part2
	Both
)

func (s CompletionState) String() string {
	switch s {
	case Neither:
		return "NEITHER"
	case Part1:
		return "PART1"
	case Part2:
		return "PART2"
	case Both:
		return "BOTH"
	default:
		return "UNKNOWN"
	}
}

// TwoPartCompletion tracks a unit of work that finishes only after both a
// synchronous and an asynchronous completion have arrived, in either order
// and possibly concurrently. Exactly one Complete call returns true.
type TwoPartCompletion struct {
	mu         sync.Mutex
	state      CompletionState
	onComplete func()
}

// NewTwoPartCompletion creates a tracker. onComplete, if non-nil, runs once on
// the goroutine whose call observed the other part already complete.
func NewTwoPartCompletion(onComplete func()) *TwoPartCompletion {
	return &TwoPartCompletion{onComplete: onComplete}
}

// CompletePart1 marks part 1 complete. It returns true only on the
// PART2→BOTH transition.
func (c *TwoPartCompletion) CompletePart1() bool {
	return c.complete(Part1, Part2)
}

// CompletePart2 marks part 2 complete. It returns true only on the
// PART1→BOTH transition.
func (c *TwoPartCompletion) CompletePart2() bool {
	return c.complete(Part2, Part1)
}

func (c *TwoPartCompletion) complete(self, other CompletionState) bool {
	c.mu.Lock()
	switch c.state {
	case Neither:
		c.state = self
		c.mu.Unlock()
		return false
	case other:
		c.state = Both
		c.mu.Unlock()
		if c.onComplete != nil {
			c.onComplete()
		}
		return true
	default:
		c.mu.Unlock()
		return false
	}
}

// State returns the current state.
func (c *TwoPartCompletion) State() CompletionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done reports whether both parts have completed.
func (c *TwoPartCompletion) Done() bool {
	return c.State() == Both
}
