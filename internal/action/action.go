// Package action generalizes the teacher's middleware pipeline
// abort-checking loop (core/middleware/pipeline.go) over the
// scheduler's tagged Result sum type, so any layer that needs to run a
// sequence of steps and stop at the first non-Continue outcome — HTX
// post-parse validation, connection handshake steps, H2 frame
// dispatch — can reuse the same chain shape instead of hand-rolling
// its own early-return loop.
package action

import "github.com/fastserver/lbcore/internal/sched"

// Func is one step of a Chain. It receives an opaque context and
// returns a tagged outcome: Continue to proceed to the next step, or
// any other Result to stop the chain immediately.
type Func func(ctx any) sched.Result

// Chain is an ordered sequence of Funcs executed until one of them
// returns something other than Continue, or the sequence is exhausted.
type Chain struct {
	steps []Func
}

// NewChain builds a chain from the given steps, evaluated in order.
func NewChain(steps ...Func) *Chain {
	return &Chain{steps: steps}
}

// Use appends a step, returning the chain for fluent construction.
func (c *Chain) Use(f Func) *Chain {
	c.steps = append(c.steps, f)
	return c
}

// Run executes every step in order against ctx, stopping at the first
// non-Continue result and returning it. Returns Continue if every step
// in the chain returned Continue.
func (c *Chain) Run(ctx any) sched.Result {
	for _, step := range c.steps {
		if r := step(ctx); r != sched.Continue {
			return r
		}
	}
	return sched.Continue
}

// Len reports how many steps the chain holds.
func (c *Chain) Len() int { return len(c.steps) }
