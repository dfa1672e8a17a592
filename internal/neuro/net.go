package neuro

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"sync"

	"neurolab/internal/automata"
)

// Net is a neural network stored as an asynchronous automaton. One step is
// PreUpdate, StepAsync, waiting on the handle, then PostUpdate. Topology and
// parameters must only change between steps.
type Net struct {
	graph   *automata.Automaton[Cell]
	params  Params
	workers int

	mu      sync.Mutex
	pending []CommitRecord
}

func New() *Net {
	return &Net{
		graph:   automata.New[Cell](),
		params:  DefaultParams(),
		workers: runtime.GOMAXPROCS(0),
	}
}

func (n *Net) Params() Params {
	return n.params
}

func (n *Net) SetParams(p Params) {
	n.params = p
}

func (n *Net) Workers() int {
	return n.workers
}

// SetWorkers bounds the goroutines used by a step. Values <= 0 select GOMAXPROCS.
func (n *Net) SetWorkers(workers int) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	n.workers = workers
}

func (n *Net) AddNode(c Cell) automata.Index {
	return n.graph.AddNode(c)
}

func (n *Net) RemoveNode(index automata.Index) error {
	return n.graph.RemoveNode(index)
}

// AddEdge makes from an input of to.
func (n *Net) AddEdge(from, to automata.Index) error {
	return n.graph.AddEdge(from, to)
}

func (n *Net) RemoveEdge(from, to automata.Index) {
	n.graph.RemoveEdge(from, to)
}

func (n *Net) Neighbors(index automata.Index) []automata.Index {
	return n.graph.Neighbors(index)
}

func (n *Net) Cell(index automata.Index) (*automata.AsyncState[Cell], bool) {
	return n.graph.Cell(index)
}

// Current returns the current payload of a live cell.
func (n *Net) Current(index automata.Index) (Cell, bool) {
	state, ok := n.graph.Cell(index)
	if !ok {
		return Cell{}, false
	}
	return state.Current(), true
}

// SetCurrent replaces the current payload of a live cell.
func (n *Net) SetCurrent(index automata.Index, c Cell) error {
	state, ok := n.graph.Cell(index)
	if !ok {
		return fmt.Errorf("set cell %d: %w", index, automata.ErrNoCell)
	}
	state.SetCurrent(c)
	return nil
}

func (n *Net) Len() int {
	return n.graph.Len()
}

func (n *Net) LiveCount() int {
	return n.graph.LiveCount()
}

func (n *Net) FreeCount() int {
	return n.graph.FreeCount()
}

func (n *Net) EdgeCount() int {
	return n.graph.EdgeCount()
}

func (n *Net) Live() []automata.Index {
	return n.graph.Live()
}

// PreUpdate prepares a step. Commits left over from an interrupted step are
// discarded.
func (n *Net) PreUpdate() {
	n.mu.Lock()
	n.pending = n.pending[:0]
	n.mu.Unlock()
}

// StepAsync dispatches the compute phase of one step.
func (n *Net) StepAsync() *automata.StepHandle {
	params := n.params
	return n.graph.StepAsync(n.workers, func(index automata.Index, self automata.State[Cell], inputs []Cell) Cell {
		return params.next(index, self, inputs, n.enqueue)
	})
}

func (n *Net) enqueue(c CommitRecord) {
	n.mu.Lock()
	n.pending = append(n.pending, c)
	n.mu.Unlock()
}

// PostUpdate publishes the computed generation and applies every weight
// commit queued during the step. It returns the number of commits applied.
func (n *Net) PostUpdate() int {
	n.graph.Swap()

	n.mu.Lock()
	commits := n.pending
	n.pending = nil
	n.mu.Unlock()

	applied := 0
	for _, c := range commits {
		state, ok := n.graph.Cell(c.Index)
		if !ok {
			continue
		}
		cell := state.Current()
		cell.Weight = c.Weight
		state.SetCurrent(cell)
		applied++
	}
	return applied
}

// PendingCommits returns a copy of the commits queued so far.
func (n *Net) PendingCommits() []CommitRecord {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.pending)
}

// Step runs one full step and returns the number of commits applied.
func (n *Net) Step() int {
	n.PreUpdate()
	n.StepAsync().Wait()
	return n.PostUpdate()
}

// Run executes up to steps full steps, stopping early when ctx is cancelled.
// A step that has started always completes. It returns the number of steps run.
func (n *Net) Run(ctx context.Context, steps int) (int, error) {
	return n.RunFunc(ctx, steps, nil)
}

// RunFunc is Run with a callback invoked after every completed step with the
// step number (starting at 1) and the commits applied.
func (n *Net) RunFunc(ctx context.Context, steps int, after func(step, commits int)) (int, error) {
	for done := 0; done < steps; done++ {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		commits := n.Step()
		if after != nil {
			after(done+1, commits)
		}
	}
	return steps, nil
}

// Reset zeroes the dynamic state of every live unfrozen cell and keeps
// topology, weights, thresholds and oscillator timing.
func (n *Net) Reset() {
	for _, index := range n.graph.Live() {
		state, _ := n.graph.Cell(index)
		c := state.Current()
		if c.Frozen {
			continue
		}
		c.Value = 0
		c.Run = 0
		c.Activity = 0
		c.Step = 0
		state.Store(automata.State[Cell]{Index: index, Current: c, Former: c, R: state.Generation()})
	}
	n.PreUpdate()
}

// Stats summarizes the current generation.
type Stats struct {
	Live       int
	Free       int
	Edges      int
	Active     int
	MeanOutput float64
}

// Stats counts live cells and those whose output exceeds the activity level.
func (n *Net) Stats() Stats {
	s := Stats{Live: n.graph.LiveCount(), Free: n.graph.FreeCount(), Edges: n.graph.EdgeCount()}
	var total float64
	for _, index := range n.graph.Live() {
		c, _ := n.Current(index)
		if c.Value > activeLevel {
			s.Active++
		}
		total += float64(c.Value)
	}
	if s.Live > 0 {
		s.MeanOutput = total / float64(s.Live)
	}
	return s
}
