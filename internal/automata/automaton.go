package automata

import (
	"errors"
	"fmt"
	"slices"
)

var ErrNoCell = errors.New("no live cell at index")

// Automaton stores cells and, for every cell, the ordered list of cells that feed
// into it. Topology mutation is not safe while a step is in flight.
type Automaton[S Cell[S]] struct {
	nodes  []*AsyncState[S]
	edges  [][]Index
	isFree []bool
	free   []Index
}

func New[S Cell[S]]() *Automaton[S] {
	return &Automaton[S]{}
}

// AddNode stores cell as both generations, reusing a reclaimed index when one exists.
func (a *Automaton[S]) AddNode(cell S) Index {
	if n := len(a.free); n > 0 {
		index := a.free[n-1]
		a.free = a.free[:n-1]
		a.isFree[index] = false
		a.nodes[index].Store(State[S]{Index: index, Current: cell, Former: cell})
		return index
	}

	index := Index(len(a.nodes))
	a.nodes = append(a.nodes, NewAsyncState(index, cell, cell))
	a.edges = append(a.edges, nil)
	a.isFree = append(a.isFree, false)
	return index
}

// RemoveNode clears the cell, drops every edge touching it and returns its index
// to the free pool.
func (a *Automaton[S]) RemoveNode(index Index) error {
	if !a.IsLive(index) {
		return fmt.Errorf("remove node %d: %w", index, ErrNoCell)
	}

	a.edges[index] = nil
	for i := range a.edges {
		a.edges[i] = slices.DeleteFunc(a.edges[i], func(in Index) bool { return in == index })
	}

	var zero S
	a.nodes[index].Store(State[S]{Index: NoIndex, Current: zero, Former: zero})
	a.isFree[index] = true
	a.free = append(a.free, index)
	return nil
}

// AddEdge records from as an input of to. Adding an existing edge is a no-op.
func (a *Automaton[S]) AddEdge(from, to Index) error {
	if !a.IsLive(from) {
		return fmt.Errorf("add edge %d->%d: source %w", from, to, ErrNoCell)
	}
	if !a.IsLive(to) {
		return fmt.Errorf("add edge %d->%d: target %w", from, to, ErrNoCell)
	}
	if !slices.Contains(a.edges[to], from) {
		a.edges[to] = append(a.edges[to], from)
	}
	return nil
}

// RemoveEdge drops from from the inputs of to, if present.
func (a *Automaton[S]) RemoveEdge(from, to Index) {
	if !a.IsLive(to) {
		return
	}
	if i := slices.Index(a.edges[to], from); i >= 0 {
		a.edges[to] = slices.Delete(a.edges[to], i, i+1)
	}
}

// Neighbors returns a copy of the inputs of index, in insertion order.
func (a *Automaton[S]) Neighbors(index Index) []Index {
	if !a.IsLive(index) {
		return nil
	}
	return slices.Clone(a.edges[index])
}

// Cell returns the state at index, or false for free or out of range indices.
func (a *Automaton[S]) Cell(index Index) (*AsyncState[S], bool) {
	if !a.IsLive(index) {
		return nil, false
	}
	return a.nodes[index], true
}

func (a *Automaton[S]) IsLive(index Index) bool {
	return index >= 0 && int(index) < len(a.nodes) && !a.isFree[index]
}

// Len returns the number of slots, live or free.
func (a *Automaton[S]) Len() int {
	return len(a.nodes)
}

func (a *Automaton[S]) LiveCount() int {
	return len(a.nodes) - len(a.free)
}

// Live returns the live indices in ascending order.
func (a *Automaton[S]) Live() []Index {
	live := make([]Index, 0, a.LiveCount())
	for i := range a.nodes {
		if !a.isFree[i] {
			live = append(live, Index(i))
		}
	}
	return live
}

// FreeCount returns the number of reclaimed indices awaiting reuse.
func (a *Automaton[S]) FreeCount() int {
	return len(a.free)
}

// EdgeCount returns the total number of input entries across live cells.
func (a *Automaton[S]) EdgeCount() int {
	total := 0
	for i, in := range a.edges {
		if !a.isFree[i] {
			total += len(in)
		}
	}
	return total
}
