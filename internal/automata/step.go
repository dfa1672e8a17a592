package automata

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// UpdateFunc computes the next generation of cell index from its own state and
// the current payloads of its inputs. inputs is reused between calls and must not
// be retained. Implementations run concurrently and must only read shared data.
type UpdateFunc[S any] func(index Index, self State[S], inputs []S) S

// StepHandle tracks a dispatched compute phase.
type StepHandle struct {
	done chan struct{}
}

// Wait blocks until every cell of the step has been computed.
func (h *StepHandle) Wait() {
	<-h.done
}

func (h *StepHandle) Done() <-chan struct{} {
	return h.done
}

// minChunk keeps tiny networks from paying one goroutine per cell.
const minChunk = 64

// StepAsync computes every live cell in parallel on at most workers goroutines,
// writing each result into that cell's former slot. Current slots are not
// touched, so every computation sees only this generation's data. The caller
// must not mutate topology, or call Swap, until the handle completes.
func (a *Automaton[S]) StepAsync(workers int, update UpdateFunc[S]) *StepHandle {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	live := a.Live()
	chunk := len(live) / (workers * 4)
	if chunk < minChunk {
		chunk = minChunk
	}

	h := &StepHandle{done: make(chan struct{})}
	go func() {
		defer close(h.done)

		var g errgroup.Group
		g.SetLimit(workers)
		for start := 0; start < len(live); start += chunk {
			batch := live[start:min(start+chunk, len(live))]
			g.Go(func() error {
				a.computeBatch(batch, update)
				return nil
			})
		}
		_ = g.Wait()
	}()
	return h
}

func (a *Automaton[S]) computeBatch(batch []Index, update UpdateFunc[S]) {
	var inputs []S
	for _, index := range batch {
		state := a.nodes[index]
		self := state.Load()
		inputs = inputs[:0]
		for _, in := range a.edges[index] {
			inputs = append(inputs, a.nodes[in].Current())
		}
		state.SetFormer(update(index, self, inputs))
	}
}

// Swap exchanges the current and former generations of every live cell and
// advances its r counter. It runs on the controlling goroutine after a step.
func (a *Automaton[S]) Swap() {
	for i, state := range a.nodes {
		if a.isFree[i] {
			continue
		}
		s := state.Load()
		state.Store(State[S]{Index: s.Index, Current: s.Former, Former: s.Current, R: s.R + 1})
	}
}
