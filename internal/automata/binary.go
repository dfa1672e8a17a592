package automata

import (
	"errors"
	"fmt"

	"neurolab/internal/datastream"
)

// MaxCells bounds the cell count accepted from a stream.
const MaxCells = 1 << 24

// maxPrealloc caps allocations sized by counts read from a stream, which are
// untrusted until the data behind them has been read.
const maxPrealloc = 4096

var ErrCorrupt = errors.New("corrupt automaton body")

// DanglingReferenceError reports an on-disk reference that resolves to no cell.
type DanglingReferenceError struct {
	Cell int32
	Ref  int32
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("cell %d references unknown cell %d", e.Cell, e.Ref)
}

// WriteBinary writes every live cell in index order followed by the input
// lists. Cells are identified by their current index.
func (a *Automaton[S]) WriteBinary(w *datastream.Writer, fv FileVersion) {
	live := a.Live()

	// Positional layouts have no ids, so indices are compacted to positions.
	ids := make(map[Index]int32, len(live))
	for pos, index := range live {
		if fv.explicitIDs() {
			ids[index] = int32(index)
		} else {
			ids[index] = int32(pos)
		}
	}

	w.Uint32(uint32(len(live)))
	for _, index := range live {
		if fv.explicitIDs() {
			w.Int32(ids[index])
		}
		a.nodes[index].writeBinary(w, fv)
	}

	w.Uint32(uint32(len(live)))
	for _, index := range live {
		if fv.explicitIDs() {
			w.Int32(ids[index])
		}
		in := a.edges[index]
		w.Uint32(uint32(len(in)))
		for _, from := range in {
			w.Int32(ids[from])
		}
	}
}

// ReadBinary restores an automaton written by WriteBinary. The first pass
// allocates every stored cell and maps its on-disk id to a fresh index; the
// second pass resolves the input lists through that map. The result is only
// returned when the whole body decoded and every reference resolved.
func ReadBinary[S Cell[S]](r *datastream.Reader, fv FileVersion) (*Automaton[S], error) {
	a := New[S]()

	count := r.Uint32()
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("read cell count: %w", err)
	}
	if count > MaxCells {
		return nil, fmt.Errorf("%w: %d cells", ErrCorrupt, count)
	}

	ids := make(map[int32]Index, min(count, maxPrealloc))
	for pos := uint32(0); pos < count; pos++ {
		id := int32(pos)
		if fv.explicitIDs() {
			id = r.Int32()
		}
		state := readState[S](r, fv)
		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("read cell %d: %w", id, err)
		}
		if _, dup := ids[id]; dup {
			return nil, fmt.Errorf("%w: duplicate cell id %d", ErrCorrupt, id)
		}

		index := a.AddNode(state.Current)
		state.Index = index
		a.nodes[index].Store(state)
		ids[id] = index
	}

	lists := r.Uint32()
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("read edge list count: %w", err)
	}
	if lists > count {
		return nil, fmt.Errorf("%w: %d edge lists for %d cells", ErrCorrupt, lists, count)
	}
	for pos := uint32(0); pos < lists; pos++ {
		owner := int32(pos)
		if fv.explicitIDs() {
			owner = r.Int32()
		}
		n := r.Uint32()
		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("read edge list %d: %w", owner, err)
		}
		if n > count {
			return nil, fmt.Errorf("%w: cell %d lists %d inputs", ErrCorrupt, owner, n)
		}
		to, ok := ids[owner]
		if !ok {
			return nil, &DanglingReferenceError{Cell: owner, Ref: owner}
		}
		for j := uint32(0); j < n; j++ {
			ref := r.Int32()
			if err := r.Err(); err != nil {
				return nil, fmt.Errorf("read input of cell %d: %w", owner, err)
			}
			from, ok := ids[ref]
			if !ok {
				return nil, &DanglingReferenceError{Cell: owner, Ref: ref}
			}
			if err := a.AddEdge(from, to); err != nil {
				return nil, err
			}
		}
	}
	return a, nil
}
