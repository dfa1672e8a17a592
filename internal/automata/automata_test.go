package automata

import (
	"bytes"
	"errors"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"neurolab/internal/datastream"
)

type testCell struct {
	W Words
}

func cellOf(v uint64) testCell {
	return testCell{W: Words{v, v, v, v}}
}

func (c testCell) Pack() Words { return c.W }

func (testCell) Unpack(w Words) testCell { return testCell{W: w} }

func (c testCell) value() uint64 { return c.W[0] }

func (c testCell) consistent() bool {
	return c.W[0] == c.W[1] && c.W[1] == c.W[2] && c.W[2] == c.W[3]
}

func (c testCell) WriteBinary(w *datastream.Writer, _ FileVersion) {
	for _, v := range c.W {
		w.Uint32(uint32(v))
	}
}

func (testCell) ReadBinary(r *datastream.Reader, _ FileVersion) testCell {
	var c testCell
	for i := range c.W {
		c.W[i] = uint64(r.Uint32())
	}
	return c
}

func TestAsyncStateReadersNeverObserveTornCopies(t *testing.T) {
	state := NewAsyncState(Index(3), cellOf(1), cellOf(0))
	state.Store(State[testCell]{Index: 3, Current: cellOf(1), Former: cellOf(0), R: 1})

	const generations = 20000
	var stop atomic.Bool
	var torn atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				s := state.Load()
				cur := s.Current
				if !cur.consistent() || !s.Former.consistent() ||
					s.Former.value()+1 != cur.value() ||
					s.R != uint16(cur.value()) ||
					s.Index != 3 {
					torn.Add(1)
				}
				if c := state.Current(); !c.consistent() {
					torn.Add(1)
				}
			}
		}()
	}

	for g := uint64(2); g < generations; g++ {
		state.Store(State[testCell]{Index: 3, Current: cellOf(g), Former: cellOf(g - 1), R: uint16(g)})
	}
	stop.Store(true)
	wg.Wait()

	require.Zero(t, torn.Load())
	final := state.Load()
	require.EqualValues(t, generations-1, final.Current.value())
}

func TestAsyncStateSlotAccessors(t *testing.T) {
	state := NewAsyncState(Index(0), cellOf(5), cellOf(4))
	state.SetFormer(cellOf(9))
	require.EqualValues(t, 5, state.Current().value())
	require.EqualValues(t, 9, state.Former().value())
	state.SetCurrent(cellOf(11))
	require.EqualValues(t, 11, state.Current().value())
	require.Equal(t, Index(0), state.Index())
	require.Zero(t, state.Generation())
}

func TestAddNodeReusesRemovedIndex(t *testing.T) {
	a := New[testCell]()
	first := a.AddNode(cellOf(1))
	second := a.AddNode(cellOf(2))
	third := a.AddNode(cellOf(3))
	require.Equal(t, []Index{0, 1, 2}, []Index{first, second, third})

	require.NoError(t, a.RemoveNode(second))
	_, ok := a.Cell(second)
	require.False(t, ok)
	require.Equal(t, 1, a.FreeCount())
	require.Equal(t, 2, a.LiveCount())

	reused := a.AddNode(cellOf(4))
	require.Equal(t, second, reused)
	cell, ok := a.Cell(reused)
	require.True(t, ok)
	require.EqualValues(t, 4, cell.Current().value())
	require.EqualValues(t, 4, cell.Former().value())
	require.Equal(t, reused, cell.Index())
	require.Zero(t, a.FreeCount())

	require.Equal(t, Index(3), a.AddNode(cellOf(5)))
}

func TestAddNodeNeverReturnsLiveIndex(t *testing.T) {
	a := New[testCell]()
	live := map[Index]bool{}
	for round := 0; round < 200; round++ {
		index := a.AddNode(cellOf(uint64(round)))
		require.False(t, live[index], "index %d handed out twice", index)
		live[index] = true
		if round%3 == 2 {
			victim := Index(round % len(a.nodes))
			if live[victim] {
				require.NoError(t, a.RemoveNode(victim))
				delete(live, victim)
			}
		}
	}
	require.Equal(t, len(live), a.LiveCount())
}

func TestRemoveNodeErrorsForFreeIndex(t *testing.T) {
	a := New[testCell]()
	index := a.AddNode(cellOf(1))
	require.NoError(t, a.RemoveNode(index))
	require.ErrorIs(t, a.RemoveNode(index), ErrNoCell)
	require.ErrorIs(t, a.RemoveNode(42), ErrNoCell)
}

func TestEdgesAreIdempotent(t *testing.T) {
	a := New[testCell]()
	x := a.AddNode(cellOf(1))
	y := a.AddNode(cellOf(2))

	require.NoError(t, a.AddEdge(x, y))
	require.NoError(t, a.AddEdge(x, y))
	require.Equal(t, []Index{x}, a.Neighbors(y))
	require.Empty(t, a.Neighbors(x))

	a.RemoveEdge(y, x)
	a.RemoveEdge(x, y)
	a.RemoveEdge(x, y)
	require.Empty(t, a.Neighbors(y))
}

func TestAddEdgeRejectsFreeIndices(t *testing.T) {
	a := New[testCell]()
	x := a.AddNode(cellOf(1))
	y := a.AddNode(cellOf(2))
	require.NoError(t, a.RemoveNode(y))

	require.ErrorIs(t, a.AddEdge(x, y), ErrNoCell)
	require.ErrorIs(t, a.AddEdge(y, x), ErrNoCell)
	require.ErrorIs(t, a.AddEdge(x, 17), ErrNoCell)
}

func TestRemoveNodePurgesInputReferences(t *testing.T) {
	a := New[testCell]()
	x := a.AddNode(cellOf(1))
	y := a.AddNode(cellOf(2))
	z := a.AddNode(cellOf(3))
	require.NoError(t, a.AddEdge(x, z))
	require.NoError(t, a.AddEdge(y, z))
	require.NoError(t, a.AddEdge(z, x))
	require.NoError(t, a.AddEdge(y, x))

	require.NoError(t, a.RemoveNode(x))
	require.Equal(t, []Index{y}, a.Neighbors(z))
	require.Nil(t, a.Neighbors(x))

	reused := a.AddNode(cellOf(9))
	require.Equal(t, x, reused)
	require.Empty(t, a.Neighbors(reused))
	require.Equal(t, []Index{y}, a.Neighbors(z))
	require.Equal(t, 1, a.EdgeCount())
}

func TestStepAsyncSeesOnlyCurrentGeneration(t *testing.T) {
	a := New[testCell]()
	const n = 600
	for i := 0; i < n; i++ {
		a.AddNode(cellOf(0))
	}
	for i := 0; i < n; i++ {
		require.NoError(t, a.AddEdge(Index((i+1)%n), Index(i)))
		require.NoError(t, a.AddEdge(Index((i+7)%n), Index(i)))
	}

	for gen := uint64(0); gen < 5; gen++ {
		var violations atomic.Int64
		h := a.StepAsync(8, func(_ Index, self State[testCell], inputs []testCell) testCell {
			if self.Current.value() != gen {
				violations.Add(1)
			}
			for _, in := range inputs {
				if in.value() != gen {
					violations.Add(1)
				}
			}
			return cellOf(self.Current.value() + 1)
		})
		h.Wait()
		require.Zero(t, violations.Load(), "generation %d", gen)

		a.Swap()
		for _, index := range a.Live() {
			cell, ok := a.Cell(index)
			require.True(t, ok)
			s := cell.Load()
			require.EqualValues(t, gen+1, s.Current.value())
			require.EqualValues(t, gen, s.Former.value())
			require.EqualValues(t, gen+1, s.R)
		}
	}
}

func TestStepAsyncSkipsFreeSlots(t *testing.T) {
	a := New[testCell]()
	keep := a.AddNode(cellOf(1))
	gone := a.AddNode(cellOf(1))
	require.NoError(t, a.RemoveNode(gone))

	var calls, strays atomic.Int64
	a.StepAsync(2, func(index Index, self State[testCell], _ []testCell) testCell {
		calls.Add(1)
		if index != keep {
			strays.Add(1)
		}
		return self.Current
	}).Wait()
	require.EqualValues(t, 1, calls.Load())
	require.Zero(t, strays.Load())
}

func encode(t *testing.T, a *Automaton[testCell], fv FileVersion) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := datastream.NewWriter(&buf)
	a.WriteBinary(w, fv)
	require.NoError(t, w.Err())
	return buf.Bytes()
}

func requireIsomorphic(t *testing.T, want, got *Automaton[testCell]) {
	t.Helper()
	require.Equal(t, want.LiveCount(), got.LiveCount())
	require.Equal(t, want.EdgeCount(), got.EdgeCount())

	// Payload values are unique per cell, so they identify cells across renumbering.
	edgeSet := func(a *Automaton[testCell]) map[[2]uint64]bool {
		set := map[[2]uint64]bool{}
		for _, to := range a.Live() {
			toCell, _ := a.Cell(to)
			for _, from := range a.Neighbors(to) {
				fromCell, _ := a.Cell(from)
				set[[2]uint64{fromCell.Current().value(), toCell.Current().value()}] = true
			}
		}
		return set
	}
	require.Equal(t, edgeSet(want), edgeSet(got))
}

func TestBinaryRoundTripCompactsIndices(t *testing.T) {
	for _, version := range []uint16{FileVersionOld, FileVersion1, FileVersion2, FileVersion3} {
		a := New[testCell]()
		cells := make([]Index, 5)
		for i := range cells {
			cells[i] = a.AddNode(cellOf(uint64(10 + i)))
		}
		require.NoError(t, a.AddEdge(cells[0], cells[2]))
		require.NoError(t, a.AddEdge(cells[1], cells[2]))
		require.NoError(t, a.AddEdge(cells[4], cells[3]))
		require.NoError(t, a.AddEdge(cells[2], cells[4]))
		require.NoError(t, a.RemoveNode(cells[1]))

		fv := FileVersion{Automata: version}
		data := encode(t, a, fv)
		restored, err := ReadBinary[testCell](datastream.NewReader(bytes.NewReader(data)), fv)
		require.NoError(t, err, "version %d", version)
		requireIsomorphic(t, a, restored)
		require.Zero(t, restored.FreeCount())

		for _, index := range restored.Live() {
			cell, _ := restored.Cell(index)
			require.Equal(t, index, cell.Index())
		}
	}
}

func TestBinaryRoundTripKeepsGenerationCounter(t *testing.T) {
	a := New[testCell]()
	index := a.AddNode(cellOf(1))
	cell, _ := a.Cell(index)
	cell.Store(State[testCell]{Index: index, Current: cellOf(3), Former: cellOf(2), R: 700})

	fv := FileVersion{Automata: CurrentFileVersion}
	restored, err := ReadBinary[testCell](datastream.NewReader(bytes.NewReader(encode(t, a, fv))), fv)
	require.NoError(t, err)
	got, ok := restored.Cell(0)
	require.True(t, ok)
	s := got.Load()
	require.EqualValues(t, 700, s.R)
	require.EqualValues(t, 3, s.Current.value())
	require.EqualValues(t, 2, s.Former.value())
}

func TestReadBinaryReportsDanglingReference(t *testing.T) {
	var buf bytes.Buffer
	w := datastream.NewWriter(&buf)
	w.Uint32(1)
	w.Int32(5)
	cellOf(1).WriteBinary(w, FileVersion{})
	cellOf(1).WriteBinary(w, FileVersion{})
	w.Uint16(0)
	w.Uint32(1)
	w.Int32(5)
	w.Uint32(1)
	w.Int32(9)
	require.NoError(t, w.Err())

	_, err := ReadBinary[testCell](datastream.NewReader(&buf), FileVersion{Automata: FileVersion3})
	var dangling *DanglingReferenceError
	require.True(t, errors.As(err, &dangling))
	require.Equal(t, int32(5), dangling.Cell)
	require.Equal(t, int32(9), dangling.Ref)
}

func TestReadBinaryRejectsTruncatedBody(t *testing.T) {
	a := New[testCell]()
	x := a.AddNode(cellOf(1))
	y := a.AddNode(cellOf(2))
	require.NoError(t, a.AddEdge(x, y))
	fv := FileVersion{Automata: CurrentFileVersion}
	data := encode(t, a, fv)

	_, err := ReadBinary[testCell](datastream.NewReader(bytes.NewReader(data[:len(data)-2])), fv)
	require.Error(t, err)
}

func TestReadBinaryHugeCountWithTruncatedBody(t *testing.T) {
	var buf bytes.Buffer
	w := datastream.NewWriter(&buf)
	w.Uint32(MaxCells)
	require.NoError(t, w.Err())

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	a, err := ReadBinary[testCell](datastream.NewReader(&buf), FileVersion{Automata: CurrentFileVersion})
	runtime.ReadMemStats(&after)

	require.Nil(t, a)
	require.ErrorIs(t, err, io.EOF)
	require.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(8<<20))
}
