package automata

import (
	"runtime"
	"sync/atomic"

	"neurolab/internal/datastream"
)

// CellWords is the number of 64-bit words a payload packs into.
const CellWords = 4

// Words is the packed form of a payload.
type Words [CellWords]uint64

// Cell is the contract a payload type S satisfies to live in an Automaton.
// Pack and Unpack must round trip exactly; Unpack is called on the zero value.
type Cell[S any] interface {
	Pack() Words
	Unpack(Words) S
	WriteBinary(w *datastream.Writer, fv FileVersion)
	ReadBinary(r *datastream.Reader, fv FileVersion) S
}

// State is a consistent copy of an AsyncState.
type State[S any] struct {
	Index   Index
	Current S
	Former  S
	R       uint16
}

type slot [CellWords]atomic.Uint64

func (s *slot) load() Words {
	var w Words
	for i := range s {
		w[i] = s[i].Load()
	}
	return w
}

func (s *slot) store(w Words) {
	for i := range s {
		s[i].Store(w[i])
	}
}

// AsyncState holds the current and former generation of one cell behind a
// seqlock. Any number of readers may copy it while a single writer updates it;
// writers are never mutually excluded, so callers guarantee one writer at a time.
//
// The writer bumps sync1 before touching the payload and sync0 after. A reader
// samples sync0 first and sync1 last and retries until the two agree.
type AsyncState[S Cell[S]] struct {
	sync0 atomic.Uint32
	index atomic.Int32
	q0    slot
	q1    slot
	r     atomic.Uint32
	sync1 atomic.Uint32
}

func NewAsyncState[S Cell[S]](index Index, current, former S) *AsyncState[S] {
	a := &AsyncState[S]{}
	a.Store(State[S]{Index: index, Current: current, Former: former})
	return a
}

// Load returns a torn-free copy of the whole state.
func (a *AsyncState[S]) Load() State[S] {
	var zero S
	for {
		begin := a.sync0.Load()
		r := a.r.Load()
		former := a.q1.load()
		current := a.q0.load()
		index := a.index.Load()
		if a.sync1.Load() == begin {
			return State[S]{
				Index:   Index(index),
				Current: zero.Unpack(current),
				Former:  zero.Unpack(former),
				R:       uint16(r),
			}
		}
		runtime.Gosched()
	}
}

// Store overwrites every field. Only one goroutine may write at a time.
func (a *AsyncState[S]) Store(s State[S]) {
	a.sync1.Add(1)
	a.r.Store(uint32(s.R))
	a.q1.store(s.Former.Pack())
	a.q0.store(s.Current.Pack())
	a.index.Store(int32(s.Index))
	a.sync0.Add(1)
}

func (a *AsyncState[S]) loadSlot(s *slot) S {
	var zero S
	for {
		begin := a.sync0.Load()
		w := s.load()
		if a.sync1.Load() == begin {
			return zero.Unpack(w)
		}
		runtime.Gosched()
	}
}

func (a *AsyncState[S]) storeSlot(s *slot, v S) {
	a.sync1.Add(1)
	s.store(v.Pack())
	a.sync0.Add(1)
}

// Current returns this generation's payload.
func (a *AsyncState[S]) Current() S {
	return a.loadSlot(&a.q0)
}

// Former returns the previous generation's payload.
func (a *AsyncState[S]) Former() S {
	return a.loadSlot(&a.q1)
}

func (a *AsyncState[S]) SetCurrent(v S) {
	a.storeSlot(&a.q0, v)
}

func (a *AsyncState[S]) SetFormer(v S) {
	a.storeSlot(&a.q1, v)
}

func (a *AsyncState[S]) Index() Index {
	return Index(a.index.Load())
}

// Generation returns the update counter r.
func (a *AsyncState[S]) Generation() uint16 {
	return uint16(a.r.Load())
}

func (a *AsyncState[S]) writeBinary(w *datastream.Writer, fv FileVersion) {
	s := a.Load()
	s.Current.WriteBinary(w, fv)
	s.Former.WriteBinary(w, fv)
	switch {
	case fv.Automata >= FileVersion3:
		w.Uint16(s.R)
	case fv.Automata >= FileVersion1:
		w.Uint8(uint8(s.R))
	default:
		w.Int32(int32(s.R))
	}
}

func readState[S Cell[S]](r *datastream.Reader, fv FileVersion) State[S] {
	var zero S
	var s State[S]
	s.Current = zero.ReadBinary(r, fv)
	s.Former = zero.ReadBinary(r, fv)
	switch {
	case fv.Automata >= FileVersion3:
		s.R = r.Uint16()
	case fv.Automata >= FileVersion1:
		s.R = uint16(r.Uint8())
	default:
		s.R = uint16(uint8(r.Int32()))
	}
	return s
}
