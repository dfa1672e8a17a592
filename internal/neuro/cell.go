package neuro

import (
	"math"

	"neurolab/internal/automata"
	"neurolab/internal/datastream"
)

type Kind uint8

const (
	KindNode Kind = iota
	KindExcitatoryLink
	KindInhibitoryLink
	KindOscillator

	numKinds
)

func (k Kind) Valid() bool {
	return k < numKinds
}

func (k Kind) String() string {
	switch k {
	case KindNode:
		return "node"
	case KindExcitatoryLink:
		return "excitatory_link"
	case KindInhibitoryLink:
		return "inhibitory_link"
	case KindOscillator:
		return "oscillator"
	default:
		return "unknown"
	}
}

// prefix is the single-letter tag used in graph dumps.
func (k Kind) prefix() string {
	switch k {
	case KindNode:
		return "N"
	case KindExcitatoryLink:
		return "L"
	case KindInhibitoryLink:
		return "I"
	case KindOscillator:
		return "O"
	default:
		return "U"
	}
}

func (k Kind) isLink() bool {
	return k == KindExcitatoryLink || k == KindInhibitoryLink
}

const DefaultLinkWeight float32 = 1

// Cell is the payload of one automaton cell.
type Cell struct {
	Kind   Kind
	Frozen bool

	// Weight scales a link's input. Inhibitory links store a negative weight.
	Weight float32
	// Value is the output activation in [0,1].
	Value float32

	// InputThreshold is the input a node needs for full activation.
	InputThreshold float32
	// Run is a node's running average output over the learning window.
	Run float32
	// Activity is a link's running average input over the learning window.
	Activity float32

	// Oscillators fire for Peak steps, rest for Gap steps, offset by Phase.
	Phase uint16
	Peak  uint16
	Gap   uint16
	Step  uint32
}

func NewNode() Cell {
	return Cell{Kind: KindNode, InputThreshold: 1}
}

func NewExcitatoryLink(weight float32) Cell {
	return Cell{Kind: KindExcitatoryLink, Weight: abs32(weight), InputThreshold: 1}
}

func NewInhibitoryLink(weight float32) Cell {
	return Cell{Kind: KindInhibitoryLink, Weight: -abs32(weight), InputThreshold: 1}
}

func NewOscillator(phase, peak, gap uint16) Cell {
	return Cell{Kind: KindOscillator, InputThreshold: 1, Phase: phase, Peak: peak, Gap: gap}
}

func abs32(v float32) float32 {
	return math.Float32frombits(math.Float32bits(v) &^ (1 << 31))
}

func packFloats(lo, hi float32) uint64 {
	return uint64(math.Float32bits(lo)) | uint64(math.Float32bits(hi))<<32
}

func unpackFloats(w uint64) (float32, float32) {
	return math.Float32frombits(uint32(w)), math.Float32frombits(uint32(w >> 32))
}

func (c Cell) Pack() automata.Words {
	var frozen uint64
	if c.Frozen {
		frozen = 1
	}
	return automata.Words{
		uint64(c.Kind) | frozen<<8 | uint64(c.Phase)<<16 | uint64(c.Peak)<<32 | uint64(c.Gap)<<48,
		packFloats(c.Weight, c.Value),
		packFloats(c.InputThreshold, c.Run),
		uint64(math.Float32bits(c.Activity)) | uint64(c.Step)<<32,
	}
}

func (Cell) Unpack(w automata.Words) Cell {
	c := Cell{
		Kind:   Kind(w[0]),
		Frozen: w[0]>>8&1 == 1,
		Phase:  uint16(w[0] >> 16),
		Peak:   uint16(w[0] >> 32),
		Gap:    uint16(w[0] >> 48),
		Step:   uint32(w[3] >> 32),
	}
	c.Weight, c.Value = unpackFloats(w[1])
	c.InputThreshold, c.Run = unpackFloats(w[2])
	c.Activity = math.Float32frombits(uint32(w[3]))
	return c
}

func (c Cell) WriteBinary(w *datastream.Writer, fv automata.FileVersion) {
	if fv.Client >= ClientVersion1 {
		w.Uint8(uint8(c.Kind))
		w.Bool(c.Frozen)
	} else {
		w.Int32(int32(c.Kind))
	}
	w.Float32(c.Weight)
	w.Float32(c.Value)
	w.Float32(c.InputThreshold)
	if fv.Client >= ClientVersion2 {
		w.Float32(c.Run)
	}
	if fv.Client >= ClientVersion3 {
		w.Float32(c.Activity)
		w.Uint32(c.Step)
		w.Uint16(c.Phase)
		w.Uint16(c.Peak)
		w.Uint16(c.Gap)
	}
}

func (Cell) ReadBinary(r *datastream.Reader, fv automata.FileVersion) Cell {
	var c Cell
	if fv.Client >= ClientVersion1 {
		c.Kind = Kind(r.Uint8())
		c.Frozen = r.Bool()
	} else {
		kind := r.Int32()
		if kind < 0 || kind > 0xff {
			kind = int32(numKinds)
		}
		c.Kind = Kind(kind)
	}
	c.Weight = r.Float32()
	c.Value = r.Float32()
	c.InputThreshold = r.Float32()
	if fv.Client >= ClientVersion2 {
		c.Run = r.Float32()
	}
	if fv.Client >= ClientVersion3 {
		c.Activity = r.Float32()
		c.Step = r.Uint32()
		c.Phase = r.Uint16()
		c.Peak = r.Uint16()
		c.Gap = r.Uint16()
	}
	return c
}
