package neuro

import (
	"github.com/chewxy/math32"

	"neurolab/internal/automata"
)

// Params are the network-wide dynamics knobs. They are read by every cell
// computation and must only change between steps.
type Params struct {
	Decay          float32 `json:"decay" yaml:"decay"`
	LinkLearnRate  float32 `json:"link_learn_rate" yaml:"link_learn_rate"`
	NodeLearnRate  float32 `json:"node_learn_rate" yaml:"node_learn_rate"`
	NodeForgetRate float32 `json:"node_forget_rate" yaml:"node_forget_rate"`
	LearnTime      float32 `json:"learn_time" yaml:"learn_time"`
}

func DefaultParams() Params {
	return Params{
		Decay:     1,
		LearnTime: 10,
	}
}

const (
	MinThreshold float32 = 0.1
	MaxThreshold float32 = 64

	// Running averages at or above activeLevel count as sustained activation,
	// at or below quietLevel as sustained inactivity.
	activeLevel float32 = 0.5
	quietLevel  float32 = 0.1
)

// CommitRecord is a weight change produced during a step and applied after it.
type CommitRecord struct {
	Index  automata.Index
	Weight float32
}

func clamp01(v float32) float32 {
	if math32.IsNaN(v) {
		return 0
	}
	return math32.Max(0, math32.Min(1, v))
}

// rate maps negative and NaN rates to 0.
func rate(v float32) float32 {
	if !(v > 0) {
		return 0
	}
	return v
}

// next computes the following generation of a cell. Weight changes are handed
// to commit instead of being stored.
func (p Params) next(index automata.Index, self automata.State[Cell], inputs []Cell, commit func(CommitRecord)) Cell {
	c := self.Current
	if c.Frozen {
		return c
	}

	decay := clamp01(p.Decay)
	learnTime := p.LearnTime
	if !(learnTime >= 1) {
		learnTime = 1
	}
	decayed := c.Value * (1 - decay)

	switch c.Kind {
	case KindNode:
		threshold := math32.Max(c.InputThreshold, MinThreshold)
		c.Value = clamp01(decayed + clamp01(sumInputs(inputs)/threshold))
		c.Run += (c.Value - c.Run) / learnTime
		switch {
		case c.Run >= activeLevel:
			c.InputThreshold = math32.Min(c.InputThreshold+rate(p.NodeLearnRate), MaxThreshold)
		case c.Run <= quietLevel:
			c.InputThreshold = math32.Max(c.InputThreshold-rate(p.NodeForgetRate), MinThreshold)
		}

	case KindExcitatoryLink, KindInhibitoryLink:
		pre := clamp01(sumInputs(inputs))
		magnitude := math32.Abs(c.Weight)
		c.Value = clamp01(decayed + pre*magnitude)
		c.Activity += (pre - c.Activity) / learnTime
		if learnRate := rate(p.LinkLearnRate); learnRate > 0 {
			learned := clamp01(magnitude + learnRate*(c.Activity-magnitude))
			if c.Kind == KindInhibitoryLink {
				learned = -learned
			}
			if learned != c.Weight {
				commit(CommitRecord{Index: index, Weight: learned})
			}
		}

	case KindOscillator:
		c.Step++
		period := uint32(c.Peak) + uint32(c.Gap)
		if period > 0 && (c.Step+uint32(c.Phase))%period < uint32(c.Peak) {
			c.Value = 1
		} else {
			c.Value = 0
		}

	default:
		// Unknown kinds are rejected on load; anything else is carried forward.
	}
	return c
}

// sumInputs adds the outputs feeding a cell; inhibitory links subtract.
func sumInputs(inputs []Cell) float32 {
	var total float32
	for _, in := range inputs {
		if in.Kind == KindInhibitoryLink {
			total -= in.Value
		} else {
			total += in.Value
		}
	}
	return total
}
