package neuro

import (
	"fmt"
	"io"
	"strings"
)

// DumpGraph writes the live cells and their inputs as a graphviz digraph.
// Cells whose output exceeds one half are drawn red. Edges point from a cell
// to its inputs, or from inputs to the cell when reverse is set.
func (n *Net) DumpGraph(w io.Writer, reverse bool) error {
	var b strings.Builder
	b.WriteString("digraph neurolib_network {\n")
	b.WriteString("  graph [overlap = false];\n")
	b.WriteString("  node [shape = circle];\n")

	for _, index := range n.graph.Live() {
		c, _ := n.Current(index)
		name := fmt.Sprintf("%s%d", c.Kind.prefix(), index)
		active := c.Value > activeLevel
		if active {
			fmt.Fprintf(&b, "  %s [color=\"red\"]\n", name)
		}

		inputs := n.graph.Neighbors(index)
		if len(inputs) == 0 && !active {
			fmt.Fprintf(&b, "  %s\n", name)
		}
		for _, in := range inputs {
			inCell, _ := n.Current(in)
			inName := fmt.Sprintf("%s%d", inCell.Kind.prefix(), in)
			if reverse {
				fmt.Fprintf(&b, "  %s -> %s\n", inName, name)
			} else {
				fmt.Fprintf(&b, "  %s -> %s\n", name, inName)
			}
		}
	}
	b.WriteString("}")

	_, err := io.WriteString(w, b.String())
	return err
}

// FormatNet returns a human-readable multiline dump of the network.
func FormatNet(n *Net) string {
	var b strings.Builder
	p := n.Params()
	stats := n.Stats()
	fmt.Fprintf(&b, "cells: %d live, %d free\n", stats.Live, stats.Free)
	fmt.Fprintf(&b, "edges: %d\n", stats.Edges)
	fmt.Fprintf(&b, "params: decay=%g link_learn=%g node_learn=%g node_forget=%g learn_time=%g\n",
		p.Decay, p.LinkLearnRate, p.NodeLearnRate, p.NodeForgetRate, p.LearnTime)
	for _, index := range n.graph.Live() {
		state, _ := n.graph.Cell(index)
		c := state.Current()
		fmt.Fprintf(&b, "  %d %s value=%g", index, c.Kind, c.Value)
		switch {
		case c.Kind.isLink():
			fmt.Fprintf(&b, " weight=%g activity=%g", c.Weight, c.Activity)
		case c.Kind == KindOscillator:
			fmt.Fprintf(&b, " phase=%d peak=%d gap=%d step=%d", c.Phase, c.Peak, c.Gap, c.Step)
		default:
			fmt.Fprintf(&b, " threshold=%g run=%g", c.InputThreshold, c.Run)
		}
		if c.Frozen {
			b.WriteString(" frozen")
		}
		fmt.Fprintf(&b, " r=%d inputs=%v\n", state.Generation(), n.graph.Neighbors(index))
	}
	return b.String()
}
