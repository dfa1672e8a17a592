package neuro

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"neurolab/internal/automata"
)

func dumpNet(t *testing.T) *Net {
	t.Helper()
	n := New()
	a := n.AddNode(withValue(NewNode(), 0.3))
	b := n.AddNode(withValue(NewNode(), 0.9))
	exc := n.AddNode(NewExcitatoryLink(1))
	inh := n.AddNode(NewInhibitoryLink(1))
	c := n.AddNode(NewNode())
	n.AddNode(NewOscillator(0, 1, 1))
	for _, e := range [][2]automata.Index{{a, exc}, {b, inh}, {exc, c}, {inh, c}} {
		require.NoError(t, n.AddEdge(e[0], e[1]))
	}
	return n
}

func TestDumpGraph(t *testing.T) {
	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"))

	var buf bytes.Buffer
	require.NoError(t, dumpNet(t).DumpGraph(&buf, false))
	g.Assert(t, "dump_graph", buf.Bytes())

	buf.Reset()
	require.NoError(t, dumpNet(t).DumpGraph(&buf, true))
	g.Assert(t, "dump_graph_reverse", buf.Bytes())
}

func TestDumpGraphStatementsAreBare(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, dumpNet(t).DumpGraph(&buf, false))
	out := buf.String()

	require.True(t, strings.HasSuffix(out, "\n}"))
	lines := strings.Split(out, "\n")
	for _, line := range lines[3 : len(lines)-1] {
		require.False(t, strings.HasSuffix(line, ";"), line)
	}
}

func TestFormatNet(t *testing.T) {
	n := dumpNet(t)
	frozen := NewNode()
	frozen.Frozen = true
	n.AddNode(frozen)

	out := FormatNet(n)
	require.True(t, strings.HasPrefix(out, "cells: 7 live, 0 free\nedges: 4\n"))
	require.Contains(t, out, "params: decay=1 link_learn=0 node_learn=0 node_forget=0 learn_time=10\n")
	require.Contains(t, out, "  1 node value=0.9 threshold=1 run=0 r=0 inputs=[]\n")
	require.Contains(t, out, "  3 inhibitory_link value=0 weight=-1 activity=0 r=0 inputs=[1]\n")
	require.Contains(t, out, "  5 oscillator value=0 phase=0 peak=1 gap=1 step=0 r=0 inputs=[]\n")
	require.Contains(t, out, "  6 node value=0 threshold=1 run=0 frozen r=0 inputs=[]\n")
}
