package lab

import "neurolab/internal/neuro"

// DemoNetwork builds two input nodes feeding one output node through
// excitatory links. The inputs are frozen at 0.3 and 0.4, so the output
// settles at their sum.
func DemoNetwork() *neuro.Net {
	n := neuro.New()

	a := neuro.NewNode()
	a.Frozen = true
	a.Value = 0.3
	b := neuro.NewNode()
	b.Frozen = true
	b.Value = 0.4

	ia := n.AddNode(a)
	ib := n.AddNode(b)
	la := n.AddNode(neuro.NewExcitatoryLink(neuro.DefaultLinkWeight))
	lb := n.AddNode(neuro.NewExcitatoryLink(neuro.DefaultLinkWeight))
	out := n.AddNode(neuro.NewNode())

	// Indices are fresh, so edges between them cannot fail.
	_ = n.AddEdge(ia, la)
	_ = n.AddEdge(ib, lb)
	_ = n.AddEdge(la, out)
	_ = n.AddEdge(lb, out)
	return n
}
