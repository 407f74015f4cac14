package device

import (
	"fmt"

	"github.com/envelab/macrospice/pkg/matrix"
)

// VCCS is the linear G element: I(n1->n2) = gm * V(nc1,nc2).
// Nodes are ordered out+, out-, ctrl+, ctrl-.
type VCCS struct {
	BaseDevice
	gm float64
}

func NewVCCS(name string, nodeNames []string, gm float64) *VCCS {
	return &VCCS{
		BaseDevice: BaseDevice{
			Name:      name,
			Nodes:     make([]int, len(nodeNames)),
			NodeNames: nodeNames,
			Value:     gm,
		},
		gm: gm,
	}
}

func (g *VCCS) GetType() string { return "G" }

func (g *VCCS) Stamp(matrix matrix.DeviceMatrix, status *CircuitStatus) error {
	if len(g.Nodes) != 4 {
		return fmt.Errorf("vccs %s: requires exactly 4 nodes", g.Name)
	}

	n1, n2 := g.Nodes[0], g.Nodes[1]
	nc1, nc2 := g.Nodes[2], g.Nodes[3]

	add := matrix.AddElement
	if status.Mode == ACAnalysis {
		add = func(i, j int, v float64) { matrix.AddComplexElement(i, j, v, 0) }
	}

	if n1 != 0 {
		if nc1 != 0 {
			add(n1, nc1, g.gm)
		}
		if nc2 != 0 {
			add(n1, nc2, -g.gm)
		}
	}
	if n2 != 0 {
		if nc1 != 0 {
			add(n2, nc1, -g.gm)
		}
		if nc2 != 0 {
			add(n2, nc2, g.gm)
		}
	}

	return nil
}
