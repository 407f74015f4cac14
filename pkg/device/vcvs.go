package device

import (
	"fmt"

	"github.com/envelab/macrospice/pkg/matrix"
)

// VCVS is the linear E element: V(n1,n2) = gain * V(nc1,nc2).
// Nodes are ordered out+, out-, ctrl+, ctrl-.
type VCVS struct {
	BaseDevice
	gain      float64
	branchIdx int
}

var _ Branched = (*VCVS)(nil)

func NewVCVS(name string, nodeNames []string, gain float64) *VCVS {
	return &VCVS{
		BaseDevice: BaseDevice{
			Name:      name,
			Nodes:     make([]int, len(nodeNames)),
			NodeNames: nodeNames,
			Value:     gain,
		},
		gain: gain,
	}
}

func (e *VCVS) GetType() string { return "E" }

func (e *VCVS) BranchIndex() int       { return e.branchIdx }
func (e *VCVS) SetBranchIndex(idx int) { e.branchIdx = idx }

func (e *VCVS) Stamp(matrix matrix.DeviceMatrix, status *CircuitStatus) error {
	if len(e.Nodes) != 4 {
		return fmt.Errorf("vcvs %s: requires exactly 4 nodes", e.Name)
	}
	if e.branchIdx == 0 {
		return fmt.Errorf("vcvs %s: branch index not assigned", e.Name)
	}

	n1, n2 := e.Nodes[0], e.Nodes[1]
	nc1, nc2 := e.Nodes[2], e.Nodes[3]
	b := e.branchIdx

	add := matrix.AddElement
	if status.Mode == ACAnalysis {
		add = func(i, j int, v float64) { matrix.AddComplexElement(i, j, v, 0) }
	}

	// Branch row: v(n1) - v(n2) - gain*(v(nc1) - v(nc2)) = 0.
	if n1 != 0 {
		add(b, n1, 1)
		add(n1, b, 1)
	}
	if n2 != 0 {
		add(b, n2, -1)
		add(n2, b, -1)
	}
	if nc1 != 0 {
		add(b, nc1, -e.gain)
	}
	if nc2 != 0 {
		add(b, nc2, e.gain)
	}

	return nil
}
