package device

import (
	"fmt"
	"math"
	"sort"

	"github.com/envelab/macrospice/internal/consts"
	"github.com/envelab/macrospice/pkg/expr"
	"github.com/envelab/macrospice/pkg/matrix"
)

// Behavioral is the B element: a controlled source whose branch equation is
// an arbitrary expression of node voltages, branch currents, TIME and TEMP.
// It is the element vendor macro-models encode transfer functions with.
//
// I=expr stamps a Norton linearization around the present Newton iterate;
// V=expr owns a branch row like a voltage source, with Jacobian entries for
// the controlling variables placed in that row. The Jacobian is taken by
// forward differences per controlling node, so any expression the expr
// package can evaluate is supported without analytic derivatives.
type Behavioral struct {
	BaseDevice
	OutputsVoltage bool

	equation *expr.Expr
	params   map[string]float64

	ctrlNodes    map[string]int // referenced node name -> matrix index
	ctrlBranches map[string]int // referenced source name -> branch index

	branchIdx int
	iterate   []float64 // solution vector of the present Newton iterate
}

var _ NonLinear = (*Behavioral)(nil)

func NewBehavioral(name string, nodeNames []string, equation *expr.Expr, outputsVoltage bool) *Behavioral {
	return &Behavioral{
		BaseDevice: BaseDevice{
			Name:      name,
			Nodes:     make([]int, len(nodeNames)),
			NodeNames: nodeNames,
		},
		OutputsVoltage: outputsVoltage,
		equation:       equation,
		params:         map[string]float64{},
	}
}

func (b *Behavioral) GetType() string { return "B" }

func (b *Behavioral) BranchIndex() int       { return b.branchIdx }
func (b *Behavioral) SetBranchIndex(idx int) { b.branchIdx = idx }

// Bind resolves the expression's circuit references to matrix indices.
// nodeIndex must map ground to 0; branchIndex must reject unknown sources.
func (b *Behavioral) Bind(nodeIndex func(name string) (int, error), branchIndex func(name string) (int, error), params map[string]float64) error {
	b.ctrlNodes = make(map[string]int)
	b.ctrlBranches = make(map[string]int)

	for _, v := range b.equation.Vars() {
		switch v.Kind {
		case expr.VarVoltage:
			names := []string{v.Node1}
			if v.Node2 != "" {
				names = append(names, v.Node2)
			}
			for _, name := range names {
				idx, err := nodeIndex(name)
				if err != nil {
					return fmt.Errorf("bsource %s: %v", b.Name, err)
				}
				b.ctrlNodes[name] = idx
			}

		case expr.VarCurrent:
			idx, err := branchIndex(v.Name)
			if err != nil {
				return fmt.Errorf("bsource %s: %v", b.Name, err)
			}
			b.ctrlBranches[v.Name] = idx

		case expr.VarParam:
			if _, ok := params[v.Name]; !ok {
				return fmt.Errorf("bsource %s: undefined parameter %q", b.Name, v.Name)
			}
		}
	}

	b.params = params
	return nil
}

func (b *Behavioral) UpdateVoltages(voltages []float64) error {
	if len(b.iterate) != len(voltages) {
		b.iterate = make([]float64, len(voltages))
	}
	copy(b.iterate, voltages)
	return nil
}

func (b *Behavioral) atIterate(idx int) float64 {
	if idx <= 0 || idx >= len(b.iterate) {
		return 0
	}
	return b.iterate[idx]
}

// evalEnv evaluates the equation over the present iterate, with at most one
// perturbed quantity (a node voltage or a branch current, keyed by name).
func (b *Behavioral) evalEnv(status *CircuitStatus, perturbNode, perturbBranch string, delta float64) *expr.Env {
	return &expr.Env{
		Time: status.Time,
		Temp: status.TempOrDefault() - consts.KELVIN,
		NodeVoltage: func(node string) float64 {
			val := b.atIterate(b.ctrlNodes[node])
			if node == perturbNode {
				val += delta
			}
			return val
		},
		BranchCurrent: func(name string) float64 {
			val := b.atIterate(b.ctrlBranches[name])
			if name == perturbBranch {
				val += delta
			}
			return val
		},
		Params: b.params,
	}
}

type bsourceLinearization struct {
	nodeGrad     map[string]float64 // df/dV(node)
	branchGrad   map[string]float64 // df/dI(source)
	equivalentF0 float64            // f0 minus gradient terms at the iterate
}

func (b *Behavioral) linearize(status *CircuitStatus) (*bsourceLinearization, error) {
	f0, err := b.equation.Eval(b.evalEnv(status, "", "", 0))
	if err != nil {
		return nil, err
	}

	lin := &bsourceLinearization{
		nodeGrad:     make(map[string]float64, len(b.ctrlNodes)),
		branchGrad:   make(map[string]float64, len(b.ctrlBranches)),
		equivalentF0: f0,
	}

	for _, name := range sortedKeys(b.ctrlNodes) {
		x0 := b.atIterate(b.ctrlNodes[name])
		delta := 1e-6 * math.Max(1, math.Abs(x0))
		f1, err := b.equation.Eval(b.evalEnv(status, name, "", delta))
		if err != nil {
			return nil, err
		}
		g := (f1 - f0) / delta
		lin.nodeGrad[name] = g
		lin.equivalentF0 -= g * x0
	}
	for _, name := range sortedKeys(b.ctrlBranches) {
		x0 := b.atIterate(b.ctrlBranches[name])
		delta := 1e-6 * math.Max(1, math.Abs(x0))
		f1, err := b.equation.Eval(b.evalEnv(status, "", name, delta))
		if err != nil {
			return nil, err
		}
		g := (f1 - f0) / delta
		lin.branchGrad[name] = g
		lin.equivalentF0 -= g * x0
	}

	return lin, nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (b *Behavioral) Stamp(mat matrix.DeviceMatrix, status *CircuitStatus) error {
	if len(b.Nodes) != 2 {
		return fmt.Errorf("bsource %s: requires exactly 2 nodes", b.Name)
	}

	lin, err := b.linearize(status)
	if err != nil {
		return fmt.Errorf("bsource %s: %v", b.Name, err)
	}

	if b.OutputsVoltage {
		return b.stampVoltage(mat, status, lin)
	}
	return b.stampCurrent(mat, status, lin)
}

// stampCurrent: I(n1->n2) = f(x), stamped as conductance columns for every
// controlling quantity plus the Norton equivalent current.
func (b *Behavioral) stampCurrent(mat matrix.DeviceMatrix, status *CircuitStatus, lin *bsourceLinearization) error {
	n1, n2 := b.Nodes[0], b.Nodes[1]
	complexMode := status.Mode == ACAnalysis

	add := func(i, j int, v float64) {
		if complexMode {
			mat.AddComplexElement(i, j, v, 0)
		} else {
			mat.AddElement(i, j, v)
		}
	}

	stampColumn := func(col int, g float64) {
		if col == 0 || g == 0 {
			return
		}
		if n1 != 0 {
			add(n1, col, g)
		}
		if n2 != 0 {
			add(n2, col, -g)
		}
	}

	for name, g := range lin.nodeGrad {
		stampColumn(b.ctrlNodes[name], g)
	}
	for name, g := range lin.branchGrad {
		stampColumn(b.ctrlBranches[name], g)
	}

	if complexMode {
		// Small-signal: the linearized conductances alone carry the response.
		return nil
	}

	if n1 != 0 {
		mat.AddRHS(n1, -lin.equivalentF0)
	}
	if n2 != 0 {
		mat.AddRHS(n2, lin.equivalentF0)
	}
	return nil
}

// stampVoltage: branch row v(n1) - v(n2) - f(x) = 0, linearized in the
// branch row only; node rows carry the branch current as usual.
func (b *Behavioral) stampVoltage(mat matrix.DeviceMatrix, status *CircuitStatus, lin *bsourceLinearization) error {
	if b.branchIdx == 0 {
		return fmt.Errorf("bsource %s: branch index not assigned", b.Name)
	}

	n1, n2 := b.Nodes[0], b.Nodes[1]
	bIdx := b.branchIdx
	complexMode := status.Mode == ACAnalysis

	add := func(i, j int, v float64) {
		if complexMode {
			mat.AddComplexElement(i, j, v, 0)
		} else {
			mat.AddElement(i, j, v)
		}
	}

	if n1 != 0 {
		add(bIdx, n1, 1)
		add(n1, bIdx, 1)
	}
	if n2 != 0 {
		add(bIdx, n2, -1)
		add(n2, bIdx, -1)
	}

	for name, g := range lin.nodeGrad {
		if col := b.ctrlNodes[name]; col != 0 && g != 0 {
			add(bIdx, col, -g)
		}
	}
	for name, g := range lin.branchGrad {
		if col := b.ctrlBranches[name]; col != 0 && g != 0 {
			add(bIdx, col, -g)
		}
	}

	if complexMode {
		return nil
	}
	mat.AddRHS(bIdx, lin.equivalentF0)
	return nil
}
