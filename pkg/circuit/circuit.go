// Package circuit assembles a parsed deck into an MNA system: node and
// branch index assignment, device construction, stamping and solution
// extraction.
package circuit

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/envelab/macrospice/internal/consts"
	"github.com/envelab/macrospice/pkg/device"
	"github.com/envelab/macrospice/pkg/matrix"
	"github.com/envelab/macrospice/pkg/netlist"
)

type Circuit struct {
	name             string
	nodeMap          map[string]int
	branchMap        map[string]int
	devices          []device.Device
	numNodes         int
	matrix           *matrix.CircuitMatrix
	Status           *device.CircuitStatus
	Time             float64
	timeStep         float64
	temp             float64 // Kelvin
	isComplex        bool
	nonlinearDevices []device.NonLinear
	models           map[string]device.ModelParam
}

func New(name string) *Circuit {
	return NewWithComplex(name, false)
}

func NewWithComplex(name string, isComplex bool) *Circuit {
	return &Circuit{
		name:      name,
		nodeMap:   make(map[string]int),
		branchMap: make(map[string]int),
		Status:    &device.CircuitStatus{},
		temp:      consts.TNOM,
		isComplex: isComplex,
		models:    make(map[string]device.ModelParam),
	}
}

// FromDeck builds a ready-to-analyze circuit from a parsed netlist:
// subcircuits flattened, maps assigned, matrix sized, devices created and
// behavioral sources bound.
func FromDeck(deck *netlist.Deck, isComplex bool) (*Circuit, error) {
	ckt := NewWithComplex(deck.Title, isComplex)
	ckt.models = deck.Models
	ckt.temp = deck.Temp

	elements, err := deck.Flatten()
	if err != nil {
		return nil, err
	}

	ckt.assignMaps(elements)
	if err := ckt.createMatrix(); err != nil {
		return nil, err
	}
	if err := ckt.setupDevices(elements, deck.Params); err != nil {
		return nil, err
	}
	return ckt, nil
}

func needsBranch(elem *netlist.Element) bool {
	switch elem.Type {
	case "V", "E":
		return true
	case "B":
		return elem.Params["output"] == "v"
	}
	return false
}

func (c *Circuit) assignMaps(elements []netlist.Element) {
	for _, elem := range elements {
		for _, nodeName := range elem.Nodes {
			if nodeName == "0" || nodeName == "gnd" {
				continue
			}
			if _, exists := c.nodeMap[nodeName]; !exists {
				c.nodeMap[nodeName] = len(c.nodeMap) + 1
			}
		}
	}

	branchStart := len(c.nodeMap) + 1
	for i := range elements {
		if needsBranch(&elements[i]) {
			c.branchMap[elements[i].Name] = branchStart
			branchStart++
		}
	}

	c.numNodes = len(c.nodeMap)
}

func (c *Circuit) createMatrix() error {
	size := len(c.nodeMap) + len(c.branchMap)
	if size == 0 {
		return errors.New("empty circuit")
	}
	mat, err := matrix.NewMatrix(size, c.isComplex)
	if err != nil {
		return err
	}
	c.matrix = mat
	return nil
}

func (c *Circuit) setupDevices(elements []netlist.Element, globalParams map[string]float64) error {
	for i := range elements {
		elem := elements[i]

		dev, err := netlist.CreateDevice(elem, c.models, globalParams)
		if err != nil {
			return errors.Wrapf(err, "creating device %s", elem.Name)
		}

		nodeIndices := make([]int, len(elem.Nodes))
		for j, nodeName := range elem.Nodes {
			if nodeName == "0" || nodeName == "gnd" {
				continue
			}
			nodeIndices[j] = c.nodeMap[nodeName]
		}
		dev.SetNodes(nodeIndices)

		if br, ok := dev.(device.Branched); ok {
			if idx, exists := c.branchMap[elem.Name]; exists {
				br.SetBranchIndex(idx)
			}
		}

		if bsrc, ok := dev.(*device.Behavioral); ok {
			if err := c.bindBehavioral(bsrc, &elem, globalParams); err != nil {
				return err
			}
		}

		if nl, ok := dev.(device.NonLinear); ok {
			c.nonlinearDevices = append(c.nonlinearDevices, nl)
		}
		c.devices = append(c.devices, dev)
	}

	// Initial stamp allocates the sparse structure.
	if err := c.Stamp(&device.CircuitStatus{Temp: c.temp}); err != nil {
		return errors.Wrap(err, "initial stamping failed")
	}
	c.matrix.SetupElements()

	return nil
}

// bindBehavioral resolves an expression's V()/I() references through the
// element's subcircuit scope into matrix indices.
func (c *Circuit) bindBehavioral(bsrc *device.Behavioral, elem *netlist.Element, globalParams map[string]float64) error {
	nodeIndex := func(name string) (int, error) {
		resolved := elem.ResolveNode(name)
		if resolved == "0" || resolved == "gnd" {
			return 0, nil
		}
		idx, ok := c.nodeMap[resolved]
		if !ok {
			return 0, fmt.Errorf("unknown node %q", resolved)
		}
		return idx, nil
	}
	branchIndex := func(name string) (int, error) {
		resolved := elem.ResolveBranch(name)
		idx, ok := c.branchMap[resolved]
		if !ok {
			return 0, fmt.Errorf("no branch current for %q (only voltage-defined sources carry one)", resolved)
		}
		return idx, nil
	}

	scope := globalParams
	if elem.Scope != nil {
		scope = elem.Scope
	}
	return bsrc.Bind(nodeIndex, branchIndex, scope)
}

func (c *Circuit) Stamp(status *device.CircuitStatus) error {
	for _, dev := range c.devices {
		if err := dev.Stamp(c.matrix, status); err != nil {
			return fmt.Errorf("stamping device %s: %v", dev.GetName(), err)
		}
	}
	return nil
}

func (c *Circuit) SetTimeStep(dt float64) {
	c.timeStep = dt
	for _, dev := range c.devices {
		if td, ok := dev.(device.TimeDependent); ok {
			td.SetTimeStep(dt)
		}
	}
}

// Update accepts the present solution as a timepoint: time-dependent devices
// roll their state forward.
func (c *Circuit) Update() {
	solution := c.matrix.Solution()

	c.Status = &device.CircuitStatus{
		Time:     c.Time,
		TimeStep: c.timeStep,
		Gmin:     1e-12,
		Mode:     device.TransientAnalysis,
		Method:   c.Status.Method,
		Temp:     c.temp,
	}

	for _, dev := range c.devices {
		if td, ok := dev.(device.TimeDependent); ok {
			td.UpdateState(solution, c.Status)
		}
	}
}

func (c *Circuit) UpdateNonlinearVoltages(solution []float64) error {
	for _, nl := range c.nonlinearDevices {
		if err := nl.UpdateVoltages(solution); err != nil {
			return fmt.Errorf("updating nonlinear voltages: %v", err)
		}
	}
	return nil
}

// GetSolution returns node voltages and source branch currents keyed in the
// conventional "V(node)" / "I(name)" form.
func (c *Circuit) GetSolution() map[string]float64 {
	solution := make(map[string]float64)
	matrixSolution := c.matrix.Solution()

	for name, idx := range c.nodeMap {
		solution[fmt.Sprintf("V(%s)", name)] = matrixSolution[idx]
	}
	for name, idx := range c.branchMap {
		solution[fmt.Sprintf("I(%s)", name)] = -matrixSolution[idx]
	}

	return solution
}

func (c *Circuit) GetNodeVoltage(nodeIdx int) float64 {
	if nodeIdx <= 0 {
		return 0
	}
	solution := c.matrix.Solution()
	if nodeIdx >= len(solution) {
		return 0
	}
	return solution[nodeIdx]
}

// NodeIndex returns the matrix row of a node name, 0 for ground, -1 when
// the node does not exist.
func (c *Circuit) NodeIndex(name string) int {
	name = strings.ToLower(name)
	if name == "0" || name == "gnd" {
		return 0
	}
	if idx, ok := c.nodeMap[name]; ok {
		return idx
	}
	return -1
}

func (c *Circuit) Name() string                         { return c.name }
func (c *Circuit) Temp() float64                        { return c.temp }
func (c *Circuit) GetMatrix() *matrix.CircuitMatrix     { return c.matrix }
func (c *Circuit) GetNodeMap() map[string]int           { return c.nodeMap }
func (c *Circuit) GetBranchMap() map[string]int         { return c.branchMap }
func (c *Circuit) GetDevices() []device.Device          { return c.devices }
func (c *Circuit) GetNumNodes() int                     { return c.numNodes }
func (c *Circuit) Models() map[string]device.ModelParam { return c.models }

func (c *Circuit) Destroy() {
	if c.matrix != nil {
		c.matrix.Destroy()
	}
}
