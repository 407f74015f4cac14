package device

import (
	"github.com/envelab/macrospice/internal/consts"
	"github.com/envelab/macrospice/pkg/matrix"
)

type Device interface {
	GetName() string
	GetType() string
	GetNodeNames() []string
	GetNodes() []int
	GetValue() float64
	SetNodes(nodes []int)
	Stamp(matrix matrix.DeviceMatrix, status *CircuitStatus) error
}

// Branched devices own an extra MNA row for their branch current:
// voltage sources, VCVS, and voltage-output behavioral sources.
type Branched interface {
	Device
	BranchIndex() int
	SetBranchIndex(idx int)
}

type ACElement interface {
	StampAC(matrix matrix.DeviceMatrix, status *CircuitStatus) error
}

type TimeDependent interface {
	SetTimeStep(dt float64)
	UpdateState(voltages []float64, status *CircuitStatus)
	CalculateLTE(voltages map[string]float64, status *CircuitStatus) float64
}

type NonLinear interface {
	UpdateVoltages(voltages []float64) error
}

type BaseDevice struct {
	Name      string
	Nodes     []int
	Value     float64
	NodeNames []string
}

func (d *BaseDevice) GetName() string        { return d.Name }
func (d *BaseDevice) GetNodes() []int        { return d.Nodes }
func (d *BaseDevice) GetNodeNames() []string { return d.NodeNames }
func (d *BaseDevice) GetValue() float64      { return d.Value }
func (d *BaseDevice) SetNodes(nodes []int)   { d.Nodes = nodes }

type ModelParam struct {
	Type   string
	Name   string
	Params map[string]float64
}

type SourceType int

const (
	DC SourceType = iota
	SIN
	PULSE
	PWL
	AC
)

type AnalysisMode int

const (
	OperatingPointAnalysis AnalysisMode = iota
	TransientAnalysis
	ACAnalysis
	DCSweep
)

// Integration order markers used by transient analysis.
const (
	BE = 1 // backward Euler
	TR = 2 // trapezoidal
)

type CircuitStatus struct {
	Time      float64
	TimeStep  float64
	Gmin      float64
	Mode      AnalysisMode
	Method    int     // BE or TR
	Temp      float64 // Kelvin
	Frequency float64 // AC sweep point
}

// TempOrDefault falls back to nominal temperature for unset status.
func (s *CircuitStatus) TempOrDefault() float64 {
	if s == nil || s.Temp <= 0 {
		return consts.TNOM
	}
	return s.Temp
}
