package analysis

import (
	"fmt"
	"math"

	"github.com/envelab/macrospice/pkg/circuit"
	"github.com/envelab/macrospice/pkg/device"
)

// ACAnalysis sweeps a small-signal solution around the operating point.
// Nonlinear devices stamp the Jacobian computed at the OP.
type ACAnalysis struct {
	BaseAnalysis
	op          *OperatingPoint
	startFreq   float64
	stopFreq    float64
	numPoints   int
	pointsType  string // DEC, OCT, LIN
	frequencies []float64
}

func NewAC(fStart, fStop float64, nPoints int, pType string) *ACAnalysis {
	return &ACAnalysis{
		BaseAnalysis: *NewBaseAnalysis(),
		op:           NewOP(),
		startFreq:    fStart,
		stopFreq:     fStop,
		numPoints:    nPoints,
		pointsType:   pType,
	}
}

func (ac *ACAnalysis) Setup(ckt *circuit.Circuit) error {
	ac.Circuit = ckt

	if err := ac.op.Setup(ckt); err != nil {
		return fmt.Errorf("operating point setup error: %v", err)
	}
	if err := ac.op.Execute(); err != nil {
		return fmt.Errorf("operating point analysis error: %v", err)
	}

	ac.generateFrequencyPoints()
	return nil
}

func (ac *ACAnalysis) Execute() error {
	if ac.Circuit == nil {
		return fmt.Errorf("circuit not set")
	}

	for _, freq := range ac.frequencies {
		ac.Circuit.Status = &device.CircuitStatus{
			Frequency: freq,
			Mode:      device.ACAnalysis,
			Temp:      ac.Circuit.Temp(),
		}

		mat := ac.Circuit.GetMatrix()
		mat.Clear()
		if err := ac.Circuit.Stamp(ac.Circuit.Status); err != nil {
			return fmt.Errorf("stamping error at f=%g: %v", freq, err)
		}

		if err := mat.Solve(); err != nil {
			return fmt.Errorf("matrix solve error at f=%g: %v", freq, err)
		}

		solution := make(map[string]complex128)
		for name, nodeIdx := range ac.Circuit.GetNodeMap() {
			re, im := mat.GetComplexSolution(nodeIdx)
			solution[fmt.Sprintf("V(%s)", name)] = complex(re, im)
		}
		for name, branchIdx := range ac.Circuit.GetBranchMap() {
			re, im := mat.GetComplexSolution(branchIdx)
			solution[fmt.Sprintf("I(%s)", name)] = complex(re, im)
		}

		ac.StoreACResult(freq, solution)
	}

	return nil
}

func (ac *ACAnalysis) generateFrequencyPoints() {
	if ac.numPoints < 2 {
		ac.frequencies = []float64{ac.startFreq}
		return
	}

	ac.frequencies = make([]float64, ac.numPoints)
	switch ac.pointsType {
	case "DEC":
		logStart := math.Log10(ac.startFreq)
		step := (math.Log10(ac.stopFreq) - logStart) / float64(ac.numPoints-1)
		for i := range ac.frequencies {
			ac.frequencies[i] = math.Pow(10, logStart+float64(i)*step)
		}
	case "OCT":
		logStart := math.Log2(ac.startFreq)
		step := (math.Log2(ac.stopFreq) - logStart) / float64(ac.numPoints-1)
		for i := range ac.frequencies {
			ac.frequencies[i] = math.Pow(2, logStart+float64(i)*step)
		}
	default: // LIN
		step := (ac.stopFreq - ac.startFreq) / float64(ac.numPoints-1)
		for i := range ac.frequencies {
			ac.frequencies[i] = ac.startFreq + float64(i)*step
		}
	}
}
