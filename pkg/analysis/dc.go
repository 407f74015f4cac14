package analysis

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/envelab/macrospice/pkg/circuit"
)

// sweepSource is satisfied by the independent sources.
type sweepSource interface {
	GetName() string
	SetValue(value float64)
	GetValue() float64
}

// DCSweep steps one independent source through a value range and records
// the operating point at every step.
type DCSweep struct {
	BaseAnalysis
	op         *OperatingPoint
	sourceName string
	start      float64
	stop       float64
	increment  float64
}

func NewDCSweep(source string, start, stop, increment float64) *DCSweep {
	return &DCSweep{
		BaseAnalysis: *NewBaseAnalysis(),
		op:           NewOP(),
		sourceName:   strings.ToLower(source),
		start:        start,
		stop:         stop,
		increment:    increment,
	}
}

func (dc *DCSweep) Setup(ckt *circuit.Circuit) error {
	dc.Circuit = ckt
	return dc.op.Setup(ckt)
}

func (dc *DCSweep) Execute() error {
	if dc.Circuit == nil {
		return errors.New("circuit not set")
	}
	if dc.increment <= 0 {
		return errors.Errorf("sweep increment must be positive, got %g", dc.increment)
	}

	src, err := dc.findSource()
	if err != nil {
		return err
	}
	restore := src.GetValue()
	defer src.SetValue(restore)

	mat := dc.Circuit.GetMatrix()
	// Half an increment of slack so the stop value itself is swept even
	// when accumulated float error overshoots it.
	for value := dc.start; value <= dc.stop+dc.increment/2; value += dc.increment {
		src.SetValue(value)

		if err := dc.op.doNRiter(0, dc.convergence.maxIter); err != nil {
			return errors.Wrapf(err, "sweep failed at %s=%g", dc.sourceName, value)
		}

		dc.results["SWEEP"] = append(dc.results["SWEEP"], value)
		dc.storeResults(mat.Solution())
	}

	return nil
}

func (dc *DCSweep) findSource() (sweepSource, error) {
	for _, dev := range dc.Circuit.GetDevices() {
		src, ok := dev.(sweepSource)
		if !ok {
			continue
		}
		if strings.ToLower(src.GetName()) == dc.sourceName {
			return src, nil
		}
	}
	return nil, errors.Errorf("sweep source %q not found", dc.sourceName)
}
