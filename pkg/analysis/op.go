package analysis

import (
	"fmt"
	"math"

	"github.com/envelab/macrospice/pkg/circuit"
	"github.com/envelab/macrospice/pkg/device"
)

type OperatingPoint struct{ BaseAnalysis }

func NewOP() *OperatingPoint {
	return &OperatingPoint{BaseAnalysis: *NewBaseAnalysis()}
}

func (op *OperatingPoint) Setup(ckt *circuit.Circuit) error {
	op.Circuit = ckt
	return nil
}

func (op *OperatingPoint) doNRiter(gmin float64, maxIter int) error {
	ckt := op.Circuit
	mat := ckt.GetMatrix()
	var oldSolution []float64

	cktStatus := &device.CircuitStatus{
		Mode: device.OperatingPointAnalysis,
		Temp: ckt.Temp(),
		Gmin: gmin,
	}

	for iter := 0; iter < maxIter; iter++ {
		mat.Clear()

		// The first iteration has no previous iterate to linearize around.
		if iter > 0 {
			if err := ckt.UpdateNonlinearVoltages(oldSolution); err != nil {
				return fmt.Errorf("updating nonlinear voltages: %v", err)
			}
		}

		if err := ckt.Stamp(cktStatus); err != nil {
			return fmt.Errorf("stamping error: %v", err)
		}
		mat.LoadGmin(gmin)

		if err := mat.Solve(); err != nil {
			return fmt.Errorf("matrix solve error: %v", err)
		}

		solution := mat.Solution()

		if iter > 0 {
			allConverged := true
			for i := 1; i < len(solution); i++ {
				diff := math.Abs(solution[i] - oldSolution[i])
				tol := op.convergence.reltol*math.Max(math.Abs(solution[i]), math.Abs(oldSolution[i])) + op.convergence.abstol
				if diff > tol {
					allConverged = false
					break
				}
			}
			if allConverged {
				return nil
			}
		}

		if oldSolution == nil {
			oldSolution = make([]float64, len(solution))
		}
		copy(oldSolution, solution)
	}

	return fmt.Errorf("failed to converge in %d iterations", maxIter)
}

func (op *OperatingPoint) Execute() error {
	ckt := op.Circuit
	mat := ckt.GetMatrix()

	if err := op.doNRiter(0, op.convergence.maxIter); err == nil {
		op.storeResults(mat.Solution())
		return nil
	}

	// Gmin stepping: converge with heavy diagonal loading, then relax.
	numGminSteps := 10
	startGmin := float64(mat.Size) * 0.001
	gmin := startGmin * math.Pow(10, float64(numGminSteps))

	for i := 0; i <= numGminSteps; i++ {
		if err := op.doNRiter(gmin, op.convergence.maxIter); err != nil {
			return fmt.Errorf("gmin stepping failed at %g: %v", gmin, err)
		}
		gmin /= 10
	}

	if err := op.doNRiter(0, op.convergence.maxIter); err != nil {
		return fmt.Errorf("final solution failed with zero gmin: %v", err)
	}

	op.storeResults(mat.Solution())
	return nil
}
