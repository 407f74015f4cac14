package analysis

import (
	"fmt"
	"math"

	"github.com/envelab/macrospice/pkg/circuit"
	"github.com/envelab/macrospice/pkg/device"
)

type Transient struct {
	BaseAnalysis
	op        *OperatingPoint
	time      float64
	startTime float64
	stopTime  float64
	timeStep  float64
	maxStep   float64
	minStep   float64
	useUIC    bool

	order     int // BE or TR
	firstTime bool
}

func NewTransient(tStart, tStop, tStep, tMax float64, uic bool) *Transient {
	if tMax == 0 {
		tMax = tStep
	}

	return &Transient{
		BaseAnalysis: *NewBaseAnalysis(),
		op:           NewOP(),
		startTime:    tStart,
		stopTime:     tStop,
		timeStep:     tStep,
		maxStep:      tMax,
		minStep:      tStep / 50.0,
		useUIC:       uic,
		order:        device.BE,
		firstTime:    true,
	}
}

func (tr *Transient) Setup(ckt *circuit.Circuit) error {
	tr.Circuit = ckt

	if !tr.useUIC {
		if err := tr.op.Setup(ckt); err != nil {
			return fmt.Errorf("operating point setup error: %v", err)
		}
		if err := tr.op.Execute(); err != nil {
			return fmt.Errorf("operating point analysis error: %v", err)
		}
		// Accept the DC solution as the t=0 state.
		tr.Circuit.Status.Method = tr.order
		tr.Circuit.SetTimeStep(tr.timeStep)
		tr.Circuit.Time = 0
		tr.Circuit.Update()
		tr.StoreTimeResult(0, tr.Circuit.GetSolution())
	}

	tr.Circuit.SetTimeStep(tr.timeStep)
	return nil
}

func (tr *Transient) Execute() error {
	if tr.Circuit == nil {
		return fmt.Errorf("circuit not set")
	}

	for tr.time < tr.stopTime {
		nextTime := tr.time + tr.timeStep
		if nextTime > tr.stopTime {
			// The final step shrinks to whatever remains, even below
			// minStep, so the last point lands exactly on stopTime.
			nextTime = tr.stopTime
			tr.timeStep = nextTime - tr.time
		}

		for {
			tr.Circuit.Status = &device.CircuitStatus{
				Time:     nextTime,
				TimeStep: tr.timeStep,
				Mode:     device.TransientAnalysis,
				Method:   tr.order,
				Temp:     tr.Circuit.Temp(),
			}
			tr.Circuit.SetTimeStep(tr.timeStep)

			err := tr.doNRiter(0, tr.convergence.maxIter)
			if err != nil {
				if tr.timeStep > tr.minStep {
					tr.timeStep /= 2
					nextTime = tr.time + tr.timeStep
					continue
				}
				return fmt.Errorf("failed to converge at t=%g: %v", tr.time, err)
			}

			if tr.firstTime {
				// Start conservatively on BE, then promote to TR.
				tr.firstTime = false
				tr.order = device.TR
				break
			}

			if tr.order == device.TR && tr.truncError() >= 1.0 {
				tr.order = device.BE
				if tr.timeStep > tr.minStep {
					tr.timeStep /= 8
					if tr.timeStep < tr.minStep {
						tr.timeStep = tr.minStep
					}
					nextTime = tr.time + tr.timeStep
					continue
				}
			}
			break
		}

		tr.Circuit.Time = nextTime
		tr.Circuit.Update()
		tr.time = nextTime
		if tr.time >= tr.startTime {
			tr.StoreTimeResult(tr.time, tr.Circuit.GetSolution())
		}

		// Grow the step back toward the ceiling after accepted points.
		if tr.time < tr.stopTime && tr.timeStep < tr.maxStep {
			tr.timeStep *= 1.2
			if tr.timeStep > tr.maxStep {
				tr.timeStep = tr.maxStep
			}
			tr.order = device.TR
		}
	}

	return nil
}

func (tr *Transient) doNRiter(gmin float64, maxIter int) error {
	ckt := tr.Circuit
	mat := ckt.GetMatrix()
	var oldSolution []float64

	cktStatus := ckt.Status

	for iter := 0; iter < maxIter; iter++ {
		mat.Clear()

		if iter > 0 {
			if err := ckt.UpdateNonlinearVoltages(oldSolution); err != nil {
				return fmt.Errorf("updating nonlinear voltages: %v", err)
			}
		}

		if err := ckt.Stamp(cktStatus); err != nil {
			return fmt.Errorf("stamping error: %v", err)
		}
		mat.LoadGmin(tr.convergence.gmin + gmin)

		if err := mat.Solve(); err != nil {
			return fmt.Errorf("matrix solve error: %v", err)
		}

		solution := mat.Solution()

		if iter > 0 {
			allConverged := true
			for i := 1; i < len(solution); i++ {
				diff := math.Abs(solution[i] - oldSolution[i])
				tol := tr.convergence.reltol*math.Max(math.Abs(solution[i]), math.Abs(oldSolution[i])) + tr.convergence.abstol
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

func (tr *Transient) truncError() float64 {
	maxLTE := 0.0
	for _, dev := range tr.Circuit.GetDevices() {
		if td, ok := dev.(device.TimeDependent); ok {
			if lte := td.CalculateLTE(tr.Circuit.GetSolution(), tr.Circuit.Status); lte > maxLTE {
				maxLTE = lte
			}
		}
	}
	return maxLTE
}
