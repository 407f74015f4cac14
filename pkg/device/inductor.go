package device

import (
	"fmt"
	"math"

	"github.com/envelab/macrospice/pkg/matrix"
)

type Inductor struct {
	BaseDevice
	current     float64
	prevCurrent float64
	voltage     float64
	timeStep    float64
}

var _ TimeDependent = (*Inductor)(nil)

// dcShortConductance approximates the inductor's zero DC resistance at the
// operating point without making the matrix singular.
const dcShortConductance = 1e9

func NewInductor(name string, nodeNames []string, value float64) *Inductor {
	return &Inductor{
		BaseDevice: BaseDevice{
			Name:      name,
			Nodes:     make([]int, len(nodeNames)),
			NodeNames: nodeNames,
			Value:     value,
		},
	}
}

func (l *Inductor) GetType() string { return "L" }

func (l *Inductor) Stamp(matrix matrix.DeviceMatrix, status *CircuitStatus) error {
	if len(l.Nodes) != 2 {
		return fmt.Errorf("inductor %s: requires exactly 2 nodes", l.Name)
	}

	n1, n2 := l.Nodes[0], l.Nodes[1]

	switch status.Mode {
	case ACAnalysis:
		omega := 2 * math.Pi * status.Frequency
		if omega == 0 {
			stampConductance(matrix, n1, n2, dcShortConductance)
			return nil
		}
		// Admittance 1/(jwL) = -j/(wL)
		b := -1.0 / (omega * l.Value)
		if n1 != 0 {
			matrix.AddComplexElement(n1, n1, 0, b)
			if n2 != 0 {
				matrix.AddComplexElement(n1, n2, 0, -b)
			}
		}
		if n2 != 0 {
			if n1 != 0 {
				matrix.AddComplexElement(n2, n1, 0, -b)
			}
			matrix.AddComplexElement(n2, n2, 0, b)
		}

	case OperatingPointAnalysis:
		stampConductance(matrix, n1, n2, dcShortConductance)

	case TransientAnalysis:
		dt := status.TimeStep
		if dt <= 0 {
			return fmt.Errorf("inductor %s: invalid timestep %g", l.Name, dt)
		}

		// Norton companion: geq with a history current source.
		var geq, ieq float64
		if status.Method == TR {
			geq = dt / (2 * l.Value)
			ieq = l.current + geq*l.voltage
		} else {
			geq = dt / l.Value
			ieq = l.current
		}

		stampConductance(matrix, n1, n2, geq)
		if n1 != 0 {
			matrix.AddRHS(n1, -ieq)
		}
		if n2 != 0 {
			matrix.AddRHS(n2, ieq)
		}
	}

	return nil
}

func (l *Inductor) SetTimeStep(dt float64) { l.timeStep = dt }

func (l *Inductor) UpdateState(voltages []float64, status *CircuitStatus) {
	v := nodePairVoltage(voltages, l.Nodes[0], l.Nodes[1])

	l.prevCurrent = l.current
	if status.TimeStep > 0 {
		if status.Method == TR {
			l.current += status.TimeStep / (2 * l.Value) * (v + l.voltage)
		} else {
			l.current += status.TimeStep / l.Value * v
		}
	}
	l.voltage = v
}

func (l *Inductor) CalculateLTE(voltages map[string]float64, status *CircuitStatus) float64 {
	if status.TimeStep <= 0 {
		return 0
	}
	di := math.Abs(l.current - l.prevCurrent)
	scale := math.Max(math.Abs(l.current), math.Abs(l.prevCurrent)) + 1e-12
	return di / (scale * 100)
}

func (l *Inductor) Current() float64 { return l.current }
