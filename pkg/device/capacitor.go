package device

import (
	"fmt"
	"math"

	"github.com/envelab/macrospice/pkg/matrix"
)

type Capacitor struct {
	BaseDevice
	voltage     float64 // voltage at the last accepted timepoint
	prevVoltage float64
	current     float64
	prevCurrent float64
	timeStep    float64
}

var _ TimeDependent = (*Capacitor)(nil)

func NewCapacitor(name string, nodeNames []string, value float64) *Capacitor {
	return &Capacitor{
		BaseDevice: BaseDevice{
			Name:      name,
			Nodes:     make([]int, len(nodeNames)),
			NodeNames: nodeNames,
			Value:     value,
		},
	}
}

func (c *Capacitor) GetType() string { return "C" }

func (c *Capacitor) Stamp(matrix matrix.DeviceMatrix, status *CircuitStatus) error {
	if len(c.Nodes) != 2 {
		return fmt.Errorf("capacitor %s: requires exactly 2 nodes", c.Name)
	}

	n1, n2 := c.Nodes[0], c.Nodes[1]

	switch status.Mode {
	case ACAnalysis:
		omega := 2 * math.Pi * status.Frequency
		b := omega * c.Value // jwC
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
		// Open circuit at DC; a small conductance keeps the matrix regular.
		gmin := status.Gmin
		if gmin < 1e-12 {
			gmin = 1e-12
		}
		stampConductance(matrix, n1, n2, gmin)

	case TransientAnalysis:
		dt := status.TimeStep
		if dt <= 0 {
			return fmt.Errorf("capacitor %s: invalid timestep %g", c.Name, dt)
		}

		// Companion model: geq in parallel with a history current source.
		var geq, ieq float64
		if status.Method == TR {
			geq = 2 * c.Value / dt
			ieq = geq*c.voltage + c.current
		} else {
			geq = c.Value / dt
			ieq = geq * c.voltage
		}

		stampConductance(matrix, n1, n2, geq)
		if n1 != 0 {
			matrix.AddRHS(n1, ieq)
		}
		if n2 != 0 {
			matrix.AddRHS(n2, -ieq)
		}
	}

	return nil
}

func (c *Capacitor) SetTimeStep(dt float64) { c.timeStep = dt }

func (c *Capacitor) UpdateState(voltages []float64, status *CircuitStatus) {
	v := nodePairVoltage(voltages, c.Nodes[0], c.Nodes[1])

	c.prevVoltage = c.voltage
	c.prevCurrent = c.current
	if status.TimeStep > 0 {
		if status.Method == TR {
			c.current = 2*c.Value/status.TimeStep*(v-c.voltage) - c.current
		} else {
			c.current = c.Value / status.TimeStep * (v - c.voltage)
		}
	}
	c.voltage = v
}

// CalculateLTE estimates local truncation error from the charge history,
// normalized so values above 1 reject the step.
func (c *Capacitor) CalculateLTE(voltages map[string]float64, status *CircuitStatus) float64 {
	if status.TimeStep <= 0 {
		return 0
	}
	di := math.Abs(c.current - c.prevCurrent)
	scale := math.Max(math.Abs(c.current), math.Abs(c.prevCurrent)) + 1e-12
	return di / (scale * 100)
}

func stampConductance(matrix matrix.DeviceMatrix, n1, n2 int, g float64) {
	if n1 != 0 {
		matrix.AddElement(n1, n1, g)
		if n2 != 0 {
			matrix.AddElement(n1, n2, -g)
		}
	}
	if n2 != 0 {
		if n1 != 0 {
			matrix.AddElement(n2, n1, -g)
		}
		matrix.AddElement(n2, n2, g)
	}
}

func nodePairVoltage(solution []float64, n1, n2 int) float64 {
	var v1, v2 float64
	if n1 > 0 && n1 < len(solution) {
		v1 = solution[n1]
	}
	if n2 > 0 && n2 < len(solution) {
		v2 = solution[n2]
	}
	return v1 - v2
}
