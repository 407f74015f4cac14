package device

import (
	"fmt"
	"math"

	"github.com/envelab/macrospice/pkg/matrix"
)

type VoltageSource struct {
	BaseDevice
	vtype SourceType
	// DC / offset value
	dcValue float64
	// SIN
	amplitude float64
	freq      float64
	phase     float64
	// PULSE
	v1     float64
	v2     float64
	delay  float64
	rise   float64
	fall   float64
	pWidth float64
	period float64
	// PWL
	times  []float64
	values []float64
	// AC
	acMag   float64
	acPhase float64

	branchIdx int
}

var _ Branched = (*VoltageSource)(nil)

func newVoltageSource(name string, nodeNames []string, vtype SourceType, value float64) *VoltageSource {
	return &VoltageSource{
		BaseDevice: BaseDevice{
			Name:      name,
			Nodes:     make([]int, len(nodeNames)),
			NodeNames: nodeNames,
			Value:     value,
		},
		vtype:   vtype,
		dcValue: value,
	}
}

func NewDCVoltageSource(name string, nodeNames []string, value float64) *VoltageSource {
	return newVoltageSource(name, nodeNames, DC, value)
}

func NewSinVoltageSource(name string, nodeNames []string, offset, amplitude, freq, phase float64) *VoltageSource {
	v := newVoltageSource(name, nodeNames, SIN, offset)
	v.amplitude = amplitude
	v.freq = freq
	v.phase = phase
	return v
}

func NewPulseVoltageSource(name string, nodeNames []string, v1, v2, delay, rise, fall, pWidth, period float64) *VoltageSource {
	v := newVoltageSource(name, nodeNames, PULSE, v1)
	v.v1 = v1
	v.v2 = v2
	v.delay = delay
	v.rise = rise
	v.fall = fall
	v.pWidth = pWidth
	v.period = period
	return v
}

func NewPWLVoltageSource(name string, nodeNames []string, times, values []float64) *VoltageSource {
	v := newVoltageSource(name, nodeNames, PWL, 0)
	if len(values) > 0 {
		v.dcValue = values[0]
		v.Value = values[0]
	}
	v.times = times
	v.values = values
	return v
}

func NewACVoltageSource(name string, nodeNames []string, dcValue, acMag, acPhase float64) *VoltageSource {
	v := newVoltageSource(name, nodeNames, AC, dcValue)
	v.acMag = acMag
	v.acPhase = acPhase
	return v
}

func (v *VoltageSource) GetType() string { return "V" }

func (v *VoltageSource) BranchIndex() int       { return v.branchIdx }
func (v *VoltageSource) SetBranchIndex(idx int) { v.branchIdx = idx }

// SetValue overrides the DC level; DC sweep uses this.
func (v *VoltageSource) SetValue(value float64) {
	v.Value = value
	v.dcValue = value
}

func (v *VoltageSource) GetVoltage(t float64) float64 {
	switch v.vtype {
	case SIN:
		phaseRad := v.phase * math.Pi / 180.0
		return v.dcValue + v.amplitude*math.Sin(2.0*math.Pi*v.freq*t+phaseRad)
	case PULSE:
		return pulseValue(t, v.v1, v.v2, v.delay, v.rise, v.fall, v.pWidth, v.period)
	case PWL:
		return pwlValue(t, v.times, v.values)
	default:
		return v.dcValue
	}
}

func (v *VoltageSource) Stamp(matrix matrix.DeviceMatrix, status *CircuitStatus) error {
	if status.Mode == ACAnalysis {
		return v.StampAC(matrix, status)
	}
	if v.branchIdx == 0 {
		return fmt.Errorf("voltage source %s: branch index not assigned", v.Name)
	}

	n1, n2 := v.Nodes[0], v.Nodes[1]
	bIdx := v.branchIdx

	// Branch row: v1 - v2 = V; node rows carry the branch current.
	if n1 != 0 {
		matrix.AddElement(bIdx, n1, 1)
		matrix.AddElement(n1, bIdx, 1)
	}
	if n2 != 0 {
		matrix.AddElement(bIdx, n2, -1)
		matrix.AddElement(n2, bIdx, -1)
	}
	matrix.AddRHS(bIdx, v.GetVoltage(status.Time))

	return nil
}

func (v *VoltageSource) StampAC(matrix matrix.DeviceMatrix, status *CircuitStatus) error {
	n1, n2 := v.Nodes[0], v.Nodes[1]
	bIdx := v.branchIdx

	phaseRad := v.acPhase * math.Pi / 180.0
	vre := v.acMag * math.Cos(phaseRad)
	vim := v.acMag * math.Sin(phaseRad)

	if n1 != 0 {
		matrix.AddComplexElement(bIdx, n1, 1, 0)
		matrix.AddComplexElement(n1, bIdx, 1, 0)
	}
	if n2 != 0 {
		matrix.AddComplexElement(bIdx, n2, -1, 0)
		matrix.AddComplexElement(n2, bIdx, -1, 0)
	}
	matrix.AddComplexRHS(bIdx, vre, vim)

	return nil
}

func pulseValue(t, v1, v2, delay, rise, fall, width, period float64) float64 {
	if t < delay {
		return v1
	}

	t -= delay
	if period > 0 {
		t = math.Mod(t, period)
	}

	if t < rise {
		if rise == 0 {
			return v2
		}
		return v1 + (v2-v1)*t/rise
	}
	if t < rise+width {
		return v2
	}

	fallStart := rise + width
	if t < fallStart+fall {
		if fall == 0 {
			return v1
		}
		return v2 - (v2-v1)*(t-fallStart)/fall
	}
	return v1
}

func pwlValue(t float64, times, values []float64) float64 {
	if len(times) == 0 {
		return 0
	}
	if t <= times[0] {
		return values[0]
	}

	last := len(times) - 1
	if t >= times[last] {
		return values[last]
	}

	for i := 1; i < len(times); i++ {
		if t <= times[i] {
			t1, t2 := times[i-1], times[i]
			y1, y2 := values[i-1], values[i]
			return y1 + (y2-y1)*(t-t1)/(t2-t1)
		}
	}
	return values[last]
}
