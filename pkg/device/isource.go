package device

import (
	"math"

	"github.com/envelab/macrospice/pkg/matrix"
)

type CurrentSource struct {
	BaseDevice
	itype SourceType
	// DC / offset value
	dcValue float64
	// SIN
	amplitude float64
	freq      float64
	phase     float64
	// PULSE
	i1     float64
	i2     float64
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
}

func newCurrentSource(name string, nodeNames []string, itype SourceType, value float64) *CurrentSource {
	return &CurrentSource{
		BaseDevice: BaseDevice{
			Name:      name,
			Nodes:     make([]int, len(nodeNames)),
			NodeNames: nodeNames,
			Value:     value,
		},
		itype:   itype,
		dcValue: value,
	}
}

func NewDCCurrentSource(name string, nodeNames []string, value float64) *CurrentSource {
	return newCurrentSource(name, nodeNames, DC, value)
}

func NewSinCurrentSource(name string, nodeNames []string, offset, amplitude, freq, phase float64) *CurrentSource {
	i := newCurrentSource(name, nodeNames, SIN, offset)
	i.amplitude = amplitude
	i.freq = freq
	i.phase = phase
	return i
}

func NewPulseCurrentSource(name string, nodeNames []string, i1, i2, delay, rise, fall, pWidth, period float64) *CurrentSource {
	i := newCurrentSource(name, nodeNames, PULSE, i1)
	i.i1 = i1
	i.i2 = i2
	i.delay = delay
	i.rise = rise
	i.fall = fall
	i.pWidth = pWidth
	i.period = period
	return i
}

func NewPWLCurrentSource(name string, nodeNames []string, times, values []float64) *CurrentSource {
	i := newCurrentSource(name, nodeNames, PWL, 0)
	if len(values) > 0 {
		i.dcValue = values[0]
		i.Value = values[0]
	}
	i.times = times
	i.values = values
	return i
}

func NewACCurrentSource(name string, nodeNames []string, dcValue, acMag, acPhase float64) *CurrentSource {
	i := newCurrentSource(name, nodeNames, AC, dcValue)
	i.acMag = acMag
	i.acPhase = acPhase
	return i
}

func (i *CurrentSource) GetType() string { return "I" }

// SetValue overrides the DC level; DC sweep uses this.
func (i *CurrentSource) SetValue(value float64) {
	i.itype = DC
	i.dcValue = value
}

func (i *CurrentSource) GetCurrent(t float64) float64 {
	switch i.itype {
	case SIN:
		phaseRad := i.phase * math.Pi / 180.0
		return i.dcValue + i.amplitude*math.Sin(2.0*math.Pi*i.freq*t+phaseRad)
	case PULSE:
		return pulseValue(t, i.i1, i.i2, i.delay, i.rise, i.fall, i.pWidth, i.period)
	case PWL:
		return pwlValue(t, i.times, i.values)
	default:
		return i.dcValue
	}
}

func (i *CurrentSource) Stamp(matrix matrix.DeviceMatrix, status *CircuitStatus) error {
	n1, n2 := i.Nodes[0], i.Nodes[1]

	if status.Mode == ACAnalysis {
		phaseRad := i.acPhase * math.Pi / 180.0
		ire := i.acMag * math.Cos(phaseRad)
		iim := i.acMag * math.Sin(phaseRad)
		if n1 != 0 {
			matrix.AddComplexRHS(n1, -ire, -iim)
		}
		if n2 != 0 {
			matrix.AddComplexRHS(n2, ire, iim)
		}
		return nil
	}

	// Current flows from n1 through the source to n2.
	current := i.GetCurrent(status.Time)
	if n1 != 0 {
		matrix.AddRHS(n1, -current)
	}
	if n2 != 0 {
		matrix.AddRHS(n2, current)
	}

	return nil
}
