package netlist

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/envelab/macrospice/pkg/device"
	"github.com/envelab/macrospice/pkg/expr"
)

// CreateDevice builds the device model for a flattened element. globalParams
// is the deck-level .param scope; expanded elements carry their own merged
// scope instead.
func CreateDevice(elem Element, models map[string]device.ModelParam, globalParams map[string]float64) (device.Device, error) {
	scope := globalParams
	if elem.Scope != nil {
		scope = elem.Scope
	}

	value := elem.Value
	if elem.ValueStr != "" {
		var err error
		if value, err = evalValueToken(elem.ValueStr, scope); err != nil {
			return nil, errors.Wrapf(err, "%s: value expression", elem.Name)
		}
	}

	switch elem.Type {
	case "R":
		r := device.NewResistor(elem.Name, elem.Nodes, value)
		tc1, tc2, err := tempCoeffs(elem)
		if err != nil {
			return nil, err
		}
		r.SetTempCoeffs(tc1, tc2)
		return r, nil

	case "C":
		return device.NewCapacitor(elem.Name, elem.Nodes, value), nil

	case "L":
		return device.NewInductor(elem.Name, elem.Nodes, value), nil

	case "D":
		diode := device.NewDiode(elem.Name, elem.Nodes)
		if modelName, ok := elem.Params["model"]; ok {
			model, exists := models[modelName]
			if !exists {
				return nil, errors.Errorf("%s: undefined model %q", elem.Name, modelName)
			}
			diode.SetModelParameters(model.Params)
		}
		return diode, nil

	case "E":
		return device.NewVCVS(elem.Name, elem.Nodes, value), nil

	case "G":
		return device.NewVCCS(elem.Name, elem.Nodes, value), nil

	case "B":
		return createBehavioral(elem)

	case "V":
		return createVoltageSource(elem, value)

	case "I":
		return createCurrentSource(elem, value)
	}
	return nil, errors.Errorf("unsupported device type: %s", elem.Type)
}

func tempCoeffs(elem Element) (float64, float64, error) {
	var tc1, tc2 float64
	var err error
	if s, ok := elem.Params["tc1"]; ok {
		if tc1, err = ParseValue(s); err != nil {
			return 0, 0, errors.Wrapf(err, "%s: tc1", elem.Name)
		}
	}
	if s, ok := elem.Params["tc2"]; ok {
		if tc2, err = ParseValue(s); err != nil {
			return 0, 0, errors.Wrapf(err, "%s: tc2", elem.Name)
		}
	}
	return tc1, tc2, nil
}

func createBehavioral(elem Element) (device.Device, error) {
	compiled, err := expr.Compile(elem.Params["expr"])
	if err != nil {
		return nil, errors.Wrapf(err, "%s", elem.Name)
	}
	outputsVoltage := elem.Params["output"] == "v"
	return device.NewBehavioral(elem.Name, elem.Nodes, compiled, outputsVoltage), nil
}

func createVoltageSource(elem Element, value float64) (device.Device, error) {
	switch elem.Params["type"] {
	case "dc":
		return device.NewDCVoltageSource(elem.Name, elem.Nodes, value), nil
	case "sin":
		offset, amplitude, freq, phase, err := parseSinParams(elem.Params["sin"])
		if err != nil {
			return nil, errors.Wrapf(err, "%s", elem.Name)
		}
		return device.NewSinVoltageSource(elem.Name, elem.Nodes, offset, amplitude, freq, phase), nil
	case "pulse":
		p, err := parsePulseParams(elem.Params["pulse"])
		if err != nil {
			return nil, errors.Wrapf(err, "%s", elem.Name)
		}
		return device.NewPulseVoltageSource(elem.Name, elem.Nodes, p[0], p[1], p[2], p[3], p[4], p[5], p[6]), nil
	case "pwl":
		times, values, err := parsePWLParams(elem.Params["pwl"])
		if err != nil {
			return nil, errors.Wrapf(err, "%s", elem.Name)
		}
		return device.NewPWLVoltageSource(elem.Name, elem.Nodes, times, values), nil
	case "ac":
		phase, err := ParseValue(elem.Params["phase"])
		if err != nil {
			return nil, errors.Wrapf(err, "%s: AC phase", elem.Name)
		}
		return device.NewACVoltageSource(elem.Name, elem.Nodes, 0, value, phase), nil
	}
	return nil, errors.Errorf("%s: unsupported voltage source type %q", elem.Name, elem.Params["type"])
}

func createCurrentSource(elem Element, value float64) (device.Device, error) {
	switch elem.Params["type"] {
	case "dc":
		return device.NewDCCurrentSource(elem.Name, elem.Nodes, value), nil
	case "sin":
		offset, amplitude, freq, phase, err := parseSinParams(elem.Params["sin"])
		if err != nil {
			return nil, errors.Wrapf(err, "%s", elem.Name)
		}
		return device.NewSinCurrentSource(elem.Name, elem.Nodes, offset, amplitude, freq, phase), nil
	case "pulse":
		p, err := parsePulseParams(elem.Params["pulse"])
		if err != nil {
			return nil, errors.Wrapf(err, "%s", elem.Name)
		}
		return device.NewPulseCurrentSource(elem.Name, elem.Nodes, p[0], p[1], p[2], p[3], p[4], p[5], p[6]), nil
	case "pwl":
		times, values, err := parsePWLParams(elem.Params["pwl"])
		if err != nil {
			return nil, errors.Wrapf(err, "%s", elem.Name)
		}
		return device.NewPWLCurrentSource(elem.Name, elem.Nodes, times, values), nil
	case "ac":
		phase, err := ParseValue(elem.Params["phase"])
		if err != nil {
			return nil, errors.Wrapf(err, "%s: AC phase", elem.Name)
		}
		return device.NewACCurrentSource(elem.Name, elem.Nodes, 0, value, phase), nil
	}
	return nil, errors.Errorf("%s: unsupported current source type %q", elem.Name, elem.Params["type"])
}

func parseSinParams(params string) (offset, amplitude, freq, phase float64, err error) {
	fields := strings.Fields(params)
	if len(fields) < 3 {
		return 0, 0, 0, 0, errors.New("SIN requires offset, amplitude and frequency")
	}

	if offset, err = ParseValue(fields[0]); err != nil {
		return 0, 0, 0, 0, errors.Wrap(err, "SIN offset")
	}
	if amplitude, err = ParseValue(fields[1]); err != nil {
		return 0, 0, 0, 0, errors.Wrap(err, "SIN amplitude")
	}
	if freq, err = ParseValue(fields[2]); err != nil {
		return 0, 0, 0, 0, errors.Wrap(err, "SIN frequency")
	}
	if len(fields) > 3 {
		if phase, err = ParseValue(fields[3]); err != nil {
			return 0, 0, 0, 0, errors.Wrap(err, "SIN phase")
		}
	}
	return offset, amplitude, freq, phase, nil
}

var pulseFieldNames = [7]string{"initial value", "pulsed value", "delay", "rise", "fall", "width", "period"}

func parsePulseParams(params string) ([7]float64, error) {
	var out [7]float64

	fields := strings.Fields(params)
	if len(fields) < 7 {
		return out, errors.New("PULSE requires v1, v2, delay, rise, fall, width and period")
	}
	for i := range out {
		val, err := ParseValue(fields[i])
		if err != nil {
			return out, errors.Wrapf(err, "PULSE %s", pulseFieldNames[i])
		}
		out[i] = val
	}
	return out, nil
}

func parsePWLParams(params string) (times, values []float64, err error) {
	fields := strings.Fields(params)
	if len(fields) < 4 || len(fields)%2 != 0 {
		return nil, nil, errors.New("PWL requires at least two time-value pairs")
	}

	n := len(fields) / 2
	times = make([]float64, n)
	values = make([]float64, n)
	for i := 0; i < n; i++ {
		if times[i], err = ParseValue(fields[2*i]); err != nil {
			return nil, nil, errors.Wrapf(err, "PWL time[%d]", i)
		}
		if values[i], err = ParseValue(fields[2*i+1]); err != nil {
			return nil, nil, errors.Wrapf(err, "PWL value[%d]", i)
		}
		if i > 0 && times[i] <= times[i-1] {
			return nil, nil, errors.New("PWL time points must be strictly increasing")
		}
	}
	return times, values, nil
}
