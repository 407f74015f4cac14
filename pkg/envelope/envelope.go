// Package envelope implements a detector front-end on top of a behavioral
// macro-model: an input waveform is amplified, clipped, pushed through the
// model via transient analysis, and the resulting envelope is tested
// against a threshold trigger. When no model is supplied the front-end
// falls back to an analytic envelope (rectify plus single-pole decay).
package envelope

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/envelab/macrospice/pkg/analysis"
	"github.com/envelab/macrospice/pkg/circuit"
	"github.com/envelab/macrospice/pkg/macromodel"
)

// Signal is a sampled waveform. Times must be strictly increasing.
type Signal struct {
	Times  []float64
	Values []float64
}

// Uniform builds a signal sampled every dt starting at t=0.
func Uniform(dt float64, values []float64) Signal {
	times := make([]float64, len(values))
	for i := range times {
		times[i] = float64(i) * dt
	}
	return Signal{Times: times, Values: values}
}

func (s Signal) Len() int { return len(s.Values) }

// Peak returns the maximum absolute value and the time it occurs at.
func (s Signal) Peak() (float64, float64) {
	var peak, at float64
	for i, v := range s.Values {
		if a := math.Abs(v); a > peak {
			peak = a
			at = s.Times[i]
		}
	}
	return peak, at
}

// FrontEnd amplifies and clips an input waveform, then extracts its
// envelope either through a macro-model circuit or analytically.
type FrontEnd struct {
	Amplification float64 // linear voltage gain applied first
	Clipping      float64 // clamp on |v| after the gain; 0 disables
	Model         *macromodel.Model
	Harness       macromodel.HarnessOptions
	Tau           float64 // analytic decay time constant; only without a model

	Logger *zap.Logger
}

// Process runs the full chain and returns the envelope waveform.
func (f *FrontEnd) Process(sig Signal) (Signal, error) {
	if sig.Len() < 2 || len(sig.Times) != len(sig.Values) {
		return Signal{}, errors.Errorf("signal needs matching time/value slices with at least two points, got %d/%d", len(sig.Times), len(sig.Values))
	}

	shaped := f.shape(sig)

	if f.Model == nil {
		return f.analyticEnvelope(shaped)
	}
	return f.circuitEnvelope(shaped)
}

// shape applies the amplification and clipping stages.
func (f *FrontEnd) shape(sig Signal) Signal {
	gain := f.Amplification
	if gain == 0 {
		gain = 1
	}

	out := Signal{
		Times:  append([]float64(nil), sig.Times...),
		Values: make([]float64, sig.Len()),
	}
	for i, v := range sig.Values {
		v *= gain
		if f.Clipping > 0 {
			v = clamp(v, -f.Clipping, f.Clipping)
		}
		out.Values[i] = v
	}
	return out
}

func (f *FrontEnd) circuitEnvelope(sig Signal) (Signal, error) {
	deck, err := f.Model.Harness(sig.Times, sig.Values, f.Harness)
	if err != nil {
		return Signal{}, err
	}

	ckt, err := circuit.FromDeck(deck, false)
	if err != nil {
		return Signal{}, errors.Wrap(err, "building harness circuit")
	}
	defer ckt.Destroy()

	an, err := analysis.FromDeck(deck)
	if err != nil {
		return Signal{}, err
	}
	if err := an.Setup(ckt); err != nil {
		return Signal{}, errors.Wrap(err, "harness setup")
	}
	if err := an.Execute(); err != nil {
		return Signal{}, errors.Wrap(err, "harness transient")
	}

	results := an.GetResults()
	times := results["TIME"]
	values := results["V(out)"]
	if len(times) == 0 || len(times) != len(values) {
		return Signal{}, errors.New("harness transient produced no output waveform")
	}

	if f.Logger != nil {
		f.Logger.Debug("circuit envelope complete",
			zap.String("model", f.Model.Name),
			zap.Int("input_points", sig.Len()),
			zap.Int("output_points", len(times)),
		)
	}

	return Signal{
		Times:  append([]float64(nil), times...),
		Values: append([]float64(nil), values...),
	}, nil
}

// analyticEnvelope rectifies the signal and lets each sample decay with the
// configured time constant: y[i] = max(|x[i]|, y[i-1]*exp(-dt/tau)).
func (f *FrontEnd) analyticEnvelope(sig Signal) (Signal, error) {
	tau := f.Tau
	if tau <= 0 {
		// A few samples of hold keeps the fallback from tracking the carrier.
		tau = 4 * (sig.Times[1] - sig.Times[0])
	}

	out := Signal{
		Times:  append([]float64(nil), sig.Times...),
		Values: make([]float64, sig.Len()),
	}
	prev := 0.0
	prevTime := sig.Times[0]
	for i, v := range sig.Values {
		decayed := prev * math.Exp(-(sig.Times[i]-prevTime)/tau)
		out.Values[i] = math.Max(math.Abs(v), decayed)
		prev = out.Values[i]
		prevTime = sig.Times[i]
	}

	if f.Logger != nil {
		f.Logger.Debug("analytic envelope complete",
			zap.Float64("tau", tau),
			zap.Int("points", sig.Len()),
		)
	}
	return out, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
