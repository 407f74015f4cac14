package envelope

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/envelab/macrospice/pkg/macromodel"
)

func sineBurst(dt float64, n int, freq, amp float64, from, to int) Signal {
	values := make([]float64, n)
	for i := from; i < to && i < n; i++ {
		values[i] = amp * math.Sin(2*math.Pi*freq*float64(i)*dt)
	}
	return Uniform(dt, values)
}

func TestUniform(t *testing.T) {
	sig := Uniform(1e-6, []float64{1, 2, 3})
	require.Equal(t, 3, sig.Len())
	assert.InDelta(t, 0, sig.Times[0], 1e-18)
	assert.InDelta(t, 2e-6, sig.Times[2], 1e-18)
}

func TestSignalPeak(t *testing.T) {
	sig := Uniform(1e-3, []float64{0, -3, 2, 1})
	peak, at := sig.Peak()
	assert.InDelta(t, 3.0, peak, 1e-12)
	assert.InDelta(t, 1e-3, at, 1e-15)
}

func TestShapeAmplifyAndClip(t *testing.T) {
	fe := &FrontEnd{Amplification: 10, Clipping: 2}
	shaped := fe.shape(Uniform(1e-6, []float64{0.05, 0.3, -0.3, -0.05}))

	assert.InDelta(t, 0.5, shaped.Values[0], 1e-12)
	assert.InDelta(t, 2.0, shaped.Values[1], 1e-12, "clipped high")
	assert.InDelta(t, -2.0, shaped.Values[2], 1e-12, "clipped low")
	assert.InDelta(t, -0.5, shaped.Values[3], 1e-12)
}

func TestAnalyticEnvelope(t *testing.T) {
	dt := 1e-7
	sig := sineBurst(dt, 400, 1e6, 0.8, 0, 200)

	fe := &FrontEnd{Tau: 2e-6}
	env, err := fe.Process(sig)
	require.NoError(t, err)
	require.Equal(t, sig.Len(), env.Len())

	// The envelope never drops below the rectified signal.
	for i := range env.Values {
		assert.GreaterOrEqual(t, env.Values[i]+1e-12, math.Abs(sig.Values[i]))
	}

	// During the burst it holds near the amplitude.
	assert.InDelta(t, 0.8, env.Values[150], 0.15)

	// After the burst it decays toward zero.
	assert.Less(t, env.Values[399], env.Values[210])
	assert.Less(t, env.Values[399], 0.2)
}

func TestProcessRejectsBadSignal(t *testing.T) {
	fe := &FrontEnd{}
	_, err := fe.Process(Signal{Times: []float64{0}, Values: []float64{1}})
	assert.Error(t, err)

	_, err = fe.Process(Signal{Times: []float64{0, 1}, Values: []float64{1}})
	assert.Error(t, err)
}

func TestCircuitEnvelopeLogAmp(t *testing.T) {
	dt := 2e-7
	sig := sineBurst(dt, 100, 1e6, 0.05, 10, 80)

	fe := &FrontEnd{
		Amplification: 1,
		Clipping:      0.1,
		Model:         macromodel.LogAmp(),
		Harness:       macromodel.HarnessOptions{Load: 1e6},
	}
	env, err := fe.Process(sig)
	require.NoError(t, err)
	require.NotEmpty(t, env.Values)

	// The detector output is a positive envelope that rises during the
	// burst and sags afterward.
	peak, at := env.Peak()
	assert.Greater(t, peak, 0.0)
	assert.Greater(t, at, sig.Times[10])

	last := env.Values[len(env.Values)-1]
	assert.Less(t, last, peak)
}

func TestTriggerFiresOnDwell(t *testing.T) {
	sig := Uniform(1e-6, []float64{0, 0.2, 0.6, 0.7, 0.8, 0.7, 0.1, 0})
	trg := &Trigger{Threshold: 0.5, TimeOverThreshold: 2e-6}

	fired, at := trg.Evaluate(sig)
	require.True(t, fired)
	// Crossed at index 2; the dwell must be exceeded, so the trigger
	// fires three samples later, not two.
	assert.InDelta(t, 5e-6, at, 1e-15)
}

func TestTriggerZeroDwell(t *testing.T) {
	// A zero dwell still needs time above threshold, so the crossing
	// sample itself never fires.
	sig := Uniform(1e-6, []float64{0, 0.2, 0.6, 0.6})
	trg := &Trigger{Threshold: 0.5}

	fired, at := trg.Evaluate(sig)
	require.True(t, fired)
	assert.InDelta(t, 3e-6, at, 1e-15)
}

func TestTriggerBoundariesExcluded(t *testing.T) {
	// Sitting exactly at the threshold does not count as above it.
	sig := Uniform(1e-6, []float64{0.5, 0.5, 0.5, 0.5})
	trg := &Trigger{Threshold: 0.5}
	fired, _ := trg.Evaluate(sig)
	assert.False(t, fired)

	// A dwell exactly equal to TimeOverThreshold does not fire.
	sig = Uniform(1e-6, []float64{0.6, 0.6, 0.6})
	trg = &Trigger{Threshold: 0.5, TimeOverThreshold: 2e-6}
	fired, _ = trg.Evaluate(sig)
	assert.False(t, fired)
}

func TestTriggerResetOnDip(t *testing.T) {
	// Dips below threshold before the dwell completes, twice.
	sig := Uniform(1e-6, []float64{0.6, 0.6, 0.1, 0.6, 0.6, 0.1})
	trg := &Trigger{Threshold: 0.5, TimeOverThreshold: 3e-6}

	fired, _ := trg.Evaluate(sig)
	assert.False(t, fired)
}

func TestTriggerNeverReaches(t *testing.T) {
	sig := Uniform(1e-6, []float64{0.1, 0.2, 0.3})
	trg := &Trigger{Threshold: 0.5}

	fired, at := trg.Evaluate(sig)
	assert.False(t, fired)
	assert.Zero(t, at)
}
