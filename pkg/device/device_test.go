package device

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/envelab/macrospice/internal/consts"
	"github.com/envelab/macrospice/pkg/expr"
)

// stampRecorder captures matrix entries so device stamps can be checked
// without a solver.
type stampRecorder struct {
	elems map[[2]int]float64
	rhs   map[int]float64
}

func newStampRecorder() *stampRecorder {
	return &stampRecorder{
		elems: make(map[[2]int]float64),
		rhs:   make(map[int]float64),
	}
}

func (s *stampRecorder) AddElement(i, j int, v float64)            { s.elems[[2]int{i, j}] += v }
func (s *stampRecorder) AddRHS(i int, v float64)                   { s.rhs[i] += v }
func (s *stampRecorder) AddComplexElement(i, j int, re, _ float64) { s.elems[[2]int{i, j}] += re }
func (s *stampRecorder) AddComplexRHS(i int, re, _ float64)        { s.rhs[i] += re }

func TestResistorStamp(t *testing.T) {
	r := NewResistor("r1", []string{"a", "b"}, 100)
	r.SetNodes([]int{1, 2})

	rec := newStampRecorder()
	require.NoError(t, r.Stamp(rec, &CircuitStatus{Temp: consts.TNOM}))

	g := 0.01
	assert.InDelta(t, g, rec.elems[[2]int{1, 1}], 1e-15)
	assert.InDelta(t, g, rec.elems[[2]int{2, 2}], 1e-15)
	assert.InDelta(t, -g, rec.elems[[2]int{1, 2}], 1e-15)
	assert.InDelta(t, -g, rec.elems[[2]int{2, 1}], 1e-15)
}

func TestResistorGroundedStamp(t *testing.T) {
	r := NewResistor("r1", []string{"a", "0"}, 50)
	r.SetNodes([]int{1, 0})

	rec := newStampRecorder()
	require.NoError(t, r.Stamp(rec, &CircuitStatus{Temp: consts.TNOM}))

	assert.Len(t, rec.elems, 1, "ground row and column are dropped")
	assert.InDelta(t, 0.02, rec.elems[[2]int{1, 1}], 1e-15)
}

func TestResistorTemperatureDrift(t *testing.T) {
	r := NewResistor("r1", []string{"a", "b"}, 1000)
	r.SetTempCoeffs(0.001, 1e-6)

	dt := 50.0
	want := 1000 * (1 + 0.001*dt + 1e-6*dt*dt)
	assert.InDelta(t, want, r.temperatureAdjustedValue(consts.TNOM+dt), 1e-9)
	assert.InDelta(t, 1000, r.temperatureAdjustedValue(consts.TNOM), 1e-12)
}

func TestVoltageSourceStamp(t *testing.T) {
	v := NewDCVoltageSource("v1", []string{"in", "0"}, 5)
	v.SetNodes([]int{1, 0})
	v.SetBranchIndex(2)

	rec := newStampRecorder()
	require.NoError(t, v.Stamp(rec, &CircuitStatus{Mode: OperatingPointAnalysis}))

	assert.InDelta(t, 1, rec.elems[[2]int{1, 2}], 1e-15)
	assert.InDelta(t, 1, rec.elems[[2]int{2, 1}], 1e-15)
	assert.InDelta(t, 5, rec.rhs[2], 1e-15)
}

func TestPulseValue(t *testing.T) {
	// v1=0 v2=5 delay=1u rise=1u fall=1u width=4u period=10u
	at := func(tm float64) float64 { return pulseValue(tm, 0, 5, 1e-6, 1e-6, 1e-6, 4e-6, 10e-6) }

	assert.InDelta(t, 0, at(0), 1e-12)
	assert.InDelta(t, 2.5, at(1.5e-6), 1e-9, "mid rise")
	assert.InDelta(t, 5, at(3e-6), 1e-12, "on top")
	assert.InDelta(t, 2.5, at(6.5e-6), 1e-9, "mid fall")
	assert.InDelta(t, 0, at(9e-6), 1e-12, "back at base")
	assert.InDelta(t, 2.5, at(11.5e-6), 1e-9, "second period")
}

func TestPWLValue(t *testing.T) {
	times := []float64{0, 1e-6, 3e-6}
	values := []float64{0, 2, -2}

	assert.InDelta(t, 0, pwlValue(-1e-6, times, values), 1e-12, "clamped before first point")
	assert.InDelta(t, 1, pwlValue(0.5e-6, times, values), 1e-12)
	assert.InDelta(t, 2, pwlValue(1e-6, times, values), 1e-12)
	assert.InDelta(t, 0, pwlValue(2e-6, times, values), 1e-12)
	assert.InDelta(t, -2, pwlValue(5e-6, times, values), 1e-12, "clamped after last point")
}

func bindForTest(t *testing.T, b *Behavioral, nodes map[string]int, branches map[string]int, params map[string]float64) {
	t.Helper()
	err := b.Bind(
		func(name string) (int, error) {
			if name == "0" || name == "gnd" {
				return 0, nil
			}
			idx, ok := nodes[name]
			if !ok {
				return 0, assert.AnError
			}
			return idx, nil
		},
		func(name string) (int, error) {
			idx, ok := branches[name]
			if !ok {
				return 0, assert.AnError
			}
			return idx, nil
		},
		params,
	)
	require.NoError(t, err)
}

func TestBehavioralCurrentStamp(t *testing.T) {
	// B element i = tanh(v(in)), output across nodes (2, 0), control node 1.
	eq, err := expr.Compile("tanh(v(in))")
	require.NoError(t, err)

	b := NewBehavioral("b1", []string{"out", "0"}, eq, false)
	b.SetNodes([]int{2, 0})
	bindForTest(t, b, map[string]int{"in": 1, "out": 2}, nil, nil)

	vin := 0.5
	require.NoError(t, b.UpdateVoltages([]float64{0, vin, 0}))

	rec := newStampRecorder()
	require.NoError(t, b.Stamp(rec, &CircuitStatus{Mode: OperatingPointAnalysis, Temp: consts.TNOM}))

	f0 := math.Tanh(vin)
	g := 1 - f0*f0 // d tanh / dv
	assert.InDelta(t, g, rec.elems[[2]int{2, 1}], 1e-5)

	// Norton current: rhs = -(f0 - g*vin) on the positive node.
	assert.InDelta(t, -(f0 - g*vin), rec.rhs[2], 1e-5)
}

func TestBehavioralVoltageStamp(t *testing.T) {
	// B element v = 2*v(in), branch row at index 3.
	eq, err := expr.Compile("2*v(in)")
	require.NoError(t, err)

	b := NewBehavioral("b1", []string{"out", "0"}, eq, true)
	b.SetNodes([]int{2, 0})
	b.SetBranchIndex(3)
	bindForTest(t, b, map[string]int{"in": 1, "out": 2}, nil, nil)

	vin := 1.5
	require.NoError(t, b.UpdateVoltages([]float64{0, vin, 0, 0}))

	rec := newStampRecorder()
	require.NoError(t, b.Stamp(rec, &CircuitStatus{Mode: OperatingPointAnalysis, Temp: consts.TNOM}))

	// Branch row: v(out) - 2*v(in) = const; node row carries the current.
	assert.InDelta(t, 1, rec.elems[[2]int{3, 2}], 1e-15)
	assert.InDelta(t, 1, rec.elems[[2]int{2, 3}], 1e-15)
	assert.InDelta(t, -2, rec.elems[[2]int{3, 1}], 1e-5)
	// The equation is linear, so the equivalent source term vanishes.
	assert.InDelta(t, 0, rec.rhs[3], 1e-5)
}

func TestBehavioralTemperatureTerm(t *testing.T) {
	eq, err := expr.Compile("slope*(1+tc*(temp-27))")
	require.NoError(t, err)

	b := NewBehavioral("b1", []string{"out", "0"}, eq, false)
	b.SetNodes([]int{1, 0})
	bindForTest(t, b, nil, nil, map[string]float64{"slope": 2, "tc": 0.01})
	require.NoError(t, b.UpdateVoltages([]float64{0, 0}))

	rec := newStampRecorder()
	status := &CircuitStatus{Mode: OperatingPointAnalysis, Temp: 87 + consts.KELVIN}
	require.NoError(t, b.Stamp(rec, status))

	want := 2 * (1 + 0.01*(87-27))
	assert.InDelta(t, -want, rec.rhs[1], 1e-9)
}

func TestBehavioralBindRejectsUnknowns(t *testing.T) {
	eq, err := expr.Compile("v(nosuch)")
	require.NoError(t, err)
	b := NewBehavioral("b1", []string{"out", "0"}, eq, false)

	err = b.Bind(
		func(string) (int, error) { return 0, assert.AnError },
		func(string) (int, error) { return 0, assert.AnError },
		nil,
	)
	assert.Error(t, err)

	eq, err = expr.Compile("gain*v(in)")
	require.NoError(t, err)
	b = NewBehavioral("b2", []string{"out", "0"}, eq, false)
	err = b.Bind(
		func(string) (int, error) { return 1, nil },
		func(string) (int, error) { return 0, assert.AnError },
		map[string]float64{},
	)
	assert.Error(t, err, "unresolved parameter")
}
