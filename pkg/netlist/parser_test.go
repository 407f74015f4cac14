package netlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/envelab/macrospice/internal/consts"
)

func TestParseBasicDeck(t *testing.T) {
	deck, err := Parse(`* Voltage divider
V1 in 0 DC 10
R1 in out 1k
R2 out 0 1k
.op
.end
`)
	require.NoError(t, err)

	assert.Equal(t, "Voltage divider", deck.Title)
	assert.Equal(t, AnalysisOP, deck.Analysis)
	require.Len(t, deck.Elements, 3)

	v1 := deck.Elements[0]
	assert.Equal(t, "V", v1.Type)
	assert.Equal(t, "v1", v1.Name)
	assert.Equal(t, []string{"in", "0"}, v1.Nodes)
	assert.Equal(t, "dc", v1.Params["type"])
	assert.InDelta(t, 10.0, v1.Value, 1e-12)

	r1 := deck.Elements[1]
	assert.Equal(t, "R", r1.Type)
	assert.InDelta(t, 1000.0, r1.Value, 1e-9)
}

func TestParseContinuationAndComments(t *testing.T) {
	deck, err := Parse(`* title
V1 in 0 pulse(0 5
+ 1u 1n 1n
+ 10u 20u) ; drive pulse
* a full-line comment
R1 in 0 50
.op
`)
	require.NoError(t, err)
	require.Len(t, deck.Elements, 2)
	assert.Equal(t, "pulse", deck.Elements[0].Params["type"])
	assert.Equal(t, "0 5 1u 1n 1n 10u 20u", deck.Elements[0].Params["pulse"])
}

func TestParseInlineStarSurvives(t *testing.T) {
	// '*' must not be treated as a trailing comment: behavioral
	// expressions multiply with it.
	deck, err := Parse(`* title
Bsrc out 0 V=2 * V(in)
Rl out 0 1k
.op
`)
	require.NoError(t, err)
	assert.Equal(t, "2 * v(in)", deck.Elements[0].Params["expr"])
	assert.Equal(t, "v", deck.Elements[0].Params["output"])
}

func TestParseSources(t *testing.T) {
	deck, err := Parse(`* sources
V1 1 0 SIN(0 5 1k)
V2 2 0 PWL(0 0 1u 5 2u 0)
V3 3 0 AC 1 90
I1 4 0 2m
.op
`)
	require.NoError(t, err)
	require.Len(t, deck.Elements, 4)

	assert.Equal(t, "sin", deck.Elements[0].Params["type"])
	assert.Equal(t, "0 5 1k", deck.Elements[0].Params["sin"])

	assert.Equal(t, "pwl", deck.Elements[1].Params["type"])
	assert.Equal(t, "0 0 1u 5 2u 0", deck.Elements[1].Params["pwl"])

	assert.Equal(t, "ac", deck.Elements[2].Params["type"])
	assert.InDelta(t, 1.0, deck.Elements[2].Value, 1e-12)
	assert.Equal(t, "90", deck.Elements[2].Params["phase"])

	assert.Equal(t, "dc", deck.Elements[3].Params["type"])
	assert.InDelta(t, 2e-3, deck.Elements[3].Value, 1e-15)
}

func TestParseModelAndTemp(t *testing.T) {
	deck, err := Parse(`* diode deck
D1 a k dfast
.model dfast D(is=2.5e-9 n=1.75)
.temp 85
.op
`)
	require.NoError(t, err)

	model, ok := deck.Models["dfast"]
	require.True(t, ok)
	assert.Equal(t, "D", model.Type)
	assert.InDelta(t, 2.5e-9, model.Params["is"], 1e-20)
	assert.InDelta(t, 1.75, model.Params["n"], 1e-12)

	assert.InDelta(t, 85+consts.KELVIN, deck.Temp, 1e-9)
}

func TestParseParamAndBraceValue(t *testing.T) {
	deck, err := Parse(`* params
.param rbase=1k scale=2
R1 a 0 {rbase*scale}
.op
`)
	require.NoError(t, err)
	assert.InDelta(t, 1000.0, deck.Params["rbase"], 1e-9)
	assert.Equal(t, "{rbase*scale}", deck.Elements[0].ValueStr)
}

func TestParseAnalysisDirectives(t *testing.T) {
	deck, err := Parse(`* tran
R1 a 0 1
.tran 1u 100u uic
`)
	require.NoError(t, err)
	assert.Equal(t, AnalysisTRAN, deck.Analysis)
	assert.InDelta(t, 1e-6, deck.Tran.TStep, 1e-15)
	assert.InDelta(t, 100e-6, deck.Tran.TStop, 1e-12)
	assert.True(t, deck.Tran.UIC)

	deck, err = Parse(`* ac
R1 a 0 1
.ac dec 10 1 1meg
`)
	require.NoError(t, err)
	assert.Equal(t, AnalysisAC, deck.Analysis)
	assert.Equal(t, "DEC", deck.AC.Sweep)
	assert.Equal(t, 10, deck.AC.Points)
	assert.InDelta(t, 1e6, deck.AC.FStop, 1e-3)

	deck, err = Parse(`* dc
V1 a 0 1
.dc V1 0 5 0.5
`)
	require.NoError(t, err)
	assert.Equal(t, AnalysisDC, deck.Analysis)
	assert.Equal(t, "v1", deck.DC.Source)
	assert.InDelta(t, 0.5, deck.DC.Increment, 1e-12)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unknown element", "* t\nQ1 a b c model\n.op\n"},
		{"missing value", "* t\nR1 a b\n.op\n"},
		{"bad directive", "* t\nR1 a 0 1\n.noise all\n"},
		{"continuation first", "* t\n+ R1 a 0 1\n.op\n"},
		{"unterminated subckt", "* t\n.subckt s a\nR1 a 0 1\n"},
		{"ends alone", "* t\n.ends\n"},
		{"behavioral no expr", "* t\nB1 a 0 V=\n.op\n"},
		{"dot inside subckt", "* t\n.subckt s a\n.tran 1u 1m\n.ends\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			assert.Error(t, err)
		})
	}
}
