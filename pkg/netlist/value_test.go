package netlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"100", 100},
		{"-4.7", -4.7},
		{"1k", 1e3},
		{"2.2K", 2.2e3},
		{"3meg", 3e6},
		{"1MEG", 1e6},
		{"5m", 5e-3},
		{"10u", 10e-6},
		{"3n", 3e-9},
		{"4p", 4e-12},
		{"2f", 2e-15},
		{"1t", 1e12},
		{"2g", 2e9},
		{"1e-9", 1e-9},
		{"2.5e3", 2500},
		{"2.2uF", 2.2e-6},
		{"50ohm", 50},
		{"1kHz", 1e3},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseValue(tt.in)
			require.NoError(t, err)
			assert.InEpsilon(t, tt.want, got, 1e-12)
		})
	}
}

func TestParseValueErrors(t *testing.T) {
	for _, in := range []string{"", "abc", "1..2", "{r1}", "--4"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseValue(in)
			assert.Error(t, err)
		})
	}
}

func TestEvalValueToken(t *testing.T) {
	params := map[string]float64{"rload": 50, "n": 3}

	got, err := evalValueToken("{rload*2}", params)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, got, 1e-12)

	got, err = evalValueToken("1k", params)
	require.NoError(t, err)
	assert.InDelta(t, 1000.0, got, 1e-12)

	_, err = evalValueToken("{missing+1}", params)
	assert.Error(t, err)
}
