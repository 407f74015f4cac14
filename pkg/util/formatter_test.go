package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatValueFactor(t *testing.T) {
	tests := []struct {
		value float64
		unit  string
		want  string
	}{
		{5.0, "V", "5.000 V"},
		{0.005, "A", "5.000 mA"},
		{3.3e-6, "s", "3.300 us"},
		{-2e-9, "s", "-2.000 ns"},
		{4.7e-12, "F", "4.700 pF"},
		{0, "V", "0.000 V"},
		{1e-14, "A", "1.000e-14 A"},
		{1234.5, "V", "1234.500 V"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValueFactor(tt.value, tt.unit))
		})
	}
}

func TestFormatFrequency(t *testing.T) {
	assert.Equal(t, "  1.000 kHz", FormatFrequency(1e3))
	assert.Equal(t, " 20.000 MHz", FormatFrequency(20e6))
	assert.Equal(t, "  2.400 GHz", FormatFrequency(2.4e9))
	assert.Equal(t, " 50.000 Hz ", FormatFrequency(50))
}

func TestFormatMagnitudePhase(t *testing.T) {
	assert.Equal(t, "1.00e+03", FormatMagnitude(1000))
	assert.Equal(t, "5.43e-05", FormatMagnitude(5.43e-5))
	assert.Equal(t, "   0.707", FormatMagnitude(0.707))
	assert.Equal(t, "  90.0", FormatPhase(90))
	assert.Equal(t, " -45.0", FormatPhase(-45))
}
