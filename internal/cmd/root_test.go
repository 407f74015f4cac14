package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandEnvBinding(t *testing.T) {
	t.Setenv("MACROSPICE_PLOT", "out.png")
	t.Setenv("MACROSPICE_TRACES", "V(out),V(in)")

	c, err := NewRootCommand()
	require.NoError(t, err)
	require.NoError(t, c.PreRun(nil, nil))

	assert.Equal(t, "out.png", c.Opts.Plot)
	assert.Equal(t, "V(out),V(in)", c.Opts.Traces)
	assert.False(t, c.Opts.Verbose)
}

func TestRootCommandFlagBeatsEnv(t *testing.T) {
	t.Setenv("MACROSPICE_PLOT", "from-env.png")

	c, err := NewRootCommand()
	require.NoError(t, err)
	require.NoError(t, c.Flags().Set("plot", "from-flag.png"))
	require.NoError(t, c.PreRun(nil, nil))

	assert.Equal(t, "from-flag.png", c.Opts.Plot)
}

func TestSortedTraceNames(t *testing.T) {
	results := map[string][]float64{
		"TIME":   {0},
		"V(out)": {1},
		"V(in)":  {2},
		"I(v1)":  {3},
	}
	voltages, currents := sortedTraceNames(results, "TIME")
	assert.Equal(t, []string{"V(in)", "V(out)"}, voltages)
	assert.Equal(t, []string{"I(v1)"}, currents)
}
