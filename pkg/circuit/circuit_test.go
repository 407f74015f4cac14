package circuit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/envelab/macrospice/pkg/netlist"
)

func buildCircuit(t *testing.T, src string) *Circuit {
	t.Helper()
	deck, err := netlist.Parse(src)
	require.NoError(t, err)
	ckt, err := FromDeck(deck, false)
	require.NoError(t, err)
	t.Cleanup(ckt.Destroy)
	return ckt
}

func TestFromDeckAssignsMaps(t *testing.T) {
	ckt := buildCircuit(t, `* maps
V1 in 0 DC 1
R1 in out 1k
E1 amp 0 out 0 2
B1 bo 0 V=v(out)
B2 0 sink I=v(out)/10
.op
`)

	assert.Equal(t, 5, ckt.GetNumNodes())
	assert.Len(t, ckt.GetBranchMap(), 3, "V, E and B with V= carry branch rows")

	_, hasV1 := ckt.GetBranchMap()["v1"]
	assert.True(t, hasV1)
	_, hasB2 := ckt.GetBranchMap()["b2"]
	assert.False(t, hasB2, "current-output behavioral has no branch row")

	assert.Equal(t, ckt.GetNumNodes()+3, ckt.GetMatrix().Size)
}

func TestNodeIndex(t *testing.T) {
	ckt := buildCircuit(t, `* nodes
R1 a b 1k
R2 b 0 1k
.op
`)

	assert.Equal(t, 0, ckt.NodeIndex("0"))
	assert.Equal(t, 0, ckt.NodeIndex("gnd"))
	assert.Greater(t, ckt.NodeIndex("a"), 0)
	assert.Greater(t, ckt.NodeIndex("b"), 0)
	assert.NotEqual(t, ckt.NodeIndex("a"), ckt.NodeIndex("b"))
	assert.Equal(t, -1, ckt.NodeIndex("missing"))
	assert.Equal(t, ckt.NodeIndex("a"), ckt.NodeIndex("A"), "lookup is case-insensitive")
}

func TestFromDeckRejectsEmptyCircuit(t *testing.T) {
	deck, err := netlist.Parse("* empty\n.op\n")
	require.NoError(t, err)
	_, err = FromDeck(deck, false)
	assert.Error(t, err)
}

func TestFromDeckRejectsUndefinedModel(t *testing.T) {
	deck, err := netlist.Parse("* bad model\nD1 a 0 ghost\nR1 a 0 1k\n.op\n")
	require.NoError(t, err)
	_, err = FromDeck(deck, false)
	assert.Error(t, err)
}

func TestFromDeckRejectsUnboundBehavioral(t *testing.T) {
	deck, err := netlist.Parse("* dangling reference\nB1 out 0 V=v(nowhere)\nR1 out 0 1k\n.op\n")
	require.NoError(t, err)
	_, err = FromDeck(deck, false)
	assert.Error(t, err)
}
