package netlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const attenuatorDeck = `* attenuator wrapper
.param rext=100
.subckt atten in out params: rser=1k rsh=2k
rs in mid {rser}
rp mid 0 {rsh}
rout mid out 10
.ends atten
V1 in 0 DC 1
X1 in out atten rser=500
Rload out 0 {rext}
.op
.end
`

func TestFlattenExpandsInstance(t *testing.T) {
	deck, err := Parse(attenuatorDeck)
	require.NoError(t, err)

	sub, ok := deck.Subckts["atten"]
	require.True(t, ok)
	assert.Equal(t, []string{"in", "out"}, sub.Ports)
	assert.InDelta(t, 1000.0, sub.Defaults["rser"], 1e-9)

	elements, err := deck.Flatten()
	require.NoError(t, err)
	require.Len(t, elements, 5)

	byName := make(map[string]Element, len(elements))
	for _, e := range elements {
		byName[e.Name] = e
	}

	rs, ok := byName["x1.rs"]
	require.True(t, ok)
	assert.Equal(t, []string{"in", "x1.mid"}, rs.Nodes)
	assert.InDelta(t, 500.0, rs.Scope["rser"], 1e-9, "instance override beats subckt default")
	assert.InDelta(t, 2000.0, rs.Scope["rsh"], 1e-9)
	assert.InDelta(t, 100.0, rs.Scope["rext"], 1e-9, "deck params visible in scope")

	rp, ok := byName["x1.rp"]
	require.True(t, ok)
	assert.Equal(t, []string{"x1.mid", "0"}, rp.Nodes, "ground is never prefixed")

	rout, ok := byName["x1.rout"]
	require.True(t, ok)
	assert.Equal(t, []string{"x1.mid", "out"}, rout.Nodes, "ports map positionally")
}

func TestFlattenPortCountMismatch(t *testing.T) {
	deck, err := Parse(`* t
.subckt pair a b
r1 a b 1
.ends
X1 n1 pair
.op
`)
	require.NoError(t, err)
	_, err = deck.Flatten()
	assert.Error(t, err)
}

func TestFlattenUndefinedSubckt(t *testing.T) {
	deck, err := Parse(`* t
X1 a b nosuch
.op
`)
	require.NoError(t, err)
	_, err = deck.Flatten()
	assert.Error(t, err)
}

func TestFlattenRejectsNestedInstance(t *testing.T) {
	deck, err := Parse(`* t
.subckt inner a
r1 a 0 1
.ends
.subckt outer a
x9 a inner
.ends
X1 n1 outer
.op
`)
	require.NoError(t, err)
	_, err = deck.Flatten()
	assert.Error(t, err)
}

func TestResolveNodeThroughAliases(t *testing.T) {
	deck, err := Parse(`* t
.subckt follower in out
b1 out 0 v=v(in)-v(ofs)
rofs ofs 0 1k
.ends
X2 sig res follower
.op
`)
	require.NoError(t, err)

	elements, err := deck.Flatten()
	require.NoError(t, err)
	require.Len(t, elements, 2)

	b1 := elements[0]
	assert.Equal(t, "x2.b1", b1.Name)
	assert.Equal(t, "sig", b1.ResolveNode("in"), "port resolves to the instance node")
	assert.Equal(t, "x2.ofs", b1.ResolveNode("ofs"), "internal node gains the prefix")
	assert.Equal(t, "0", b1.ResolveNode("0"))
	assert.Equal(t, "x2.vb", b1.ResolveBranch("vb"))
}

func TestModelInsideSubcktHoisted(t *testing.T) {
	deck, err := Parse(`* t
.subckt det in out
d1 in out dclamp
.model dclamp D(is=1e-14)
r1 out 0 1k
.ends
X1 a b det
.op
`)
	require.NoError(t, err)
	_, ok := deck.Models["dclamp"]
	assert.True(t, ok)
}
