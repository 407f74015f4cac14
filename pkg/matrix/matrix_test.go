package matrix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolveRealSystem(t *testing.T) {
	m, err := NewMatrix(2, false)
	require.NoError(t, err)
	defer m.Destroy()
	m.SetupElements()

	// [ 2 -1 ] [x1]   [1]
	// [-1  2 ] [x2] = [0]  =>  x = (2/3, 1/3)
	m.AddElement(1, 1, 2)
	m.AddElement(1, 2, -1)
	m.AddElement(2, 1, -1)
	m.AddElement(2, 2, 2)
	m.AddRHS(1, 1)

	require.NoError(t, m.Solve())
	sol := m.Solution()
	assert.InDelta(t, 2.0/3.0, sol[1], 1e-12)
	assert.InDelta(t, 1.0/3.0, sol[2], 1e-12)
}

func TestRestampAfterFactor(t *testing.T) {
	// Newton iteration clears and restamps the matrix after it has been
	// factored and reordered; stamping must keep working across solves.
	m, err := NewMatrix(2, false)
	require.NoError(t, err)
	defer m.Destroy()
	m.SetupElements()

	m.AddElement(1, 1, 2)
	m.AddElement(1, 2, -1)
	m.AddElement(2, 1, -1)
	m.AddElement(2, 2, 2)
	m.AddRHS(1, 1)
	require.NoError(t, m.Solve())

	for iter := 0; iter < 3; iter++ {
		m.Clear()
		m.AddElement(1, 1, 1)
		m.AddElement(2, 2, 4)
		m.AddRHS(1, 3)
		m.AddRHS(2, 8)
		require.NoError(t, m.Solve())

		sol := m.Solution()
		assert.InDelta(t, 3.0, sol[1], 1e-12)
		assert.InDelta(t, 2.0, sol[2], 1e-12)
	}
}

func TestComplexSolutionPairing(t *testing.T) {
	m, err := NewMatrix(1, true)
	require.NoError(t, err)
	defer m.Destroy()
	m.SetupElements()

	// (1+j) x = 1  =>  x = 0.5 - 0.5j
	m.AddComplexElement(1, 1, 1, 1)
	m.AddComplexRHS(1, 1, 0)
	require.NoError(t, m.Solve())

	re, im := m.GetComplexSolution(1)
	assert.InDelta(t, 0.5, re, 1e-12)
	assert.InDelta(t, -0.5, im, 1e-12)
}

func TestComplexSolutionTwoNode(t *testing.T) {
	// Diagonal system keeps each node's real/imag parts paired:
	// 2 x1 = 1+j, (0+j) x2 = 1  =>  x1 = 0.5+0.5j, x2 = -j.
	m, err := NewMatrix(2, true)
	require.NoError(t, err)
	defer m.Destroy()
	m.SetupElements()

	m.AddComplexElement(1, 1, 2, 0)
	m.AddComplexElement(2, 2, 0, 1)
	m.AddComplexRHS(1, 1, 1)
	m.AddComplexRHS(2, 1, 0)
	require.NoError(t, m.Solve())

	re, im := m.GetComplexSolution(1)
	assert.InDelta(t, 0.5, re, 1e-12)
	assert.InDelta(t, 0.5, im, 1e-12)

	re, im = m.GetComplexSolution(2)
	assert.InDelta(t, 0.0, re, 1e-12)
	assert.InDelta(t, -1.0, im, 1e-12)
}

func TestOutOfRangeStampsIgnored(t *testing.T) {
	m, err := NewMatrix(1, false)
	require.NoError(t, err)
	defer m.Destroy()
	m.SetupElements()

	// Ground row/column and out-of-range indices are dropped.
	m.AddElement(0, 1, 5)
	m.AddElement(1, 0, 5)
	m.AddElement(2, 2, 5)
	m.AddRHS(0, 5)
	m.AddRHS(2, 5)

	m.AddElement(1, 1, 1)
	m.AddRHS(1, 2)
	require.NoError(t, m.Solve())
	assert.InDelta(t, 2.0, m.Solution()[1], 1e-12)
}
