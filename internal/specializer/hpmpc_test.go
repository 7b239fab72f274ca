package specializer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rtigen/internal/ir"
	"github.com/roach88/rtigen/internal/problem"
	"github.com/roach88/rtigen/internal/testutil"
)

// objectiveOnly runs the steps up to objective evaluation.
func objectiveOnly(t *testing.T, s *problem.Shape) *Generation {
	t.Helper()
	g := newGeneration(s, Options{Prefix: DefaultPrefix, Backend: DefaultBackend})
	require.NoError(t, g.setupVariables())
	require.NoError(t, g.setupSimulation())
	require.NoError(t, HPMPC{}.BuildObjectiveEvaluation(g))
	require.NoError(t, g.B.Err())
	return g
}

func TestHPMPC_ComputedFactors(t *testing.T) {
	g := objectiveOnly(t, testutil.Compile(t, testutil.TrackingDescriptor()))

	assert.Equal(t, []string{"setObjQ1Q2", "setObjR1R2", "setStagef"}, names(g.Helpers()))

	assert.Equal(t, ir.StorageWorkspace, g.Q1.Class())
	assert.Equal(t, ir.Shape{Rows: 6, Cols: 2}, g.Q1.Shape())
	assert.Equal(t, ir.Shape{Rows: 6, Cols: 3}, g.Q2.Shape())
	assert.Equal(t, ir.Shape{Rows: 3, Cols: 1}, g.R1.Shape())
	assert.True(t, g.QN1.Given())

	// Stage weights are stacked per stage.
	assert.Equal(t, ir.Shape{Rows: 9, Cols: 3}, g.ObjS.Shape())

	locals := map[string]ir.Shape{}
	for _, op := range g.EvaluateObjective.Locals() {
		locals[op.Name()] = op.Shape()
	}
	// x, u, od
	assert.Equal(t, ir.Shape{Rows: 1, Cols: 4}, locals["objValueIn"])
	// residual, then the runtime state Jacobian
	assert.Equal(t, ir.Shape{Rows: 1, Cols: 9}, locals["objValueOut"])
	assert.Equal(t, ir.Shape{Rows: 1, Cols: 3}, locals["objValueInEnd"])
	assert.Equal(t, ir.Shape{Rows: 1, Cols: 2}, locals["objValueOutEnd"])

	ls := loops(g.EvaluateObjective)
	require.Len(t, ls, 1)
	assert.Equal(t, 3, ls[0].Trips())
	assert.Equal(t, 1, calls(g.EvaluateObjective, "setObjQ1Q2"))
	assert.Equal(t, 1, calls(g.EvaluateObjective, "setObjR1R2"))
	assert.Zero(t, calls(g.EvaluateObjective, "setObjQN1QN2"))
}

func TestHPMPC_GivenFactorsSkipHelpers(t *testing.T) {
	g := objectiveOnly(t, testutil.CartShape(t))

	assert.Equal(t, []string{"setStagef"}, names(g.Helpers()))
	assert.True(t, g.Q1.Given())
	assert.True(t, g.R1.Given())
	assert.True(t, g.QN1.Given())

	params := g.SetStagef.Params()
	require.Len(t, params, 3)
	_, isIndex := params[2].(*ir.Index)
	assert.True(t, isIndex)
}

func TestHPMPC_TerminalHelper(t *testing.T) {
	d := testutil.CartDescriptor()
	d.JxN = testutil.Runtime()
	g := objectiveOnly(t, testutil.Compile(t, d))

	assert.Equal(t, []string{"setObjQN1QN2", "setStagef"}, names(g.Helpers()))
	assert.Equal(t, ir.Shape{Rows: 2, Cols: 2}, g.QN1.Shape())
	assert.Equal(t, ir.StorageWorkspace, g.QN1.Class())
	assert.Equal(t, 1, calls(g.EvaluateObjective, "setObjQN1QN2"))
}

func TestHPMPC_CrossRejectedBeforeStageLoop(t *testing.T) {
	d := testutil.CartDescriptor()
	d.Cross = testutil.Rows([]float64{0}, []float64{2})
	g := newGeneration(testutil.Compile(t, d), Options{Prefix: DefaultPrefix})
	require.NoError(t, g.setupVariables())
	require.NoError(t, g.setupSimulation())

	err := HPMPC{}.BuildObjectiveEvaluation(g)
	require.Error(t, err)
	assert.Nil(t, g.EvaluateObjective)
	assert.Nil(t, g.EvaluateLSQ)
	assert.Empty(t, g.Helpers())
}

func TestHPMPCBoundValues(t *testing.T) {
	d := testutil.CartDescriptor()
	d.Bounds.State = &problem.BoxSpec{Stages: []problem.StageBox{
		{Lower: []float64{-9, -9}, Upper: []float64{9, 9}},
		{Lower: []float64{-1, -2}, Upper: []float64{1, 2}},
		{Lower: []float64{-3, -4}, Upper: []float64{3, 4}},
	}}
	g := newGeneration(testutil.Compile(t, d), Options{})

	lb, ub := hpmpcBoundValues(g)
	require.NoError(t, g.B.Err())
	require.NotNil(t, lb)
	require.NotNil(t, ub)
	// Stage 0 state bounds are skipped: x0 pins it.
	assert.Equal(t, []float64{-1, -1, -1, -2, -3, -4}, lb.RawMatrix().Data)
	assert.Equal(t, []float64{1, 1, 1, 2, 3, 4}, ub.RawMatrix().Data)
}
