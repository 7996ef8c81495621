package graph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlan(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T){
		"test fan out lexicographic order": testPlanFanOut,
		"test two node cycle":              testPlanCycle,
		"test deterministic output":        testPlanDeterministic,
		"test edge order respected":        testPlanEdgeOrder,
		"test cycle names unresolved node": testPlanCycleNames,
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t)
		})
	}
}

func testPlanFanOut(t *testing.T) {
	g, err := Build(nodes("C", "A", "B"), edges([2]string{"A", "B"}, [2]string{"A", "C"}))
	require.NoError(t, err)

	order, err := Plan(g)
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B", "C"}, order)
}

func testPlanCycle(t *testing.T) {
	g, err := Build(nodes("A", "B"), edges([2]string{"A", "B"}, [2]string{"B", "A"}))
	require.NoError(t, err)

	_, err = Plan(g)
	require.Error(t, err)
	_, ok := err.(CycleError)
	require.True(t, ok)
}

func testPlanDeterministic(t *testing.T) {
	g, err := Build(nodes("E", "D", "C", "B", "A"),
		edges([2]string{"A", "C"}, [2]string{"B", "C"}, [2]string{"C", "D"}, [2]string{"C", "E"}))
	require.NoError(t, err)

	first, err := Plan(g)
	require.NoError(t, err)
	second, err := Plan(g)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, []string{"A", "B", "C", "D", "E"}, first)
}

func testPlanEdgeOrder(t *testing.T) {
	g, err := Build(nodes("A", "B", "C", "D"),
		edges([2]string{"D", "A"}, [2]string{"A", "B"}, [2]string{"B", "C"}))
	require.NoError(t, err)

	order, err := Plan(g)
	require.NoError(t, err)
	require.Len(t, order, 4)

	index := make(map[string]int)
	for i, id := range order {
		index[id] = i
	}
	require.Less(t, index["D"], index["A"])
	require.Less(t, index["A"], index["B"])
	require.Less(t, index["B"], index["C"])
}

func testPlanCycleNames(t *testing.T) {
	// A is fine, B<->C cycle must be reported.
	g, err := Build(nodes("A", "B", "C"),
		edges([2]string{"A", "B"}, [2]string{"B", "C"}, [2]string{"C", "B"}))
	require.NoError(t, err)

	_, err = Plan(g)
	cycleErr, ok := err.(CycleError)
	require.True(t, ok)
	require.Contains(t, cycleErr.UnresolvedNodeIds, "B")
	require.Contains(t, cycleErr.UnresolvedNodeIds, "C")
	require.NotContains(t, cycleErr.UnresolvedNodeIds, "A")
}
