package graph

import (
	"testing"

	"github.com/flowmill/flowmill/model"
	"github.com/stretchr/testify/require"
)

func nodes(ids ...string) []model.NodeSpec {
	var out []model.NodeSpec
	for _, id := range ids {
		out = append(out, model.NodeSpec{NodeId: id, Kind: model.NODE_KIND_ACTION})
	}
	return out
}

func edges(pairs ...[2]string) []model.Edge {
	var out []model.Edge
	for _, p := range pairs {
		out = append(out, model.Edge{Source: p[0], Target: p[1]})
	}
	return out
}

func TestBuildRejectsDuplicateNodeId(t *testing.T) {
	_, err := Build(nodes("A", "B", "A"), nil)
	require.Error(t, err)
	_, ok := err.(ValidationError)
	require.True(t, ok)
}

func TestBuildRejectsUnknownEdgeEndpoint(t *testing.T) {
	_, err := Build(nodes("A"), edges([2]string{"A", "Z"}))
	require.Error(t, err)
	_, ok := err.(ValidationError)
	require.True(t, ok)

	_, err = Build(nodes("A"), edges([2]string{"Z", "A"}))
	require.Error(t, err)
}

func TestAdjacency(t *testing.T) {
	g, err := Build(nodes("A", "B", "C"), edges([2]string{"A", "B"}, [2]string{"A", "C"}))
	require.NoError(t, err)

	require.ElementsMatch(t, []string{"B", "C"}, g.Successors("A"))
	require.Equal(t, []string{"A"}, g.Predecessors("B"))
	require.Empty(t, g.Predecessors("A"))
	require.Equal(t, []string{"A"}, g.Roots())
}
