package graph

import (
	"fmt"

	"github.com/flowmill/flowmill/model"
)

type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid workflow graph: %s", e.Message)
}

// GraphModel is the in-memory adjacency view of one workflow version.
// Immutable after Build; a definition change always builds a new model.
type GraphModel struct {
	nodes        map[string]model.NodeSpec
	predecessors map[string][]string
	successors   map[string][]string
	roots        []string
}

// Build validates nodes and edges and constructs the adjacency maps.
// Cycle detection is the planner's job, not Build's.
func Build(nodes []model.NodeSpec, edges []model.Edge) (*GraphModel, error) {
	g := &GraphModel{
		nodes:        make(map[string]model.NodeSpec, len(nodes)),
		predecessors: make(map[string][]string),
		successors:   make(map[string][]string),
	}
	for _, n := range nodes {
		if n.NodeId == "" {
			return nil, ValidationError{Message: "node with empty id"}
		}
		if _, ok := g.nodes[n.NodeId]; ok {
			return nil, ValidationError{Message: fmt.Sprintf("duplicate node id %s", n.NodeId)}
		}
		g.nodes[n.NodeId] = n
	}
	for _, e := range edges {
		if _, ok := g.nodes[e.Source]; !ok {
			return nil, ValidationError{Message: fmt.Sprintf("edge source %s is not a node", e.Source)}
		}
		if _, ok := g.nodes[e.Target]; !ok {
			return nil, ValidationError{Message: fmt.Sprintf("edge target %s is not a node", e.Target)}
		}
		g.successors[e.Source] = append(g.successors[e.Source], e.Target)
		g.predecessors[e.Target] = append(g.predecessors[e.Target], e.Source)
	}
	for id := range g.nodes {
		if len(g.predecessors[id]) == 0 {
			g.roots = append(g.roots, id)
		}
	}
	return g, nil
}

func (g *GraphModel) Node(nodeId string) (model.NodeSpec, bool) {
	n, ok := g.nodes[nodeId]
	return n, ok
}

func (g *GraphModel) Size() int {
	return len(g.nodes)
}

func (g *GraphModel) Predecessors(nodeId string) []string {
	return g.predecessors[nodeId]
}

func (g *GraphModel) Successors(nodeId string) []string {
	return g.successors[nodeId]
}

// Roots returns nodes with no incoming edge, the trigger entry points.
func (g *GraphModel) Roots() []string {
	return g.roots
}
