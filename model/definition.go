package model

type NodeKind string

const NODE_KIND_TRIGGER NodeKind = "TRIGGER"
const NODE_KIND_ACTION NodeKind = "ACTION"
const NODE_KIND_CONDITION NodeKind = "CONDITION"
const NODE_KIND_WAIT_FOR_EVENT NodeKind = "WAIT_FOR_EVENT"

// NodeSpec describes one node of a workflow version. Config is opaque to the
// engine except for CONDITION expressions and {$.path} templating, which are
// resolved against upstream outputs at dispatch time.
type NodeSpec struct {
	NodeId string         `json:"nodeId"`
	Kind   NodeKind       `json:"kind"`
	Config map[string]any `json:"config"`
}

type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// WorkflowDefinition is immutable per (WorkflowId, Version). An update always
// produces a new version; in-flight runs stay pinned to the version they
// started with.
type WorkflowDefinition struct {
	WorkflowId string     `json:"workflowId"`
	Version    int        `json:"version"`
	Nodes      []NodeSpec `json:"nodes"`
	Edges      []Edge     `json:"edges"`
}

// ExecutionPlan is the cached artifact derived from a definition: a total
// order consistent with the DAG's partial order.
type ExecutionPlan struct {
	WorkflowId     string   `json:"workflowId"`
	Version        int      `json:"version"`
	OrderedNodeIds []string `json:"orderedNodeIds"`
}
