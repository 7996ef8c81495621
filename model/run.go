package model

import "time"

type NodeStatus string

const NODE_PENDING NodeStatus = "PENDING"
const NODE_READY NodeStatus = "READY"
const NODE_RUNNING NodeStatus = "RUNNING"
const NODE_WAITING_EVENT NodeStatus = "WAITING_EVENT"
const NODE_COMPLETED NodeStatus = "COMPLETED"
const NODE_FAILED NodeStatus = "FAILED"
const NODE_SKIPPED NodeStatus = "SKIPPED"

func (s NodeStatus) Terminal() bool {
	return s == NODE_COMPLETED || s == NODE_FAILED || s == NODE_SKIPPED
}

type RunStatus string

const RUN_RUNNING RunStatus = "RUNNING"
const RUN_COMPLETED RunStatus = "COMPLETED"
const RUN_FAILED RunStatus = "FAILED"
const RUN_CANCELLED RunStatus = "CANCELLED"

func (s RunStatus) Terminal() bool {
	return s != RUN_RUNNING
}

type NodeState struct {
	Status       NodeStatus     `json:"status"`
	AttemptCount int            `json:"attemptCount"`
	RetryAt      time.Time      `json:"retryAt,omitempty"`
	WaitToken    string         `json:"waitToken,omitempty"`
	Output       map[string]any `json:"output,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// RunState is one triggered execution of a workflow version. It is owned by
// the coordinator and persisted on every transition so a restart can resume
// in-flight runs.
type RunState struct {
	RunId        string                `json:"runId"`
	WorkflowId   string                `json:"workflowId"`
	Version      int                   `json:"version"`
	Input        map[string]any        `json:"input,omitempty"`
	Status       RunStatus             `json:"runStatus"`
	NodeStates   map[string]*NodeState `json:"nodeStates"`
	FailedNodeId string                `json:"failedNodeId,omitempty"`
	CreatedAt    time.Time             `json:"createdAt"`
}

// WaitToken correlates a suspended WAIT_FOR_EVENT node to the external event
// that will resume it. Single use.
type WaitToken struct {
	Token     string    `json:"token"`
	RunId     string    `json:"runId"`
	NodeId    string    `json:"nodeId"`
	CreatedAt time.Time `json:"createdAt"`
}
