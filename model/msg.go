package model

type SaveDefinitionRequest struct {
	WorkflowId string     `json:"workflowId"`
	Nodes      []NodeSpec `json:"nodes"`
	Edges      []Edge     `json:"edges"`
}

type RunStartRequest struct {
	WorkflowId string         `json:"workflowId"`
	Input      map[string]any `json:"input"`
}

type EventRequest struct {
	Payload map[string]any `json:"payload"`
}
