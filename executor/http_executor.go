package executor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPActionExecutor forwards node invocations to an external action
// executor service. The engine does not know or care what the action does;
// it only interprets the reported outcome. Transport failures are
// TransientError and retried by the engine's scheduler; an HTTP-level
// response is the executor's verdict and is taken as-is.
type HTTPActionExecutor struct {
	endpoint string
	client   *http.Client
}

var _ ActionExecutor = new(HTTPActionExecutor)

func NewHTTPActionExecutor(endpoint string, timeout time.Duration) *HTTPActionExecutor {
	return &HTTPActionExecutor{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type executeRequest struct {
	NodeId          string         `json:"nodeId"`
	Config          map[string]any `json:"config"`
	UpstreamOutputs map[string]any `json:"upstreamOutputs"`
}

type executeResponse struct {
	Status OutcomeStatus  `json:"status"`
	Output map[string]any `json:"output,omitempty"`
	Error  string         `json:"error,omitempty"`
}

func (e *HTTPActionExecutor) Execute(nodeId string, config map[string]any, upstreamOutputs map[string]any) (Outcome, error) {
	body, err := json.Marshal(executeRequest{
		NodeId:          nodeId,
		Config:          config,
		UpstreamOutputs: upstreamOutputs,
	})
	if err != nil {
		return Outcome{}, err
	}
	resp, err := e.client.Post(e.endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return Outcome{}, TransientError{Message: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return Outcome{}, TransientError{Message: fmt.Sprintf("executor returned status %d", resp.StatusCode)}
	}
	var result executeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Outcome{}, TransientError{Message: fmt.Sprintf("undecodable executor response: %v", err)}
	}
	switch result.Status {
	case OUTCOME_COMPLETED, OUTCOME_SKIPPED, OUTCOME_FAILED:
		return Outcome{Status: result.Status, Output: result.Output, Error: result.Error}, nil
	default:
		return Failed(fmt.Sprintf("executor reported unknown status %q", result.Status)), nil
	}
}
