package executor

import "fmt"

type OutcomeStatus string

const OUTCOME_COMPLETED OutcomeStatus = "COMPLETED"
const OUTCOME_SKIPPED OutcomeStatus = "SKIPPED"
const OUTCOME_FAILED OutcomeStatus = "FAILED"

// Outcome is what an action executor reports for one node invocation.
// FAILED means the action ran and reported failure; a transport-level
// problem reaching the executor is signalled with TransientError instead,
// and is the engine's to retry.
type Outcome struct {
	Status OutcomeStatus
	Output map[string]any
	Error  string
}

func Completed(output map[string]any) Outcome {
	return Outcome{Status: OUTCOME_COMPLETED, Output: output}
}

func Skipped() Outcome {
	return Outcome{Status: OUTCOME_SKIPPED}
}

func Failed(reason string) Outcome {
	return Outcome{Status: OUTCOME_FAILED, Error: reason}
}

// TransientError marks a scheduling-level infrastructure hiccup: the
// executor call itself could not be made. The engine retries the dispatch
// with backoff up to a bounded attempt count.
type TransientError struct {
	Message string
}

func (e TransientError) Error() string {
	return fmt.Sprintf("transient scheduling error: %s", e.Message)
}

// ActionExecutor is the external collaborator that runs concrete node
// actions (send-email, slack post, ...). Opaque, possibly slow, possibly
// failing. Retries of the underlying third-party call are the action's own
// concern, not the engine's.
type ActionExecutor interface {
	Execute(nodeId string, config map[string]any, upstreamOutputs map[string]any) (Outcome, error)
}
