package persistence

import (
	"errors"
	"fmt"

	"github.com/flowmill/flowmill/model"
)

type StorageLayerError struct {
	Message string
}

func (e StorageLayerError) Error() string {
	return fmt.Sprintf("storage layer error %s", e.Message)
}

// ErrNotFound is returned when a requested record does not exist, as opposed
// to the backend being unreachable.
var ErrNotFound = errors.New("record not found")

// DefinitionStore is the engine's view of workflow definition storage.
// Definitions are immutable per version; Save always allocates a new
// monotonic version.
type DefinitionStore interface {
	Load(workflowId string, version int) (*model.WorkflowDefinition, error)
	LatestVersion(workflowId string) (int, error)
	Save(workflowId string, nodes []model.NodeSpec, edges []model.Edge) (int, error)
}

// RunStateDao persists run state durably. Suspension on external events can
// last arbitrarily long, so a restart must be able to reload every
// non-terminal run.
type RunStateDao interface {
	SaveRunState(run *model.RunState) error
	GetRunState(runId string) (*model.RunState, error)
	ListActiveRunIds() ([]string, error)
	MarkRunTerminal(runId string) error
}

// WaitTokenDao persists outstanding wait tokens. ConsumeToken removes the
// record atomically so a token resolves at most once.
type WaitTokenDao interface {
	SaveToken(token model.WaitToken) error
	ConsumeToken(token string) (*model.WaitToken, error)
	DeleteToken(token string) error
	ListTokens() ([]model.WaitToken, error)
}
