package service

import (
	"errors"

	"github.com/flowmill/flowmill/cache"
	"github.com/flowmill/flowmill/engine"
	"github.com/flowmill/flowmill/graph"
	"github.com/flowmill/flowmill/logger"
	"github.com/flowmill/flowmill/model"
	"github.com/flowmill/flowmill/persistence"
	"go.uber.org/zap"
)

var ErrWorkflowNotFound = errors.New("workflow not found")

// WorkflowService sits between the HTTP layer and the engine. It owns the
// save-then-invalidate ordering for definitions so a stale plan is never
// served for an edited workflow, and it rejects broken graphs at save time
// so they are never cached or executed.
type WorkflowService struct {
	definitionStore persistence.DefinitionStore
	defCache        *cache.DefinitionCache
	coordinator     *engine.Coordinator
}

func NewWorkflowService(definitionStore persistence.DefinitionStore, defCache *cache.DefinitionCache, coordinator *engine.Coordinator) *WorkflowService {
	return &WorkflowService{
		definitionStore: definitionStore,
		defCache:        defCache,
		coordinator:     coordinator,
	}
}

// SaveDefinition validates the graph (including cycle detection, surfaced
// to the author here rather than at run time), persists it as a new version
// and invalidates every cached entry of the workflow.
func (s *WorkflowService) SaveDefinition(workflowId string, nodes []model.NodeSpec, edges []model.Edge) (int, error) {
	g, err := graph.Build(nodes, edges)
	if err != nil {
		return 0, err
	}
	if _, err := graph.Plan(g); err != nil {
		return 0, err
	}
	version, err := s.definitionStore.Save(workflowId, nodes, edges)
	if err != nil {
		return 0, err
	}
	s.defCache.Invalidate(workflowId)
	logger.Info("workflow definition saved", zap.String("workflow", workflowId), zap.Int("version", version))
	return version, nil
}

// GetDefinition returns the latest version. The version pointer is always
// resolved from the store; only the definition body reads through the cache.
// Cached entries are keyed by version, so a run pinned to an old version
// repopulating the cache can never make this path stale.
func (s *WorkflowService) GetDefinition(workflowId string) (*model.WorkflowDefinition, error) {
	version, err := s.definitionStore.LatestVersion(workflowId)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, ErrWorkflowNotFound
	}
	if err != nil {
		return nil, err
	}
	if def, found := s.defCache.GetDefinition(workflowId, version); found {
		return def, nil
	}
	def, err := s.definitionStore.Load(workflowId, version)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, ErrWorkflowNotFound
	}
	if err != nil {
		return nil, err
	}
	s.defCache.PutDefinition(def)
	return def, nil
}

// StartRun triggers a run of the latest definition version.
func (s *WorkflowService) StartRun(workflowId string, input map[string]any) (string, error) {
	return s.coordinator.StartRun(workflowId, 0, input)
}

func (s *WorkflowService) GetRun(runId string) (*model.RunState, error) {
	return s.coordinator.GetRun(runId)
}

func (s *WorkflowService) CancelRun(runId string) error {
	return s.coordinator.Cancel(runId)
}

// HandleEvent is the webhook ingress path: resolve the token and resume the
// suspended node with the event payload.
func (s *WorkflowService) HandleEvent(token string, payload map[string]any) error {
	return s.coordinator.Resume(token, payload)
}
