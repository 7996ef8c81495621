package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/flowmill/flowmill/logger"
	"github.com/flowmill/flowmill/model"
	"github.com/flowmill/flowmill/util"
	"go.uber.org/zap"
)

// ErrCacheMiss is returned by backends when a key is absent. Any other
// backend error is swallowed by DefinitionCache and treated as a miss: the
// cache is a performance layer, never a source of correctness failures.
var ErrCacheMiss = errors.New("cache miss")

func definitionEntry(version int) string {
	return fmt.Sprintf("def:%d", version)
}

// Backend stores opaque entries grouped by workflow id. InvalidateWorkflow
// must remove every entry of the workflow, whichever version wrote it.
type Backend interface {
	Get(workflowId string, entry string) ([]byte, error)
	Set(workflowId string, entry string, value []byte, ttl time.Duration) error
	InvalidateWorkflow(workflowId string) error
}

// DefinitionCache caches raw workflow definitions and precomputed execution
// plans. Both are keyed by (workflow id, version): a run pinned to an old
// version repopulating the cache must never shadow a newer version. Plans
// carry their own TTL, independent of the definition TTL, but both are
// removed by Invalidate. Constructed once at process start and shared by
// handle.
type DefinitionCache struct {
	backend       Backend
	definitionTTL time.Duration
	planTTL       time.Duration
	defEncDec     util.EncoderDecoder[model.WorkflowDefinition]
	planEncDec    util.EncoderDecoder[model.ExecutionPlan]
}

func NewDefinitionCache(backend Backend, definitionTTL time.Duration, planTTL time.Duration) *DefinitionCache {
	return &DefinitionCache{
		backend:       backend,
		definitionTTL: definitionTTL,
		planTTL:       planTTL,
		defEncDec:     util.NewJsonEncoderDecoder[model.WorkflowDefinition](),
		planEncDec:    util.NewJsonEncoderDecoder[model.ExecutionPlan](),
	}
}

func planEntry(version int) string {
	return fmt.Sprintf("plan:%d", version)
}

func (c *DefinitionCache) GetDefinition(workflowId string, version int) (*model.WorkflowDefinition, bool) {
	data, err := c.backend.Get(workflowId, definitionEntry(version))
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			logger.Error("definition cache read failed, treating as miss", zap.String("workflow", workflowId), zap.Int("version", version), zap.Error(err))
		}
		return nil, false
	}
	def, err := c.defEncDec.Decode(data)
	if err != nil {
		logger.Error("corrupt cached definition, treating as miss", zap.String("workflow", workflowId), zap.Int("version", version), zap.Error(err))
		return nil, false
	}
	return def, true
}

func (c *DefinitionCache) PutDefinition(def *model.WorkflowDefinition) {
	data, err := c.defEncDec.Encode(*def)
	if err != nil {
		return
	}
	if err := c.backend.Set(def.WorkflowId, definitionEntry(def.Version), data, c.definitionTTL); err != nil {
		logger.Error("definition cache write failed", zap.String("workflow", def.WorkflowId), zap.Int("version", def.Version), zap.Error(err))
	}
}

func (c *DefinitionCache) GetPlan(workflowId string, version int) ([]string, bool) {
	data, err := c.backend.Get(workflowId, planEntry(version))
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			logger.Error("plan cache read failed, treating as miss", zap.String("workflow", workflowId), zap.Int("version", version), zap.Error(err))
		}
		return nil, false
	}
	plan, err := c.planEncDec.Decode(data)
	if err != nil {
		logger.Error("corrupt cached plan, treating as miss", zap.String("workflow", workflowId), zap.Int("version", version), zap.Error(err))
		return nil, false
	}
	return plan.OrderedNodeIds, true
}

func (c *DefinitionCache) PutPlan(workflowId string, version int, orderedNodeIds []string) {
	plan := model.ExecutionPlan{
		WorkflowId:     workflowId,
		Version:        version,
		OrderedNodeIds: orderedNodeIds,
	}
	data, err := c.planEncDec.Encode(plan)
	if err != nil {
		return
	}
	if err := c.backend.Set(workflowId, planEntry(version), data, c.planTTL); err != nil {
		logger.Error("plan cache write failed", zap.String("workflow", workflowId), zap.Int("version", version), zap.Error(err))
	}
}

// Invalidate removes the definition entry and every cached plan for every
// version of the workflow. Called on every definition save; a stale plan for
// an old version must never be served once the workflow has been edited.
func (c *DefinitionCache) Invalidate(workflowId string) {
	if err := c.backend.InvalidateWorkflow(workflowId); err != nil {
		logger.Error("cache invalidation failed", zap.String("workflow", workflowId), zap.Error(err))
	}
}
