package service

import (
	"sync"
	"testing"
	"time"

	"github.com/flowmill/flowmill/cache"
	"github.com/flowmill/flowmill/engine"
	"github.com/flowmill/flowmill/executor"
	"github.com/flowmill/flowmill/model"
	"github.com/flowmill/flowmill/persistence/inmem"
	"github.com/flowmill/flowmill/registry"
	"github.com/stretchr/testify/require"
)

type noopExecutor struct{}

func (noopExecutor) Execute(nodeId string, config map[string]any, upstreamOutputs map[string]any) (executor.Outcome, error) {
	return executor.Completed(nil), nil
}

func newTestService(t *testing.T) (*WorkflowService, *engine.Coordinator) {
	t.Helper()
	defs := inmem.NewInMemDefinitionStore()
	runs := inmem.NewInMemRunStateDao()
	tokens := inmem.NewInMemWaitTokenDao()
	defCache := cache.NewDefinitionCache(cache.NewMemoryBackend(64), time.Hour, 24*time.Hour)

	conf := engine.DefaultConfig()
	conf.RetryBackoffBase = 10 * time.Millisecond
	conf.RetryInterval = 10 * time.Millisecond
	conf.SweepInterval = 10 * time.Millisecond

	wg := &sync.WaitGroup{}
	coordinator := engine.NewCoordinator(defs, runs, defCache,
		registry.NewEventWaitRegistry(tokens), noopExecutor{}, conf, wg)
	coordinator.Start()
	t.Cleanup(func() {
		coordinator.Stop()
		wg.Wait()
	})
	return NewWorkflowService(defs, defCache, coordinator), coordinator
}

func node(id string, kind model.NodeKind, config map[string]any) model.NodeSpec {
	return model.NodeSpec{NodeId: id, Kind: kind, Config: config}
}

func edge(source string, target string) model.Edge {
	return model.Edge{Source: source, Target: target}
}

func TestSaveAndGetDefinition(t *testing.T) {
	svc, _ := newTestService(t)

	version, err := svc.SaveDefinition("wf",
		[]model.NodeSpec{
			node("trigger", model.NODE_KIND_TRIGGER, nil),
			node("step", model.NODE_KIND_ACTION, nil),
		},
		[]model.Edge{edge("trigger", "step")})
	require.NoError(t, err)
	require.Equal(t, 1, version)

	def, err := svc.GetDefinition("wf")
	require.NoError(t, err)
	require.Equal(t, 1, def.Version)
	require.Len(t, def.Nodes, 2)

	_, err = svc.GetDefinition("missing")
	require.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestSaveDefinitionRejectsCyclicGraph(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.SaveDefinition("wf",
		[]model.NodeSpec{
			node("A", model.NODE_KIND_TRIGGER, nil),
			node("B", model.NODE_KIND_ACTION, nil),
			node("C", model.NODE_KIND_ACTION, nil),
		},
		[]model.Edge{edge("A", "B"), edge("B", "C"), edge("C", "B")})
	require.Error(t, err)

	// nothing was persisted, so the workflow does not exist
	_, err = svc.GetDefinition("wf")
	require.ErrorIs(t, err, ErrWorkflowNotFound)
}

// An in-flight run pinned to an old version reloads that version through the
// cache. That must never make the latest-definition read stale after an edit.
func TestGetDefinitionFreshAfterPinnedRunReload(t *testing.T) {
	svc, coordinator := newTestService(t)

	_, err := svc.SaveDefinition("wf",
		[]model.NodeSpec{
			node("trigger", model.NODE_KIND_TRIGGER, nil),
			node("waitApproval", model.NODE_KIND_WAIT_FOR_EVENT, nil),
		},
		[]model.Edge{edge("trigger", "waitApproval")})
	require.NoError(t, err)

	runId, err := svc.StartRun("wf", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		run, err := svc.GetRun(runId)
		require.NoError(t, err)
		return run.NodeStates["waitApproval"].Status == model.NODE_WAITING_EVENT
	}, 5*time.Second, 10*time.Millisecond)

	version, err := svc.SaveDefinition("wf",
		[]model.NodeSpec{node("trigger", model.NODE_KIND_TRIGGER, nil)}, nil)
	require.NoError(t, err)
	require.Equal(t, 2, version)

	// the suspended run reloads its pinned version 1 into the cache
	require.NoError(t, coordinator.Advance(runId))

	def, err := svc.GetDefinition("wf")
	require.NoError(t, err)
	require.Equal(t, 2, def.Version)
}
