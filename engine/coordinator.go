package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/flowmill/flowmill/cache"
	"github.com/flowmill/flowmill/executor"
	"github.com/flowmill/flowmill/graph"
	"github.com/flowmill/flowmill/logger"
	"github.com/flowmill/flowmill/model"
	"github.com/flowmill/flowmill/persistence"
	"github.com/flowmill/flowmill/registry"
	"github.com/flowmill/flowmill/util"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrRunNotFound = errors.New("run not found")
var ErrRunFinished = errors.New("run already finished")
var ErrWorkflowNotFound = errors.New("workflow not found")

type Config struct {
	MaxDispatchAttempts int
	RetryBackoffBase    time.Duration
	RetryBackoffCap     time.Duration
	WaitTimeout         time.Duration
	SweepInterval       time.Duration
	RetryInterval       time.Duration
	WorkerCount         int
	WorkerCapacity      int
}

func DefaultConfig() Config {
	return Config{
		MaxDispatchAttempts: 3,
		RetryBackoffBase:    time.Second,
		RetryBackoffCap:     time.Minute,
		WaitTimeout:         24 * time.Hour,
		SweepInterval:       time.Minute,
		RetryInterval:       time.Second,
		WorkerCount:         8,
		WorkerCapacity:      512,
	}
}

// dispatchTask carries one node invocation to the worker pool. Upstream
// outputs are snapshotted under the run lock so the handler never touches
// shared run state.
type dispatchTask struct {
	runId           string
	nodeId          string
	kind            model.NodeKind
	config          map[string]any
	upstreamOutputs map[string]any
	input           map[string]any
}

type retryEntry struct {
	runId  string
	nodeId string
	at     time.Time
}

// Coordinator drives workflow runs through their cached execution plan. All
// transitions of one run happen under that run's lock (single writer per
// run); node executions themselves run on the worker pool outside any lock.
type Coordinator struct {
	definitionStore persistence.DefinitionStore
	runDao          persistence.RunStateDao
	defCache        *cache.DefinitionCache
	waitRegistry    *registry.EventWaitRegistry
	actionExecutor  executor.ActionExecutor
	conf            Config

	runLocks sync.Map

	retryMu      sync.Mutex
	retryEntries []retryEntry

	pool        *util.WorkerPool
	sweepWorker *util.TickWorker
	retryWorker *util.TickWorker
	wg          *sync.WaitGroup
}

func NewCoordinator(
	definitionStore persistence.DefinitionStore,
	runDao persistence.RunStateDao,
	defCache *cache.DefinitionCache,
	waitRegistry *registry.EventWaitRegistry,
	actionExecutor executor.ActionExecutor,
	conf Config,
	wg *sync.WaitGroup,
) *Coordinator {
	c := &Coordinator{
		definitionStore: definitionStore,
		runDao:          runDao,
		defCache:        defCache,
		waitRegistry:    waitRegistry,
		actionExecutor:  actionExecutor,
		conf:            conf,
		wg:              wg,
	}
	c.pool = util.NewWorkerPool("dispatch", conf.WorkerCount, conf.WorkerCapacity, wg, func(task util.Task) error {
		c.runDispatch(task.(dispatchTask))
		return nil
	})
	c.sweepWorker = util.NewTickWorker("wait-sweep", conf.SweepInterval, c.sweepExpiredWaits, wg)
	c.retryWorker = util.NewTickWorker("dispatch-retry", conf.RetryInterval, c.drainDueRetries, wg)
	return c
}

func (c *Coordinator) Start() {
	c.pool.Start()
	c.sweepWorker.Start()
	c.retryWorker.Start()
	c.recoverActiveRuns()
}

func (c *Coordinator) Stop() {
	c.retryWorker.Stop()
	c.sweepWorker.Stop()
	c.pool.Stop()
}

func (c *Coordinator) lockFor(runId string) *sync.Mutex {
	mu, _ := c.runLocks.LoadOrStore(runId, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// releaseLock drops the per-run mutex entry once the run is terminal, so
// the lock map does not grow for the process lifetime. A late caller gets a
// fresh mutex and still observes the terminal status.
func (c *Coordinator) releaseLock(runId string) {
	c.runLocks.Delete(runId)
}

// StartRun creates a run pinned to the given definition version (0 means
// latest), with root nodes READY and everything else PENDING, persists it
// and begins dispatch.
func (c *Coordinator) StartRun(workflowId string, version int, triggerPayload map[string]any) (string, error) {
	if version == 0 {
		latest, err := c.definitionStore.LatestVersion(workflowId)
		if errors.Is(err, persistence.ErrNotFound) {
			return "", ErrWorkflowNotFound
		}
		if err != nil {
			return "", err
		}
		version = latest
	}
	g, plan, err := c.loadGraphAndPlan(workflowId, version)
	if err != nil {
		return "", err
	}

	runId := uuid.New().String()
	run := &model.RunState{
		RunId:      runId,
		WorkflowId: workflowId,
		Version:    version,
		Input:      triggerPayload,
		Status:     model.RUN_RUNNING,
		NodeStates: make(map[string]*model.NodeState, len(plan)),
		CreatedAt:  time.Now(),
	}
	for _, nodeId := range plan {
		run.NodeStates[nodeId] = &model.NodeState{Status: model.NODE_PENDING}
	}
	for _, nodeId := range g.Roots() {
		run.NodeStates[nodeId].Status = model.NODE_READY
	}
	if err := c.runDao.SaveRunState(run); err != nil {
		return "", err
	}
	logger.Info("run started", zap.String("workflow", workflowId), zap.Int("version", version), zap.String("runId", runId))

	mu := c.lockFor(runId)
	mu.Lock()
	tasks, err := c.advanceLocked(runId)
	mu.Unlock()
	if err != nil {
		return runId, err
	}
	c.submit(tasks)
	return runId, nil
}

// Advance dispatches every currently READY node of the run, in plan order.
// Idempotent; safe to call at any time.
func (c *Coordinator) Advance(runId string) error {
	mu := c.lockFor(runId)
	mu.Lock()
	tasks, err := c.advanceLocked(runId)
	mu.Unlock()
	if err != nil {
		return err
	}
	c.submit(tasks)
	return nil
}

// Resume consumes the wait token, completes the suspended node with the
// event payload as its output and advances dependents.
func (c *Coordinator) Resume(token string, eventPayload map[string]any) error {
	tok, err := c.waitRegistry.Resolve(token)
	if err != nil {
		return err
	}
	mu := c.lockFor(tok.RunId)
	mu.Lock()
	tasks, err := c.resumeLocked(tok, eventPayload)
	mu.Unlock()
	if err != nil {
		return err
	}
	c.submit(tasks)
	return nil
}

// Cancel marks every non-terminal node SKIPPED, releases outstanding wait
// tokens and finishes the run as CANCELLED. Safe to call concurrently with
// an in-flight Advance.
func (c *Coordinator) Cancel(runId string) error {
	mu := c.lockFor(runId)
	mu.Lock()
	defer mu.Unlock()

	run, err := c.getRun(runId)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		c.releaseLock(runId)
		return ErrRunFinished
	}
	for nodeId, state := range run.NodeStates {
		if state.Status.Terminal() {
			continue
		}
		if state.Status == model.NODE_WAITING_EVENT && state.WaitToken != "" {
			if err := c.waitRegistry.Remove(state.WaitToken); err != nil {
				logger.Error("error removing wait token on cancel", zap.String("runId", runId), zap.String("nodeId", nodeId), zap.Error(err))
			}
			state.WaitToken = ""
		}
		state.Status = model.NODE_SKIPPED
	}
	run.Status = model.RUN_CANCELLED
	if err := c.runDao.SaveRunState(run); err != nil {
		return err
	}
	if err := c.runDao.MarkRunTerminal(runId); err != nil {
		logger.Error("error marking run terminal", zap.String("runId", runId), zap.Error(err))
	}
	c.releaseLock(runId)
	logger.Info("run cancelled", zap.String("runId", runId))
	return nil
}

// GetRun reads the persisted state without taking the run lock: every save
// is a whole-state swap, so a read is always a consistent snapshot, and
// taking the lock here would re-create entries for terminal runs.
func (c *Coordinator) GetRun(runId string) (*model.RunState, error) {
	return c.getRun(runId)
}

func (c *Coordinator) getRun(runId string) (*model.RunState, error) {
	run, err := c.runDao.GetRunState(runId)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, ErrRunNotFound
	}
	return run, err
}

func (c *Coordinator) submit(tasks []dispatchTask) {
	for _, task := range tasks {
		c.pool.Submit(task)
	}
}

// loadGraphAndPlan resolves definition and plan through the cache, falling
// back to the definition store and the planner on miss. The plan is
// recomputed rather than trusted when the cache cannot serve it.
func (c *Coordinator) loadGraphAndPlan(workflowId string, version int) (*graph.GraphModel, []string, error) {
	def, found := c.defCache.GetDefinition(workflowId, version)
	if !found {
		loaded, err := c.definitionStore.Load(workflowId, version)
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, nil, ErrWorkflowNotFound
		}
		if err != nil {
			return nil, nil, err
		}
		def = loaded
		c.defCache.PutDefinition(def)
	}
	g, err := graph.Build(def.Nodes, def.Edges)
	if err != nil {
		return nil, nil, err
	}
	plan, found := c.defCache.GetPlan(workflowId, version)
	if !found {
		plan, err = graph.Plan(g)
		if err != nil {
			return nil, nil, err
		}
		c.defCache.PutPlan(workflowId, version, plan)
	}
	return g, plan, nil
}

func backoff(base time.Duration, ceiling time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	if d > ceiling {
		return ceiling
	}
	return d
}

func bestEffort(config map[string]any) bool {
	v, ok := config["bestEffort"]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

func (c *Coordinator) scheduleRetry(runId string, nodeId string, delay time.Duration) {
	c.retryMu.Lock()
	c.retryEntries = append(c.retryEntries, retryEntry{
		runId:  runId,
		nodeId: nodeId,
		at:     time.Now().Add(delay),
	})
	c.retryMu.Unlock()
	logger.Info("dispatch retry scheduled", zap.String("runId", runId), zap.String("nodeId", nodeId), zap.Duration("after", delay))
}

func (c *Coordinator) drainDueRetries() {
	now := time.Now()
	c.retryMu.Lock()
	var due []retryEntry
	kept := c.retryEntries[:0]
	for _, e := range c.retryEntries {
		if e.at.After(now) {
			kept = append(kept, e)
		} else {
			due = append(due, e)
		}
	}
	c.retryEntries = kept
	c.retryMu.Unlock()

	for _, e := range due {
		if err := c.Advance(e.runId); err != nil {
			logger.Error("error advancing run for retry", zap.String("runId", e.runId), zap.Error(err))
		}
	}
}

func (c *Coordinator) sweepExpiredWaits() {
	expired, err := c.waitRegistry.SweepExpired(c.conf.WaitTimeout)
	if err != nil {
		logger.Error("error sweeping expired wait tokens", zap.Error(err))
		return
	}
	for _, tok := range expired {
		mu := c.lockFor(tok.RunId)
		mu.Lock()
		err := c.failWaitLocked(tok, fmt.Sprintf("no event received within %s", c.conf.WaitTimeout))
		mu.Unlock()
		if err != nil && !errors.Is(err, ErrRunNotFound) {
			logger.Error("error failing timed out wait", zap.String("runId", tok.RunId), zap.String("nodeId", tok.NodeId), zap.Error(err))
		}
	}
}

// recoverActiveRuns reloads persisted non-terminal runs after a restart.
// Nodes caught RUNNING when the process died are put back to READY and
// re-dispatched; WAITING_EVENT nodes keep their durable tokens.
func (c *Coordinator) recoverActiveRuns() {
	runIds, err := c.runDao.ListActiveRunIds()
	if err != nil {
		logger.Error("error listing active runs for recovery", zap.Error(err))
		return
	}
	for _, runId := range runIds {
		mu := c.lockFor(runId)
		mu.Lock()
		run, err := c.getRun(runId)
		if err != nil {
			mu.Unlock()
			continue
		}
		if run.Status.Terminal() {
			mu.Unlock()
			continue
		}
		changed := false
		for _, state := range run.NodeStates {
			if state.Status == model.NODE_RUNNING {
				state.Status = model.NODE_READY
				changed = true
			}
		}
		if changed {
			if err := c.runDao.SaveRunState(run); err != nil {
				logger.Error("error persisting recovered run", zap.String("runId", runId), zap.Error(err))
				mu.Unlock()
				continue
			}
		}
		tasks, err := c.advanceLocked(runId)
		mu.Unlock()
		if err != nil {
			logger.Error("error advancing recovered run", zap.String("runId", runId), zap.Error(err))
			continue
		}
		c.submit(tasks)
		logger.Info("run recovered", zap.String("runId", runId))
	}
}
