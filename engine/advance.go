package engine

import (
	"errors"
	"time"

	"github.com/flowmill/flowmill/executor"
	"github.com/flowmill/flowmill/graph"
	"github.com/flowmill/flowmill/logger"
	"github.com/flowmill/flowmill/model"
	"go.uber.org/zap"
)

// advanceLocked loads the run and pushes it as far as it can go without
// executing anything: PENDING nodes whose predecessors are settled become
// READY (or SKIPPED when no inbound path completed), READY nodes are marked
// RUNNING and returned as dispatch tasks, and the run is finished when
// nothing is left in flight. Caller must hold the run lock; returned tasks
// are submitted after the lock is released.
func (c *Coordinator) advanceLocked(runId string) ([]dispatchTask, error) {
	run, err := c.getRun(runId)
	if err != nil {
		return nil, err
	}
	if run.Status.Terminal() {
		c.releaseLock(runId)
		return nil, nil
	}
	g, plan, err := c.loadGraphAndPlan(run.WorkflowId, run.Version)
	if err != nil {
		return nil, err
	}
	return c.progressLocked(run, g, plan)
}

func (c *Coordinator) progressLocked(run *model.RunState, g *graph.GraphModel, plan []string) ([]dispatchTask, error) {
	c.promoteNodes(run, g, plan)

	var tasks []dispatchTask
	scope := buildScope(run)
	// plan order keeps dispatch deterministic when several nodes are
	// simultaneously ready
	for _, nodeId := range plan {
		state := run.NodeStates[nodeId]
		if state.Status != model.NODE_READY {
			continue
		}
		// a node waiting out its retry backoff stays READY but must not
		// be re-dispatched by an unrelated advance before it is due
		if !state.RetryAt.IsZero() && time.Now().Before(state.RetryAt) {
			continue
		}
		node, ok := g.Node(nodeId)
		if !ok {
			continue
		}
		if node.Kind == model.NODE_KIND_WAIT_FOR_EVENT {
			token, err := c.waitRegistry.Register(run.RunId, nodeId)
			if err != nil {
				state.AttemptCount++
				if state.AttemptCount >= c.conf.MaxDispatchAttempts {
					logger.Error("registering wait token exhausted attempts, failing run", zap.String("runId", run.RunId), zap.String("nodeId", nodeId), zap.Error(err))
					if err := c.failRunLocked(run, nodeId, "error registering wait token: "+err.Error()); err != nil {
						return nil, err
					}
					return nil, nil
				}
				delay := backoff(c.conf.RetryBackoffBase, c.conf.RetryBackoffCap, state.AttemptCount)
				state.RetryAt = time.Now().Add(delay)
				logger.Error("error registering wait token, retrying", zap.String("runId", run.RunId), zap.String("nodeId", nodeId), zap.Error(err))
				c.scheduleRetry(run.RunId, nodeId, delay)
				continue
			}
			state.Status = model.NODE_WAITING_EVENT
			state.WaitToken = token
			state.RetryAt = time.Time{}
			continue
		}
		state.Status = model.NODE_RUNNING
		state.AttemptCount++
		state.RetryAt = time.Time{}
		tasks = append(tasks, dispatchTask{
			runId:           run.RunId,
			nodeId:          nodeId,
			kind:            node.Kind,
			config:          node.Config,
			upstreamOutputs: scope,
			input:           run.Input,
		})
	}

	c.finishIfSettled(run)
	if err := c.runDao.SaveRunState(run); err != nil {
		return nil, err
	}
	return tasks, nil
}

// promoteNodes walks the plan once (topological, so predecessors settle
// first). A PENDING node becomes READY when every predecessor is COMPLETED
// or SKIPPED and at least one completed; when all inbound paths were
// skipped, the skip propagates so a false branch never stalls dependents.
func (c *Coordinator) promoteNodes(run *model.RunState, g *graph.GraphModel, plan []string) {
	for _, nodeId := range plan {
		state := run.NodeStates[nodeId]
		if state.Status != model.NODE_PENDING {
			continue
		}
		preds := g.Predecessors(nodeId)
		settled := true
		completed := false
		for _, pred := range preds {
			switch run.NodeStates[pred].Status {
			case model.NODE_COMPLETED:
				completed = true
			case model.NODE_SKIPPED:
			default:
				settled = false
			}
		}
		if !settled {
			continue
		}
		if len(preds) > 0 && !completed {
			state.Status = model.NODE_SKIPPED
			continue
		}
		state.Status = model.NODE_READY
	}
}

func (c *Coordinator) finishIfSettled(run *model.RunState) {
	if run.Status.Terminal() {
		return
	}
	for _, state := range run.NodeStates {
		switch state.Status {
		case model.NODE_READY, model.NODE_RUNNING, model.NODE_WAITING_EVENT, model.NODE_PENDING:
			return
		}
	}
	run.Status = model.RUN_COMPLETED
	if err := c.runDao.MarkRunTerminal(run.RunId); err != nil {
		logger.Error("error marking run terminal", zap.String("runId", run.RunId), zap.Error(err))
	}
	c.releaseLock(run.RunId)
	logger.Info("run completed", zap.String("runId", run.RunId), zap.String("workflow", run.WorkflowId))
}

// buildScope snapshots completed node outputs for executors and condition
// expressions: {"input": ..., "<nodeId>": {"output": ...}}.
func buildScope(run *model.RunState) map[string]any {
	scope := map[string]any{"input": run.Input}
	for nodeId, state := range run.NodeStates {
		if state.Status == model.NODE_COMPLETED && state.Output != nil {
			scope[nodeId] = map[string]any{"output": state.Output}
		}
	}
	return scope
}

// runDispatch executes one node on a pool worker, outside any run lock.
// TRIGGER and CONDITION nodes are evaluated engine-side; everything else
// goes to the external action executor.
func (c *Coordinator) runDispatch(task dispatchTask) {
	var outcome executor.Outcome
	var execErr error
	switch task.kind {
	case model.NODE_KIND_TRIGGER:
		outcome = executor.Completed(task.input)
	case model.NODE_KIND_CONDITION:
		expression, _ := task.config["expression"].(string)
		result, err := executor.EvaluateCondition(expression, task.upstreamOutputs)
		if err != nil {
			outcome = executor.Failed(err.Error())
		} else if result {
			outcome = executor.Completed(map[string]any{"result": true})
		} else {
			outcome = executor.Skipped()
		}
	default:
		resolved := executor.ResolveConfigParams(task.config, task.upstreamOutputs)
		outcome, execErr = c.actionExecutor.Execute(task.nodeId, resolved, task.upstreamOutputs)
	}
	c.onNodeOutcome(task, outcome, execErr)
}

func (c *Coordinator) onNodeOutcome(task dispatchTask, outcome executor.Outcome, execErr error) {
	mu := c.lockFor(task.runId)
	mu.Lock()

	run, err := c.getRun(task.runId)
	if err != nil {
		mu.Unlock()
		logger.Error("error loading run for outcome", zap.String("runId", task.runId), zap.Error(err))
		return
	}
	state := run.NodeStates[task.nodeId]
	if run.Status.Terminal() || state == nil || state.Status != model.NODE_RUNNING {
		// stale callback, e.g. the run was cancelled while the node ran
		mu.Unlock()
		logger.Debug("discarding stale node outcome", zap.String("runId", task.runId), zap.String("nodeId", task.nodeId))
		return
	}

	if execErr != nil {
		if state.AttemptCount < c.conf.MaxDispatchAttempts {
			state.Status = model.NODE_READY
			delay := backoff(c.conf.RetryBackoffBase, c.conf.RetryBackoffCap, state.AttemptCount)
			state.RetryAt = time.Now().Add(delay)
			if err := c.runDao.SaveRunState(run); err != nil {
				logger.Error("error persisting run for retry", zap.String("runId", task.runId), zap.Error(err))
			}
			mu.Unlock()
			c.scheduleRetry(task.runId, task.nodeId, delay)
			return
		}
		logger.Error("dispatch attempts exhausted, failing node", zap.String("runId", task.runId), zap.String("nodeId", task.nodeId), zap.Error(execErr))
		err := c.failRunLocked(run, task.nodeId, execErr.Error())
		mu.Unlock()
		if err != nil {
			logger.Error("error failing run", zap.String("runId", task.runId), zap.Error(err))
		}
		return
	}

	switch outcome.Status {
	case executor.OUTCOME_COMPLETED:
		state.Status = model.NODE_COMPLETED
		state.Output = outcome.Output
	case executor.OUTCOME_SKIPPED:
		state.Status = model.NODE_SKIPPED
	case executor.OUTCOME_FAILED:
		if bestEffort(task.config) {
			// recorded but treated as completed for scheduling
			state.Status = model.NODE_COMPLETED
			state.Error = outcome.Error
			logger.Info("best-effort node failed, continuing", zap.String("runId", task.runId), zap.String("nodeId", task.nodeId), zap.String("error", outcome.Error))
		} else {
			err := c.failRunLocked(run, task.nodeId, outcome.Error)
			mu.Unlock()
			if err != nil {
				logger.Error("error failing run", zap.String("runId", task.runId), zap.Error(err))
			}
			return
		}
	}

	g, plan, err := c.loadGraphAndPlan(run.WorkflowId, run.Version)
	if err != nil {
		mu.Unlock()
		logger.Error("error loading plan for run", zap.String("runId", task.runId), zap.Error(err))
		return
	}
	tasks, err := c.progressLocked(run, g, plan)
	mu.Unlock()
	if err != nil {
		logger.Error("error advancing run", zap.String("runId", task.runId), zap.Error(err))
		return
	}
	c.submit(tasks)
}

// failRunLocked records the failing node, fails the run and releases every
// outstanding wait token so orphaned webhooks cannot resume it.
func (c *Coordinator) failRunLocked(run *model.RunState, nodeId string, reason string) error {
	state := run.NodeStates[nodeId]
	state.Status = model.NODE_FAILED
	state.Error = reason
	run.Status = model.RUN_FAILED
	run.FailedNodeId = nodeId
	c.releaseWaitsLocked(run)
	if err := c.runDao.SaveRunState(run); err != nil {
		return err
	}
	if err := c.runDao.MarkRunTerminal(run.RunId); err != nil {
		logger.Error("error marking run terminal", zap.String("runId", run.RunId), zap.Error(err))
	}
	c.releaseLock(run.RunId)
	logger.Info("run failed", zap.String("runId", run.RunId), zap.String("nodeId", nodeId), zap.String("reason", reason))
	return nil
}

func (c *Coordinator) releaseWaitsLocked(run *model.RunState) {
	for nodeId, state := range run.NodeStates {
		if state.Status == model.NODE_WAITING_EVENT && state.WaitToken != "" {
			if err := c.waitRegistry.Remove(state.WaitToken); err != nil {
				logger.Error("error removing wait token", zap.String("runId", run.RunId), zap.String("nodeId", nodeId), zap.Error(err))
			}
			state.WaitToken = ""
			state.Status = model.NODE_SKIPPED
		}
	}
}

func (c *Coordinator) resumeLocked(tok *model.WaitToken, eventPayload map[string]any) ([]dispatchTask, error) {
	run, err := c.getRun(tok.RunId)
	if err != nil {
		return nil, err
	}
	if run.Status.Terminal() {
		return nil, ErrRunFinished
	}
	state := run.NodeStates[tok.NodeId]
	if state == nil || state.Status != model.NODE_WAITING_EVENT {
		return nil, errors.New("node is not waiting for an event")
	}
	state.Status = model.NODE_COMPLETED
	state.Output = eventPayload
	state.WaitToken = ""
	logger.Info("wait resolved, resuming run", zap.String("runId", tok.RunId), zap.String("nodeId", tok.NodeId))

	g, plan, err := c.loadGraphAndPlan(run.WorkflowId, run.Version)
	if err != nil {
		return nil, err
	}
	return c.progressLocked(run, g, plan)
}

// failWaitLocked handles a swept, timed-out token: the node fails and the
// run fails with it.
func (c *Coordinator) failWaitLocked(tok model.WaitToken, reason string) error {
	run, err := c.getRun(tok.RunId)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return nil
	}
	state := run.NodeStates[tok.NodeId]
	if state == nil || state.Status != model.NODE_WAITING_EVENT {
		return nil
	}
	state.WaitToken = ""
	return c.failRunLocked(run, tok.NodeId, reason)
}
