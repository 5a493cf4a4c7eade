package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/workflowkit/engine/pkg/executor"
	"github.com/workflowkit/engine/pkg/expression"
	"github.com/workflowkit/engine/pkg/models"
)

// ExecuteOptions configures a single ExecuteWorkflow call (§6.1
// executeWorkflow's options: dryRun, realTimeMonitoring,
// parentExecutionId, timeoutMs).
type ExecuteOptions struct {
	DryRun             bool
	RealTimeMonitoring bool
	ParentExecutionID  string
	TimeoutMs          int64
	Variables          map[string]any
}

// ExecutionMetrics summarizes a finished or in-flight execution.
type ExecutionMetrics struct {
	DurationMs  int64
	NodesTotal  int
	NodesRun    int
	NodesFailed int
}

// ExecuteResult is returned by ExecuteWorkflow (§6.1):
// {executionId, status, result?, metrics}.
type ExecuteResult struct {
	ExecutionID string
	Status      models.ExecutionStatus
	Result      map[string]any
	Metrics     ExecutionMetrics
}

// ValidateExpressionResult is the §6.1 validateExpression response shape.
type ValidateExpressionResult struct {
	OK    bool
	Error string
}

// TestExpressionResult is the §6.1 testExpression response shape.
type TestExpressionResult struct {
	OK     bool
	Result any
	Error  string
}

// trackedExecution is the registry entry backing GetExecution/CancelExecution
// for an execution that is running or has already finished.
type trackedExecution struct {
	mu        sync.RWMutex
	execution *models.Execution
	cancel    context.CancelFunc
}

func (t *trackedExecution) snapshot() *models.Execution {
	t.mu.RLock()
	defer t.mu.RUnlock()
	clone := *t.execution
	return &clone
}

// Workflows is the in-process facade over the execution engine (§6.1):
// it runs workflows, tracks and cancels in-flight executions, fans out
// lifecycle events to subscribers, catalogs connectors, and exposes the
// expression/template evaluator.
type Workflows struct {
	dagExecutor *DAGExecutor
	evaluator   *expression.Evaluator
	bus         *eventBus
	connectors  *connectorCatalog

	mu         sync.RWMutex
	executions map[string]*trackedExecution
}

// NewWorkflows builds a Workflows facade around an executor registry
// already populated with built-in (and any custom) node executors.
func NewWorkflows(executorManager executor.Manager) *Workflows {
	bus := newEventBus()
	nodeExecutor := NewNodeExecutor(executorManager)
	dagExecutor := NewDAGExecutor(nodeExecutor, NewExprConditionEvaluator(), bus, NewNilWorkflowLoader())
	return &Workflows{
		dagExecutor: dagExecutor,
		evaluator:   expression.NewEvaluator(expression.DefaultOptions()),
		bus:         bus,
		connectors:  newConnectorCatalog(executorManager),
		executions:  make(map[string]*trackedExecution),
	}
}

// ExecuteWorkflow starts a workflow execution (§6.1). It blocks until the
// run finishes or the caller's context is cancelled first, whichever
// comes first; either way the execution remains discoverable afterward
// via GetExecution/CancelExecution/Subscribe using the returned
// ExecutionID, since it runs to completion in the background regardless
// of whether the caller kept waiting.
func (w *Workflows) ExecuteWorkflow(
	ctx context.Context,
	workflow *models.Workflow,
	input map[string]any,
	opts *ExecuteOptions,
) (*ExecuteResult, error) {
	if workflow == nil {
		return nil, &models.ValidationError{Field: "workflow", Message: "workflow is required"}
	}
	if opts == nil {
		opts = &ExecuteOptions{}
	}
	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}
	if input == nil {
		input = make(map[string]any)
	}

	execCtx, cancel := context.WithCancel(context.Background())
	if opts.TimeoutMs > 0 {
		execCtx, cancel = context.WithTimeout(execCtx, time.Duration(opts.TimeoutMs)*time.Millisecond)
	}

	execOpts := DefaultExecutionOptions()
	execOpts.DryRun = opts.DryRun
	if opts.Variables != nil {
		execOpts.Variables = opts.Variables
	}

	execution := &models.Execution{
		ID:           uuid.New().String(),
		WorkflowID:   workflow.ID,
		WorkflowName: workflow.Name,
		Status:       models.ExecutionStatusRunning,
		Input:        input,
		Variables:    mergeVariables(workflow.Variables, execOpts.Variables),
		StartedAt:    time.Now(),
		Metadata:     map[string]any{},
	}
	if opts.ParentExecutionID != "" {
		execution.Metadata["parentExecutionId"] = opts.ParentExecutionID
	}

	tracked := &trackedExecution{execution: execution, cancel: cancel}
	w.mu.Lock()
	w.executions[execution.ID] = tracked
	w.mu.Unlock()

	execState := NewExecutionState(execution.ID, workflow.ID, workflow, input, execution.Variables)

	w.bus.Notify(execCtx, ExecutionEvent{
		Type:        EventTypeExecutionStarted,
		ExecutionID: execution.ID,
		WorkflowID:  workflow.ID,
		Timestamp:   execution.StartedAt,
		Status:      string(models.ExecutionStatusRunning),
	})

	done := make(chan error, 1)
	go func() {
		done <- w.dagExecutor.Execute(execCtx, execState, execOpts)
	}()

	select {
	case execErr := <-done:
		w.finishExecution(tracked, execState, workflow, execErr)
	case <-ctx.Done():
		// The caller stopped waiting; the run continues under execCtx and
		// is finalized by this same goroutine once it returns.
		go func() {
			execErr := <-done
			w.finishExecution(tracked, execState, workflow, execErr)
		}()
		return &ExecuteResult{
			ExecutionID: execution.ID,
			Status:      models.ExecutionStatusRunning,
			Metrics:     ExecutionMetrics{NodesTotal: len(workflow.Nodes)},
		}, nil
	}

	result := tracked.snapshot()
	var resultErr error
	if result.Status == models.ExecutionStatusFailed || result.Status == models.ExecutionStatusTimeout ||
		result.Status == models.ExecutionStatusCancelled {
		resultErr = errors.New(result.Error)
	}
	return &ExecuteResult{
		ExecutionID: result.ID,
		Status:      result.Status,
		Result:      result.Output,
		Metrics:     metricsFromExecution(result),
	}, resultErr
}

// finishExecution records the outcome of a background run onto the
// tracked execution, classifying cancellation/timeout distinctly from a
// plain node failure.
func (w *Workflows) finishExecution(tracked *trackedExecution, execState *ExecutionState, workflow *models.Workflow, execErr error) {
	now := time.Now()

	tracked.mu.Lock()
	tracked.execution.CompletedAt = &now
	tracked.execution.Duration = tracked.execution.CalculateDuration()
	if execErr != nil {
		tracked.execution.Status, tracked.execution.Error = classifyExecutionError(execErr)
	} else {
		tracked.execution.Status = models.ExecutionStatusCompleted
		tracked.execution.Output = getFinalOutput(execState, workflow)
	}
	tracked.execution.NodeExecutions = buildNodeExecutions(execState, workflow)
	status := tracked.execution.Status
	executionID := tracked.execution.ID
	workflowID := tracked.execution.WorkflowID
	errMsg := tracked.execution.Error
	tracked.mu.Unlock()

	eventType := EventTypeExecutionCompleted
	if status == models.ExecutionStatusFailed || status == models.ExecutionStatusTimeout {
		eventType = EventTypeExecutionFailed
	} else if status == models.ExecutionStatusCancelled {
		eventType = EventTypeExecutionCancelled
	}

	w.bus.Notify(context.Background(), ExecutionEvent{
		Type:        eventType,
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		Timestamp:   now,
		Status:      string(status),
		Message:     errMsg,
	})
}

// classifyExecutionError distinguishes a cancelled/timed-out run from an
// ordinary execution failure.
func classifyExecutionError(err error) (models.ExecutionStatus, string) {
	switch {
	case errors.Is(err, context.Canceled):
		return models.ExecutionStatusCancelled, (&models.Cancelled{Reason: models.CancelReasonUserCancelled}).Error()
	case errors.Is(err, context.DeadlineExceeded):
		return models.ExecutionStatusTimeout, (&models.Cancelled{Reason: models.CancelReasonExecutionTimeout}).Error()
	default:
		return models.ExecutionStatusFailed, err.Error()
	}
}

// metricsFromExecution derives summary metrics from a finished execution's
// node executions.
func metricsFromExecution(execution *models.Execution) ExecutionMetrics {
	m := ExecutionMetrics{
		DurationMs: execution.Duration,
		NodesTotal: len(execution.NodeExecutions),
	}
	for _, ne := range execution.NodeExecutions {
		switch ne.Status {
		case models.NodeExecutionStatusCompleted:
			m.NodesRun++
		case models.NodeExecutionStatusFailed:
			m.NodesRun++
			m.NodesFailed++
		}
	}
	return m
}

// GetExecution retrieves a tracked execution's current snapshot by ID.
func (w *Workflows) GetExecution(ctx context.Context, executionID string) (*models.Execution, error) {
	w.mu.RLock()
	tracked, ok := w.executions[executionID]
	w.mu.RUnlock()
	if !ok {
		return nil, models.ErrExecutionNotFound
	}
	return tracked.snapshot(), nil
}

// CancelExecution cancels a running execution (§6.1 cancelExecution).
// reason defaults to UserCancelled when empty.
func (w *Workflows) CancelExecution(ctx context.Context, executionID string, reason models.CancellationReason) error {
	w.mu.RLock()
	tracked, ok := w.executions[executionID]
	w.mu.RUnlock()
	if !ok {
		return models.ErrExecutionNotFound
	}
	if reason == "" {
		reason = models.CancelReasonUserCancelled
	}

	tracked.mu.Lock()
	if tracked.execution.Metadata == nil {
		tracked.execution.Metadata = map[string]any{}
	}
	tracked.execution.Metadata["cancelReason"] = string(reason)
	tracked.mu.Unlock()

	tracked.cancel()
	return nil
}

// Subscribe registers for execution lifecycle events (§6.1 subscribe).
// The returned subscription ID is passed to Unsubscribe to stop delivery.
func (w *Workflows) Subscribe(executionID string) (string, <-chan ExecutionEvent) {
	return w.bus.Subscribe(executionID)
}

// Unsubscribe stops delivery for a subscription started by Subscribe
// (§6.1 unsubscribe).
func (w *Workflows) Unsubscribe(subscriptionID string) error {
	return w.bus.Unsubscribe(subscriptionID)
}

// RegisterConnector adds a connector definition to the catalog (§6.1
// registerConnector).
func (w *Workflows) RegisterConnector(def *models.ConnectorDefinition) error {
	return w.connectors.Register(def)
}

// GetConnector retrieves a connector definition by type (§6.1 getConnector).
func (w *Workflows) GetConnector(connectorType string) (*models.ConnectorDefinition, error) {
	return w.connectors.Get(connectorType)
}

// ListConnectors returns every registered connector definition (§6.1
// listConnectors).
func (w *Workflows) ListConnectors() []*models.ConnectorDefinition {
	return w.connectors.List()
}

// ConnectorStatistics returns per-connector-type usage counters (§6.1
// connectorStatistics).
func (w *Workflows) ConnectorStatistics() map[string]executor.ExecutorStats {
	return w.connectors.Statistics()
}

// ValidateExpression checks an expression for syntax/hostile-pattern
// errors without evaluating it (§6.1 validateExpression).
func (w *Workflows) ValidateExpression(expr string) ValidateExpressionResult {
	if err := w.evaluator.Validate(expr); err != nil {
		return ValidateExpressionResult{Error: err.Error()}
	}
	return ValidateExpressionResult{OK: true}
}

// TestExpression validates then evaluates an expression against sample
// variables (§6.1 testExpression).
func (w *Workflows) TestExpression(ctx context.Context, expr string, vars map[string]any) TestExpressionResult {
	result, err := w.evaluator.TestExpression(ctx, expr, vars)
	if err != nil {
		return TestExpressionResult{Error: err.Error()}
	}
	return TestExpressionResult{OK: true, Result: result}
}

// EvaluateTemplate resolves ${expr} and {{path}} holes in a template
// string against sample variables (§6.1 evaluateTemplate).
func (w *Workflows) EvaluateTemplate(ctx context.Context, tpl string, vars map[string]any) (string, error) {
	return w.evaluator.EvaluateTemplate(ctx, tpl, vars)
}
