package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/workflowkit/engine/pkg/executor"
	"github.com/workflowkit/engine/pkg/models"
)

// standaloneExecutor implements StandaloneExecutor for in-memory workflow
// execution. It delegates to the same DAGExecutor used by the
// persistence-backed engine, so a workflow run through the CLI or tests
// gets the same node vocabulary (loop, expression, set-variable, branch,
// retry, delay) and dry-run support, not a separate reduced execution
// path. It is built with NilWorkflowLoader, so a sub_workflow node fails
// when it tries to load its child workflow.
type standaloneExecutor struct {
	dagExecutor *DAGExecutor
}

// NewStandaloneExecutor creates a new standalone executor that runs workflows
// in-memory without persistence. This is useful for testing, demos, and
// simple automation scripts.
func NewStandaloneExecutor(executorManager executor.Manager) StandaloneExecutor {
	nodeExecutor := NewNodeExecutor(executorManager)
	dagExecutor := NewDAGExecutor(nodeExecutor, NewExprConditionEvaluator(), NewNoOpNotifier(), NewNilWorkflowLoader())
	return &standaloneExecutor{dagExecutor: dagExecutor}
}

// ExecuteStandalone executes a workflow synchronously without persistence.
func (e *standaloneExecutor) ExecuteStandalone(
	ctx context.Context,
	workflow *models.Workflow,
	input map[string]interface{},
	opts *ExecutionOptions,
) (*models.Execution, error) {
	if workflow == nil {
		return nil, fmt.Errorf("workflow is required")
	}
	if e.dagExecutor == nil {
		return nil, fmt.Errorf("executor manager not initialized")
	}

	if opts == nil {
		opts = DefaultExecutionOptions()
	}
	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}
	if input == nil {
		input = make(map[string]interface{})
	}

	execution := &models.Execution{
		ID:           uuid.New().String(),
		WorkflowID:   workflow.ID,
		WorkflowName: workflow.Name,
		Status:       models.ExecutionStatusRunning,
		Input:        input,
		Variables:    mergeVariables(workflow.Variables, opts.Variables),
		StartedAt:    time.Now(),
	}

	execState := NewExecutionState(execution.ID, workflow.ID, workflow, input, execution.Variables)

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	execErr := e.dagExecutor.Execute(ctx, execState, opts)

	now := time.Now()
	execution.CompletedAt = &now
	execution.Duration = execution.CalculateDuration()

	if execErr != nil {
		execution.Status = models.ExecutionStatusFailed
		execution.Error = execErr.Error()
	} else {
		execution.Status = models.ExecutionStatusCompleted
		execution.Output = getFinalOutput(execState, workflow)
	}

	execution.NodeExecutions = buildNodeExecutions(execState, workflow)

	return execution, execErr
}

// mergeVariables merges workflow and execution variables.
func mergeVariables(workflowVars, executionVars map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{})
	for k, v := range workflowVars {
		merged[k] = v
	}
	for k, v := range executionVars {
		merged[k] = v
	}
	return merged
}

// getFinalOutput gets output from leaf nodes (no outgoing edges). A
// single leaf's map output is returned directly; multiple leaves are
// merged, namespaced by node ID.
func getFinalOutput(state *ExecutionState, workflow *models.Workflow) map[string]interface{} {
	leafNodes := FindLeafNodes(workflow)
	if len(leafNodes) == 0 {
		return nil
	}

	if len(leafNodes) == 1 {
		if output, ok := state.GetNodeOutput(leafNodes[0].ID); ok {
			if outputMap, ok := output.(map[string]interface{}); ok {
				return outputMap
			}
		}
	}

	merged := make(map[string]interface{})
	for _, node := range leafNodes {
		if output, ok := state.GetNodeOutput(node.ID); ok {
			merged[node.ID] = output
		}
	}
	return merged
}

// buildNodeExecutions builds NodeExecution records from execution state.
func buildNodeExecutions(state *ExecutionState, workflow *models.Workflow) []*models.NodeExecution {
	nodeExecs := make([]*models.NodeExecution, 0, len(workflow.Nodes))

	for _, node := range workflow.Nodes {
		nodeExec := &models.NodeExecution{
			ID:          uuid.New().String(),
			ExecutionID: state.ExecutionID,
			NodeID:      node.ID,
			NodeName:    node.Name,
			NodeType:    node.Type,
		}

		if status, ok := state.GetNodeStatus(node.ID); ok {
			nodeExec.Status = status
		}

		if output, ok := state.GetNodeOutput(node.ID); ok {
			if outputMap, ok := output.(map[string]interface{}); ok {
				nodeExec.Output = outputMap
			}
		}

		if err, ok := state.GetNodeError(node.ID); ok {
			nodeExec.Error = err.Error()
		}

		nodeExecs = append(nodeExecs, nodeExec)
	}

	return nodeExecs
}
