package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/workflowkit/engine/pkg/models"
)

// loopNodeConfig holds parsed configuration for a loop node.
type loopNodeConfig struct {
	LoopType      string
	Condition     string
	MaxIterations int
	Body          *models.NodeSet
}

// parseLoopNodeConfig extracts loopType/condition/maxIterations/loopBody from
// a loop node's config.
func parseLoopNodeConfig(node *models.Node) (*loopNodeConfig, error) {
	cfg := &loopNodeConfig{MaxIterations: DefaultLoopMaxIterations}

	loopType, _ := node.Config["loopType"].(string)
	if loopType != LoopTypeForEach && loopType != LoopTypeWhile {
		return nil, fmt.Errorf("loop node %s: loopType must be %q or %q, got %q", node.ID, LoopTypeForEach, LoopTypeWhile, loopType)
	}
	cfg.LoopType = loopType

	condition, _ := node.Config["condition"].(string)
	if condition == "" {
		return nil, fmt.Errorf("loop node %s: condition is required", node.ID)
	}
	cfg.Condition = condition

	if mi, ok := node.Config["maxIterations"]; ok {
		switch v := mi.(type) {
		case float64:
			cfg.MaxIterations = int(v)
		case int:
			cfg.MaxIterations = v
		}
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultLoopMaxIterations
	}

	body, err := models.ParseNodeSet(node.Config["loopBody"])
	if err != nil {
		return nil, fmt.Errorf("loop node %s: invalid loopBody: %w", node.ID, err)
	}
	if body == nil || len(body.Nodes) == 0 {
		return nil, fmt.Errorf("loop node %s: loopBody must contain at least one node", node.ID)
	}
	cfg.Body = body

	return cfg, nil
}

// executeLoopNode runs a forEach/while loop node by repeatedly executing its
// nested loopBody as a self-contained sub-workflow, one child execution per
// iteration.
func (de *DAGExecutor) executeLoopNode(
	ctx context.Context,
	execState *ExecutionState,
	node *models.Node,
	opts *ExecutionOptions,
) error {
	cfg, err := parseLoopNodeConfig(node)
	if err != nil {
		execState.SetNodeError(node.ID, err)
		execState.SetNodeStatus(node.ID, models.NodeExecutionStatusFailed)
		return err
	}

	parentNodes := GetRegularParentNodes(execState.Workflow, node)
	nodeCtx := PrepareNodeContext(execState, node, parentNodes, opts)

	bodyWF := &models.Workflow{
		ID:    node.ID + ":loopBody",
		Name:  node.Name + " loop body",
		Nodes: cfg.Body.Nodes,
		Edges: cfg.Body.Edges,
	}

	var results []any

	switch cfg.LoopType {
	case LoopTypeForEach:
		results, err = de.runForEachLoop(ctx, execState, node, cfg, bodyWF, nodeCtx, opts)
	case LoopTypeWhile:
		results, err = de.runWhileLoop(ctx, execState, node, cfg, bodyWF, nodeCtx, opts)
	}
	if err != nil {
		return err
	}

	output := map[string]any{
		"iterations": execState.GetLoopIteration(node.ID),
		"results":    results,
	}
	execState.SetNodeOutput(node.ID, output)
	execState.SetNodeInput(node.ID, nodeCtx.DirectParentOutput)
	execState.SetNodeConfig(node.ID, node.Config)
	execState.SetNodeStatus(node.ID, models.NodeExecutionStatusCompleted)
	return nil
}

func (de *DAGExecutor) runForEachLoop(
	ctx context.Context,
	execState *ExecutionState,
	node *models.Node,
	cfg *loopNodeConfig,
	bodyWF *models.Workflow,
	nodeCtx *NodeContext,
	opts *ExecutionOptions,
) ([]any, error) {
	items, err := evaluateForEach(cfg.Condition, nodeCtx.DirectParentOutput)
	if err != nil {
		werr := fmt.Errorf("loop node %s: condition evaluation failed: %w", node.ID, err)
		execState.SetNodeError(node.ID, werr)
		execState.SetNodeStatus(node.ID, models.NodeExecutionStatusFailed)
		return nil, werr
	}

	if len(items) > cfg.MaxIterations {
		limitErr := &models.LoopLimitExceeded{NodeID: node.ID, MaxIterations: cfg.MaxIterations}
		execState.SetNodeError(node.ID, limitErr)
		execState.SetNodeStatus(node.ID, models.NodeExecutionStatusFailed)
		de.safeNotify(ctx, ExecutionEvent{
			Type:          EventTypeLoopExhausted,
			ExecutionID:   execState.ExecutionID,
			WorkflowID:    execState.WorkflowID,
			NodeID:        node.ID,
			Timestamp:     time.Now(),
			LoopIteration: cfg.MaxIterations,
			LoopMaxIter:   cfg.MaxIterations,
			Message:       limitErr.Error(),
		})
		return nil, limitErr
	}

	results := make([]any, 0, len(items))

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("execution cancelled: %w", err)
		}

		childInput := map[string]any{
			"loopItem":  item,
			"loopIndex": i,
		}
		for k, v := range nodeCtx.DirectParentOutput {
			if _, exists := childInput[k]; !exists {
				childInput[k] = v
			}
		}

		childState := de.newLoopChildState(execState, node, bodyWF, childInput, i)

		if err := de.Execute(ctx, childState, opts); err != nil {
			werr := fmt.Errorf("loop node %s: iteration %d failed: %w", node.ID, i, err)
			execState.SetNodeError(node.ID, werr)
			execState.SetNodeStatus(node.ID, models.NodeExecutionStatusFailed)
			return nil, werr
		}

		iter := execState.IncrementLoopIteration(node.ID)
		results = append(results, collectChildOutput(childState))

		de.safeNotify(ctx, ExecutionEvent{
			Type:          EventTypeLoopIteration,
			ExecutionID:   execState.ExecutionID,
			WorkflowID:    execState.WorkflowID,
			NodeID:        node.ID,
			Timestamp:     time.Now(),
			LoopIteration: iter,
			LoopMaxIter:   cfg.MaxIterations,
		})
	}

	return results, nil
}

func (de *DAGExecutor) runWhileLoop(
	ctx context.Context,
	execState *ExecutionState,
	node *models.Node,
	cfg *loopNodeConfig,
	bodyWF *models.Workflow,
	nodeCtx *NodeContext,
	opts *ExecutionOptions,
) ([]any, error) {
	var results []any
	currentOutput := any(nodeCtx.DirectParentOutput)

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("execution cancelled: %w", err)
		}

		shouldContinue, err := de.conditionEvaluator.Evaluate(cfg.Condition, currentOutput)
		if err != nil {
			werr := fmt.Errorf("loop node %s: condition evaluation failed: %w", node.ID, err)
			execState.SetNodeError(node.ID, werr)
			execState.SetNodeStatus(node.ID, models.NodeExecutionStatusFailed)
			return nil, werr
		}
		if !shouldContinue {
			break
		}

		iterNum := execState.GetLoopIteration(node.ID)
		if iterNum >= cfg.MaxIterations {
			limitErr := &models.LoopLimitExceeded{NodeID: node.ID, MaxIterations: cfg.MaxIterations}
			execState.SetNodeError(node.ID, limitErr)
			execState.SetNodeStatus(node.ID, models.NodeExecutionStatusFailed)
			de.safeNotify(ctx, ExecutionEvent{
				Type:          EventTypeLoopExhausted,
				ExecutionID:   execState.ExecutionID,
				WorkflowID:    execState.WorkflowID,
				NodeID:        node.ID,
				Timestamp:     time.Now(),
				LoopIteration: iterNum,
				LoopMaxIter:   cfg.MaxIterations,
				Message:       fmt.Sprintf("loop %s exhausted after %d iterations", node.ID, iterNum),
			})
			return nil, limitErr
		}

		childInput := map[string]any{"loopIndex": iterNum}
		if m, ok := currentOutput.(map[string]any); ok {
			for k, v := range m {
				if _, exists := childInput[k]; !exists {
					childInput[k] = v
				}
			}
		}

		childState := de.newLoopChildState(execState, node, bodyWF, childInput, iterNum)

		if err := de.Execute(ctx, childState, opts); err != nil {
			werr := fmt.Errorf("loop node %s: iteration %d failed: %w", node.ID, iterNum, err)
			execState.SetNodeError(node.ID, werr)
			execState.SetNodeStatus(node.ID, models.NodeExecutionStatusFailed)
			return nil, werr
		}

		iter := execState.IncrementLoopIteration(node.ID)
		bodyOutput := collectChildOutput(childState)
		results = append(results, bodyOutput)
		currentOutput = bodyOutput

		de.safeNotify(ctx, ExecutionEvent{
			Type:          EventTypeLoopIteration,
			ExecutionID:   execState.ExecutionID,
			WorkflowID:    execState.WorkflowID,
			NodeID:        node.ID,
			Timestamp:     time.Now(),
			LoopIteration: iter,
			LoopMaxIter:   cfg.MaxIterations,
		})
	}

	return results, nil
}

// newLoopChildState builds a fresh ExecutionState for one loop iteration,
// scoped to the loop's nested body workflow.
func (de *DAGExecutor) newLoopChildState(
	parentState *ExecutionState,
	node *models.Node,
	bodyWF *models.Workflow,
	childInput map[string]any,
	iteration int,
) *ExecutionState {
	childExecID := fmt.Sprintf("%s-%s-iter-%d", parentState.ExecutionID, node.ID, iteration)
	childState := NewExecutionState(childExecID, parentState.WorkflowID, bodyWF, childInput, parentState.Variables)
	childState.ParentExecutionID = parentState.ExecutionID
	childState.ParentNodeID = node.ID
	idx := iteration
	childState.ItemIndex = &idx
	childState.Resources = parentState.Resources
	childState.Depth = parentState.Depth
	return childState
}
