package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/workflowkit/engine/pkg/executor"
	"github.com/workflowkit/engine/pkg/models"
)

func newSingleNodeWorkflow(nodeType, id string, config map[string]any) *models.Workflow {
	return &models.Workflow{
		ID:   "wf-" + id,
		Name: "Test Workflow",
		Nodes: []*models.Node{
			{ID: id, Name: id, Type: nodeType, Config: config},
		},
	}
}

func newTestDAGExecutor() *DAGExecutor {
	registry := executor.NewManager()
	nodeExec := NewNodeExecutor(registry)
	return NewDAGExecutor(nodeExec, NewExprConditionEvaluator(), NewNoOpNotifier(), NewNilWorkflowLoader())
}

func TestExpressionNode_EvaluatesAgainstInput(t *testing.T) {
	t.Parallel()

	dagExec := newTestDAGExecutor()
	workflow := newSingleNodeWorkflow(NodeTypeExpression, "expr1", map[string]any{
		"expression": "input.x + 1",
	})
	execState := NewExecutionState("exec-1", workflow.ID, workflow, map[string]any{"x": float64(41)}, nil)

	if err := dagExec.Execute(context.Background(), execState, DefaultExecutionOptions()); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	output, ok := execState.GetNodeOutput("expr1")
	if !ok || output != float64(42) {
		t.Fatalf("expected output 42, got: %v", output)
	}
}

func TestExpressionNode_MissingExpressionFailsValidation(t *testing.T) {
	t.Parallel()

	dagExec := newTestDAGExecutor()
	workflow := newSingleNodeWorkflow(NodeTypeExpression, "expr1", map[string]any{})
	execState := NewExecutionState("exec-1", workflow.ID, workflow, nil, nil)

	err := dagExec.Execute(context.Background(), execState, DefaultExecutionOptions())
	if err == nil {
		t.Fatal("expected a validation error")
	}
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *models.ValidationError, got: %T (%v)", err, err)
	}
}

func TestSetVariableNode_StoresLocalVariable(t *testing.T) {
	t.Parallel()

	dagExec := newTestDAGExecutor()
	workflow := newSingleNodeWorkflow(NodeTypeSetVariable, "setvar1", map[string]any{
		"name":  "greeting",
		"value": "${'hello ' + input.name}",
	})
	execState := NewExecutionState("exec-1", workflow.ID, workflow, map[string]any{"name": "world"}, nil)

	if err := dagExec.Execute(context.Background(), execState, DefaultExecutionOptions()); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	v, ok := execState.GetVariable("greeting")
	if !ok || v != "hello world" {
		t.Fatalf("expected variable 'hello world', got: %v (ok=%v)", v, ok)
	}
}

func TestSetVariableNode_InvalidNameFails(t *testing.T) {
	t.Parallel()

	dagExec := newTestDAGExecutor()
	workflow := newSingleNodeWorkflow(NodeTypeSetVariable, "setvar1", map[string]any{
		"name":  "123bad",
		"value": "x",
	})
	execState := NewExecutionState("exec-1", workflow.ID, workflow, nil, nil)

	err := dagExec.Execute(context.Background(), execState, DefaultExecutionOptions())
	if err == nil {
		t.Fatal("expected a validation error for an invalid identifier")
	}
}

func TestBranchNode_TakesTrueBranchExpression(t *testing.T) {
	t.Parallel()

	dagExec := newTestDAGExecutor()
	workflow := newSingleNodeWorkflow(NodeTypeBranch, "branch1", map[string]any{
		"condition":  "input.score >= 50",
		"trueBranch": map[string]any{"action": "'passed'"},
	})
	execState := NewExecutionState("exec-1", workflow.ID, workflow, map[string]any{"score": float64(80)}, nil)

	if err := dagExec.Execute(context.Background(), execState, DefaultExecutionOptions()); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	output, ok := execState.GetNodeOutput("branch1")
	if !ok {
		t.Fatal("expected branch1 output")
	}
	outputMap := output.(map[string]any)
	if outputMap["condition"] != true {
		t.Errorf("expected condition=true, got: %v", outputMap["condition"])
	}
	if outputMap["result"] != "passed" {
		t.Errorf("expected result='passed', got: %v", outputMap["result"])
	}
}

func TestBranchNode_AbsentBranchCompletesWithNilResult(t *testing.T) {
	t.Parallel()

	dagExec := newTestDAGExecutor()
	workflow := newSingleNodeWorkflow(NodeTypeBranch, "branch1", map[string]any{
		"condition": "input.score >= 50",
	})
	execState := NewExecutionState("exec-1", workflow.ID, workflow, map[string]any{"score": float64(10)}, nil)

	if err := dagExec.Execute(context.Background(), execState, DefaultExecutionOptions()); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	output, _ := execState.GetNodeOutput("branch1")
	outputMap := output.(map[string]any)
	if outputMap["condition"] != false {
		t.Errorf("expected condition=false, got: %v", outputMap["condition"])
	}
	if outputMap["result"] != nil {
		t.Errorf("expected nil result, got: %v", outputMap["result"])
	}
}

func TestRetryNode_SucceedsOnFirstAttempt(t *testing.T) {
	t.Parallel()

	dagExec := newTestDAGExecutor()
	attempts := 0
	workflow := &models.Workflow{
		ID:   "wf-retry",
		Name: "Retry Workflow",
		Nodes: []*models.Node{
			{ID: "retry1", Name: "retry1", Type: NodeTypeRetryNode, Config: map[string]any{
				"action":         map[string]any{"action": "Math.abs(-1)"},
				"maxAttempts":    float64(3),
				"initialDelayMs": float64(1),
			}},
		},
	}
	_ = attempts
	execState := NewExecutionState("exec-1", workflow.ID, workflow, nil, nil)

	if err := dagExec.Execute(context.Background(), execState, DefaultExecutionOptions()); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	output, ok := execState.GetNodeOutput("retry1")
	if !ok {
		t.Fatal("expected retry1 output")
	}
	outputMap := output.(map[string]any)
	if outputMap["attempts"] != 1 {
		t.Errorf("expected attempts=1 for an immediately successful action, got: %v", outputMap["attempts"])
	}
}

func TestRetryNode_ExhaustsAndReturnsRetryExhausted(t *testing.T) {
	t.Parallel()

	dagExec := newTestDAGExecutor()
	workflow := newSingleNodeWorkflow(NodeTypeRetryNode, "retry1", map[string]any{
		"action":         map[string]any{"action": "require(\"fs\")"},
		"maxAttempts":    float64(2),
		"initialDelayMs": float64(1),
	})
	execState := NewExecutionState("exec-1", workflow.ID, workflow, nil, nil)

	err := dagExec.Execute(context.Background(), execState, DefaultExecutionOptions())
	if err == nil {
		t.Fatal("expected an error once retries are exhausted")
	}

	var exhausted *models.RetryExhausted
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected *models.RetryExhausted, got: %T (%v)", err, err)
	}
	if exhausted.NodeID != "retry1" {
		t.Errorf("expected NodeID='retry1', got: %q", exhausted.NodeID)
	}
	if exhausted.Attempts != 2 {
		t.Errorf("expected Attempts=2, got: %d", exhausted.Attempts)
	}
}

func TestDelayNode_SleepsForConfiguredDuration(t *testing.T) {
	t.Parallel()

	dagExec := newTestDAGExecutor()
	workflow := newSingleNodeWorkflow(NodeTypeDelay, "delay1", map[string]any{
		"duration": float64(20),
		"unit":     "ms",
	})
	execState := NewExecutionState("exec-1", workflow.ID, workflow, nil, nil)

	start := time.Now()
	if err := dagExec.Execute(context.Background(), execState, DefaultExecutionOptions()); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("expected at least 20ms to elapse, got: %v", elapsed)
	}

	output, ok := execState.GetNodeOutput("delay1")
	if !ok {
		t.Fatal("expected delay1 output")
	}
	if output.(map[string]any)["delayedMs"] != int64(20) {
		t.Errorf("expected delayedMs=20, got: %v", output)
	}
}

func TestDelayNode_DryRunSkipsSleeping(t *testing.T) {
	t.Parallel()

	dagExec := newTestDAGExecutor()
	workflow := newSingleNodeWorkflow(NodeTypeDelay, "delay1", map[string]any{
		"duration": float64(5000),
		"unit":     "ms",
	})
	execState := NewExecutionState("exec-1", workflow.ID, workflow, nil, nil)

	opts := DefaultExecutionOptions()
	opts.DryRun = true

	start := time.Now()
	if err := dagExec.Execute(context.Background(), execState, opts); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("expected dry-run to skip sleeping, took: %v", elapsed)
	}

	output, _ := execState.GetNodeOutput("delay1")
	outputMap := output.(map[string]any)
	if outputMap["dryRun"] != true {
		t.Errorf("expected dryRun=true, got: %v", outputMap)
	}
}

func TestDelayNode_InvalidDurationFailsValidation(t *testing.T) {
	t.Parallel()

	dagExec := newTestDAGExecutor()
	workflow := newSingleNodeWorkflow(NodeTypeDelay, "delay1", map[string]any{
		"duration": float64(-1),
	})
	execState := NewExecutionState("exec-1", workflow.ID, workflow, nil, nil)

	err := dagExec.Execute(context.Background(), execState, DefaultExecutionOptions())
	if err == nil {
		t.Fatal("expected a validation error for a non-positive duration")
	}
}
