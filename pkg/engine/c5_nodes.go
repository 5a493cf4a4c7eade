package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/workflowkit/engine/pkg/executor"
	"github.com/workflowkit/engine/pkg/models"
)

// buildExpressionEnv assembles the variable context an expression/template
// evaluation runs against: the root execution input under "input", merged
// global+local variables under "variables", and every prior node's output
// flattened as a top-level identifier keyed by node ID (so "a+b" resolves
// directly to the outputs of nodes "a" and "b").
func (de *DAGExecutor) buildExpressionEnv(execState *ExecutionState) map[string]any {
	env := make(map[string]any)
	for k, v := range execState.SnapshotNodeOutputs() {
		env[k] = v
	}
	env["input"] = execState.Input
	env["variables"] = execState.SnapshotVariables()
	return env
}

// executeExpressionNode evaluates config["expression"] against the
// execution's variable context and stores the raw result as node output.
func (de *DAGExecutor) executeExpressionNode(
	ctx context.Context,
	execState *ExecutionState,
	node *models.Node,
	opts *ExecutionOptions,
) error {
	exprStr, _ := node.Config["expression"].(string)
	if exprStr == "" {
		err := &models.ValidationError{Field: "expression", Message: "expression is required"}
		execState.SetNodeError(node.ID, err)
		execState.SetNodeStatus(node.ID, models.NodeExecutionStatusFailed)
		return err
	}

	parentNodes := GetRegularParentNodes(execState.Workflow, node)
	nodeCtx := PrepareNodeContext(execState, node, parentNodes, opts)

	env := de.buildExpressionEnv(execState)
	result, err := de.expressionEvaluator.Evaluate(ctx, exprStr, env)
	if err != nil {
		execState.SetNodeError(node.ID, err)
		execState.SetNodeStatus(node.ID, models.NodeExecutionStatusFailed)
		return err
	}

	execState.SetNodeOutput(node.ID, result)
	execState.SetNodeInput(node.ID, nodeCtx.DirectParentOutput)
	execState.SetNodeConfig(node.ID, node.Config)
	execState.SetNodeStatus(node.ID, models.NodeExecutionStatusCompleted)
	return nil
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func isValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// executeSetVariableNode assigns config["value"] (a literal, or a
// "${...}"/template string evaluated against the current context) into
// global or local variable scope under config["name"].
func (de *DAGExecutor) executeSetVariableNode(
	ctx context.Context,
	execState *ExecutionState,
	node *models.Node,
	opts *ExecutionOptions,
) error {
	name, _ := node.Config["name"].(string)
	if !isValidIdentifier(name) {
		err := &models.ValidationError{Field: "name", Message: fmt.Sprintf("set-variable name %q is not a valid identifier", name)}
		execState.SetNodeError(node.ID, err)
		execState.SetNodeStatus(node.ID, models.NodeExecutionStatusFailed)
		return err
	}

	scope, _ := node.Config["scope"].(string)
	if scope == "" {
		scope = "local"
	}

	parentNodes := GetRegularParentNodes(execState.Workflow, node)
	nodeCtx := PrepareNodeContext(execState, node, parentNodes, opts)
	env := de.buildExpressionEnv(execState)

	var raw any
	if valStr, ok := node.Config["value"].(string); ok {
		v, err := de.expressionEvaluator.EvaluateValue(ctx, valStr, env)
		if err != nil {
			execState.SetNodeError(node.ID, err)
			execState.SetNodeStatus(node.ID, models.NodeExecutionStatusFailed)
			return err
		}
		raw = v
	} else {
		raw = node.Config["value"]
	}

	if typ, ok := node.Config["type"].(string); ok && typ != "" {
		raw = coerceVariableType(raw, typ)
	}

	execState.SetVariable(scope, name, raw)

	execState.SetNodeOutput(node.ID, map[string]any{"name": name, "scope": scope, "value": raw})
	execState.SetNodeInput(node.ID, nodeCtx.DirectParentOutput)
	execState.SetNodeConfig(node.ID, node.Config)
	execState.SetNodeStatus(node.ID, models.NodeExecutionStatusCompleted)
	return nil
}

// coerceVariableType converts v to the requested scalar representation.
// Unknown types are passed through unchanged.
func coerceVariableType(v any, typ string) any {
	switch typ {
	case "string":
		switch val := v.(type) {
		case nil:
			return ""
		case string:
			return val
		default:
			data, err := json.Marshal(val)
			if err != nil {
				return fmt.Sprintf("%v", val)
			}
			return string(data)
		}
	case "number":
		switch val := v.(type) {
		case float64:
			return val
		case int:
			return float64(val)
		case int64:
			return float64(val)
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
			if err != nil {
				return 0.0
			}
			return f
		case bool:
			if val {
				return 1.0
			}
			return 0.0
		default:
			return 0.0
		}
	case "boolean":
		switch val := v.(type) {
		case bool:
			return val
		case string:
			return val == "true"
		case float64:
			return val != 0
		case nil:
			return false
		default:
			return true
		}
	case "json":
		if s, ok := v.(string); ok {
			var out any
			if err := json.Unmarshal([]byte(s), &out); err == nil {
				return out
			}
		}
		return v
	default:
		return v
	}
}

// isTruthy applies the engine's boolean coercion rules to an arbitrary
// expression result: false/zero/empty-string/empty-collection/nil are
// falsy, everything else (including non-empty strings, numbers, and
// objects) is truthy.
func isTruthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case float64:
		return val != 0
	case int:
		return val != 0
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}

// executeActionBody runs a branch/retry node's nested action config,
// which is either {"action": "<expression>"} (a single C1 expression
// evaluated directly) or a full nested NodeSet executed as a synthetic
// child workflow.
func (de *DAGExecutor) executeActionBody(
	ctx context.Context,
	execState *ExecutionState,
	node *models.Node,
	actionCfg any,
	env map[string]any,
	opts *ExecutionOptions,
) (any, error) {
	if m, ok := actionCfg.(map[string]any); ok {
		if actionExpr, ok := m["action"].(string); ok {
			return de.expressionEvaluator.Evaluate(ctx, actionExpr, env)
		}
	}

	body, err := models.ParseNodeSet(actionCfg)
	if err != nil {
		return nil, fmt.Errorf("node %s: invalid action body: %w", node.ID, err)
	}

	bodyWF := &models.Workflow{
		ID:    node.ID + ":action",
		Name:  node.Name + " action",
		Nodes: body.Nodes,
		Edges: body.Edges,
	}

	childInput := make(map[string]any, len(env))
	for k, v := range env {
		childInput[k] = v
	}

	childExecID := fmt.Sprintf("%s-%s-action-%d", execState.ExecutionID, node.ID, time.Now().UnixNano())
	childState := NewExecutionState(childExecID, execState.WorkflowID, bodyWF, childInput, execState.Variables)
	childState.ParentExecutionID = execState.ExecutionID
	childState.ParentNodeID = node.ID
	childState.Resources = execState.Resources
	childState.Depth = execState.Depth

	if err := de.Execute(ctx, childState, opts); err != nil {
		return nil, fmt.Errorf("node %s: action body failed: %w", node.ID, err)
	}

	return collectChildOutput(childState), nil
}

// executeBranchNode evaluates config["condition"] and runs either
// config["trueBranch"] or config["falseBranch"]. When the taken branch is
// absent, the node completes with a nil result rather than failing.
func (de *DAGExecutor) executeBranchNode(
	ctx context.Context,
	execState *ExecutionState,
	node *models.Node,
	opts *ExecutionOptions,
) error {
	condStr, _ := node.Config["condition"].(string)
	if condStr == "" {
		err := &models.ValidationError{Field: "condition", Message: "condition is required"}
		execState.SetNodeError(node.ID, err)
		execState.SetNodeStatus(node.ID, models.NodeExecutionStatusFailed)
		return err
	}

	env := de.buildExpressionEnv(execState)
	result, err := de.expressionEvaluator.Evaluate(ctx, condStr, env)
	if err != nil {
		execState.SetNodeError(node.ID, err)
		execState.SetNodeStatus(node.ID, models.NodeExecutionStatusFailed)
		return err
	}

	taken := isTruthy(result)
	branchCfg := node.Config["falseBranch"]
	if taken {
		branchCfg = node.Config["trueBranch"]
	}

	var branchResult any
	if branchCfg != nil {
		branchResult, err = de.executeActionBody(ctx, execState, node, branchCfg, env, opts)
		if err != nil {
			execState.SetNodeError(node.ID, err)
			execState.SetNodeStatus(node.ID, models.NodeExecutionStatusFailed)
			return err
		}
	}

	execState.SetNodeOutput(node.ID, map[string]any{"condition": taken, "result": branchResult})
	execState.SetNodeConfig(node.ID, node.Config)
	execState.SetNodeStatus(node.ID, models.NodeExecutionStatusCompleted)
	return nil
}

// isNonRetryableError reports whether a retry node must stop attempting
// further executions of its action body, beyond the generic
// models.IsNonRetryable classes: unauthorized/forbidden/not-found
// failures are never worth retrying.
func isNonRetryableError(err error) bool {
	if models.IsNonRetryable(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"unauthorized", "forbidden", "not found", "not-found"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func configInt(config map[string]any, key string, def int) int {
	switch v := config[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

func configFloat(config map[string]any, key string, def float64) float64 {
	switch v := config[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return def
	}
}

// executeRetryNode runs config["action"] (same shape accepted by branch
// nodes) up to config["maxAttempts"] times, with config["initialDelayMs"]
// * config["backoffMultiplier"] exponential backoff capped by
// config["maxDelayMs"]. Non-retryable failures short-circuit
// immediately; exhausting all attempts surfaces models.RetryExhausted.
func (de *DAGExecutor) executeRetryNode(
	ctx context.Context,
	execState *ExecutionState,
	node *models.Node,
	opts *ExecutionOptions,
) error {
	actionCfg, ok := node.Config["action"]
	if !ok {
		err := &models.ValidationError{Field: "action", Message: "action is required"}
		execState.SetNodeError(node.ID, err)
		execState.SetNodeStatus(node.ID, models.NodeExecutionStatusFailed)
		return err
	}

	maxAttempts := configInt(node.Config, "maxAttempts", 3)
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	initialDelay := time.Duration(configInt(node.Config, "initialDelayMs", 100)) * time.Millisecond
	backoffMultiplier := configFloat(node.Config, "backoffMultiplier", 2.0)
	if backoffMultiplier <= 0 {
		backoffMultiplier = 1
	}
	maxDelay := time.Duration(configInt(node.Config, "maxDelayMs", 30000)) * time.Millisecond

	env := de.buildExpressionEnv(execState)

	var lastErr error
	delay := initialDelay
	attemptsMade := 0

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("execution cancelled: %w", err)
		}

		out, err := de.executeActionBody(ctx, execState, node, actionCfg, env, opts)
		attemptsMade = attempt
		if err == nil {
			execState.SetNodeOutput(node.ID, map[string]any{"attempts": attempt, "result": out})
			execState.SetNodeConfig(node.ID, node.Config)
			execState.SetNodeStatus(node.ID, models.NodeExecutionStatusCompleted)
			return nil
		}

		lastErr = err
		if isNonRetryableError(err) || attempt >= maxAttempts {
			break
		}

		de.safeNotify(ctx, ExecutionEvent{
			Type:        EventTypeNodeRetrying,
			ExecutionID: execState.ExecutionID,
			WorkflowID:  execState.WorkflowID,
			Timestamp:   time.Now(),
			Status:      "retrying",
			NodeID:      node.ID,
			NodeName:    node.Name,
			NodeType:    node.Type,
			Error:       err,
		})

		select {
		case <-ctx.Done():
			return fmt.Errorf("execution cancelled during retry delay: %w", ctx.Err())
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * backoffMultiplier)
		if delay > maxDelay {
			delay = maxDelay
		}
	}

	exhausted := &models.RetryExhausted{NodeID: node.ID, Attempts: attemptsMade, LastErr: lastErr}
	execState.SetNodeError(node.ID, exhausted)
	execState.SetNodeStatus(node.ID, models.NodeExecutionStatusFailed)
	return exhausted
}

// delayDuration converts a numeric value plus unit (ms, s, m, h; default
// ms) into a time.Duration.
func delayDuration(value float64, unit string) (time.Duration, error) {
	switch unit {
	case "", "ms":
		return time.Duration(value * float64(time.Millisecond)), nil
	case "s":
		return time.Duration(value * float64(time.Second)), nil
	case "m":
		return time.Duration(value * float64(time.Minute)), nil
	case "h":
		return time.Duration(value * float64(time.Hour)), nil
	default:
		return 0, fmt.Errorf("unit must be one of ms, s, m, h, got %q", unit)
	}
}

// executeDelayNode pauses the branch for config["duration"]/config["unit"],
// or until config["condition"] evaluates truthy (polled every 100ms, up
// to config["maxWaitMs"]). Under dry-run it returns the planned wait
// without actually sleeping.
func (de *DAGExecutor) executeDelayNode(
	ctx context.Context,
	execState *ExecutionState,
	node *models.Node,
	opts *ExecutionOptions,
) error {
	durationVal, ok := node.Config["duration"]
	if !ok {
		err := &models.ValidationError{Field: "duration", Message: "duration is required"}
		execState.SetNodeError(node.ID, err)
		execState.SetNodeStatus(node.ID, models.NodeExecutionStatusFailed)
		return err
	}
	durFloat, ok := toFloat(durationVal)
	if !ok || durFloat <= 0 {
		err := &models.ValidationError{Field: "duration", Message: "duration must be a positive number"}
		execState.SetNodeError(node.ID, err)
		execState.SetNodeStatus(node.ID, models.NodeExecutionStatusFailed)
		return err
	}

	unit, _ := node.Config["unit"].(string)
	d, err := delayDuration(durFloat, unit)
	if err != nil {
		verr := &models.ValidationError{Field: "unit", Message: err.Error()}
		execState.SetNodeError(node.ID, verr)
		execState.SetNodeStatus(node.ID, models.NodeExecutionStatusFailed)
		return verr
	}

	condStr, _ := node.Config["condition"].(string)

	if executor.IsDryRun(ctx) {
		out := map[string]any{"dryRun": true, "plannedDelayMs": d.Milliseconds()}
		if condStr != "" {
			out["condition"] = condStr
		}
		execState.SetNodeOutput(node.ID, out)
		execState.SetNodeConfig(node.ID, node.Config)
		execState.SetNodeStatus(node.ID, models.NodeExecutionStatusCompleted)
		return nil
	}

	if condStr != "" {
		maxWait := time.Duration(configInt(node.Config, "maxWaitMs", 60000)) * time.Millisecond
		deadline := time.Now().Add(maxWait)
		pollEvery := 100 * time.Millisecond

		for {
			env := de.buildExpressionEnv(execState)
			result, evalErr := de.expressionEvaluator.Evaluate(ctx, condStr, env)
			if evalErr != nil {
				execState.SetNodeError(node.ID, evalErr)
				execState.SetNodeStatus(node.ID, models.NodeExecutionStatusFailed)
				return evalErr
			}
			if isTruthy(result) {
				execState.SetNodeOutput(node.ID, map[string]any{"waited": true})
				execState.SetNodeConfig(node.ID, node.Config)
				execState.SetNodeStatus(node.ID, models.NodeExecutionStatusCompleted)
				return nil
			}
			if time.Now().After(deadline) {
				waitErr := fmt.Errorf("delay node %s: condition did not become true within %s", node.ID, maxWait)
				execState.SetNodeError(node.ID, waitErr)
				execState.SetNodeStatus(node.ID, models.NodeExecutionStatusFailed)
				return waitErr
			}
			select {
			case <-ctx.Done():
				return fmt.Errorf("execution cancelled: %w", ctx.Err())
			case <-time.After(pollEvery):
			}
		}
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("execution cancelled: %w", ctx.Err())
	case <-time.After(d):
	}

	execState.SetNodeOutput(node.ID, map[string]any{"delayedMs": d.Milliseconds()})
	execState.SetNodeConfig(node.ID, node.Config)
	execState.SetNodeStatus(node.ID, models.NodeExecutionStatusCompleted)
	return nil
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	default:
		return 0, false
	}
}
