package builtin

import (
	"context"

	"github.com/workflowkit/engine/pkg/executor"
)

// StartExecutor implements the workflow entry-point node types
// ("start", "trigger-manual"): it has no inputs and passes its
// execution input straight through as output, marking the point the
// execution began.
type StartExecutor struct {
	*executor.BaseExecutor
}

// NewStartExecutor creates a new start/trigger-manual executor.
func NewStartExecutor() *StartExecutor {
	return &StartExecutor{BaseExecutor: executor.NewBaseExecutor("start")}
}

// Execute passes the execution input through unchanged.
func (e *StartExecutor) Execute(ctx context.Context, config map[string]interface{}, input interface{}) (interface{}, error) {
	return input, nil
}

// Validate accepts any configuration; start nodes carry no required fields.
func (e *StartExecutor) Validate(config map[string]interface{}) error {
	return nil
}

// EndExecutor implements the workflow terminal node types ("end",
// "output"): it passes its input through unchanged, marking the value
// collected as the workflow's result.
type EndExecutor struct {
	*executor.BaseExecutor
}

// NewEndExecutor creates a new end/output executor.
func NewEndExecutor() *EndExecutor {
	return &EndExecutor{BaseExecutor: executor.NewBaseExecutor("end")}
}

// Execute passes its input through unchanged.
func (e *EndExecutor) Execute(ctx context.Context, config map[string]interface{}, input interface{}) (interface{}, error) {
	return input, nil
}

// Validate accepts any configuration; end nodes carry no required fields.
func (e *EndExecutor) Validate(config map[string]interface{}) error {
	return nil
}
