package builtin

import "github.com/workflowkit/engine/pkg/executor"

// RegisterBuiltins registers all built-in executors with the given manager.
// This function should be called by applications that want to use built-in executors.
func RegisterBuiltins(manager executor.Manager) error {
	start := NewStartExecutor()
	end := NewEndExecutor()

	executors := map[string]executor.Executor{
		"http":           NewHTTPExecutor(),
		"http-request":   NewHTTPRequestExecutor(),
		"transform":      NewTransformExecutor(),
		"conditional":    NewConditionalExecutor(),
		"merge":          NewMergeExecutor(),
		"string_to_json": NewStringToJsonExecutor(),
		"json_to_string": NewJsonToStringExecutor(),
		"start":          start,
		"trigger-manual": start,
		"end":            end,
		"output":         end,
	}

	for name, exec := range executors {
		if err := manager.Register(name, exec); err != nil {
			return err
		}
	}

	return nil
}

// MustRegisterBuiltins registers all built-in executors and panics on error.
// This is a convenience function for initialization code.
func MustRegisterBuiltins(manager executor.Manager) {
	if err := RegisterBuiltins(manager); err != nil {
		panic("failed to register built-in executors: " + err.Error())
	}
}
