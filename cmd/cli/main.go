// CLI - command-line tool for running and validating workflow definitions
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/workflowkit/engine/pkg/engine"
	"github.com/workflowkit/engine/pkg/executor"
	"github.com/workflowkit/engine/pkg/executor/builtin"
	"github.com/workflowkit/engine/pkg/models"
)

const (
	version = "1.0.0"
	usage   = `workflowkit - workflow definition tool

USAGE:
    workflowkit <command> [options]

COMMANDS:
    run <file>         Execute a workflow definition (JSON) in-process and print the result
    validate <file>    Validate a workflow definition's structure and DAG
    version            Show version information
    help               Show this help message

RUN OPTIONS:
    run accepts an optional second argument: a JSON file with execution input,
    e.g. "workflowkit run workflow.json input.json"
`
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "version":
		fmt.Println("workflowkit version " + version)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n%s", os.Args[1], usage)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadWorkflow(path string) (*models.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}

	var workflow models.Workflow
	if err := json.Unmarshal(data, &workflow); err != nil {
		return nil, fmt.Errorf("failed to parse workflow JSON: %w", err)
	}

	return &workflow, nil
}

func validateCommand(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: workflowkit validate <file>")
	}

	workflow, err := loadWorkflow(args[0])
	if err != nil {
		return err
	}

	if err := workflow.Validate(); err != nil {
		return fmt.Errorf("workflow is invalid: %w", err)
	}

	dag := engine.BuildDAG(workflow)
	waves, err := engine.TopologicalSort(dag)
	if err != nil {
		return fmt.Errorf("workflow DAG is invalid: %w", err)
	}

	fmt.Printf("workflow %q is valid: %d nodes across %d waves\n", workflow.Name, len(workflow.Nodes), len(waves))
	return nil
}

func runCommand(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: workflowkit run <file> [input-file]")
	}

	workflow, err := loadWorkflow(args[0])
	if err != nil {
		return err
	}

	input := map[string]interface{}{}
	if len(args) > 1 {
		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}
		if err := json.Unmarshal(data, &input); err != nil {
			return fmt.Errorf("failed to parse input JSON: %w", err)
		}
	}

	executorManager := executor.NewManager()
	if err := builtin.RegisterBuiltins(executorManager); err != nil {
		return fmt.Errorf("failed to register built-in executors: %w", err)
	}

	standalone := engine.NewStandaloneExecutor(executorManager)

	opts := engine.DefaultExecutionOptions()
	opts.Timeout = 2 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout+5*time.Second)
	defer cancel()

	execution, execErr := standalone.ExecuteStandalone(ctx, workflow, input, opts)

	output, err := json.MarshalIndent(execution, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal execution result: %w", err)
	}
	fmt.Println(string(output))

	if execErr != nil {
		return execErr
	}
	return nil
}
