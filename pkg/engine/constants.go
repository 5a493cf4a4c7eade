package engine

// Source handle constants for conditional nodes
const (
	// SourceHandleTrue represents the "true" branch from a conditional node
	SourceHandleTrue = "true"

	// SourceHandleFalse represents the "false" branch from a conditional node
	SourceHandleFalse = "false"
)

// Node types
const (
	// NodeTypeConditional represents a conditional/branching node
	NodeTypeConditional = "conditional"

	// NodeTypeLoop represents a forEach/while loop node. Its body is a
	// nested NodeSet stored under config["loopBody"].
	NodeTypeLoop = "loop"

	// NodeTypeExpression evaluates config["expression"] against the
	// execution's variable context and emits the result as node output.
	NodeTypeExpression = "expression"

	// NodeTypeSetVariable assigns a value into global or execution-local
	// variable scope.
	NodeTypeSetVariable = "set-variable"

	// NodeTypeDelay pauses the executing branch for a fixed duration or
	// until an optional condition becomes true.
	NodeTypeDelay = "delay"

	// NodeTypeBranch evaluates a condition and executes one of two
	// nested action bodies.
	NodeTypeBranch = "branch"

	// NodeTypeRetryNode retries a nested action body up to maxAttempts
	// times with backoff, distinct from the dispatcher-level
	// InternalRetryPolicy applied to every node type.
	NodeTypeRetryNode = "retry"

	// NodeTypeHTTPRequest issues an outbound HTTP call, dry-run aware.
	NodeTypeHTTPRequest = "http-request"

	// NodeTypeStart / NodeTypeTriggerManual mark a workflow's entry
	// point; both are accepted spellings of the same role.
	NodeTypeStart         = "start"
	NodeTypeTriggerManual = "trigger-manual"

	// NodeTypeEnd / NodeTypeOutput mark a workflow's terminal node.
	NodeTypeEnd    = "end"
	NodeTypeOutput = "output"
)

// Loop types for NodeTypeLoop's config["loopType"].
const (
	LoopTypeForEach = "forEach"
	LoopTypeWhile   = "while"
)

// DefaultLoopMaxIterations is the cap applied when a loop node's config
// omits maxIterations.
const DefaultLoopMaxIterations = 1000

// Default configuration values
const (
	// DefaultMaxParallelism is the default maximum number of concurrent nodes per wave
	DefaultMaxParallelism = 10

	// DefaultNodePriority is the default priority for nodes without explicit priority
	DefaultNodePriority = 0
)
