package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/workflowkit/engine/pkg/models"
)

// Registry implements the Manager interface with thread-safe executor registration.
// Each registered executor is wrapped to accumulate per-type statistics
// (executions, failures, total duration, last used timestamp) without the
// executor itself needing to know it is being measured.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
	stats     map[string]*registryStats
}

type registryStats struct {
	executions      int64
	failures        int64
	totalDurationMs int64
	lastUsedUnixMs  int64
}

// statsExecutor wraps an Executor, recording timing/outcome counters on every call.
type statsExecutor struct {
	Executor
	stats *registryStats
}

func (s *statsExecutor) Execute(ctx context.Context, config map[string]any, input any) (any, error) {
	atomic.AddInt64(&s.stats.executions, 1)
	start := time.Now()
	out, err := s.Executor.Execute(ctx, config, input)
	atomic.AddInt64(&s.stats.totalDurationMs, time.Since(start).Milliseconds())
	atomic.StoreInt64(&s.stats.lastUsedUnixMs, time.Now().UnixMilli())
	if err != nil {
		atomic.AddInt64(&s.stats.failures, 1)
	}
	return out, err
}

func (s *statsExecutor) IsDryRun(ctx context.Context) bool {
	if aware, ok := s.Executor.(DryRunAware); ok {
		return aware.IsDryRun(ctx)
	}
	return false
}

// NewRegistry creates a new executor registry.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[string]Executor),
		stats:     make(map[string]*registryStats),
	}
}

// NewManager creates a new executor manager.
// Built-in executors should be registered separately using RegisterBuiltins function
// from pkg/executor/builtin package to avoid import cycles.
func NewManager() Manager {
	return NewRegistry()
}

// Register registers an executor for a specific node type.
func (r *Registry) Register(nodeType string, executor Executor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if nodeType == "" {
		return fmt.Errorf("node type cannot be empty")
	}

	if executor == nil {
		return fmt.Errorf("executor cannot be nil")
	}

	st := &registryStats{}
	r.executors[nodeType] = &statsExecutor{Executor: executor, stats: st}
	r.stats[nodeType] = st
	return nil
}

// Get retrieves an executor by node type.
func (r *Registry) Get(nodeType string) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	executor, ok := r.executors[nodeType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrExecutorNotFound, nodeType)
	}

	return executor, nil
}

// Has checks if an executor is registered for the given node type.
func (r *Registry) Has(nodeType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.executors[nodeType]
	return ok
}

// List returns a list of all registered executor types.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.executors))
	for nodeType := range r.executors {
		types = append(types, nodeType)
	}

	return types
}

// Unregister removes an executor for a specific node type.
func (r *Registry) Unregister(nodeType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.executors[nodeType]; !ok {
		return fmt.Errorf("%w: %s", models.ErrExecutorNotFound, nodeType)
	}

	delete(r.executors, nodeType)
	delete(r.stats, nodeType)
	return nil
}

// Stats returns the usage statistics accumulated for a registered node type.
func (r *Registry) Stats(nodeType string) (ExecutorStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.stats[nodeType]
	if !ok {
		return ExecutorStats{}, fmt.Errorf("%w: %s", models.ErrExecutorNotFound, nodeType)
	}

	return statsSnapshot(st), nil
}

// AllStats returns usage statistics for every registered node type.
func (r *Registry) AllStats() map[string]ExecutorStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]ExecutorStats, len(r.stats))
	for nodeType, st := range r.stats {
		out[nodeType] = statsSnapshot(st)
	}
	return out
}

func statsSnapshot(st *registryStats) ExecutorStats {
	lastUsedMs := atomic.LoadInt64(&st.lastUsedUnixMs)
	snap := ExecutorStats{
		Executions:      atomic.LoadInt64(&st.executions),
		Failures:        atomic.LoadInt64(&st.failures),
		TotalDurationMs: atomic.LoadInt64(&st.totalDurationMs),
	}
	if lastUsedMs > 0 {
		snap.LastUsedAt = time.UnixMilli(lastUsedMs)
	}
	return snap
}
