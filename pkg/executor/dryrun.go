package executor

import "context"

// dryRunContextKey is used to propagate dry-run mode through context.Context,
// mirroring ExecutionContextKey's pattern in template_wrapper.go.
type dryRunContextKey struct{}

// WithDryRun marks ctx as executing in dry-run mode. Dry-run-aware
// executors check IsDryRun and return a planned, side-effect-free output
// instead of performing network/filesystem/process actions.
func WithDryRun(ctx context.Context, dryRun bool) context.Context {
	return context.WithValue(ctx, dryRunContextKey{}, dryRun)
}

// IsDryRun reports whether ctx was marked dry-run by WithDryRun.
func IsDryRun(ctx context.Context) bool {
	v, _ := ctx.Value(dryRunContextKey{}).(bool)
	return v
}
