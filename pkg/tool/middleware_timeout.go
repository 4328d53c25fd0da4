package tool

import (
	"context"
	"time"
)

// Timeout applies a per-tool or default processing timeout by bounding
// the context passed to the tool.
func Timeout(defaultTimeout time.Duration, perTool map[string]time.Duration) Middleware {
	return func(next Executor) Executor {
		return func(ctx *ExecutionContext) (*Result, error) {
			if ctx == nil {
				return next(ctx)
			}
			timeout := defaultTimeout
			if perTool != nil {
				if t, ok := perTool[ctx.ToolName]; ok {
					timeout = t
				}
			}
			if timeout <= 0 {
				return next(ctx)
			}

			base := ctx.Context
			if base == nil {
				base = context.Background()
			}
			timeoutCtx, cancel := context.WithTimeout(base, timeout)
			defer cancel()

			ctx.Context = timeoutCtx
			return next(ctx)
		}
	}
}
