package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execCtx(name string, params map[string]any) *ExecutionContext {
	return &ExecutionContext{
		Context:   context.Background(),
		ToolName:  name,
		Params:    params,
		StartTime: time.Now(),
	}
}

func TestChain_OrderIsOutermostFirst(t *testing.T) {
	var order []string
	mw := func(label string) Middleware {
		return func(next Executor) Executor {
			return func(ctx *ExecutionContext) (*Result, error) {
				order = append(order, label+":before")
				res, err := next(ctx)
				order = append(order, label+":after")
				return res, err
			}
		}
	}

	exec := Chain(mw("a"), mw("b"))(func(ctx *ExecutionContext) (*Result, error) {
		order = append(order, "run")
		return &Result{Success: true}, nil
	})

	_, err := exec(execCtx("t", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"a:before", "b:before", "run", "b:after", "a:after"}, order)
}

func TestPanicRecovery_ConvertsPanicToError(t *testing.T) {
	exec := PanicRecovery()(func(ctx *ExecutionContext) (*Result, error) {
		panic("tool exploded")
	})

	ctx := execCtx("volatile", nil)
	res, err := exec(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "volatile")
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.Contains(t, ctx.Metadata["panic_value"], "tool exploded")
	assert.NotEmpty(t, ctx.Metadata["panic_stack"])
}

func TestResultSizeLimit_TruncatesOversizedOutput(t *testing.T) {
	big := strings.Repeat("x", 2048)
	exec := ResultSizeLimit(256, "...")(func(ctx *ExecutionContext) (*Result, error) {
		return &Result{Success: true, Data: map[string]any{"output": big}}, nil
	})

	ctx := execCtx("chatty", nil)
	res, err := exec(ctx)
	require.NoError(t, err)
	out, _ := res.Data["output"].(string)
	assert.Less(t, len(out), len(big))
	assert.True(t, strings.HasSuffix(out, "..."))
}

func TestResultSizeLimit_SmallResultsUntouched(t *testing.T) {
	exec := ResultSizeLimit(1024, "...")(func(ctx *ExecutionContext) (*Result, error) {
		return &Result{Success: true, Data: map[string]any{"output": "short"}}, nil
	})
	res, err := exec(execCtx("quiet", nil))
	require.NoError(t, err)
	assert.Equal(t, "short", res.Data["output"])
}

func TestTimeout_BoundsContext(t *testing.T) {
	exec := Timeout(20*time.Millisecond, nil)(func(ctx *ExecutionContext) (*Result, error) {
		select {
		case <-ctx.Context.Done():
			return nil, ctx.Context.Err()
		case <-time.After(time.Second):
			return &Result{Success: true}, nil
		}
	})

	_, err := exec(execCtx("slow", nil))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTimeout_PerToolOverride(t *testing.T) {
	exec := Timeout(time.Second, map[string]time.Duration{"slow": 10 * time.Millisecond})(
		func(ctx *ExecutionContext) (*Result, error) {
			deadline, ok := ctx.Context.Deadline()
			require.True(t, ok)
			assert.LessOrEqual(t, time.Until(deadline), 10*time.Millisecond)
			return &Result{Success: true}, nil
		})
	_, err := exec(execCtx("slow", nil))
	require.NoError(t, err)
}

func TestRetry_RetriesRetryableErrors(t *testing.T) {
	attempts := 0
	exec := Retry(RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  time.Millisecond,
		MaxDelay:      2 * time.Millisecond,
		Multiplier:    2,
		RetryableFunc: func(err error) bool { return true },
	})(func(ctx *ExecutionContext) (*Result, error) {
		attempts++
		if attempts < 3 {
			return nil, fmt.Errorf("attempt %d timeout", attempts)
		}
		return &Result{Success: true}, nil
	})

	res, err := exec(execCtx("flaky", nil))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 3, attempts)
}

func TestRetry_NonRetryableFailsImmediately(t *testing.T) {
	attempts := 0
	exec := Retry(RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond})(
		func(ctx *ExecutionContext) (*Result, error) {
			attempts++
			return nil, errors.New("fatal misconfiguration")
		})

	_, err := exec(execCtx("broken", nil))
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDefaultRetryable(t *testing.T) {
	assert.False(t, DefaultRetryable(nil))
	assert.False(t, DefaultRetryable(context.Canceled))
	assert.False(t, DefaultRetryable(context.DeadlineExceeded))
	assert.True(t, DefaultRetryable(errors.New("request timeout")))
	assert.True(t, DefaultRetryable(errors.New("connection refused")))
	assert.False(t, DefaultRetryable(errors.New("invalid argument")))
}

func TestValidation_RejectsBeforeExecution(t *testing.T) {
	ran := false
	var reported []string
	cfg := ValidationConfig{Rules: []ValidationRule{
		{Tool: "fs_read", Param: "path", Validate: ValidatePath("/workspace")},
	}}
	exec := Validation(cfg, func(tool, param, msg string) {
		reported = append(reported, tool+"/"+param+": "+msg)
	})(func(ctx *ExecutionContext) (*Result, error) {
		ran = true
		return &Result{Success: true}, nil
	})

	res, err := exec(execCtx("fs_read", map[string]any{"path": "/workspace/../etc/passwd"}))
	require.Error(t, err)
	assert.False(t, ran)
	require.NotNil(t, res)
	assert.False(t, res.Success)
	require.Len(t, reported, 1)

	// A conforming path passes through to the tool.
	res, err = exec(execCtx("fs_read", map[string]any{"path": "data/notes.txt"}))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, ran)
}

func TestValidateNonEmpty(t *testing.T) {
	v := ValidateNonEmpty()
	assert.Error(t, v(nil))
	assert.Error(t, v("   "))
	assert.Error(t, v([]string{}))
	assert.NoError(t, v("value"))
	assert.NoError(t, v([]string{"a"}))
}

func TestResultJSONRoundTrip(t *testing.T) {
	in := &Result{Success: true, Data: map[string]any{"output": "hi"}}
	js, err := ToJSON(in)
	require.NoError(t, err)
	out, err := FromJSON(js)
	require.NoError(t, err)
	assert.Equal(t, in.Success, out.Success)
	assert.Equal(t, "hi", out.Data["output"])
}
