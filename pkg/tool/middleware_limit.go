package tool

import (
	"encoding/json"
)

// ResultSizeLimit truncates oversized tool results before they reach
// the caller: the boundary where an over-large tool output is bounded
// rather than passed through unchecked.
func ResultSizeLimit(maxBytes int, suffix string) Middleware {
	return func(next Executor) Executor {
		return func(ctx *ExecutionContext) (*Result, error) {
			res, err := next(ctx)
			if res == nil || maxBytes <= 0 {
				return res, err
			}
			if sizeFits(res, maxBytes) {
				return res, err
			}

			setTruncationMetadata(ctx)
			truncateResultStrings(res, maxBytes, suffix)
			if sizeFits(res, maxBytes) {
				return res, err
			}

			res.Data = map[string]any{"truncated": true}
			return res, err
		}
	}
}

func sizeFits(res *Result, maxBytes int) bool {
	if res == nil {
		return true
	}
	data, err := json.Marshal(res)
	if err != nil {
		return false
	}
	return len(data) <= maxBytes
}

func truncateResultStrings(res *Result, maxBytes int, suffix string) {
	if res == nil {
		return
	}
	target := maxBytes / 2
	if target <= 0 {
		target = maxBytes
	}
	res.Data = truncateMapStrings(res.Data, target, suffix)
	if res.Error != "" && len(res.Error) > target {
		res.Error = truncateString(res.Error, target, suffix)
	}
}

func truncateMapStrings(data map[string]any, max int, suffix string) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for key, val := range data {
		switch v := val.(type) {
		case string:
			out[key] = truncateString(v, max, suffix)
		default:
			out[key] = val
		}
	}
	return out
}

func truncateString(value string, max int, suffix string) string {
	if max <= 0 || len(value) <= max {
		return value
	}
	if max <= len(suffix) {
		return value[:max]
	}
	return value[:max-len(suffix)] + suffix
}

func setTruncationMetadata(ctx *ExecutionContext) {
	if ctx == nil {
		return
	}
	if ctx.Metadata == nil {
		ctx.Metadata = map[string]any{}
	}
	ctx.Metadata["result_truncated"] = true
}
