// Package reslimit holds per-agent resource accounting (concurrent
// ops, memory, CPU, open files, disk) and the token-bucket rate
// limiter every tool call is checked against before admission.
package reslimit

import (
	"fmt"
	"time"
)

// CpuPercent is a validated newtype bounding a CPU limit to [0, 100].
// ResourceLimits embeds this rather than a bare float64 so an
// out-of-range CPU limit cannot be constructed as part of a valid
// ResourceLimits value.
type CpuPercent struct {
	value float64
}

// NewCpuPercent validates v and returns the CpuPercent plus whether
// construction succeeded.
func NewCpuPercent(v float64) (CpuPercent, bool) {
	if v < 0 || v > 100 {
		return CpuPercent{}, false
	}
	return CpuPercent{value: v}, true
}

// NewCpuPercentUnchecked constructs a CpuPercent without validation,
// for defaults known to be in range at compile time.
func NewCpuPercentUnchecked(v float64) CpuPercent { return CpuPercent{value: v} }

// Value returns the underlying percentage.
func (c CpuPercent) Value() float64 { return c.value }

// ResourceLimits bounds a single agent's resource consumption.
type ResourceLimits struct {
	MaxMemoryMB          uint64
	MaxCPUPercent        CpuPercent
	MaxExecutionTime     time.Duration
	MaxConcurrentOps     int
	MaxOpenFiles         int
	MaxDiskUsageMB       uint64
}

// LimitErrorKind is the closed taxonomy of resource-limit rejections.
type LimitErrorKind string

const (
	ErrConcurrencyLimitExceeded LimitErrorKind = "concurrency_limit_exceeded"
	ErrMemoryLimitExceeded      LimitErrorKind = "memory_limit_exceeded"
	ErrCPULimitExceeded         LimitErrorKind = "cpu_limit_exceeded"
	ErrOpenFilesLimitExceeded   LimitErrorKind = "open_files_limit_exceeded"
	ErrDiskLimitExceeded        LimitErrorKind = "disk_limit_exceeded"
)

// LimitError is returned when check_limits observes a violated bound.
type LimitError struct {
	Kind     LimitErrorKind
	Observed float64
	Limit    float64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s: observed %.2f > limit %.2f", e.Kind, e.Observed, e.Limit)
}
