package maze

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/itsneelabh/maze/constraint"
	"github.com/itsneelabh/maze/inference"
)

// Sentinel errors for comparison via errors.Is. ErrMaxRetriesExceeded and
// ErrEncodingFailed are defined in the packages that actually produce them
// (inference and constraint respectively) and re-exported here so callers
// of either package compare against the same value.
var (
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrCacheCapacityZero  = errors.New("cache capacity must be greater than zero")
	ErrRoutingNoEndpoints = errors.New("no endpoints available for routing")
	ErrMaxRetriesExceeded = inference.ErrMaxRetriesExceeded
	ErrCancelled          = errors.New("operation cancelled")
	ErrDependencyBlocked  = errors.New("ready set empty with non-terminal holes remaining")
	ErrEncodingFailed     = constraint.ErrEncodingFailed
)

// Error wraps a failure with the op/kind context used across the module,
// following the same shape as the reference framework's FrameworkError.
type Error struct {
	Op      string // e.g. "constraint.Compile", "inference.Generate"
	Kind    string // "config" | "transport" | "http_status" | "decode" | "routing" | "fill_rejected" | "dependency_blocked" | "cancelled"
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Op != "" && e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an *Error for the given operation and kind.
func NewError(op, kind string, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// FillRejected reports a fill attempt rejected by the acceptance rule or
// an adaptive strategy that requires human handling (spec.md §4.5 step
// 5). The scheduler treats it like any other attempt error; it drives
// the failure-strategy branch.
type FillRejected struct {
	Reason string
}

func (e *FillRejected) Error() string {
	return fmt.Sprintf("fill rejected: %s", e.Reason)
}

// IsRetryable reports whether err represents a transient failure that the
// inference client's retry policy should retry: transport errors and
// non-2xx HTTP status errors (spec.md §4.2, §7).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var httpErr *inference.HTTPStatusError
	if errors.As(err, &httpErr) {
		return true
	}
	var kindErr *Error
	if errors.As(err, &kindErr) {
		return kindErr.Kind == "transport" || kindErr.Kind == "http_status"
	}
	var netErr net.Error
	return errors.As(err, &netErr) && !errors.Is(err, ErrCancelled) && !errors.Is(err, context.Canceled)
}

// IsConfigError reports whether err is a construction-time configuration
// failure (fatal, not retryable).
func IsConfigError(err error) bool {
	if errors.Is(err, ErrConfigInvalid) || errors.Is(err, ErrCacheCapacityZero) {
		return true
	}
	var kindErr *Error
	if errors.As(err, &kindErr) {
		return kindErr.Kind == "config"
	}
	return false
}

// IsFillRejected reports whether err is a FillRejected outcome.
func IsFillRejected(err error) bool {
	var rejected *FillRejected
	return errors.As(err, &rejected)
}

// IsDependencyBlocked reports whether err represents a permanent
// dependency block (cycle or stuck Pending set) per spec.md §4.5 step 2.
func IsDependencyBlocked(err error) bool {
	return errors.Is(err, ErrDependencyBlocked)
}
