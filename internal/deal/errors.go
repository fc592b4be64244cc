package deal

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors classifying workflow and job failures. Synchronous callers
// receive these wrapped with human-readable detail; asynchronous consumers use
// the classification to decide between retry, abort, and failed-job records.
var (
	// ErrInvalidEdge marks a transition request outside the stage graph.
	ErrInvalidEdge = errors.New("invalid stage transition")
	// ErrApprovalRequired marks a gated transition without a pending or
	// approved decision.
	ErrApprovalRequired = errors.New("approval required")
	// ErrConcurrentModification marks a stale read detected at commit time;
	// callers are expected to retry.
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrNotFound marks a missing deal or referenced entity.
	ErrNotFound = errors.New("not found")
	// ErrTransient marks an infrastructure failure worth retrying.
	ErrTransient = errors.New("transient failure")
)

// Wrap builds an error that includes component context while tagging it with
// the provided marker for later classification. The marker should be one of
// the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ErrorKind identifies a classified failure for API payloads and job records.
type ErrorKind string

const (
	KindInvalidEdge            ErrorKind = "InvalidEdge"
	KindApprovalRequired       ErrorKind = "ApprovalRequired"
	KindConcurrentModification ErrorKind = "ConcurrentModification"
	KindNotFound               ErrorKind = "NotFound"
	KindTransient              ErrorKind = "TransientInfrastructureError"
)

// Classify maps an error to its taxonomy kind. Unclassified errors are
// treated as transient infrastructure failures.
func Classify(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrInvalidEdge):
		return KindInvalidEdge
	case errors.Is(err, ErrApprovalRequired):
		return KindApprovalRequired
	case errors.Is(err, ErrConcurrentModification):
		return KindConcurrentModification
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindTransient
	}
}

// Retryable reports whether a failed asynchronous job should be retried.
// Missing entities abort immediately; everything transient gets another
// attempt.
func Retryable(err error) bool {
	return Classify(err) == KindTransient
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "workflow failure"
	}
	return strings.Join(parts, ": ")
}
