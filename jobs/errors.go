package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TransportError is a failure of the transport itself (connection errors,
// timeouts, 5xx-class responses). Transient transport errors are eligible
// for retry; non-transient ones (the remote service rejected the request)
// surface immediately.
type TransportError struct {
	Op         string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("jobs: %s: status %d (transient=%v): %v", e.Op, e.StatusCode, e.Transient, e.Err)
	}
	return fmt.Sprintf("jobs: %s (transient=%v): %v", e.Op, e.Transient, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// SubmissionError indicates a submission that failed after the retry budget
// was exhausted, or immediately for a non-transient rejection.
type SubmissionError struct {
	RemoteModelID string
	Attempts      int
	Err           error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("jobs: submission to %s failed after %d attempt(s): %v", e.RemoteModelID, e.Attempts, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// PredictionError carries the remote-provided detail for a job the service
// explicitly reports as failed. It is never retried.
type PredictionError struct {
	JobID  string
	Detail string
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("jobs: prediction %s failed: %s", e.JobID, e.Detail)
}

// TimeoutError indicates the polling loop gave up. The remote job is not
// cancelled implicitly; the caller can resume with Client.Get(JobID).
type TimeoutError struct {
	JobID   string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("jobs: prediction %s did not finish within %s (the remote job may still be running)", e.JobID, e.Timeout)
}

// PollError indicates that status polling itself failed beyond the retry
// budget while the underlying remote job may still be running.
type PollError struct {
	JobID string
	Err   error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("jobs: polling prediction %s failed: %v (the remote job may still be running)", e.JobID, e.Err)
}

func (e *PollError) Unwrap() error { return e.Err }

// CancellationError indicates that the remote service could not be asked to
// cancel a job.
type CancellationError struct {
	JobID string
	Err   error
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("jobs: cancelling prediction %s failed: %v", e.JobID, e.Err)
}

func (e *CancellationError) Unwrap() error { return e.Err }

// IsTransient reports whether the error is a transport fault that is safe
// to retry. Remote-reported job failures are never transient. Unknown
// errors default to transient so flaky transports get their retry budget.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var pe *PredictionError
	if errors.As(err, &pe) {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Transient
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
