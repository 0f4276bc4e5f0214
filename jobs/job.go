// Package jobs manages the asynchronous lifecycle of one remote generation
// job: submission with bounded retry, polling until a terminal state,
// incremental output streaming, explicit cancellation and resumable lookup
// by job identifier.
//
// The remote service is reached through the narrow Transport contract; the
// wire protocol lives entirely behind it. Retry applies only to
// transport-level failures: a job the remote service reports as failed is
// never resubmitted.
package jobs

import (
	"context"
	"time"
)

// Status is the lifecycle state of a Job.
type Status string

const (
	// StatusPending is entered on submission, before the remote service
	// starts work.
	StatusPending Status = "pending"
	// StatusRunning means the remote service acknowledged and is working.
	StatusRunning Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// Job is one in-flight or completed remote invocation. It is created by
// Client.Submit and mutated only by the Client as status transitions arrive
// from the remote service.
type Job struct {
	// ID is the provider-assigned identifier, set once submitted.
	ID string `json:"id"`
	// RemoteModelID is the opaque model identifier the job was submitted to.
	RemoteModelID string `json:"remote_model_id"`
	// Input is the request payload (prompt plus parameters).
	Input map[string]any `json:"input,omitempty"`
	Status Status `json:"status"`
	// Outputs are remote references (URLs) to the produced artifacts.
	Outputs []string `json:"outputs,omitempty"`
	// Error carries the remote-provided failure detail when Status is failed.
	Error string `json:"error,omitempty"`
	SubmittedAt time.Time `json:"submitted_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// StreamEvent is one element of a job's incremental output. The stream is
// finite; the channel closes when the remote stream ends. A mid-stream
// failure is delivered as the final event with Err set.
type StreamEvent struct {
	Data string
	Err  error
}

// Transport is the request/response contract with the remote inference
// service. Implementations normalize the provider's responses into Jobs and
// classify failures via *TransportError so the Client can tell transient
// transport faults from definitive remote answers.
type Transport interface {
	Create(ctx context.Context, remoteModelID string, input map[string]any) (*Job, error)
	Get(ctx context.Context, id string) (*Job, error)
	Cancel(ctx context.Context, id string) (*Job, error)
	Stream(ctx context.Context, id string) (<-chan StreamEvent, error)
}
