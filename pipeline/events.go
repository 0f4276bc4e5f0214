package pipeline

import (
	"sync"
	"time"
)

// EventKind identifies the type of pipeline event.
type EventKind string

const (
	EventConfigResolved  EventKind = "config_resolved"
	EventPromptBuilt     EventKind = "prompt_built"
	EventPromptEnhanced  EventKind = "prompt_enhanced"
	EventJobSubmitted    EventKind = "job_submitted"
	EventJobPolled       EventKind = "job_polled"
	EventJobCompleted    EventKind = "job_completed"
	EventOutputPersisted EventKind = "output_persisted"
	EventWarning         EventKind = "warning"
	EventError           EventKind = "error"
)

// Event is a typed progress event emitted while an attempt runs.
type Event struct {
	Kind      EventKind      `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	AttemptID string         `json:"attempt_id"`
	Data      map[string]any `json:"data,omitempty"`
}

// EventEmitter delivers typed events to the host application via a channel.
type EventEmitter struct {
	attemptID string
	ch        chan Event
	closed    bool
	mu        sync.Mutex
}

// NewEventEmitter creates a new EventEmitter with a buffered channel.
func NewEventEmitter(attemptID string, bufferSize int) *EventEmitter {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &EventEmitter{
		attemptID: attemptID,
		ch:        make(chan Event, bufferSize),
	}
}

// Emit sends an event to the channel. If the emitter is closed, the event
// is silently dropped.
func (e *EventEmitter) Emit(kind EventKind, data map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	event := Event{
		Kind:      kind,
		Timestamp: time.Now(),
		AttemptID: e.attemptID,
		Data:      data,
	}
	select {
	case e.ch <- event:
	default:
		// Channel full; drop event to avoid blocking the attempt.
	}
}

// Events returns the read-only event channel.
func (e *EventEmitter) Events() <-chan Event {
	return e.ch
}

// Close closes the event channel. Safe to call multiple times.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}
