// Package events provides a pub/sub bus for worker pool and server lifecycle
// notifications.
package events

import "time"

// EventType represents the type of event
type EventType string

const (
	// EventWorkerStarted is emitted when a worker goroutine begins its loop
	EventWorkerStarted EventType = "worker_started"
	// EventWorkerStopped is emitted when a worker observes the closed queue and returns
	EventWorkerStopped EventType = "worker_stopped"
	// EventJobFailed is emitted when a job returns an error or panics
	EventJobFailed EventType = "job_failed"
	// EventPoolClosing is emitted when shutdown begins
	EventPoolClosing EventType = "pool_closing"
	// EventPoolClosed is emitted after every worker has been joined
	EventPoolClosed EventType = "pool_closed"
	// EventConnRejected is emitted when the server cannot hand a connection to the pool
	EventConnRejected EventType = "conn_rejected"
)

// Publisher is implemented by anything that accepts events.
type Publisher interface {
	Publish(event Event)
}

// Event represents a pool or server event
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source,omitempty"`
	Data      EventData `json:"data,omitempty"`
}

// EventData contains event-specific data
type EventData struct {
	WorkerID  *int   `json:"worker_id,omitempty"`
	Workers   int    `json:"workers,omitempty"`
	Executed  uint64 `json:"executed,omitempty"`
	Discarded uint64 `json:"discarded,omitempty"`
	Panic     bool   `json:"panic,omitempty"`
	Error     string `json:"error,omitempty"`
}

func workerEvent(t EventType, id int) Event {
	return Event{
		Type:      t,
		Timestamp: time.Now(),
		Data:      EventData{WorkerID: &id},
	}
}

// NewWorkerStartedEvent creates a worker started event
func NewWorkerStartedEvent(id int) Event {
	return workerEvent(EventWorkerStarted, id)
}

// NewWorkerStoppedEvent creates a worker stopped event with the worker's totals
func NewWorkerStoppedEvent(id int, executed, discarded uint64) Event {
	e := workerEvent(EventWorkerStopped, id)
	e.Data.Executed = executed
	e.Data.Discarded = discarded
	return e
}

// NewJobFailedEvent creates a job failure event
func NewJobFailedEvent(id int, err error, panicked bool) Event {
	e := workerEvent(EventJobFailed, id)
	e.Data.Panic = panicked
	if err != nil {
		e.Data.Error = err.Error()
	}
	return e
}

// NewPoolClosingEvent creates a pool closing event
func NewPoolClosingEvent(workers int) Event {
	return Event{
		Type:      EventPoolClosing,
		Timestamp: time.Now(),
		Data:      EventData{Workers: workers},
	}
}

// NewPoolClosedEvent creates a pool closed event
func NewPoolClosedEvent(workers int) Event {
	return Event{
		Type:      EventPoolClosed,
		Timestamp: time.Now(),
		Data:      EventData{Workers: workers},
	}
}

// NewConnRejectedEvent creates a connection rejected event
func NewConnRejectedEvent(remote string, err error) Event {
	e := Event{
		Type:      EventConnRejected,
		Timestamp: time.Now(),
		Source:    remote,
	}
	if err != nil {
		e.Data.Error = err.Error()
	}
	return e
}
