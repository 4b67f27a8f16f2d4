// Package notify pushes scraping progress events to an external listener.
package notify

import (
	"context"
	"encoding/json"
	"time"
)

// Event types.
const (
	TypeRowCompleted = "row_completed"
	TypeFileSaved    = "file_saved"
	TypeRunCompleted = "run_completed"
)

// Event is one message on the progress feed.
type Event struct {
	Type    string          `json:"type"`
	RunID   string          `json:"runId,omitempty"`
	Time    time.Time       `json:"time"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RowPayload accompanies TypeRowCompleted.
type RowPayload struct {
	Row      int      `json:"row"`
	Cells    []string `json:"cells"`
	Files    int      `json:"files"`
	Accepted bool     `json:"accepted"`
}

// FilePayload accompanies TypeFileSaved.
type FilePayload struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Path string `json:"path"`
}

// RunPayload accompanies TypeRunCompleted.
type RunPayload struct {
	Success bool   `json:"success"`
	Rows    int    `json:"rows"`
	Files   int    `json:"files"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Publisher delivers events. Implementations must be safe for use from one
// goroutine at a time; Publish errors are reported but never stop a run.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// NewEvent builds an event stamped with the current time.
func NewEvent(typ, runID string, payload any) (Event, error) {
	ev := Event{Type: typ, RunID: runID, Time: time.Now().UTC()}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Event{}, err
		}
		ev.Payload = b
	}
	return ev, nil
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
