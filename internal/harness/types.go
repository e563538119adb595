package harness

import "github.com/roach88/chatsync/internal/chat"

// TraceEvent records one executed step and every client's log ids after
// the system went quiet.
type TraceEvent struct {
	Step   int                 `json:"step"`
	Do     string              `json:"do"`
	Client string              `json:"client,omitempty"`
	At     string              `json:"at"`
	ID     string              `json:"id,omitempty"` // message created by send
	Error  string              `json:"error,omitempty"`
	Logs   map[string][]string `json:"logs"`
}

// State is the final view of every client and of the snapshot channel.
type State struct {
	Logs   map[string][]chat.Message `json:"logs"`
	Status map[string]string         `json:"status"`

	// Retained is the decoded retained snapshot, nil when none is held.
	Retained []chat.Message `json:"retained"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Trace contains one event per join and step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	State State `json:"state"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State: State{
			Logs:   make(map[string][]chat.Message),
			Status: make(map[string]string),
		},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
