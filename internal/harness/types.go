package harness

import (
	"github.com/yamadera/torii/internal/engine"
	"github.com/yamadera/torii/internal/srs"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success.
	// True if every expectation matched.
	Pass bool `json:"pass"`

	// Errors contains expectation failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Report is the pass report the engine produced.
	Report *engine.PassReport `json:"report"`

	// FinalQueues holds the post-pass queue state of every fixture card,
	// read back from the store.
	FinalQueues map[srs.CardID]srs.QueueState `json:"final_queues,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for scenario execution.
func NewResult() *Result {
	return &Result{
		Pass:        true,
		Errors:      []string{},
		FinalQueues: make(map[srs.CardID]srs.QueueState),
	}
}

// AddError adds an expectation failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
