package harness

import "github.com/roach88/lightmode/internal/client"

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step ran and every assertion held.
	Pass bool `json:"pass"`

	// Trace lists the client's exchanges in order.
	Trace []client.Exchange `json:"trace"`

	// Errors holds assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// HTML is the rendered document after the last step.
	HTML string `json:"html"`

	// CircuitID is the id the server assigned.
	CircuitID string `json:"circuit_id"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []client.Exchange{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
