package session

import (
	"fmt"
	"strings"
)

// Step names the part of discovery an Outcome belongs to
type Step string

const (
	StepDiscover  Step = "discover"  // characteristic discovery of a service
	StepCache     Step = "cache"     // characteristic registered without subscription
	StepSubscribe Step = "subscribe" // characteristic registered and subscribed
)

// Outcome is the result of one discovery step
type Outcome struct {
	Service        string `json:"service"`
	Characteristic string `json:"characteristic,omitempty"`
	Step           Step   `json:"step"`
	Error          string `json:"error,omitempty"`

	err error
}

// OK reports whether the step succeeded
func (o Outcome) OK() bool { return o.err == nil }

// Err returns the failure, if any
func (o Outcome) Err() error { return o.err }

func (o Outcome) String() string {
	target := o.Service
	if o.Characteristic != "" {
		target += "/" + o.Characteristic
	}
	if o.err != nil {
		return fmt.Sprintf("%s %s: %v", o.Step, target, o.err)
	}
	return fmt.Sprintf("%s %s: ok", o.Step, target)
}

// ConnectReport describes what a successful Connect established.
// Outcomes are in service declaration order, then characteristic order.
type ConnectReport struct {
	Device   string    `json:"device"`
	Address  string    `json:"address"`
	Strategy string    `json:"strategy"`
	Outcomes []Outcome `json:"outcomes"`
}

func (r *ConnectReport) record(o Outcome) {
	if o.err != nil {
		o.Error = o.err.Error()
	}
	r.Outcomes = append(r.Outcomes, o)
}

// Failures returns the failed outcomes
func (r *ConnectReport) Failures() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if !o.OK() {
			out = append(out, o)
		}
	}
	return out
}

// Complete reports whether every discovery step succeeded
func (r *ConnectReport) Complete() bool {
	return len(r.Failures()) == 0
}

// Err returns a *PartialError when some steps failed, nil otherwise
func (r *ConnectReport) Err() error {
	failures := r.Failures()
	if len(failures) == 0 {
		return nil
	}
	return &PartialError{Failures: failures, Total: len(r.Outcomes)}
}

// PartialError is a connection that succeeded with some discovery steps failing
type PartialError struct {
	Failures []Outcome
	Total    int
}

func (e *PartialError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.String()
	}
	return fmt.Sprintf("%d of %d discovery steps failed: %s", len(e.Failures), e.Total, strings.Join(parts, "; "))
}

// Unwrap exposes the individual failures to errors.Is and errors.As
func (e *PartialError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.err
	}
	return errs
}
