package report

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/opsmatic/opsmatic-handler/pkg/models"
)

type Step string

const (
	StepSubmit     Step = "submit"
	StepWatchList  Step = "watch_list"
	StepAttributes Step = "attributes"
	StepCookbooks  Step = "cookbooks"
)

type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// StepResult is the outcome of one best-effort step of a report.
type StepResult struct {
	Step    Step
	Outcome Outcome
	Reason  string
	Err     error
}

// Result describes what a single Report call did. Disabled is set when no
// integration token is configured, in which case no step ran.
type Result struct {
	Disabled bool
	Event    *models.ReportEvent
	Steps    []StepResult
}

// Step returns the result of the named step, if it ran.
func (r *Result) Step(step Step) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Step == step {
			return s, true
		}
	}
	return StepResult{}, false
}

// Recorded reports whether the collector accepted the event.
func (r *Result) Recorded() bool {
	s, ok := r.Step(StepSubmit)
	return ok && s.Outcome == OutcomeOK
}

// Err aggregates the failed steps, or returns nil.
func (r *Result) Err() error {
	var result *multierror.Error
	for _, s := range r.Steps {
		if s.Outcome == OutcomeFailed {
			result = multierror.Append(result, fmt.Errorf("%s: %w", s.Step, s.Err))
		}
	}
	return result.ErrorOrNil()
}

func (r *Result) ok(step Step) {
	r.Steps = append(r.Steps, StepResult{Step: step, Outcome: OutcomeOK})
}

func (r *Result) skipped(step Step, reason string) {
	r.Steps = append(r.Steps, StepResult{Step: step, Outcome: OutcomeSkipped, Reason: reason})
}

func (r *Result) failed(step Step, err error) {
	r.Steps = append(r.Steps, StepResult{Step: step, Outcome: OutcomeFailed, Err: err})
}
