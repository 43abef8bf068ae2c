package migcheck

import "time"

type Status int

const (
	StatusPassed Status = iota + 1
	StatusFailed
	// StatusSkipped means no check is registered for the migration,
	// it was still upgraded, downgraded and upgraded again
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	}

	return "unknown"
}

type StepResult struct {
	Revision string
	Key      string
	Status   Status
	// Phase where the check failed, zero when it did not
	Phase Phase
	// Failures are assertion messages, filled when the step ran with a Recorder
	Failures []string
	Err      error
	// Irreversible migrations are upgraded only, there is nothing to downgrade
	Irreversible bool
	Duration     time.Duration
}

type Report struct {
	Results []StepResult
}

func (r *Report) add(res StepResult) {
	r.Results = append(r.Results, res)
}

func (r *Report) Passed() []StepResult {
	return r.filter(StatusPassed)
}

func (r *Report) Failed() []StepResult {
	return r.filter(StatusFailed)
}

func (r *Report) Skipped() []StepResult {
	return r.filter(StatusSkipped)
}

func (r *Report) OK() bool {
	return len(r.Failed()) == 0
}

func (r *Report) filter(s Status) []StepResult {
	var result []StepResult
	for i := range r.Results {
		if r.Results[i].Status == s {
			result = append(result, r.Results[i])
		}
	}
	return result
}
