package results

import (
	"slices"
	"time"
)

// Failure is one failed outcome with the locations of its diagnostics.
type Failure struct {
	Scenario string
	Browser  string
	Env      string
	Error    string
	URLs     []string
}

// Summary aggregates a run's outcomes.
type Summary struct {
	RunID    string
	Success  bool
	Passed   int
	Failed   int
	Skipped  int
	Duration time.Duration
	Failures []Failure
}

// Summarize folds outcomes into a Summary. A run with no outcomes is not a
// success.
func Summarize(runID string, outcomes []Outcome) Summary {
	s := Summary{RunID: runID}
	for _, o := range outcomes {
		s.Duration += o.Duration
		switch o.Status {
		case Passed:
			s.Passed++
		case Skipped:
			s.Skipped++
		default:
			s.Failed++
			f := Failure{Scenario: o.Scenario, Browser: o.Browser, Env: o.Env, Error: o.Error}
			if o.Snapshot != nil {
				for _, u := range []string{o.Snapshot.Meta, o.Snapshot.Screenshot, o.Snapshot.HTML} {
					if u != "" {
						f.URLs = append(f.URLs, u)
					}
				}
			}
			s.Failures = append(s.Failures, f)
		}
	}
	slices.SortStableFunc(s.Failures, func(a, b Failure) int {
		if a.Scenario != b.Scenario {
			if a.Scenario < b.Scenario {
				return -1
			}
			return 1
		}
		if a.Browser < b.Browser {
			return -1
		}
		if a.Browser > b.Browser {
			return 1
		}
		return 0
	})
	s.Success = s.Failed == 0 && s.Passed > 0
	return s
}
