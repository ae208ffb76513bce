package doctor

import "fmt"

// Doctor runs registered checks in order.
type Doctor struct {
	checks []Check
}

// New returns a Doctor with the given checks.
func New(checks ...Check) *Doctor {
	return &Doctor{checks: checks}
}

// Default returns the checks wperm runs.
func Default() *Doctor {
	return New(
		NewRosterFileCheck(),
		NewSideImageCheck(),
		NewPublishRepoCheck(),
	)
}

// Register adds checks.
func (d *Doctor) Register(checks ...Check) {
	d.checks = append(d.checks, checks...)
}

// Report is the result of a run.
type Report struct {
	Results []*CheckResult `json:"results"`
}

// Count returns how many results have status s.
func (r *Report) Count(s Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}

// HasErrors reports whether any check failed.
func (r *Report) HasErrors() bool {
	return r.Count(StatusError) > 0
}

// Summary is a one-line tally.
func (r *Report) Summary() string {
	return fmt.Sprintf("%d passed, %d warnings, %d errors",
		r.Count(StatusOK), r.Count(StatusWarning), r.Count(StatusError))
}

// Run executes every check. With fix set, fixable checks that did not pass
// are repaired and run again.
func (d *Doctor) Run(ctx *CheckContext, fix bool) *Report {
	report := &Report{Results: make([]*CheckResult, 0, len(d.checks))}
	for _, c := range d.checks {
		res := c.Run(ctx)
		if fix && res.Status != StatusOK && c.CanFix() {
			if err := c.Fix(ctx); err != nil {
				res.Details = append(res.Details, "fix failed: "+err.Error())
			} else {
				res = c.Run(ctx)
				res.Fixed = true
			}
		}
		report.Results = append(report.Results, res)
	}
	return report
}
