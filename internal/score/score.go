package score

import (
	"errors"
	"fmt"

	"pabench/internal/domain"
)

const (
	MessagePassed = "All verifier checks passed"
	MessageFailed = "One or more verifier checks failed"
)

var ErrNoChecks = errors.New("no checks recorded")

// Card collects checks in the order they are recorded.
type Card struct {
	checks []domain.Check
}

func (c *Card) Add(name string, verdict bool, reason string) {
	c.checks = append(c.checks, domain.Check{Name: name, Verdict: verdict, Reason: reason})
}

// Record adds a check choosing between two reasons by verdict.
func (c *Card) Record(name string, verdict bool, passReason, failReason string) {
	if verdict {
		c.Add(name, true, passReason)
		return
	}
	c.Add(name, false, failReason)
}

// Gated records a check that depends on an earlier precondition. When the
// precondition does not hold the check fails with blockedReason and eval is
// not called.
func (c *Card) Gated(name string, precondition bool, blockedReason string, eval func() (bool, string)) {
	if !precondition {
		c.Add(name, false, blockedReason)
		return
	}
	ok, reason := eval()
	c.Add(name, ok, reason)
}

// Result computes the reward as the fraction of passing checks. A card
// with no checks or with a repeated check name is an authoring error.
func (c *Card) Result() (domain.VerificationResult, error) {
	return Summarize(c.checks)
}

func Summarize(checks []domain.Check) (domain.VerificationResult, error) {
	if len(checks) == 0 {
		return domain.VerificationResult{}, ErrNoChecks
	}
	seen := make(map[string]struct{}, len(checks))
	passed := 0
	for _, ch := range checks {
		if _, dup := seen[ch.Name]; dup {
			return domain.VerificationResult{}, fmt.Errorf("duplicate check name %q", ch.Name)
		}
		seen[ch.Name] = struct{}{}
		if ch.Verdict {
			passed++
		}
	}
	res := domain.VerificationResult{
		Reward: float64(passed) / float64(len(checks)),
		Passed: passed == len(checks),
		Checks: append([]domain.Check(nil), checks...),
	}
	res.Message = MessageFailed
	if res.Passed {
		res.Message = MessagePassed
	}
	return res, nil
}
