// Package verify scores a state snapshot against a scenario expectation.
// Each scenario kind maps to one built-in check set.
package verify

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"pabench/internal/domain"
	"pabench/internal/instant"
	"pabench/internal/scenario"
	"pabench/internal/score"
	"pabench/internal/snapshot"
)

var ErrUnknownKind = errors.New("unknown scenario kind")

// CheckSet records the checks for one kind onto card. An error means the
// expectation itself is unusable, never that the agent failed.
type CheckSet func(card *score.Card, exp scenario.Expectation, st snapshot.State) error

var registry = map[scenario.Kind]CheckSet{
	scenario.KindScheduling:        scheduling,
	scenario.KindRescheduling:      rescheduling,
	scenario.KindCancellation:      cancellation,
	scenario.KindReplyAll:          replyAll,
	scenario.KindConflictDetection: replyAll,
	scenario.KindTravel:            travel,
}

// For returns the check set registered for kind.
func For(kind scenario.Kind) (CheckSet, bool) {
	cs, ok := registry[kind]
	return cs, ok
}

// Kinds lists the registered kinds, sorted.
func Kinds() []scenario.Kind {
	out := make([]scenario.Kind, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Run scores st against exp. Local mismatches become failing checks; only
// an unknown kind or an unusable expectation is returned as an error.
func Run(exp scenario.Expectation, st snapshot.State) (domain.VerificationResult, error) {
	cs, ok := For(exp.Kind)
	if !ok {
		return domain.VerificationResult{}, fmt.Errorf("%w: %q", ErrUnknownKind, exp.Kind)
	}
	var card score.Card
	if err := cs(&card, exp, st); err != nil {
		return domain.VerificationResult{}, fmt.Errorf("%s expectation: %w", exp.Kind, err)
	}
	return card.Result()
}

func tolerance(exp scenario.Expectation) time.Duration {
	if exp.ToleranceSeconds > 0 {
		return time.Duration(exp.ToleranceSeconds) * time.Second
	}
	return instant.DefaultTolerance
}

func parseField(field, value string) (time.Time, error) {
	t, err := instant.Parse(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", field, err)
	}
	return t, nil
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func day(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
