//go:build cucumber

package verify

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/cucumber/godog"

	"pabench/internal/domain"
	"pabench/internal/scenario"
	"pabench/internal/snapshot"
)

// TestVerifierFeatures runs the check-set feature files.
func TestVerifierFeatures(t *testing.T) {
	suite := godog.TestSuite{
		Name:                "verifier",
		ScenarioInitializer: InitializeVerifierScenario,
		Options: &godog.Options{
			Format:    "pretty",
			Paths:     []string{filepath.Join("testdata", "features")},
			Strict:    true,
			TestingT:  t,
			Randomize: 0,
		},
	}
	if suite.Run() != 0 {
		t.Fatalf("non-zero godog status")
	}
}

// InitializeVerifierScenario wires the verifier steps.
func InitializeVerifierScenario(ctx *godog.ScenarioContext) {
	state := &verifierScenarioState{}
	ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		state.reset()
		return ctx, nil
	})

	ctx.Step(`^the expectation:$`, state.givenExpectation)
	ctx.Step(`^the mailbox state:$`, state.givenMailbox)
	ctx.Step(`^the calendar state:$`, state.givenCalendar)
	ctx.Step(`^I run the verifier$`, state.whenIRunTheVerifier)
	ctx.Step(`^the reward is ([0-9.]+)$`, state.thenRewardIs)
	ctx.Step(`^the run (passes|fails)$`, state.thenRunOutcome)
	ctx.Step(`^the checks are "([^"]+)"$`, state.thenChecksAre)
	ctx.Step(`^check "([^"]+)" (passes|fails)$`, state.thenCheckOutcome)
	ctx.Step(`^check "([^"]+)" reason is "([^"]*)"$`, state.thenCheckReasonIs)
	ctx.Step(`^check "([^"]+)" reason contains "([^"]*)"$`, state.thenCheckReasonContains)
	ctx.Step(`^(\d+) malformed records? (?:was|were) skipped$`, state.thenSkipped)
	ctx.Step(`^the expectation is rejected with "([^"]+)"$`, state.thenRejected)
}

type verifierScenarioState struct {
	expectation []byte
	mailbox     []byte
	calendar    []byte
	st          snapshot.State
	result      domain.VerificationResult
	err         error
}

func (s *verifierScenarioState) reset() {
	*s = verifierScenarioState{
		mailbox:  []byte(`{"emails":[]}`),
		calendar: []byte(`{"events":[]}`),
	}
}

func (s *verifierScenarioState) givenExpectation(doc *godog.DocString) error {
	s.expectation = []byte(doc.Content)
	return nil
}

func (s *verifierScenarioState) givenMailbox(doc *godog.DocString) error {
	s.mailbox = []byte(doc.Content)
	return nil
}

func (s *verifierScenarioState) givenCalendar(doc *godog.DocString) error {
	s.calendar = []byte(doc.Content)
	return nil
}

func (s *verifierScenarioState) whenIRunTheVerifier() error {
	exp, err := scenario.ParseExpectation(s.expectation, "verifier.yml")
	if err != nil {
		return err
	}
	st, err := snapshot.FromParts(s.mailbox, s.calendar)
	if err != nil {
		return err
	}
	s.st = st
	exp, err = scenario.Normalize(exp)
	if err != nil {
		s.err = err
		return nil
	}
	s.result, s.err = Run(exp, st)
	return nil
}

func (s *verifierScenarioState) ran() error {
	if s.err != nil {
		return fmt.Errorf("verifier returned error: %v", s.err)
	}
	return nil
}

func (s *verifierScenarioState) thenRewardIs(want string) error {
	if err := s.ran(); err != nil {
		return err
	}
	w, err := strconv.ParseFloat(want, 64)
	if err != nil {
		return err
	}
	if s.result.Reward != w {
		return fmt.Errorf("expected reward %v, got %v (%+v)", w, s.result.Reward, s.result.Checks)
	}
	return nil
}

func (s *verifierScenarioState) thenRunOutcome(outcome string) error {
	if err := s.ran(); err != nil {
		return err
	}
	if want := outcome == "passes"; s.result.Passed != want {
		return fmt.Errorf("expected passed=%v, got %+v", want, s.result)
	}
	return nil
}

func (s *verifierScenarioState) thenChecksAre(list string) error {
	if err := s.ran(); err != nil {
		return err
	}
	var got []string
	for _, c := range s.result.Checks {
		got = append(got, c.Name)
	}
	if strings.Join(got, ",") != strings.ReplaceAll(list, " ", "") {
		return fmt.Errorf("expected checks %s, got %s", list, strings.Join(got, ","))
	}
	return nil
}

func (s *verifierScenarioState) check(name string) (domain.Check, error) {
	if err := s.ran(); err != nil {
		return domain.Check{}, err
	}
	for _, c := range s.result.Checks {
		if c.Name == name {
			return c, nil
		}
	}
	return domain.Check{}, fmt.Errorf("check %s not recorded", name)
}

func (s *verifierScenarioState) thenCheckOutcome(name, outcome string) error {
	c, err := s.check(name)
	if err != nil {
		return err
	}
	if want := outcome == "passes"; c.Verdict != want {
		return fmt.Errorf("expected %s verdict %v, got %+v", name, want, c)
	}
	return nil
}

func (s *verifierScenarioState) thenCheckReasonIs(name, reason string) error {
	c, err := s.check(name)
	if err != nil {
		return err
	}
	if c.Reason != reason {
		return fmt.Errorf("expected %s reason %q, got %q", name, reason, c.Reason)
	}
	return nil
}

func (s *verifierScenarioState) thenCheckReasonContains(name, snippet string) error {
	c, err := s.check(name)
	if err != nil {
		return err
	}
	if !strings.Contains(c.Reason, snippet) {
		return fmt.Errorf("expected %s reason to contain %q, got %q", name, snippet, c.Reason)
	}
	return nil
}

func (s *verifierScenarioState) thenSkipped(n int) error {
	if s.st.Skipped != n {
		return fmt.Errorf("expected %d skipped records, got %d", n, s.st.Skipped)
	}
	return nil
}

func (s *verifierScenarioState) thenRejected(snippet string) error {
	if s.err == nil {
		return fmt.Errorf("expected an error containing %q", snippet)
	}
	if !strings.Contains(s.err.Error(), snippet) {
		return fmt.Errorf("expected error to contain %q, got %v", snippet, s.err)
	}
	return nil
}
