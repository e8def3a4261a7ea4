package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"pabench/internal/config"
	"pabench/internal/domain"
	"pabench/internal/events"
	"pabench/internal/repo"
	"pabench/internal/scenario"
	"pabench/internal/snapshot"
	"pabench/internal/verify"
)

// ErrStateUnavailable marks runs that could not be evaluated because a
// service state could not be read or written. It never means the agent
// failed the task.
var ErrStateUnavailable = errors.New("state unavailable")

// StateFetcher reads the current state of both services.
type StateFetcher interface {
	FetchState(ctx context.Context) (snapshot.State, error)
}

// StatePusher replaces the state of both services.
type StatePusher interface {
	PushState(ctx context.Context, mailbox, calendar json.RawMessage) error
}

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Loader scenario.Loader
	Now    func() time.Time
	NewID  func() string
	Logger *log.Logger
}

func New(db *sql.DB, cfg *config.Config, loader scenario.Loader) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{Now: time.Now},
		Config: cfg,
		Loader: loader,
		Now:    time.Now,
		NewID:  uuid.NewString,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e Engine) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

// Scenario loads one scenario descriptor.
func (e Engine) Scenario(id string) (scenario.Scenario, error) {
	return e.Loader.Load(id)
}

// Verify scores st against the scenario and records the run.
func (e Engine) Verify(ctx context.Context, scenarioID string, st snapshot.State, source string) (domain.Run, error) {
	sc, err := e.Loader.Load(scenarioID)
	if err != nil {
		return domain.Run{}, err
	}
	return e.verifyScenario(ctx, sc, st, source)
}

// VerifyLive fetches the live state and scores it. The scenario is loaded
// before any fetch so descriptor errors surface without network traffic.
func (e Engine) VerifyLive(ctx context.Context, scenarioID string, fetcher StateFetcher) (domain.Run, error) {
	sc, err := e.Loader.Load(scenarioID)
	if err != nil {
		return domain.Run{}, err
	}
	if fetcher == nil {
		return domain.Run{}, fmt.Errorf("%w: no state source configured", ErrStateUnavailable)
	}
	st, err := fetcher.FetchState(ctx)
	if err != nil {
		return domain.Run{}, fmt.Errorf("%w: %w", ErrStateUnavailable, err)
	}
	return e.verifyScenario(ctx, sc, st, domain.SourceLive)
}

// VerifySeed scores the scenario's own seed state. Useful as a dry run:
// an untouched seed normally fails most checks.
func (e Engine) VerifySeed(ctx context.Context, scenarioID string) (domain.Run, error) {
	sc, err := e.Loader.Load(scenarioID)
	if err != nil {
		return domain.Run{}, err
	}
	st, err := sc.SeedState()
	if err != nil {
		return domain.Run{}, fmt.Errorf("scenario %s seed: %w", sc.ID, err)
	}
	return e.verifyScenario(ctx, sc, st, domain.SourceSeed)
}

func (e Engine) verifyScenario(ctx context.Context, sc scenario.Scenario, st snapshot.State, source string) (domain.Run, error) {
	if st.Skipped > 0 {
		e.logger().Printf("verify %s: skipped %d malformed records", sc.ID, st.Skipped)
	}
	res, err := verify.Run(sc.Expect, st)
	if err != nil {
		return domain.Run{}, fmt.Errorf("scenario %s: %w", sc.ID, err)
	}
	run := domain.Run{
		ID:         e.newID(),
		ScenarioID: sc.ID,
		Kind:       string(sc.Expect.Kind),
		Source:     source,
		Reward:     res.Reward,
		Passed:     res.Passed,
		Message:    res.Message,
		Checks:     res.Checks,
		CreatedAt:  e.now().UTC().Format(time.RFC3339Nano),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Run{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertRunTx(ctx, tx, run); err != nil {
		return domain.Run{}, err
	}
	payload := events.EventPayload{
		"kind":    run.Kind,
		"source":  run.Source,
		"reward":  run.Reward,
		"passed":  run.Passed,
		"checks":  len(run.Checks),
		"skipped": st.Skipped,
	}
	if err := e.Events.Append(ctx, tx, events.TypeRunCompleted, sc.ID, "run", run.ID, payload); err != nil {
		return domain.Run{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Run{}, err
	}
	return run, nil
}

// LoadScenario pushes the scenario's seed states to both services and
// records the load.
func (e Engine) LoadScenario(ctx context.Context, scenarioID string, pusher StatePusher) (scenario.Scenario, error) {
	sc, err := e.Loader.Load(scenarioID)
	if err != nil {
		return scenario.Scenario{}, err
	}
	if pusher == nil {
		return scenario.Scenario{}, fmt.Errorf("%w: no state target configured", ErrStateUnavailable)
	}
	mailbox, err := withToday(sc.Mailbox, sc.Today)
	if err != nil {
		return scenario.Scenario{}, fmt.Errorf("scenario %s: mailbox state: %w", sc.ID, err)
	}
	calendar, err := withToday(sc.Calendar, sc.Today)
	if err != nil {
		return scenario.Scenario{}, fmt.Errorf("scenario %s: calendar state: %w", sc.ID, err)
	}
	if err := pusher.PushState(ctx, mailbox, calendar); err != nil {
		return scenario.Scenario{}, fmt.Errorf("%w: %w", ErrStateUnavailable, err)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return scenario.Scenario{}, err
	}
	defer tx.Rollback()
	payload := events.EventPayload{"kind": string(sc.Expect.Kind), "today": sc.Today}
	if err := e.Events.Append(ctx, tx, events.TypeScenarioLoaded, sc.ID, "scenario", sc.ID, payload); err != nil {
		return scenario.Scenario{}, err
	}
	if err := tx.Commit(); err != nil {
		return scenario.Scenario{}, err
	}
	return sc, nil
}

// withToday sets the simulator clock field on a seed state document.
func withToday(state json.RawMessage, today string) (json.RawMessage, error) {
	if today == "" {
		return state, nil
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(state, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = map[string]json.RawMessage{}
	}
	raw, err := json.Marshal(today)
	if err != nil {
		return nil, err
	}
	doc["today"] = raw
	return json.Marshal(doc)
}

// GetRun returns a stored run with its checks.
func (e Engine) GetRun(ctx context.Context, id string) (domain.Run, error) {
	return e.Repo.GetRun(ctx, id)
}
