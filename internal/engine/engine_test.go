package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pabench/internal/config"
	"pabench/internal/db"
	"pabench/internal/domain"
	"pabench/internal/engine"
	"pabench/internal/events"
	"pabench/internal/migrate"
	"pabench/internal/repo"
	"pabench/internal/scenario"
	"pabench/internal/snapshot"
)

const scenarioID = "scenario_001_planning"

const seedData = `{
  "today": "2026-01-15",
  "gmail-clone": {"emails": [
    {"id": "email_1", "threadId": "thread_1",
     "from": {"name": "Kaito", "email": "kaito@helixgrid.com"},
     "to": [{"email": "alan@helixgrid.com"}],
     "cc": [{"email": "priya@helixgrid.com"}],
     "subject": "Planning", "body": "Please schedule", "timestamp": "2026-01-14T22:20:00Z", "labels": ["INBOX"]}
  ]},
  "calendar-clone": {"events": [], "otherUsersEvents": {}}
}`

const verifierYAML = `kind: scheduling
self: alan@helixgrid.com
seed_email: email_1
title: Planning Meeting
location: Google Meet
`

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	data := filepath.Join(dir, "data")
	scDir := filepath.Join(data, scenarioID)
	if err := os.MkdirAll(scDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for name, body := range map[string]string{
		scenario.DataFile: seedData,
		scenario.TaskFile: `{"description": "Schedule the planning meeting"}`,
		"verifier.yml":    verifierYAML,
	} {
		if err := os.WriteFile(filepath.Join(scDir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	cfg := config.Default()
	eng := engine.New(conn, cfg, scenario.NewLoader(data, cfg.State))
	eng.Now = func() time.Time { return time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC) }
	eng.Events.Now = eng.Now
	n := 0
	eng.NewID = func() string {
		n++
		return "run-" + string(rune('0'+n))
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func doneState() snapshot.State {
	return snapshot.State{Events: []domain.Event{{
		ID:             "event_1",
		Title:          "Planning Meeting",
		Start:          "2026-01-16T15:00:00Z",
		End:            "2026-01-16T15:30:00Z",
		ConferenceData: &domain.ConferenceData{ConferenceSolution: domain.ConferenceSolution{Name: "Google Meet"}},
		Attendees: []domain.Attendee{
			{Email: "alan@helixgrid.com", IsOrganizer: true},
			{Email: "kaito@helixgrid.com"},
			{Email: "priya@helixgrid.com"},
		},
	}}}
}

type failingFetcher struct{}

func (failingFetcher) FetchState(context.Context) (snapshot.State, error) {
	return snapshot.State{}, errors.New("connection refused")
}

type recordingPusher struct {
	mailbox, calendar json.RawMessage
	err               error
}

func (p *recordingPusher) PushState(_ context.Context, mailbox, calendar json.RawMessage) error {
	p.mailbox, p.calendar = mailbox, calendar
	return p.err
}

func TestVerifyLivePersistsRun(t *testing.T) {
	env := newTestEnv(t)
	run, err := env.Engine.VerifyLive(env.Ctx, scenarioID, engine.StaticState(doneState()))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !run.Passed || run.Reward != 1 || run.Source != domain.SourceLive || run.Kind != "scheduling" {
		t.Fatalf("unexpected run: %+v", run)
	}
	stored, err := env.Engine.GetRun(env.Ctx, run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if len(stored.Checks) != len(run.Checks) || stored.Message != "All verifier checks passed" {
		t.Fatalf("stored run mismatch: %+v", stored)
	}
	evs, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, repo.EventFilters{Type: events.TypeRunCompleted})
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evs) != 1 || evs[0].EntityID != run.ID || evs[0].ScenarioID != scenarioID {
		t.Fatalf("unexpected events: %+v", evs)
	}
}

func TestVerifySeedFails(t *testing.T) {
	env := newTestEnv(t)
	run, err := env.Engine.VerifySeed(env.Ctx, scenarioID)
	if err != nil {
		t.Fatalf("verify seed: %v", err)
	}
	if run.Passed || run.Reward != 0 || run.Source != domain.SourceSeed {
		t.Fatalf("untouched seed should fail: %+v", run)
	}
}

func TestVerifyLiveFetchFailureIsNotARun(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.VerifyLive(env.Ctx, scenarioID, failingFetcher{})
	if !errors.Is(err, engine.ErrStateUnavailable) {
		t.Fatalf("expected ErrStateUnavailable, got %v", err)
	}
	runs, err := env.Engine.Repo.ListRuns(env.Ctx, repo.RunFilters{})
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("fetch failure must not record a run: %+v", runs)
	}
}

func TestVerifyUnknownScenario(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.VerifyLive(env.Ctx, "scenario_missing", failingFetcher{})
	if !errors.Is(err, scenario.ErrNotFound) {
		t.Fatalf("expected scenario.ErrNotFound, got %v", err)
	}
	if errors.Is(err, engine.ErrStateUnavailable) {
		t.Fatalf("descriptor errors must not look like connectivity errors")
	}
}

func TestVerifyIsRepeatable(t *testing.T) {
	env := newTestEnv(t)
	a, err := env.Engine.Verify(env.Ctx, scenarioID, doneState(), domain.SourceFile)
	if err != nil {
		t.Fatalf("verify a: %v", err)
	}
	b, err := env.Engine.Verify(env.Ctx, scenarioID, doneState(), domain.SourceFile)
	if err != nil {
		t.Fatalf("verify b: %v", err)
	}
	if a.ID == b.ID || a.Reward != b.Reward || len(a.Checks) != len(b.Checks) {
		t.Fatalf("runs differ: %+v %+v", a, b)
	}
}

func TestLoadScenario(t *testing.T) {
	env := newTestEnv(t)
	p := &recordingPusher{}
	sc, err := env.Engine.LoadScenario(env.Ctx, scenarioID, p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if sc.ID != scenarioID || len(p.mailbox) == 0 || len(p.calendar) == 0 {
		t.Fatalf("states not pushed: %+v", p)
	}
	for name, raw := range map[string]json.RawMessage{"mailbox": p.mailbox, "calendar": p.calendar} {
		var doc struct {
			Today string `json:"today"`
		}
		if err := json.Unmarshal(raw, &doc); err != nil {
			t.Fatalf("%s payload: %v", name, err)
		}
		if doc.Today != "2026-01-15" {
			t.Fatalf("%s payload should carry today, got %q", name, doc.Today)
		}
	}
	evs, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, repo.EventFilters{Type: events.TypeScenarioLoaded})
	if err != nil || len(evs) != 1 {
		t.Fatalf("expected one load event: %v %+v", err, evs)
	}

	failing := &recordingPusher{err: errors.New("503")}
	if _, err := env.Engine.LoadScenario(env.Ctx, scenarioID, failing); !errors.Is(err, engine.ErrStateUnavailable) {
		t.Fatalf("expected ErrStateUnavailable, got %v", err)
	}
}

func bundledEngine(t *testing.T) (engine.Engine, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	return engine.New(conn, cfg, scenario.NewLoader(filepath.Join("..", "..", "data"), cfg.State)), ctx
}

func TestBundledScenarioSeedsFail(t *testing.T) {
	eng, ctx := bundledEngine(t)
	ids, err := eng.Loader.List()
	if err != nil || len(ids) == 0 {
		t.Fatalf("list bundled scenarios: %v %v", ids, err)
	}
	for _, id := range ids {
		run, err := eng.VerifySeed(ctx, id)
		if err != nil {
			t.Fatalf("%s: %v", id, err)
		}
		if run.Passed || run.Reward >= 1 {
			t.Fatalf("%s: untouched seed should fail, got %+v", id, run)
		}
	}
}

func TestBundledCascade(t *testing.T) {
	const id = "scenario_013_cascading_changes"
	const partner = "ethan.park@ridgeviewadvisors.com"
	eng, ctx := bundledEngine(t)
	sc, err := eng.Scenario(id)
	if err != nil {
		t.Fatalf("scenario: %v", err)
	}
	seed, err := sc.SeedState()
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	run, err := eng.VerifySeed(ctx, id)
	if err != nil {
		t.Fatalf("verify seed: %v", err)
	}
	if run.Reward != 0.2 {
		t.Fatalf("only the partner's meeting should pass on the seed, got %+v", run.Checks)
	}

	moved := func(withPartner bool) snapshot.State {
		st := seed
		st.Events = append([]domain.Event(nil), seed.Events...)
		for i, ev := range st.Events {
			switch ev.ID {
			case "event_7102":
				ev.Start, ev.End = "2026-01-21T13:00:00Z", "2026-01-21T13:45:00Z"
			case "event_7103":
				ev.Start, ev.End = "2026-01-21T15:00:00Z", "2026-01-21T15:30:00Z"
			default:
				continue
			}
			if withPartner {
				ev.Attendees = append(append([]domain.Attendee(nil), ev.Attendees...), domain.Attendee{Email: partner})
			}
			st.Events[i] = ev
		}
		return st
	}

	run, err = eng.Verify(ctx, id, moved(false), domain.SourceRequest)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !run.Passed {
		t.Fatalf("cascaded state should pass: %+v", run.Checks)
	}

	run, err = eng.Verify(ctx, id, moved(true), domain.SourceRequest)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if run.Passed || run.Reward != 0.6 {
		t.Fatalf("partner on internal meetings should fail prep and debrief: %+v", run.Checks)
	}
}
