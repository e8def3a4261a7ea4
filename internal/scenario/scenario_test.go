package scenario

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"pabench/internal/snapshot"
)

const seedData = `{
  "today": "2026-01-15",
  "gmail-clone": {"emails": [
    {"id": "email_1", "threadId": "thread_1",
     "from": {"name": "Kaito", "email": "kaito@helixgrid.com"},
     "to": [{"email": "alan@helixgrid.com"}],
     "cc": [{"email": "aiden@helixgrid.com"}, {"email": "priya@helixgrid.com"}],
     "subject": "Planning", "body": "Please schedule", "timestamp": "2026-01-14T22:20:00Z", "labels": ["INBOX"]}
  ]},
  "calendar-clone": {"events": [], "otherUsersEvents": {}}
}`

func writeScenario(t *testing.T, base, id string, files map[string]string) {
	t.Helper()
	dir := filepath.Join(base, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func TestLoadResolvesSeedEmail(t *testing.T) {
	base := t.TempDir()
	writeScenario(t, base, "scenario_001_scheduling", map[string]string{
		DataFile: seedData,
		TaskFile: `{"description": "Schedule the planning meeting"}`,
		"verifier.yml": `kind: scheduling
self: Alan@helixgrid.com
seed_email: email_1
title: "Planning Meeting"
location: Google Meet
extra_guests: [" guest@aurora.com "]
`,
	})
	sc, err := NewLoader(base, snapshot.DefaultKeys()).Load("scenario_001_scheduling")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if sc.Description != "Schedule the planning meeting" || sc.Today != "2026-01-15" {
		t.Fatalf("unexpected metadata %+v", sc)
	}
	exp := sc.Expect
	if exp.Seed == nil || exp.Seed.From != "kaito@helixgrid.com" || exp.Seed.Timestamp != "2026-01-14T22:20:00Z" {
		t.Fatalf("seed not resolved: %+v", exp.Seed)
	}
	if !reflect.DeepEqual(exp.Seed.CC, []string{"aiden@helixgrid.com", "priya@helixgrid.com"}) {
		t.Fatalf("unexpected cc %v", exp.Seed.CC)
	}
	if exp.Self != "alan@helixgrid.com" || exp.WindowDays != 7 || exp.TitleMatch != "exact" || !exp.ConflictsChecked() {
		t.Fatalf("defaults not applied: %+v", exp)
	}
	if !reflect.DeepEqual(exp.ExtraGuests, []string{"guest@aurora.com"}) {
		t.Fatalf("extra guests not trimmed: %v", exp.ExtraGuests)
	}
	st, err := sc.SeedState()
	if err != nil || len(st.Emails) != 1 {
		t.Fatalf("seed state: %v %+v", err, st)
	}
}

func TestLoadMissingScenario(t *testing.T) {
	base := t.TempDir()
	_, err := NewLoader(base, snapshot.Keys{}).Load("scenario_999")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_, err = NewLoader(base, snapshot.Keys{}).Load("../etc")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for path id, got %v", err)
	}
	writeScenario(t, base, "scenario_002", map[string]string{DataFile: seedData})
	_, err = NewLoader(base, snapshot.Keys{}).Load("scenario_002")
	if !errors.Is(err, ErrNotFound) || !strings.Contains(err.Error(), TaskFile) {
		t.Fatalf("expected missing task error, got %v", err)
	}
}

func TestLoadRequiresBothStates(t *testing.T) {
	base := t.TempDir()
	writeScenario(t, base, "scenario_003", map[string]string{
		DataFile:       `{"gmail-clone": {"emails": []}}`,
		TaskFile:       `{}`,
		"verifier.yml": "kind: cancellation\nevent_id: e\ntarget_date: 2026-01-09\n",
	})
	_, err := NewLoader(base, snapshot.Keys{}).Load("scenario_003")
	if err == nil || !strings.Contains(err.Error(), "calendar-clone") {
		t.Fatalf("expected missing calendar error, got %v", err)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	base := t.TempDir()
	writeScenario(t, base, "scenario_004", map[string]string{
		DataFile:       seedData,
		TaskFile:       `{}`,
		"verifier.yml": "kind: cancellation\nevent_id: e\ntarget_date: 2026-01-09\nbogus: 1\n",
	})
	_, err := NewLoader(base, snapshot.Keys{}).Load("scenario_004")
	if err == nil || !strings.Contains(err.Error(), "bogus") {
		t.Fatalf("expected unknown field error, got %v", err)
	}
}

func TestLoadRejectsNonStringToday(t *testing.T) {
	base := t.TempDir()
	writeScenario(t, base, "scenario_006", map[string]string{
		DataFile:       `{"today": 20260115, "gmail-clone": {"emails": []}, "calendar-clone": {"events": []}}`,
		TaskFile:       `{}`,
		"verifier.yml": "kind: cancellation\nevent_id: e\ntarget_date: 2026-01-09\n",
	})
	_, err := NewLoader(base, snapshot.Keys{}).Load("scenario_006")
	if err == nil || !strings.Contains(err.Error(), "today") {
		t.Fatalf("expected today error, got %v", err)
	}
}

func TestLoadJSONExpectation(t *testing.T) {
	base := t.TempDir()
	writeScenario(t, base, "scenario_005", map[string]string{
		DataFile:        seedData,
		TaskFile:        `{"description": "Cancel", "today": "2026-01-09"}`,
		"verifier.json": `{"kind": "cancellation", "event_id": "event_2029", "target_date": "2026-01-09T19:08:00.000Z"}`,
	})
	sc, err := NewLoader(base, snapshot.Keys{}).Load("scenario_005")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(sc.Expect.Keywords, DefaultKeywords) {
		t.Fatalf("default keywords not applied: %v", sc.Expect.Keywords)
	}
	if sc.Today != "2026-01-15" {
		t.Fatalf("data.json today should win, got %q", sc.Today)
	}
}

func TestList(t *testing.T) {
	base := t.TempDir()
	for _, id := range []string{"scenario_010", "scenario_002", "notes"} {
		if err := os.MkdirAll(filepath.Join(base, id), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(base, "scenario_file"), nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	ids, err := NewLoader(base, snapshot.Keys{}).List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"scenario_002", "scenario_010"}) {
		t.Fatalf("unexpected ids %v", ids)
	}
	ids, err = NewLoader(filepath.Join(base, "missing"), snapshot.Keys{}).List()
	if err != nil || len(ids) != 0 {
		t.Fatalf("missing base should list nothing: %v %v", ids, err)
	}
}

func TestNormalizeCollectsIssues(t *testing.T) {
	cases := []struct {
		name   string
		exp    Expectation
		fields []string
	}{
		{"no kind", Expectation{}, []string{"kind"}},
		{"unknown kind", Expectation{Kind: "party"}, []string{"kind"}},
		{"scheduling", Expectation{Kind: KindScheduling, TitleMatch: "fuzzy"}, []string{"title_match", "title", "seed_email"}},
		{"scheduling bad seed", Expectation{Kind: KindScheduling, Title: "T", Seed: &SeedEmail{Timestamp: "yesterday"}}, []string{"seed.from", "seed.timestamp"}},
		{"rescheduling", Expectation{Kind: KindRescheduling, Meetings: []Meeting{{Name: "main", Start: "x"}, {Name: "main", TitleContains: "a", Start: "2026-01-26T18:30:00Z"}}},
			[]string{"meetings[0].start", "meetings[1].name"}},
		{"cancellation", Expectation{Kind: KindCancellation}, []string{"event_id", "target_date"}},
		{"reply all", Expectation{Kind: KindConflictDetection}, []string{"thread_id", "organizer", "self"}},
		{"travel", Expectation{Kind: KindTravel}, []string{"legs"}},
		{"travel leg", Expectation{Kind: KindTravel, Legs: []Leg{{Name: "out", Departure: "2026-01-26T14:15:00.000Z"}}}, []string{"legs[0].flight_number", "legs[0].arrival"}},
	}
	for _, c := range cases {
		_, err := Normalize(c.exp)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%s: expected ValidationError, got %v", c.name, err)
		}
		var got []string
		for _, issue := range verr.Issues {
			got = append(got, issue.Field)
		}
		if !reflect.DeepEqual(got, c.fields) {
			t.Fatalf("%s: issues %v want %v", c.name, got, c.fields)
		}
	}
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	in := Expectation{Kind: KindTravel, Legs: []Leg{{Name: " out ", FlightNumber: "UA1", Departure: "2026-01-26T14:15:00Z", Arrival: "2026-01-26T16:15:00Z"}}}
	out, err := Normalize(in)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if out.Legs[0].Name != "out" || in.Legs[0].Name != " out " {
		t.Fatalf("unexpected names: out=%q in=%q", out.Legs[0].Name, in.Legs[0].Name)
	}
}

func TestBundledScenariosLoad(t *testing.T) {
	base := filepath.Join("..", "..", "data")
	loader := NewLoader(base, snapshot.DefaultKeys())
	ids, err := loader.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) < 5 {
		t.Fatalf("expected bundled scenarios under %s, got %v", base, ids)
	}
	kinds := map[Kind]bool{}
	for _, id := range ids {
		sc, err := loader.Load(id)
		if err != nil {
			t.Fatalf("load %s: %v", id, err)
		}
		kinds[sc.Expect.Kind] = true
		if _, err := sc.SeedState(); err != nil {
			t.Fatalf("%s seed: %v", id, err)
		}
	}
	for _, k := range []Kind{KindScheduling, KindCancellation, KindConflictDetection, KindRescheduling, KindTravel} {
		if !kinds[k] {
			t.Fatalf("no bundled scenario of kind %s", k)
		}
	}
}
