package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestMain(m *testing.M) {
	addPersistentFlags()
	registerCommands()
	os.Exit(m.Run())
}

const passingState = `{
  "gmail-clone": {"emails": []},
  "calendar-clone": {
    "events": [{
      "id": "event_9000",
      "title": "Cross-Team Project Coordination: Planning Meeting",
      "start": "2026-01-20T16:00:00.000Z",
      "end": "2026-01-20T16:30:00.000Z",
      "conferenceData": {"conferenceSolution": {"name": "Google Meet"}},
      "attendees": [
        {"email": "alan@helixgrid.com", "isOrganizer": true},
        {"email": "kaito.nakamura@helixgrid.com"},
        {"email": "aiden.walker@helixgrid.com"},
        {"email": "priya.singh@helixgrid.com"},
        {"email": "mei.tan@helixgrid.com"}
      ]
    }],
    "otherUsersEvents": {}
  }
}`

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return -1
}

func TestVerifyExitCodes(t *testing.T) {
	workspace := t.TempDir()
	data, err := filepath.Abs(filepath.Join("..", "..", "data"))
	if err != nil {
		t.Fatalf("abs: %v", err)
	}
	statePath := filepath.Join(workspace, "state.json")
	if err := os.WriteFile(statePath, []byte(passingState), 0o644); err != nil {
		t.Fatalf("write state: %v", err)
	}
	base := []string{"-w", workspace, "--data-path", data, "--json"}

	cases := []struct {
		name string
		args []string
		want int
	}{
		{"unknown scenario", []string{"verify", "scenario_404", "--seed=false", "--state", statePath}, exitUnavailable},
		{"untouched seed fails", []string{"verify", "scenario_016_meeting_scheduling", "--seed", "--state", ""}, exitFailed},
		{"state file passes", []string{"verify", "scenario_016_meeting_scheduling", "--seed=false", "--state", statePath}, 0},
		{"missing instances", []string{"--gmail-url", "", "--env-file", filepath.Join(workspace, "none.env"), "--worlds-base-url", "", "verify", "scenario_009_meeting_cancellation", "--seed=false", "--state", ""}, exitUnavailable},
	}
	t.Setenv("GMAIL_INSTANCE_URL", "")
	t.Setenv("CALENDAR_INSTANCE_URL", "")
	if err := os.WriteFile(filepath.Join(workspace, "pab.yml"), []byte("worlds:\n  create_missing: false\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	for _, tc := range cases {
		rootCmd.SetArgs(append(append([]string{}, base...), tc.args...))
		err := rootCmd.Execute()
		if got := exitCode(err); got != tc.want {
			t.Fatalf("%s: exit %d (%v), want %d", tc.name, got, err, tc.want)
		}
	}
}

func TestRunsRecordedByVerify(t *testing.T) {
	workspace := t.TempDir()
	data, _ := filepath.Abs(filepath.Join("..", "..", "data"))
	rootCmd.SetArgs([]string{"-w", workspace, "--data-path", data, "--json", "verify", "scenario_012_travel_confirmation", "--seed", "--state", ""})
	if got := exitCode(rootCmd.Execute()); got != exitFailed {
		t.Fatalf("expected failed run, got exit %d", got)
	}
	for _, args := range [][]string{
		{"runs", "list", "--scenario", "scenario_012_travel_confirmation"},
		{"runs", "stats"},
		{"log", "tail", "--n", "5"},
		{"scenario", "list"},
		{"config", "show"},
		{"status"},
	} {
		rootCmd.SetArgs(append([]string{"-w", workspace, "--data-path", data, "--json"}, args...))
		if err := rootCmd.Execute(); err != nil {
			t.Fatalf("%v: %v", args, err)
		}
	}
}
