package verify

import (
	"fmt"
	"strings"

	"pabench/internal/instant"
	"pabench/internal/match"
	"pabench/internal/scenario"
	"pabench/internal/score"
	"pabench/internal/snapshot"
)

const (
	CheckEventFound   = "event_found_check"
	CheckLocation     = "location_check"
	CheckParticipants = "participants_check"
	CheckConflicts    = "conflict_check"
)

// scheduling looks for the requested meeting inside the window that opens
// on the seed email's date, then checks where it is held, who is invited
// and whether everyone is free.
func scheduling(card *score.Card, exp scenario.Expectation, st snapshot.State) error {
	if exp.Seed == nil {
		return fmt.Errorf("seed email is required")
	}
	seed := exp.Seed.Email()
	sent, err := parseField("seed.timestamp", seed.Timestamp)
	if err != nil {
		return err
	}
	window := instant.WindowFrom(sent, exp.WindowDays)
	required := match.Required(seed, exp.ExtraGuests, exp.Self)

	ev, found := match.FindEvent(st.Events, match.EventQuery{
		Title:     exp.Title,
		TitleMode: match.TitleMode(exp.TitleMatch),
		Window:    window,
	})
	card.Record(CheckEventFound, found,
		fmt.Sprintf("Event '%s' found within %s to %s", exp.Title, day(window.Start), day(window.End)),
		fmt.Sprintf("No matching event found for meeting title '%s' within %s to %s", exp.Title, day(window.Start), day(window.End)))

	card.Gated(CheckLocation, found, "Cannot check location - event not found", func() (bool, string) {
		if match.LocationMatches(ev, exp.Location) {
			return true, "Event location matches the specified location"
		}
		return false, fmt.Sprintf("Event location does not match the specified location '%s'", exp.Location)
	})

	card.Gated(CheckParticipants, found, "Cannot check participants - event not found", func() (bool, string) {
		ok, missing := match.Covers(required, match.Present(ev.Attendees))
		if ok {
			return true, "All required participants included in event"
		}
		return false, "Missing participants in event: " + strings.Join(missing, ", ")
	})

	if !exp.ConflictsChecked() {
		return nil
	}
	card.Gated(CheckConflicts, found, "Cannot check conflicts - event not found", func() (bool, string) {
		busy := match.Conflicts(ev, required, st.OtherUsersEvents).Unavailable()
		if len(busy) == 0 {
			return true, "All participants are available with no conflicts"
		}
		return false, "Conflicts found for participants: " + strings.Join(busy, ", ")
	})
	return nil
}
