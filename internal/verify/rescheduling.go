package verify

import (
	"fmt"
	"time"

	"pabench/internal/match"
	"pabench/internal/scenario"
	"pabench/internal/score"
	"pabench/internal/snapshot"
)

// rescheduling expects each meeting at a fixed time and each stale slot
// to be vacated.
func rescheduling(card *score.Card, exp scenario.Expectation, st snapshot.State) error {
	tol := tolerance(exp)
	for i, m := range exp.Meetings {
		start, err := parseField(fmt.Sprintf("meetings[%d].start", i), m.Start)
		if err != nil {
			return err
		}
		var end time.Time
		if m.End != "" {
			if end, err = parseField(fmt.Sprintf("meetings[%d].end", i), m.End); err != nil {
				return err
			}
		}
		_, found := match.FindEvent(st.Events, match.EventQuery{
			Title:        m.TitleContains,
			TitleMode:    match.TitleContains,
			Start:        start,
			End:          end,
			Tolerance:    tol,
			Participants: m.Participants,
			Excluded:     m.Excluded,
			Organizer:    m.Organizer,
		})
		card.Record(m.Name+"_meeting_check", found,
			fmt.Sprintf("%s meeting found at %s", m.Name, describeSlot(start, end)),
			fmt.Sprintf("%s meeting not found at %s or has incorrect participants/timing", m.Name, describeSlot(start, end)))
	}
	for i, s := range exp.Stale {
		start, err := parseField(fmt.Sprintf("stale[%d].start", i), s.Start)
		if err != nil {
			return err
		}
		_, lingering := match.FindEvent(st.Events, match.EventQuery{
			Title:     s.TitleContains,
			TitleMode: match.TitleContains,
			Start:     start,
			Tolerance: tol,
		})
		card.Record("old_"+s.Name+"_check", !lingering,
			fmt.Sprintf("No %s meeting remains at original time %s", s.Name, stamp(start)),
			fmt.Sprintf("%s meeting still at original time %s - cascade failed", s.Name, stamp(start)))
	}
	return nil
}

func describeSlot(start, end time.Time) string {
	if end.IsZero() {
		return stamp(start)
	}
	return stamp(start) + " - " + stamp(end)
}
