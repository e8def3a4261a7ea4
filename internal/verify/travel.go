package verify

import (
	"fmt"

	"pabench/internal/match"
	"pabench/internal/scenario"
	"pabench/internal/score"
	"pabench/internal/snapshot"
)

// travel expects a calendar block spanning each flight that names the
// flight number.
func travel(card *score.Card, exp scenario.Expectation, st snapshot.State) error {
	for i, leg := range exp.Legs {
		dep, err := parseField(fmt.Sprintf("legs[%d].departure", i), leg.Departure)
		if err != nil {
			return err
		}
		arr, err := parseField(fmt.Sprintf("legs[%d].arrival", i), leg.Arrival)
		if err != nil {
			return err
		}
		_, found := match.FindEvent(st.Events, match.EventQuery{
			CoverFrom: dep,
			CoverTo:   arr,
			Text:      leg.FlightNumber,
		})
		card.Record(leg.Name+"_flight_check", found,
			fmt.Sprintf("Calendar event found for %s flight %s", leg.Name, leg.FlightNumber),
			fmt.Sprintf("No calendar event found that blocks time for %s flight %s", leg.Name, leg.FlightNumber))
	}
	return nil
}
