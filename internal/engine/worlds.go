package engine

import (
	"context"
	"encoding/json"

	"pabench/internal/snapshot"
	"pabench/internal/worlds"
)

// Instances binds a worlds client to one pair of running instances.
type Instances struct {
	Client    *worlds.Client
	Endpoints worlds.Endpoints
}

func (i Instances) FetchState(ctx context.Context) (snapshot.State, error) {
	mailbox, calendar, err := i.Client.FetchStates(ctx, i.Endpoints)
	if err != nil {
		return snapshot.State{}, err
	}
	return snapshot.FromParts(mailbox, calendar)
}

func (i Instances) PushState(ctx context.Context, mailbox, calendar json.RawMessage) error {
	return i.Client.PushStates(ctx, i.Endpoints, mailbox, calendar)
}

// StaticState serves a fixed snapshot, e.g. one read from a file.
type StaticState snapshot.State

func (s StaticState) FetchState(context.Context) (snapshot.State, error) {
	return snapshot.State(s), nil
}
