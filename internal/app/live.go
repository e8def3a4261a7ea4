package app

import (
	"context"
	"encoding/json"

	"pabench/internal/engine"
	"pabench/internal/snapshot"
	"pabench/internal/worlds"
)

// Live resolves instance endpoints on every call, so a long running server
// picks up URLs written to the env file after it started.
type Live struct {
	Options EndpointOptions
	Client  *worlds.Client
}

func (l Live) instances(ctx context.Context) (engine.Instances, error) {
	ep, err := ResolveEndpoints(ctx, l.Options, l.Client)
	if err != nil {
		return engine.Instances{}, err
	}
	return engine.Instances{Client: l.Client, Endpoints: ep}, nil
}

func (l Live) FetchState(ctx context.Context) (snapshot.State, error) {
	inst, err := l.instances(ctx)
	if err != nil {
		return snapshot.State{}, err
	}
	return inst.FetchState(ctx)
}

func (l Live) PushState(ctx context.Context, mailbox, calendar json.RawMessage) error {
	inst, err := l.instances(ctx)
	if err != nil {
		return err
	}
	return inst.PushState(ctx, mailbox, calendar)
}
