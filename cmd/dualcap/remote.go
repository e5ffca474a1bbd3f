package main

import (
	"context"

	"github.com/cjeanneret/DualCap/internal/api"
	"github.com/cjeanneret/DualCap/internal/logic/capture"
	"github.com/cjeanneret/DualCap/internal/model"
	"github.com/cjeanneret/DualCap/internal/store"
)

type profileSource interface {
	LoadProfile(ctx context.Context) (store.Profile, error)
}

// remote binds the feed client to the stored login. The profile is re-read
// on every call so a login made from another process is picked up.
// A token from the environment takes precedence over the stored one.
type remote struct {
	client   *api.Client
	profiles profileSource
	envToken string
}

func (r *remote) credentials(ctx context.Context) (api.Credentials, error) {
	if r.envToken != "" {
		return api.Credentials{Token: r.envToken}, nil
	}
	if r.profiles == nil {
		return api.Credentials{}, api.ErrNoToken
	}
	p, err := r.profiles.LoadProfile(ctx)
	if err != nil {
		return api.Credentials{}, err
	}
	return api.Credentials{Token: p.Token}, nil
}

// User returns the logged-in author of submissions.
func (r *remote) User(ctx context.Context) (model.User, error) {
	if r.profiles == nil {
		return model.User{}, store.ErrNotLoggedIn
	}
	p, err := r.profiles.LoadProfile(ctx)
	if err != nil {
		return model.User{}, err
	}
	return p.User, nil
}

// Upload implements capture.Uploader.
func (r *remote) Upload(ctx context.Context, pair capture.Pair) (string, error) {
	creds, err := r.credentials(ctx)
	if err != nil {
		return "", err
	}
	return r.client.WithCredentials(creds).Upload(ctx, pair)
}

func (r *remote) ListMoments(ctx context.Context) ([]model.Moment, error) {
	creds, err := r.credentials(ctx)
	if err != nil {
		return nil, err
	}
	return r.client.WithCredentials(creds).ListMoments(ctx)
}

func (r *remote) GetMoment(ctx context.Context, id int64) (model.Moment, error) {
	creds, err := r.credentials(ctx)
	if err != nil {
		return model.Moment{}, err
	}
	return r.client.WithCredentials(creds).GetMoment(ctx, id)
}
