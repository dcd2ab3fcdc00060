// Package userstore declares the external collaborator the Matchmaker and
// Tournament Manager use to resolve a bare user id into the display
// name/rating/avatar/title pair a Session's PlayerRecord needs. The game
// server owns no user accounts itself (spec.md Non-goals: no auth, no
// account system); this interface is the seam where a real identity
// service would be wired in.
package userstore

import (
	"context"

	"chessvariants-server/internal/model"
)

// UserStore resolves a user id to the profile fields a match needs.
type UserStore interface {
	Resolve(ctx context.Context, userID string) (model.PlayerRecord, error)
}

// Static is a fixed-table UserStore, useful for local development and
// tests where no real identity service is wired in.
type Static struct {
	Records map[string]model.PlayerRecord
}

// Resolve returns the looked-up record, or a bare record carrying only the
// user id (rating 0) if the id is unknown — matching is still possible
// against an unrated opponent rather than failing outright.
func (s Static) Resolve(_ context.Context, userID string) (model.PlayerRecord, error) {
	if rec, ok := s.Records[userID]; ok {
		return rec, nil
	}
	return model.PlayerRecord{UserID: userID}, nil
}
