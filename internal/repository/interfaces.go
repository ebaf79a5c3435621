package repository

import (
	"context"
	"errors"

	"camwatch/internal/model"
)

// ErrStateNotFound is returned by Load when nothing has been persisted yet.
var ErrStateNotFound = errors.New("alert state not found")

// StateRepository persists the alert state as one durable record.
type StateRepository interface {
	// Load returns the last saved state or ErrStateNotFound.
	Load(ctx context.Context) (model.AlertState, error)

	// Save replaces the stored record with state.
	Save(ctx context.Context, state model.AlertState) error

	// Delete removes the stored record; deleting a missing record is not an error.
	Delete(ctx context.Context) error
}
