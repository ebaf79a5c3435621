package memory

import (
	"context"
	"sync"

	"camwatch/internal/model"
	"camwatch/internal/repository"
)

// StateRepository holds the state in memory. Failures can be injected for tests.
type StateRepository struct {
	mu      sync.Mutex
	state   *model.AlertState
	saves   int
	saveErr error
	loadErr error
}

func NewStateRepository() *StateRepository {
	return &StateRepository{}
}

// NewSeededStateRepository starts with state already persisted.
func NewSeededStateRepository(state model.AlertState) *StateRepository {
	clone := state.Clone()
	return &StateRepository{state: &clone}
}

func (r *StateRepository) Load(ctx context.Context) (model.AlertState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loadErr != nil {
		return model.AlertState{}, r.loadErr
	}
	if r.state == nil {
		return model.AlertState{}, repository.ErrStateNotFound
	}
	return r.state.Clone(), nil
}

func (r *StateRepository) Save(ctx context.Context, state model.AlertState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.saveErr != nil {
		return r.saveErr
	}
	clone := state.Clone()
	r.state = &clone
	r.saves++
	return nil
}

func (r *StateRepository) Delete(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = nil
	return nil
}

// FailSaves makes every Save return err until called again with nil.
func (r *StateRepository) FailSaves(err error) {
	r.mu.Lock()
	r.saveErr = err
	r.mu.Unlock()
}

func (r *StateRepository) FailLoads(err error) {
	r.mu.Lock()
	r.loadErr = err
	r.mu.Unlock()
}

// Saves counts successful writes.
func (r *StateRepository) Saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

var _ repository.StateRepository = (*StateRepository)(nil)
