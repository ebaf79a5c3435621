package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"camwatch/internal/model"
	"camwatch/internal/repository"
)

// StateRepository keeps the alert state in a single JSON file.
type StateRepository struct {
	path string
	mu   sync.Mutex
}

func NewStateRepository(path string) *StateRepository {
	return &StateRepository{path: path}
}

func (r *StateRepository) Path() string {
	return r.path
}

func (r *StateRepository) Load(ctx context.Context) (model.AlertState, error) {
	if err := ctx.Err(); err != nil {
		return model.AlertState{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return model.AlertState{}, repository.ErrStateNotFound
	}
	if err != nil {
		return model.AlertState{}, fmt.Errorf("failed to read state file: %w", err)
	}

	var doc repository.StateDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return model.AlertState{}, fmt.Errorf("failed to decode state file %s: %w", r.path, err)
	}
	return doc.State(), nil
}

// Save writes to a temp file in the same directory and renames it over the target.
func (r *StateRepository) Save(ctx context.Context, state model.AlertState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(repository.NewStateDocument(state), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".sms-state-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

func (r *StateRepository) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove state file: %w", err)
	}
	return nil
}

var _ repository.StateRepository = (*StateRepository)(nil)
