// Copyright (c) 2026 VRT
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package repository provides read access to the current migration run for
// the status API.
package repository

import (
	"errors"
	"sync"

	"github.com/vrtdev/nexus-api-tools/internal/models"
)

var (
	// ErrNoRun is returned before a migration run has been registered.
	ErrNoRun = errors.New("no migration run")
	// ErrActionNotFound is returned when the run has no action for a repo.
	ErrActionNotFound = errors.New("action not found")
)

// RunRepository defines the interface for run state access.
type RunRepository interface {
	SetRun(run *models.MigrationRun)
	Run() (*models.MigrationRun, error)
	GetAction(repo string) (*models.Action, error)
	ListActions(state models.State) ([]*models.Action, error)
}

// InMemoryRunRepository implements RunRepository over the single run of
// this process. The actions guard their own state; the repository only
// guards the run pointer, which is set once before the run starts.
type InMemoryRunRepository struct {
	mu  sync.RWMutex
	run *models.MigrationRun
}

// NewInMemoryRunRepository creates an empty run repository.
func NewInMemoryRunRepository() *InMemoryRunRepository {
	return &InMemoryRunRepository{}
}

// SetRun registers the run served by the status API.
func (r *InMemoryRunRepository) SetRun(run *models.MigrationRun) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.run = run
}

// Run returns the registered run.
func (r *InMemoryRunRepository) Run() (*models.MigrationRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.run == nil {
		return nil, ErrNoRun
	}
	return r.run, nil
}

// GetAction returns the action for a repo.
func (r *InMemoryRunRepository) GetAction(repo string) (*models.Action, error) {
	run, err := r.Run()
	if err != nil {
		return nil, err
	}
	a := run.Action(repo)
	if a == nil {
		return nil, ErrActionNotFound
	}
	return a, nil
}

// ListActions returns the run's actions in file order, optionally filtered
// by state. The empty state matches everything.
func (r *InMemoryRunRepository) ListActions(state models.State) ([]*models.Action, error) {
	run, err := r.Run()
	if err != nil {
		return nil, err
	}

	actions := make([]*models.Action, 0, len(run.Actions))
	for _, a := range run.Actions {
		if state != "" && a.State() != state {
			continue
		}
		actions = append(actions, a)
	}
	return actions, nil
}
