// Copyright (c) 2026 VRT
// Licensed under the MIT License. See LICENSE file in the project root for details.

package models

import (
	"sort"
	"time"
)

// ResultStatus classifies a completed action's outcome.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success" // All artifacts transferred or listed
	ResultPartial ResultStatus = "partial" // Some artifacts transferred, some failed
	ResultFailed  ResultStatus = "failed"  // No artifact transferred, or the listing failed
	ResultSkipped ResultStatus = "skipped" // Inactive action
)

// TransferResult is the per-action outcome handed to the reporter.
type TransferResult struct {
	Status      ResultStatus `json:"status"`
	Transferred int          `json:"transferred"` // Artifacts moved in this run
	Skipped     int          `json:"skipped"`     // Artifacts already present, by checksum or digest
	Failed      int          `json:"failed"`      // Artifacts that could not be transferred
	Listed      int          `json:"listed"`      // Items enumerated by the listing verbs
	Bytes       int64        `json:"bytes"`       // Payload bytes moved
	Errors      []string     `json:"errors,omitempty"`
}

// AddError records one artifact-level failure.
func (r *TransferResult) AddError(err error) {
	r.Failed++
	r.Errors = append(r.Errors, err.Error())
}

// Finalize derives the result status from the counters and sorts the
// error list so reports are deterministic under concurrent transfers.
func (r *TransferResult) Finalize() {
	sort.Strings(r.Errors)
	switch {
	case r.Failed == 0:
		r.Status = ResultSuccess
	case r.Transferred > 0 || r.Skipped > 0:
		r.Status = ResultPartial
	default:
		r.Status = ResultFailed
	}
}

// HasFailures reports whether the action counts as failed for the exit code.
func (r *TransferResult) HasFailures() bool {
	return r.Status == ResultPartial || r.Status == ResultFailed
}

// SkippedResult builds the outcome of an inactive action.
func SkippedResult() *TransferResult {
	return &TransferResult{Status: ResultSkipped}
}

// MigrationRun is one invocation's ordered action sequence. The sequence
// is immutable after load; only the contained actions change state.
type MigrationRun struct {
	ID        string    // Run identifier (UUID)
	File      string    // Action file the run was loaded from
	Actions   []*Action // Execution order follows file order
	StartTime time.Time
}

// NewMigrationRun creates a run over the given actions.
func NewMigrationRun(id, file string, actions []*Action) *MigrationRun {
	return &MigrationRun{
		ID:        id,
		File:      file,
		Actions:   actions,
		StartTime: time.Now(),
	}
}

// Action returns the action for a repo, or nil when the run has none.
func (r *MigrationRun) Action(repo string) *Action {
	for _, a := range r.Actions {
		if a.Repo == repo {
			return a
		}
	}
	return nil
}

// Summary aggregates the run's current per-state totals.
func (r *MigrationRun) Summary() *RunSummary {
	s := &RunSummary{
		ID:        r.ID,
		File:      r.File,
		Total:     len(r.Actions),
		States:    map[State]int{},
		StartTime: r.StartTime,
	}
	for _, a := range r.Actions {
		s.States[a.State()]++
		if res := a.Result(); res != nil && res.HasFailures() {
			s.FailedRepos = append(s.FailedRepos, a.Repo)
		}
	}
	return s
}

// RunSummary is the serialized run overview for the status API.
type RunSummary struct {
	ID          string        `json:"id"`
	File        string        `json:"file"`
	Total       int           `json:"total"`
	States      map[State]int `json:"states"`
	FailedRepos []string      `json:"failedRepos,omitempty"`
	StartTime   time.Time     `json:"startTime"`
}
