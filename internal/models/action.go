// Copyright (c) 2026 VRT
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package models defines data structures for the Nexus copy tool.
package models

import (
	"fmt"
	"sync"
	"time"
)

// Format identifies the repository format of an action.
type Format string

const (
	FormatRaw      Format = "raw"      // Generic/raw hosted repository
	FormatMaven2   Format = "maven2"   // Maven 2 repository
	FormatNPM      Format = "npm"      // npm registry
	FormatPyPI     Format = "pypi"     // PyPI index
	FormatApt      Format = "apt"      // Debian/Ubuntu apt repository
	FormatYum      Format = "yum"      // RPM yum repository
	FormatRubygems Format = "rubygems" // RubyGems repository
	FormatNuGet    Format = "nuget"    // NuGet gallery
	FormatDocker   Format = "docker"   // Docker registry, routed through the registry v2 client
)

// formatAliases maps accepted spellings to canonical formats.
var formatAliases = map[string]Format{
	"generic": FormatRaw,
	"maven":   FormatMaven2,
	"gem":     FormatRubygems,
}

var validFormats = map[Format]bool{
	FormatRaw:      true,
	FormatMaven2:   true,
	FormatNPM:      true,
	FormatPyPI:     true,
	FormatApt:      true,
	FormatYum:      true,
	FormatRubygems: true,
	FormatNuGet:    true,
	FormatDocker:   true,
}

// ParseFormat normalizes a repository format string, resolving aliases.
func ParseFormat(s string) (Format, error) {
	if alias, ok := formatAliases[s]; ok {
		return alias, nil
	}
	f := Format(s)
	if !validFormats[f] {
		return "", fmt.Errorf("unknown repository format: %q", s)
	}
	return f, nil
}

// Verb identifies what an action does with its repository.
type Verb string

const (
	VerbGet            Verb = "get"             // Download source artifacts into staging
	VerbUpload         Verb = "upload"          // Upload staged artifacts to the destination
	VerbBoth           Verb = "both"            // Download then upload
	VerbListAssets     Verb = "list_assets"     // Print the source asset listing
	VerbListComponents Verb = "list_components" // Print the source component listing
)

// verbAliases maps accepted spellings to canonical verbs.
var verbAliases = map[string]Verb{
	"download_assets":   VerbGet,
	"upload_components": VerbUpload,
}

var validVerbs = map[Verb]bool{
	VerbGet:            true,
	VerbUpload:         true,
	VerbBoth:           true,
	VerbListAssets:     true,
	VerbListComponents: true,
}

// ParseVerb normalizes an action verb string, resolving aliases.
func ParseVerb(s string) (Verb, error) {
	if alias, ok := verbAliases[s]; ok {
		return alias, nil
	}
	v := Verb(s)
	if !validVerbs[v] {
		return "", fmt.Errorf("unknown action verb: %q", s)
	}
	return v, nil
}

// Transfers reports whether the verb moves artifacts, as opposed to the
// listing verbs which only enumerate.
func (v Verb) Transfers() bool {
	return v == VerbGet || v == VerbUpload || v == VerbBoth
}

// State represents the current state of an action.
type State string

const (
	StatePending   State = "pending"   // Not yet started
	StateFetching  State = "fetching"  // Enumerating or downloading from the source
	StateFetched   State = "fetched"   // Download phase complete; terminal for get
	StateUploading State = "uploading" // Uploading staged artifacts to the destination
	StateDone      State = "done"      // Completed successfully
	StateSkipped   State = "skipped"   // Inactive action, never started
	StateFailed    State = "failed"    // At least one artifact or the listing failed
)

var validStates = map[State]bool{
	StatePending:   true,
	StateFetching:  true,
	StateFetched:   true,
	StateUploading: true,
	StateDone:      true,
	StateSkipped:   true,
	StateFailed:    true,
}

// ParseState validates an action state string.
func ParseState(s string) (State, error) {
	st := State(s)
	if !validStates[st] {
		return "", fmt.Errorf("unknown action state: %q", s)
	}
	return st, nil
}

// stateTransitions enumerates the legal state machine edges. The listing
// verbs finish from fetching; failed is reachable only while a network
// phase is in progress.
var stateTransitions = map[State][]State{
	StatePending:   {StateFetching, StateUploading, StateSkipped},
	StateFetching:  {StateFetched, StateDone, StateFailed},
	StateFetched:   {StateUploading},
	StateUploading: {StateDone, StateFailed},
}

// Action represents one configured repository migration task.
// Identity fields are immutable after load; runtime state is guarded by a
// mutex because the status API reads while the coordinator writes.
type Action struct {
	Repo        string // Repository name, unique within a run
	Description string // Free-text description from the action file
	Format      Format // Repository format
	Verb        Verb   // What to do with the repository
	Path        string // Staging directory relative to the local path root
	Active      bool   // Inactive actions are skipped

	// Per-action docker registry overrides; empty means use the
	// configured defaults.
	SourceRegistry      string
	DestinationRegistry string

	mu        sync.Mutex
	state     State
	result    *TransferResult
	logLines  []string
	startTime *time.Time
	endTime   *time.Time
}

// NewAction creates an action in the pending state.
func NewAction(repo string, format Format, verb Verb, path string, active bool) *Action {
	return &Action{
		Repo:     repo,
		Format:   format,
		Verb:     verb,
		Path:     path,
		Active:   active,
		state:    StatePending,
		logLines: []string{},
	}
}

// State returns the action's current state.
func (a *Action) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Transition moves the action to a new state. Illegal transitions are
// programming errors and are rejected.
func (a *Action) Transition(to State) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, allowed := range stateTransitions[a.state] {
		if allowed == to {
			a.state = to
			return nil
		}
	}
	return fmt.Errorf("illegal state transition for %s: %s -> %s", a.Repo, a.state, to)
}

// Start records the moment the action began executing.
func (a *Action) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	a.startTime = &now
}

// Finish records the action's outcome and completion time.
func (a *Action) Finish(result *TransferResult) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	a.result = result
	a.endTime = &now
}

// Result returns the action's outcome, nil while the action is running.
func (a *Action) Result() *TransferResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.result
}

// AddLog appends a log line to the action.
// Thread-safe for concurrent access.
func (a *Action) AddLog(format string, args ...interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logLines = append(a.logLines, fmt.Sprintf(format, args...))
}

// GetLogLines returns a copy of all log lines.
// Thread-safe for concurrent access.
func (a *Action) GetLogLines() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	logs := make([]string, len(a.logLines))
	copy(logs, a.logLines)
	return logs
}

// Summary returns a point-in-time view of the action without logs.
func (a *Action) Summary() *ActionSummary {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := &ActionSummary{
		Repo:        a.Repo,
		Description: a.Description,
		Format:      a.Format,
		Verb:        a.Verb,
		Path:        a.Path,
		Active:      a.Active,
		State:       a.state,
		StartTime:   a.startTime,
		EndTime:     a.endTime,
	}
	if a.result != nil {
		r := *a.result
		r.Errors = append([]string(nil), a.result.Errors...)
		s.Result = &r
	}
	return s
}

// Detail returns a point-in-time view of the action including logs.
func (a *Action) Detail() *ActionDetail {
	d := &ActionDetail{ActionSummary: *a.Summary()}
	d.Logs = a.GetLogLines()
	return d
}

// ActionSummary is the serialized view of an action for the status API.
type ActionSummary struct {
	Repo        string          `json:"repo"`
	Description string          `json:"description,omitempty"`
	Format      Format          `json:"format"`
	Verb        Verb            `json:"verb"`
	Path        string          `json:"path"`
	Active      bool            `json:"active"`
	State       State           `json:"state"`
	Result      *TransferResult `json:"result,omitempty"`
	StartTime   *time.Time      `json:"startTime,omitempty"`
	EndTime     *time.Time      `json:"endTime,omitempty"`
}

// ActionDetail is an ActionSummary plus the per-artifact log lines.
type ActionDetail struct {
	ActionSummary
	Logs []string `json:"logs"`
}
