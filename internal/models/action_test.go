// Copyright (c) 2026 VRT
// Licensed under the MIT License. See LICENSE file in the project root for details.

package models

import (
	"testing"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"raw", FormatRaw, false},
		{"generic", FormatRaw, false},
		{"maven2", FormatMaven2, false},
		{"maven", FormatMaven2, false},
		{"gem", FormatRubygems, false},
		{"rubygems", FormatRubygems, false},
		{"docker", FormatDocker, false},
		{"npm", FormatNPM, false},
		{"helm", "", true},
		{"", "", true},
		{"Maven2", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseVerb(t *testing.T) {
	tests := []struct {
		in      string
		want    Verb
		wantErr bool
	}{
		{"get", VerbGet, false},
		{"download_assets", VerbGet, false},
		{"upload", VerbUpload, false},
		{"upload_components", VerbUpload, false},
		{"both", VerbBoth, false},
		{"list_assets", VerbListAssets, false},
		{"list_components", VerbListComponents, false},
		{"delete", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseVerb(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseVerb(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseVerb(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseState(t *testing.T) {
	tests := []struct {
		in      string
		want    State
		wantErr bool
	}{
		{"pending", StatePending, false},
		{"fetching", StateFetching, false},
		{"fetched", StateFetched, false},
		{"uploading", StateUploading, false},
		{"done", StateDone, false},
		{"skipped", StateSkipped, false},
		{"failed", StateFailed, false},
		{"running", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseState(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseState(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseState(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestVerbTransfers(t *testing.T) {
	if !VerbGet.Transfers() || !VerbUpload.Transfers() || !VerbBoth.Transfers() {
		t.Error("Expected transfer verbs to report Transfers() = true")
	}
	if VerbListAssets.Transfers() || VerbListComponents.Transfers() {
		t.Error("Expected listing verbs to report Transfers() = false")
	}
}

func TestNewAction(t *testing.T) {
	a := NewAction("maven-releases", FormatMaven2, VerbBoth, "data/maven-releases", true)

	if a.Repo != "maven-releases" {
		t.Errorf("Expected repo 'maven-releases', got '%s'", a.Repo)
	}
	if a.State() != StatePending {
		t.Errorf("Expected state 'pending', got '%s'", a.State())
	}
	if a.Result() != nil {
		t.Error("Expected nil result for a new action")
	}
	if len(a.GetLogLines()) != 0 {
		t.Errorf("Expected empty log lines, got %d items", len(a.GetLogLines()))
	}
}

func TestActionTransition(t *testing.T) {
	tests := []struct {
		name    string
		path    []State
		wantErr bool
	}{
		{"full both path", []State{StateFetching, StateFetched, StateUploading, StateDone}, false},
		{"get stops at fetched", []State{StateFetching, StateFetched}, false},
		{"upload path", []State{StateUploading, StateDone}, false},
		{"skip from pending", []State{StateSkipped}, false},
		{"listing completes from fetching", []State{StateFetching, StateDone}, false},
		{"fail during fetch", []State{StateFetching, StateFailed}, false},
		{"fail during upload", []State{StateFetching, StateFetched, StateUploading, StateFailed}, false},
		{"done straight from pending", []State{StateDone}, true},
		{"failed straight from pending", []State{StateFailed}, true},
		{"skip after start", []State{StateFetching, StateSkipped}, true},
		{"backwards", []State{StateFetching, StateFetched, StateFetching}, true},
		{"out of done", []State{StateUploading, StateDone, StateFailed}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAction("repo-a", FormatRaw, VerbBoth, "data/repo-a", true)
			var err error
			for _, s := range tt.path {
				if err = a.Transition(s); err != nil {
					break
				}
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("Transition path %v error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestActionTransitionRejectionKeepsState(t *testing.T) {
	a := NewAction("repo-a", FormatRaw, VerbGet, "data/repo-a", true)

	if err := a.Transition(StateDone); err == nil {
		t.Fatal("Expected error for pending -> done")
	}
	if a.State() != StatePending {
		t.Errorf("Expected state to remain 'pending', got '%s'", a.State())
	}
}

func TestActionAddLog(t *testing.T) {
	a := NewAction("repo-a", FormatRaw, VerbGet, "data/repo-a", true)

	a.AddLog("downloaded %s", "com/example/app.jar")
	a.AddLog("skipped %s", "com/example/lib.jar")

	logs := a.GetLogLines()
	if len(logs) != 2 {
		t.Fatalf("Expected 2 log lines, got %d", len(logs))
	}
	if logs[0] != "downloaded com/example/app.jar" {
		t.Errorf("Unexpected first log line: %q", logs[0])
	}
}

func TestActionSummaryAndDetail(t *testing.T) {
	a := NewAction("repo-a", FormatRaw, VerbGet, "data/repo-a", true)
	a.Start()
	if err := a.Transition(StateFetching); err != nil {
		t.Fatal(err)
	}
	a.AddLog("downloaded one")

	res := &TransferResult{Transferred: 1}
	res.Finalize()
	a.Finish(res)

	s := a.Summary()
	if s.State != StateFetching {
		t.Errorf("Expected summary state 'fetching', got '%s'", s.State)
	}
	if s.Result == nil || s.Result.Status != ResultSuccess {
		t.Errorf("Expected success result in summary, got %+v", s.Result)
	}
	if s.StartTime == nil || s.EndTime == nil {
		t.Error("Expected start and end times to be set")
	}

	d := a.Detail()
	if len(d.Logs) != 1 || d.Logs[0] != "downloaded one" {
		t.Errorf("Unexpected detail logs: %v", d.Logs)
	}

	// The summary holds copies; mutating it must not touch the action.
	s.Result.Transferred = 99
	if a.Result().Transferred != 1 {
		t.Error("Expected action result to be isolated from the summary copy")
	}
}
