// Copyright (c) 2026 VRT
// Licensed under the MIT License. See LICENSE file in the project root for details.

package repository

import (
	"errors"
	"testing"

	"github.com/vrtdev/nexus-api-tools/internal/models"
)

func testRun() *models.MigrationRun {
	return models.NewMigrationRun("run-1", "actions.yaml", []*models.Action{
		models.NewAction("repo-a", models.FormatRaw, models.VerbGet, "data/repo-a", true),
		models.NewAction("repo-b", models.FormatMaven2, models.VerbBoth, "data/repo-b", true),
		models.NewAction("repo-c", models.FormatRaw, models.VerbUpload, "data/repo-c", false),
	})
}

func TestRunBeforeSet(t *testing.T) {
	repo := NewInMemoryRunRepository()

	if _, err := repo.Run(); !errors.Is(err, ErrNoRun) {
		t.Errorf("Expected ErrNoRun, got %v", err)
	}
	if _, err := repo.GetAction("repo-a"); !errors.Is(err, ErrNoRun) {
		t.Errorf("Expected ErrNoRun from GetAction, got %v", err)
	}
	if _, err := repo.ListActions(""); !errors.Is(err, ErrNoRun) {
		t.Errorf("Expected ErrNoRun from ListActions, got %v", err)
	}
}

func TestSetAndGetRun(t *testing.T) {
	repo := NewInMemoryRunRepository()
	repo.SetRun(testRun())

	run, err := repo.Run()
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if run.ID != "run-1" {
		t.Errorf("Expected run 'run-1', got '%s'", run.ID)
	}
	if len(run.Actions) != 3 {
		t.Errorf("Expected 3 actions, got %d", len(run.Actions))
	}
}

func TestGetAction(t *testing.T) {
	repo := NewInMemoryRunRepository()
	repo.SetRun(testRun())

	a, err := repo.GetAction("repo-b")
	if err != nil {
		t.Fatalf("GetAction() error = %v", err)
	}
	if a.Repo != "repo-b" || a.Format != models.FormatMaven2 {
		t.Errorf("Unexpected action: %+v", a)
	}

	if _, err := repo.GetAction("missing"); !errors.Is(err, ErrActionNotFound) {
		t.Errorf("Expected ErrActionNotFound, got %v", err)
	}
}

func TestListActionsKeepsFileOrder(t *testing.T) {
	repo := NewInMemoryRunRepository()
	repo.SetRun(testRun())

	actions, err := repo.ListActions("")
	if err != nil {
		t.Fatalf("ListActions() error = %v", err)
	}
	if len(actions) != 3 {
		t.Fatalf("Expected 3 actions, got %d", len(actions))
	}
	for i, want := range []string{"repo-a", "repo-b", "repo-c"} {
		if actions[i].Repo != want {
			t.Errorf("Expected action %d to be '%s', got '%s'", i, want, actions[i].Repo)
		}
	}
}

func TestListActionsFiltersByState(t *testing.T) {
	repo := NewInMemoryRunRepository()
	run := testRun()
	repo.SetRun(run)

	if err := run.Actions[0].Transition(models.StateFetching); err != nil {
		t.Fatal(err)
	}

	fetching, err := repo.ListActions(models.StateFetching)
	if err != nil {
		t.Fatalf("ListActions() error = %v", err)
	}
	if len(fetching) != 1 || fetching[0].Repo != "repo-a" {
		t.Errorf("Expected only repo-a fetching, got %d actions", len(fetching))
	}

	pending, err := repo.ListActions(models.StatePending)
	if err != nil {
		t.Fatalf("ListActions() error = %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("Expected 2 pending actions, got %d", len(pending))
	}

	failed, err := repo.ListActions(models.StateFailed)
	if err != nil {
		t.Fatalf("ListActions() error = %v", err)
	}
	if len(failed) != 0 {
		t.Errorf("Expected no failed actions, got %d", len(failed))
	}
}
