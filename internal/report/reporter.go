// Copyright (c) 2026 VRT
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package report renders per-action results and the end-of-run summary.
package report

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/vrtdev/nexus-api-tools/internal/models"
)

// Reporter writes human-readable progress lines for a migration run.
// It formats and prints only; write errors are ignored so reporting can
// never fail a run.
type Reporter struct {
	mu  sync.Mutex
	out io.Writer
}

// New creates a Reporter writing to out.
func New(out io.Writer) *Reporter {
	return &Reporter{out: out}
}

func (r *Reporter) printf(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format+"\n", args...)
}

// RunStart announces the run before the first action executes.
func (r *Reporter) RunStart(run *models.MigrationRun) {
	r.printf("Run %s: %d action(s) from %s", run.ID, len(run.Actions), run.File)
}

// Listing prints the items enumerated by a listing action, one per line.
func (r *Reporter) Listing(repo, kind string, items []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "%s: %d %s\n", repo, len(items), kind)
	for _, item := range items {
		fmt.Fprintf(r.out, "  %s\n", item)
	}
}

// Action prints one result line for a completed action, plus its errors.
func (r *Reporter) Action(a *models.Action) {
	res := a.Result()
	if res == nil {
		return
	}
	switch {
	case res.Status == models.ResultSkipped:
		r.printf("%s %s: skipped (inactive)", a.Repo, a.Verb)
	case !a.Verb.Transfers():
		r.printf("%s %s: %s (%d listed)", a.Repo, a.Verb, res.Status, res.Listed)
	default:
		r.printf("%s %s: %s (%d transferred, %d skipped, %d failed, %s)",
			a.Repo, a.Verb, res.Status,
			res.Transferred, res.Skipped, res.Failed, humanize.IBytes(uint64(res.Bytes)))
	}
	for _, e := range res.Errors {
		r.printf("  error: %s", e)
	}
}

// Summary prints the end-of-run totals and returns the process exit code:
// zero only when every started action succeeded.
func (r *Reporter) Summary(run *models.MigrationRun) int {
	var success, partial, failed, skipped, pending int
	var failedRepos []string
	for _, a := range run.Actions {
		res := a.Result()
		if res == nil {
			pending++
			continue
		}
		switch res.Status {
		case models.ResultSuccess:
			success++
		case models.ResultPartial:
			partial++
			failedRepos = append(failedRepos, a.Repo)
		case models.ResultFailed:
			failed++
			failedRepos = append(failedRepos, a.Repo)
		case models.ResultSkipped:
			skipped++
		}
	}

	elapsed := time.Since(run.StartTime).Round(time.Millisecond)
	r.printf("---")
	r.printf("%d action(s) in %s: %d ok, %d partial, %d failed, %d skipped",
		len(run.Actions), elapsed, success, partial, failed, skipped)
	if pending > 0 {
		r.printf("%d action(s) never started", pending)
	}
	if len(failedRepos) > 0 {
		r.printf("failed repositories: %s", strings.Join(failedRepos, ", "))
		return 1
	}
	return 0
}
