// Copyright (c) 2026 VRT
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package migrate drives a migration run action by action.
//
// The coordinator owns the per-action state machine: pending actions move
// through the fetching and uploading phases into a terminal state, inactive
// actions are skipped, and a failure on one artifact never stops the
// remaining artifacts or the remaining actions. Actions execute
// sequentially in file order; artifact transfers inside one action run
// under a bounded worker pool.
package migrate

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vrtdev/nexus-api-tools/internal/docker"
	"github.com/vrtdev/nexus-api-tools/internal/models"
	"github.com/vrtdev/nexus-api-tools/internal/nexus"
	apperrors "github.com/vrtdev/nexus-api-tools/internal/pkg/errors"
	"github.com/vrtdev/nexus-api-tools/internal/pkg/logger"
	"github.com/vrtdev/nexus-api-tools/internal/pkg/validator"
	"github.com/vrtdev/nexus-api-tools/internal/report"
	"github.com/vrtdev/nexus-api-tools/internal/types"
)

// NexusAPI is the slice of the Nexus REST client the coordinator drives
// for generic repository actions.
type NexusAPI interface {
	Server() string
	ListComponents(ctx context.Context, repo string) ([]nexus.Component, error)
	ListAssets(ctx context.Context, repo string) ([]nexus.Asset, error)
	DownloadAsset(ctx context.Context, asset nexus.Asset, dest string) (int64, error)
	UploadComponent(ctx context.Context, repo string, up nexus.Upload) error
}

// RegistryAPI is the slice of the Docker registry client the coordinator
// drives for docker-format actions.
type RegistryAPI interface {
	Registry() string
	Catalog(ctx context.Context) ([]string, error)
	ListTags(ctx context.Context, image string) ([]string, error)
	RemoteDigest(ctx context.Context, image string) (string, error)
	Staged(dir string) ([]string, error)
	StagedDigest(dir, image string) (string, error)
	Pull(ctx context.Context, image, dir string) (*docker.TransferStats, error)
	Push(ctx context.Context, image, dir string) (*docker.TransferStats, error)
}

// RegistryFactory builds a registry client for one host. Actions may
// override the configured registry hosts, so docker clients are created
// per action rather than once per run.
type RegistryFactory func(host string) RegistryAPI

var (
	_ NexusAPI    = (*nexus.Client)(nil)
	_ RegistryAPI = (*docker.Client)(nil)
)

// Coordinator executes a migration run.
type Coordinator struct {
	cfg       *types.Config
	source    NexusAPI
	dest      NexusAPI
	sourceReg RegistryFactory
	destReg   RegistryFactory
	reporter  *report.Reporter
	log       logger.Logger
}

// New creates a Coordinator. source and dest talk to the two Nexus REST
// APIs; sourceReg and destReg build registry clients carrying the matching
// server's credentials for docker actions.
func New(cfg *types.Config, source, dest NexusAPI, sourceReg, destReg RegistryFactory, reporter *report.Reporter, log logger.Logger) *Coordinator {
	return &Coordinator{
		cfg:       cfg,
		source:    source,
		dest:      dest,
		sourceReg: sourceReg,
		destReg:   destReg,
		reporter:  reporter,
		log:       log,
	}
}

// Run executes every action in file order, reporting each outcome as it
// completes. A canceled context stops the run before the next action
// starts; already finished actions keep their results. The returned error
// is the context's; failed actions are reported, not returned.
func (c *Coordinator) Run(ctx context.Context, run *models.MigrationRun) error {
	c.reporter.RunStart(run)
	for _, a := range run.Actions {
		if err := ctx.Err(); err != nil {
			c.log.Warn("Interrupted; %s and later actions were not started", a.Repo)
			return err
		}
		c.runAction(ctx, a)
		c.reporter.Action(a)
	}
	return nil
}

func (c *Coordinator) runAction(ctx context.Context, a *models.Action) {
	if !a.Active {
		c.log.Info("Skipping inactive action %s", a.Repo)
		c.transition(a, models.StateSkipped)
		a.Finish(models.SkippedResult())
		return
	}

	c.log.Info("Action %s: %s (%s)", a.Repo, a.Verb, a.Format)
	a.Start()

	res := &models.TransferResult{}
	staging := filepath.Join(c.cfg.LocalPath, filepath.FromSlash(a.Path))

	if a.Format == models.FormatDocker {
		c.runDocker(ctx, a, staging, res)
	} else {
		c.runGeneric(ctx, a, staging, res)
	}

	// A cancellation mid-phase leaves the action in a non-terminal state;
	// record it as a failure so the report shows what was cut short.
	if err := ctx.Err(); err != nil {
		switch a.State() {
		case models.StateFetching, models.StateUploading:
			res.AddError(apperrors.WrapInternal(err, fmt.Sprintf("action %s interrupted", a.Repo)))
		}
	}

	res.Finalize()
	if res.HasFailures() {
		c.transition(a, models.StateFailed)
	}
	a.Finish(res)
}

// runGeneric executes one action against the Nexus REST APIs. Each phase
// reports success through its return value; a failed fetch phase of a
// "both" action must not upload the incomplete staging set.
func (c *Coordinator) runGeneric(ctx context.Context, a *models.Action, staging string, res *models.TransferResult) {
	switch a.Verb {
	case models.VerbListAssets:
		c.transition(a, models.StateFetching)
		assets, err := c.source.ListAssets(ctx, a.Repo)
		if err != nil {
			res.AddError(fmt.Errorf("list assets of %s: %w", a.Repo, err))
			return
		}
		paths := make([]string, 0, len(assets))
		for _, asset := range assets {
			paths = append(paths, asset.Path)
		}
		sort.Strings(paths)
		c.reporter.Listing(a.Repo, "asset(s)", paths)
		res.Listed = len(paths)
		c.transition(a, models.StateDone)

	case models.VerbListComponents:
		c.transition(a, models.StateFetching)
		components, err := c.source.ListComponents(ctx, a.Repo)
		if err != nil {
			res.AddError(fmt.Errorf("list components of %s: %w", a.Repo, err))
			return
		}
		names := make([]string, 0, len(components))
		for _, comp := range components {
			names = append(names, componentRef(comp))
		}
		sort.Strings(names)
		c.reporter.Listing(a.Repo, "component(s)", names)
		res.Listed = len(names)
		c.transition(a, models.StateDone)

	case models.VerbGet:
		c.transition(a, models.StateFetching)
		if c.fetchAssets(ctx, a, staging, res) {
			c.transition(a, models.StateFetched)
		}

	case models.VerbUpload:
		c.transition(a, models.StateUploading)
		if c.uploadStaged(ctx, a, staging, res) {
			c.transition(a, models.StateDone)
		}

	case models.VerbBoth:
		c.transition(a, models.StateFetching)
		if !c.fetchAssets(ctx, a, staging, res) {
			return
		}
		c.transition(a, models.StateFetched)
		c.transition(a, models.StateUploading)
		if c.uploadStaged(ctx, a, staging, res) {
			c.transition(a, models.StateDone)
		}
	}
}

// fetchAssets downloads every listed asset that is not already staged with
// a matching checksum. It reports whether the phase completed without
// failures. An auth error aborts the phase; other artifact errors are
// recorded and the remaining artifacts continue.
func (c *Coordinator) fetchAssets(ctx context.Context, a *models.Action, staging string, res *models.TransferResult) bool {
	assets, err := c.source.ListAssets(ctx, a.Repo)
	if err != nil {
		res.AddError(fmt.Errorf("list assets of %s: %w", a.Repo, err))
		return false
	}
	assets = nexus.FilterAssets(assets)
	c.log.Info("%s: %d asset(s) to consider", a.Repo, len(assets))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers())

	for _, asset := range assets {
		asset := asset
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}

			rel := strings.TrimPrefix(asset.Path, "/")
			if err := validator.ValidateRelativePath(rel); err != nil {
				mu.Lock()
				res.AddError(fmt.Errorf("asset %s: %w", asset.Path, err))
				mu.Unlock()
				return nil
			}
			dest := filepath.Join(staging, filepath.FromSlash(rel))

			ok, err := nexus.LocalMatches(asset, dest)
			if err != nil {
				mu.Lock()
				res.AddError(fmt.Errorf("check staged %s: %w", asset.Path, err))
				mu.Unlock()
				return nil
			}
			if ok {
				c.log.Debug("%s: %s already staged", a.Repo, asset.Path)
				mu.Lock()
				res.Skipped++
				mu.Unlock()
				return nil
			}

			n, err := c.source.DownloadAsset(gctx, asset, dest)
			if err != nil {
				mu.Lock()
				res.AddError(fmt.Errorf("download %s: %w", asset.Path, err))
				mu.Unlock()
				if apperrors.IsAuth(err) {
					return err
				}
				return nil
			}
			a.AddLog("downloaded %s (%d bytes)", asset.Path, n)
			mu.Lock()
			res.Transferred++
			res.Bytes += n
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // worker errors are already recorded in res
	// A canceled context means artifacts were left unprocessed, so the
	// phase did not complete even when nothing failed outright.
	return res.Failed == 0 && ctx.Err() == nil
}

// uploadStaged walks the staging directory and uploads every artifact that
// passes the format filter and is not already present on the destination.
// It reports whether the phase completed without failures.
func (c *Coordinator) uploadStaged(ctx context.Context, a *models.Action, staging string, res *models.TransferResult) bool {
	files, err := c.stagedFiles(a, staging)
	if err != nil {
		res.AddError(err)
		return false
	}
	if len(files) == 0 {
		c.log.Warn("%s: nothing staged under %s", a.Repo, staging)
		return res.Failed == 0 && ctx.Err() == nil
	}

	present := map[string]bool{}
	if !c.cfg.Transfer.Overwrite {
		existing, err := c.dest.ListAssets(ctx, a.Repo)
		if err != nil {
			res.AddError(fmt.Errorf("list destination assets of %s: %w", a.Repo, err))
			return false
		}
		for _, asset := range existing {
			present[strings.TrimPrefix(asset.Path, "/")] = true
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers())

	for _, f := range files {
		f := f
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}

			if present[strings.TrimPrefix(f.repoPath, "/")] {
				c.log.Debug("%s: %s already on destination", a.Repo, f.repoPath)
				mu.Lock()
				res.Skipped++
				mu.Unlock()
				return nil
			}

			up := nexus.Upload{Format: a.Format, RepoPath: f.repoPath, LocalFile: f.localPath}
			if err := c.dest.UploadComponent(gctx, a.Repo, up); err != nil {
				mu.Lock()
				res.AddError(fmt.Errorf("upload %s: %w", f.repoPath, err))
				mu.Unlock()
				if apperrors.IsAuth(err) {
					return err
				}
				return nil
			}
			a.AddLog("uploaded %s (%d bytes)", f.repoPath, f.size)
			mu.Lock()
			res.Transferred++
			res.Bytes += f.size
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // worker errors are already recorded in res
	return res.Failed == 0 && ctx.Err() == nil
}

// stagedFile is one uploadable file found in the staging directory.
type stagedFile struct {
	localPath string
	repoPath  string // destination path inside the repository, with leading slash
	size      int64
}

// stagedFiles collects the files under staging that the action's format
// accepts. Leftover partial downloads from an interrupted run are ignored.
// A missing staging directory yields an empty set, matching a source
// repository that listed no assets.
func (c *Coordinator) stagedFiles(a *models.Action, staging string) ([]stagedFile, error) {
	var files []stagedFile
	err := filepath.WalkDir(staging, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.HasSuffix(name, nexus.PartialSuffix) {
			return nil
		}
		if !nexus.MatchesFormat(a.Format, name) {
			c.log.Debug("%s: %s filtered out for format %s", a.Repo, path, a.Format)
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(staging, path)
		if err != nil {
			return err
		}
		files = append(files, stagedFile{
			localPath: path,
			repoPath:  "/" + filepath.ToSlash(rel),
			size:      info.Size(),
		})
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("walk staging directory %s: %w", staging, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].repoPath < files[j].repoPath })
	return files, nil
}

// runDocker executes one docker-format action against the registry v2
// endpoints. Image transfers run sequentially: the OCI staging layout
// serializes index updates through a single file, so a worker pool would
// race on it.
func (c *Coordinator) runDocker(ctx context.Context, a *models.Action, staging string, res *models.TransferResult) {
	srcHost := a.SourceRegistry
	if srcHost == "" {
		srcHost = c.cfg.Docker.SourceRegistry
	}
	destHost := a.DestinationRegistry
	if destHost == "" {
		destHost = c.cfg.Docker.DestinationRegistry
	}

	switch a.Verb {
	case models.VerbListAssets, models.VerbListComponents:
		c.transition(a, models.StateFetching)
		refs, err := c.sourceImages(ctx, c.sourceReg(srcHost))
		if err != nil {
			res.AddError(fmt.Errorf("list images of %s: %w", a.Repo, err))
			return
		}
		c.reporter.Listing(a.Repo, "image(s)", refs)
		res.Listed = len(refs)
		c.transition(a, models.StateDone)

	case models.VerbGet:
		c.transition(a, models.StateFetching)
		if c.pullImages(ctx, a, c.sourceReg(srcHost), staging, res) {
			c.transition(a, models.StateFetched)
		}

	case models.VerbUpload:
		c.transition(a, models.StateUploading)
		if c.pushImages(ctx, a, nil, c.destReg(destHost), staging, res) {
			c.transition(a, models.StateDone)
		}

	case models.VerbBoth:
		c.transition(a, models.StateFetching)
		if !c.pullImages(ctx, a, c.sourceReg(srcHost), staging, res) {
			return
		}
		c.transition(a, models.StateFetched)
		c.transition(a, models.StateUploading)
		if c.pushImages(ctx, a, c.sourceReg(srcHost), c.destReg(destHost), staging, res) {
			c.transition(a, models.StateDone)
		}
	}
}

// sourceImages enumerates every image:tag reference the source registry
// serves, sorted for deterministic output.
func (c *Coordinator) sourceImages(ctx context.Context, src RegistryAPI) ([]string, error) {
	images, err := src.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	var refs []string
	for _, image := range images {
		tags, err := src.ListTags(ctx, image)
		if err != nil {
			return nil, err
		}
		for _, tag := range tags {
			refs = append(refs, image+":"+tag)
		}
	}
	sort.Strings(refs)
	return refs, nil
}

// pullImages stages every source image whose digest is not already staged.
// It reports whether the phase completed without failures.
func (c *Coordinator) pullImages(ctx context.Context, a *models.Action, src RegistryAPI, staging string, res *models.TransferResult) bool {
	refs, err := c.sourceImages(ctx, src)
	if err != nil {
		res.AddError(fmt.Errorf("list images of %s: %w", a.Repo, err))
		return false
	}
	c.log.Info("%s: %d image(s) to consider", a.Repo, len(refs))

	for _, ref := range refs {
		if ctx.Err() != nil {
			break
		}

		srcDigest, err := src.RemoteDigest(ctx, ref)
		if err != nil {
			res.AddError(fmt.Errorf("resolve %s: %w", ref, err))
			if apperrors.IsAuth(err) {
				break
			}
			continue
		}
		stagedDigest, err := src.StagedDigest(staging, ref)
		if err != nil {
			res.AddError(fmt.Errorf("read staged %s: %w", ref, err))
			continue
		}
		if stagedDigest == srcDigest {
			c.log.Debug("%s: %s already staged", a.Repo, ref)
			res.Skipped++
			continue
		}

		stats, err := src.Pull(ctx, ref, staging)
		if err != nil {
			res.AddError(fmt.Errorf("pull %s: %w", ref, err))
			if apperrors.IsAuth(err) {
				break
			}
			continue
		}
		a.AddLog("pulled %s (%s, %d bytes)", ref, stats.Digest, stats.Bytes)
		res.Transferred++
		res.Bytes += stats.Bytes
	}
	return res.Failed == 0 && ctx.Err() == nil
}

// pushImages uploads every staged image the destination does not already
// hold at the same digest. A push rejected by the staging verification is
// retried once after re-pulling the image from src; a nil src (upload-only
// actions have no source side) makes such failures terminal. It reports
// whether the phase completed without failures.
func (c *Coordinator) pushImages(ctx context.Context, a *models.Action, src, dest RegistryAPI, staging string, res *models.TransferResult) bool {
	refs, err := dest.Staged(staging)
	if err != nil {
		res.AddError(fmt.Errorf("read staging of %s: %w", a.Repo, err))
		return false
	}
	if len(refs) == 0 {
		c.log.Warn("%s: no images staged under %s", a.Repo, staging)
		return res.Failed == 0 && ctx.Err() == nil
	}

	for _, ref := range refs {
		if ctx.Err() != nil {
			break
		}

		if !c.cfg.Transfer.Overwrite {
			stagedDigest, err := dest.StagedDigest(staging, ref)
			if err != nil {
				res.AddError(fmt.Errorf("read staged %s: %w", ref, err))
				continue
			}
			destDigest, err := dest.RemoteDigest(ctx, ref)
			if err != nil && !apperrors.IsNotFound(err) {
				res.AddError(fmt.Errorf("resolve destination %s: %w", ref, err))
				if apperrors.IsAuth(err) {
					break
				}
				continue
			}
			if err == nil && destDigest == stagedDigest {
				c.log.Debug("%s: %s already on destination", a.Repo, ref)
				res.Skipped++
				continue
			}
		}

		stats, err := dest.Push(ctx, ref, staging)
		if err != nil && apperrors.IsIntegrity(err) && src != nil {
			// The pull phase skips a ref whose staged annotation digest
			// matches the source, so a blob that rotted on disk is only
			// discovered here. One re-pull rebuilds the layout before the
			// final push attempt.
			c.log.Warn("%s: staged %s failed verification, re-pulling", a.Repo, ref)
			pulled, perr := src.Pull(ctx, ref, staging)
			if perr != nil {
				res.AddError(fmt.Errorf("re-pull %s: %w", ref, perr))
				if apperrors.IsAuth(perr) {
					break
				}
				continue
			}
			a.AddLog("re-pulled %s (%s, %d bytes)", ref, pulled.Digest, pulled.Bytes)
			res.Bytes += pulled.Bytes
			stats, err = dest.Push(ctx, ref, staging)
		}
		if err != nil {
			res.AddError(fmt.Errorf("push %s: %w", ref, err))
			if apperrors.IsAuth(err) {
				break
			}
			continue
		}
		a.AddLog("pushed %s (%s, %d bytes)", ref, stats.Digest, stats.Bytes)
		res.Transferred++
		res.Bytes += stats.Bytes
	}
	return res.Failed == 0 && ctx.Err() == nil
}

// workers returns the transfer pool size for one action.
func (c *Coordinator) workers() int {
	if c.cfg.Transfer.Workers < 1 {
		return 1
	}
	return c.cfg.Transfer.Workers
}

// componentRef renders a component as name:version, or just the name when
// the format carries no version.
func componentRef(comp nexus.Component) string {
	if comp.Version == "" {
		return comp.Name
	}
	return comp.Name + ":" + comp.Version
}

// transition moves an action's state machine. An illegal edge is a bug in
// the coordinator; it is logged rather than crashing a long run.
func (c *Coordinator) transition(a *models.Action, to models.State) {
	if err := a.Transition(to); err != nil {
		c.log.Error("%v", err)
	}
}
