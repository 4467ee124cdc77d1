// Copyright (c) 2026 VRT
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package docker transfers images between Docker registries hosted by
// Nexus, speaking the registry v2 protocol directly. Images are staged in
// an OCI image layout on disk between pull and push; every staged image is
// verified against its content digests on both sides of the transfer. The
// docker CLI and daemon are never involved.
package docker

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/layout"
	"github.com/google/go-containerregistry/pkg/v1/match"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	"github.com/google/go-containerregistry/pkg/v1/validate"
	specsv1 "github.com/opencontainers/image-spec/specs-go/v1"

	apperrors "github.com/vrtdev/nexus-api-tools/internal/pkg/errors"
	"github.com/vrtdev/nexus-api-tools/internal/pkg/logger"
)

// TransferStats describes one transferred image.
type TransferStats struct {
	Digest string // Manifest digest, sha256:...
	Bytes  int64  // Manifest, config and layer bytes
}

// ClientConfig carries everything needed to talk to one registry.
type ClientConfig struct {
	Registry      string // host[:port]
	Username      string
	Password      string
	Insecure      bool          // Allow plain HTTP and skip TLS verification
	RetryAttempts int           // Transport retries after the first attempt
	RetryInterval time.Duration // Initial backoff interval, default 500ms
}

// Client talks to one Docker registry.
type Client struct {
	registry      string
	auth          authn.Authenticator
	nameOpts      []name.Option
	transport     http.RoundTripper
	retryAttempts int
	retryInterval time.Duration
	log           logger.Logger
}

// NewClient builds a client for the configured registry.
func NewClient(cfg ClientConfig, log logger.Logger) *Client {
	var auth authn.Authenticator = authn.Anonymous
	if cfg.Username != "" || cfg.Password != "" {
		auth = &authn.Basic{Username: cfg.Username, Password: cfg.Password}
	}

	var nameOpts []name.Option
	rt := remote.DefaultTransport
	if cfg.Insecure {
		nameOpts = append(nameOpts, name.Insecure)
		insecure := http.DefaultTransport.(*http.Transport).Clone()
		insecure.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		rt = insecure
	}

	interval := cfg.RetryInterval
	if interval == 0 {
		interval = 500 * time.Millisecond
	}

	return &Client{
		registry:      cfg.Registry,
		auth:          auth,
		nameOpts:      nameOpts,
		transport:     rt,
		retryAttempts: cfg.RetryAttempts,
		retryInterval: interval,
		log:           log,
	}
}

// Registry returns the host the client talks to.
func (c *Client) Registry() string {
	return c.registry
}

func (c *Client) remoteOpts(ctx context.Context) []remote.Option {
	return []remote.Option{
		remote.WithContext(ctx),
		remote.WithAuth(c.auth),
		remote.WithTransport(c.transport),
	}
}

// ref resolves an image string like "team/app:1.0" against the registry.
func (c *Client) ref(image string) (name.Reference, error) {
	ref, err := name.ParseReference(fmt.Sprintf("%s/%s", c.registry, image), c.nameOpts...)
	if err != nil {
		return nil, apperrors.WrapInternal(err, fmt.Sprintf("invalid image reference %s/%s", c.registry, image))
	}
	return ref, nil
}

// classify maps a registry error to the error taxonomy.
func classify(op string, err error) error {
	var terr *transport.Error
	if errors.As(err, &terr) {
		switch {
		case terr.StatusCode == http.StatusUnauthorized || terr.StatusCode == http.StatusForbidden:
			return apperrors.WrapAuth(err, op)
		case terr.StatusCode == http.StatusNotFound:
			return apperrors.WrapNotFound(err, op)
		case terr.StatusCode == http.StatusRequestTimeout ||
			terr.StatusCode == http.StatusTooManyRequests ||
			terr.StatusCode >= 500:
			return apperrors.WrapTransport(err, op)
		default:
			return apperrors.WrapInternal(err, op)
		}
	}
	if apperrors.KindOf(err) != apperrors.KindInternal {
		return err
	}
	// Registry errors that are not HTTP status failures are almost always
	// network-level: dial, reset, TLS.
	return apperrors.WrapTransport(err, op)
}

// withRetry runs fn, retrying transport failures with exponential backoff
// up to the configured bound.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.retryAttempts)), ctx)
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		err = classify(op, err)
		if !apperrors.Retryable(err) {
			return backoff.Permanent(err)
		}
		c.log.Warn("%s failed (attempt %d): %v", op, attempt, err)
		return err
	}, policy)
}

// Catalog lists the image names the registry serves.
func (c *Client) Catalog(ctx context.Context) ([]string, error) {
	reg, err := name.NewRegistry(c.registry, c.nameOpts...)
	if err != nil {
		return nil, apperrors.WrapInternal(err, fmt.Sprintf("invalid registry %s", c.registry))
	}

	var repos []string
	op := fmt.Sprintf("catalog %s", c.registry)
	err = c.withRetry(ctx, op, func() error {
		var cerr error
		repos, cerr = remote.Catalog(ctx, reg, c.remoteOpts(ctx)...)
		return cerr
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(repos)
	return repos, nil
}

// ListTags lists the tags of one image name.
func (c *Client) ListTags(ctx context.Context, image string) ([]string, error) {
	repo, err := name.NewRepository(fmt.Sprintf("%s/%s", c.registry, image), c.nameOpts...)
	if err != nil {
		return nil, apperrors.WrapInternal(err, fmt.Sprintf("invalid repository %s/%s", c.registry, image))
	}

	var tags []string
	op := fmt.Sprintf("list tags of %s/%s", c.registry, image)
	err = c.withRetry(ctx, op, func() error {
		var lerr error
		tags, lerr = remote.List(repo, c.remoteOpts(ctx)...)
		return lerr
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(tags)
	return tags, nil
}

// RemoteDigest returns the manifest digest of an image on the registry.
// A not-found error means the image or tag does not exist there.
func (c *Client) RemoteDigest(ctx context.Context, image string) (string, error) {
	ref, err := c.ref(image)
	if err != nil {
		return "", err
	}

	var desc *v1.Descriptor
	op := fmt.Sprintf("head %s", ref)
	err = c.withRetry(ctx, op, func() error {
		var herr error
		desc, herr = remote.Head(ref, c.remoteOpts(ctx)...)
		return herr
	})
	if err != nil {
		return "", err
	}
	return desc.Digest.String(), nil
}

// openLayout opens the OCI layout at dir, creating an empty one on first use.
func openLayout(dir string) (layout.Path, error) {
	if lp, err := layout.FromPath(dir); err == nil {
		return lp, nil
	}
	lp, err := layout.Write(dir, empty.Index)
	if err != nil {
		return "", apperrors.WrapInternal(err, fmt.Sprintf("create image layout at %s", dir))
	}
	return lp, nil
}

// stagedDescriptor finds the layout entry annotated with the image name.
func stagedDescriptor(lp layout.Path, image string) (*v1.Descriptor, error) {
	root, err := lp.ImageIndex()
	if err != nil {
		return nil, err
	}
	manifest, err := root.IndexManifest()
	if err != nil {
		return nil, err
	}
	for i := range manifest.Manifests {
		if manifest.Manifests[i].Annotations[specsv1.AnnotationRefName] == image {
			return &manifest.Manifests[i], nil
		}
	}
	return nil, nil
}

// Staged lists the image names present in the layout at dir, sorted.
// A missing layout is an empty staging area, not an error.
func (c *Client) Staged(dir string) ([]string, error) {
	lp, err := layout.FromPath(dir)
	if err != nil {
		if _, serr := os.Stat(dir); errors.Is(serr, os.ErrNotExist) {
			return nil, nil
		}
		return nil, apperrors.WrapInternal(err, fmt.Sprintf("open image layout at %s", dir))
	}
	root, err := lp.ImageIndex()
	if err != nil {
		return nil, apperrors.WrapInternal(err, fmt.Sprintf("read image layout at %s", dir))
	}
	manifest, err := root.IndexManifest()
	if err != nil {
		return nil, apperrors.WrapInternal(err, fmt.Sprintf("read image layout at %s", dir))
	}

	seen := map[string]bool{}
	var images []string
	for _, d := range manifest.Manifests {
		if ref := d.Annotations[specsv1.AnnotationRefName]; ref != "" && !seen[ref] {
			seen[ref] = true
			images = append(images, ref)
		}
	}
	sort.Strings(images)
	return images, nil
}

// StagedDigest returns the manifest digest of a staged image, or the empty
// string when the image is not in the layout.
func (c *Client) StagedDigest(dir, image string) (string, error) {
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	lp, err := layout.FromPath(dir)
	if err != nil {
		return "", nil
	}
	desc, err := stagedDescriptor(lp, image)
	if err != nil {
		return "", apperrors.WrapInternal(err, fmt.Sprintf("read image layout at %s", dir))
	}
	if desc == nil {
		return "", nil
	}
	return desc.Digest.String(), nil
}

// Pull fetches an image into the layout at dir and verifies the staged
// copy blob by blob. A verification failure scrubs the affected blobs and
// re-pulls once before the image is declared corrupt. Multi-arch images
// are carried whole.
func (c *Client) Pull(ctx context.Context, image, dir string) (*TransferStats, error) {
	ref, err := c.ref(image)
	if err != nil {
		return nil, err
	}
	lp, err := openLayout(dir)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		stats, err := c.pullOnce(ctx, ref, image, lp, dir)
		if err == nil {
			return stats, nil
		}
		if !apperrors.IsIntegrity(err) {
			return nil, err
		}
		lastErr = err
		c.log.Warn("staged %s failed verification, re-pulling: %v", image, err)
	}
	return nil, lastErr
}

func (c *Client) pullOnce(ctx context.Context, ref name.Reference, image string, lp layout.Path, dir string) (*TransferStats, error) {
	var desc *remote.Descriptor
	op := fmt.Sprintf("pull %s", ref)
	err := c.withRetry(ctx, op, func() error {
		var gerr error
		desc, gerr = remote.Get(ref, c.remoteOpts(ctx)...)
		return gerr
	})
	if err != nil {
		return nil, err
	}

	annotations := layout.WithAnnotations(map[string]string{
		specsv1.AnnotationRefName: image,
	})

	if desc.MediaType.IsIndex() {
		idx, err := desc.ImageIndex()
		if err != nil {
			return nil, apperrors.WrapInternal(err, op)
		}
		err = c.withRetry(ctx, op, func() error {
			return lp.ReplaceIndex(idx, match.Name(image), annotations)
		})
		if err != nil {
			return nil, err
		}
		staged, err := c.stagedIndex(lp, desc.Digest)
		if err != nil {
			return nil, apperrors.WrapInternal(err, fmt.Sprintf("read staged %s", image))
		}
		if verr := validate.Index(staged); verr != nil {
			scrubBlobs(dir, indexDigests(idx))
			return nil, apperrors.WrapIntegrity(verr, fmt.Sprintf("staged %s", image))
		}
		c.log.Debug("pulled %s (%s)", image, desc.Digest)
		return &TransferStats{Digest: desc.Digest.String(), Bytes: indexBytes(staged)}, nil
	}

	img, err := desc.Image()
	if err != nil {
		return nil, apperrors.WrapInternal(err, op)
	}
	err = c.withRetry(ctx, op, func() error {
		return lp.ReplaceImage(img, match.Name(image), annotations)
	})
	if err != nil {
		return nil, err
	}
	staged, err := c.stagedImage(lp, desc.Digest)
	if err != nil {
		return nil, apperrors.WrapInternal(err, fmt.Sprintf("read staged %s", image))
	}
	if verr := validate.Image(staged); verr != nil {
		scrubBlobs(dir, imageDigests(img))
		return nil, apperrors.WrapIntegrity(verr, fmt.Sprintf("staged %s", image))
	}
	c.log.Debug("pulled %s (%s)", image, desc.Digest)
	return &TransferStats{Digest: desc.Digest.String(), Bytes: imageBytes(staged)}, nil
}

// Push uploads a staged image to the registry. The staged copy is verified
// before any byte leaves the staging area; pushing a corrupt layout would
// otherwise fail half-way with the registry in an odd state.
func (c *Client) Push(ctx context.Context, image, dir string) (*TransferStats, error) {
	lp, err := layout.FromPath(dir)
	if err != nil {
		return nil, apperrors.WrapInternal(err, fmt.Sprintf("open image layout at %s", dir))
	}
	desc, err := stagedDescriptor(lp, image)
	if err != nil {
		return nil, apperrors.WrapInternal(err, fmt.Sprintf("read image layout at %s", dir))
	}
	if desc == nil {
		return nil, apperrors.Newf(apperrors.KindInternal, "image %s is not staged in %s", image, dir)
	}

	ref, err := c.ref(image)
	if err != nil {
		return nil, err
	}
	op := fmt.Sprintf("push %s", ref)

	if desc.MediaType.IsIndex() {
		idx, err := c.stagedIndex(lp, desc.Digest)
		if err != nil {
			return nil, apperrors.WrapInternal(err, fmt.Sprintf("read staged %s", image))
		}
		if verr := validate.Index(idx); verr != nil {
			return nil, apperrors.WrapIntegrity(verr, fmt.Sprintf("staged %s", image))
		}
		err = c.withRetry(ctx, op, func() error {
			return remote.WriteIndex(ref, idx, c.remoteOpts(ctx)...)
		})
		if err != nil {
			return nil, err
		}
		c.log.Debug("pushed %s (%s)", image, desc.Digest)
		return &TransferStats{Digest: desc.Digest.String(), Bytes: indexBytes(idx)}, nil
	}

	img, err := c.stagedImage(lp, desc.Digest)
	if err != nil {
		return nil, apperrors.WrapInternal(err, fmt.Sprintf("read staged %s", image))
	}
	if verr := validate.Image(img); verr != nil {
		return nil, apperrors.WrapIntegrity(verr, fmt.Sprintf("staged %s", image))
	}
	err = c.withRetry(ctx, op, func() error {
		return remote.Write(ref, img, c.remoteOpts(ctx)...)
	})
	if err != nil {
		return nil, err
	}
	c.log.Debug("pushed %s (%s)", image, desc.Digest)
	return &TransferStats{Digest: desc.Digest.String(), Bytes: imageBytes(img)}, nil
}

func (c *Client) stagedImage(lp layout.Path, digest v1.Hash) (v1.Image, error) {
	root, err := lp.ImageIndex()
	if err != nil {
		return nil, err
	}
	return root.Image(digest)
}

func (c *Client) stagedIndex(lp layout.Path, digest v1.Hash) (v1.ImageIndex, error) {
	root, err := lp.ImageIndex()
	if err != nil {
		return nil, err
	}
	return root.ImageIndex(digest)
}

// imageBytes sums an image's manifest-listed payload sizes.
func imageBytes(img v1.Image) int64 {
	m, err := img.Manifest()
	if err != nil {
		return 0
	}
	total := m.Config.Size
	for _, l := range m.Layers {
		total += l.Size
	}
	return total
}

// indexBytes sums the payload sizes of every image under an index.
func indexBytes(idx v1.ImageIndex) int64 {
	m, err := idx.IndexManifest()
	if err != nil {
		return 0
	}
	var total int64
	for _, d := range m.Manifests {
		switch {
		case d.MediaType.IsIndex():
			if child, err := idx.ImageIndex(d.Digest); err == nil {
				total += indexBytes(child)
			}
		case d.MediaType.IsImage():
			if child, err := idx.Image(d.Digest); err == nil {
				total += imageBytes(child)
			}
		default:
			total += d.Size
		}
	}
	return total
}

// imageDigests collects every blob digest an image owns.
func imageDigests(img v1.Image) []v1.Hash {
	var digests []v1.Hash
	if h, err := img.Digest(); err == nil {
		digests = append(digests, h)
	}
	if h, err := img.ConfigName(); err == nil {
		digests = append(digests, h)
	}
	if layers, err := img.Layers(); err == nil {
		for _, l := range layers {
			if h, err := l.Digest(); err == nil {
				digests = append(digests, h)
			}
		}
	}
	return digests
}

// indexDigests collects every blob digest an index tree owns.
func indexDigests(idx v1.ImageIndex) []v1.Hash {
	var digests []v1.Hash
	if h, err := idx.Digest(); err == nil {
		digests = append(digests, h)
	}
	m, err := idx.IndexManifest()
	if err != nil {
		return digests
	}
	for _, d := range m.Manifests {
		switch {
		case d.MediaType.IsIndex():
			if child, err := idx.ImageIndex(d.Digest); err == nil {
				digests = append(digests, indexDigests(child)...)
			}
		case d.MediaType.IsImage():
			if child, err := idx.Image(d.Digest); err == nil {
				digests = append(digests, imageDigests(child)...)
			}
		default:
			digests = append(digests, d.Digest)
		}
	}
	return digests
}

// scrubBlobs removes the named blobs from a layout so a re-pull rewrites
// them. The layout skips writing blobs whose files already exist, which
// would otherwise keep corrupt bytes in place.
func scrubBlobs(dir string, digests []v1.Hash) {
	for _, h := range digests {
		os.Remove(filepath.Join(dir, "blobs", h.Algorithm, h.Hex))
	}
}
