// Copyright (c) 2026 VRT
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package nexus is a client for the Nexus repository manager REST API
// (service/rest/v1). It covers the operations the copy workflow needs:
// paginated component and asset listings, asset download into a staging
// directory, and multipart component upload.
//
// One Client talks to one server. Errors are classified so callers can
// decide retry versus abort: transport errors are retried here with
// exponential backoff, auth and not-found errors are returned as-is.
package nexus

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	apperrors "github.com/vrtdev/nexus-api-tools/internal/pkg/errors"
	"github.com/vrtdev/nexus-api-tools/internal/pkg/logger"
	"github.com/vrtdev/nexus-api-tools/internal/types"
)

const apiPath = "service/rest/v1"

// PartialSuffix marks a download still in flight. Files carrying it are
// never uploaded and are replaced on the next run.
const PartialSuffix = ".partial"

// Component is one entry of the components listing.
type Component struct {
	ID         string  `json:"id"`
	Repository string  `json:"repository"`
	Format     string  `json:"format"`
	Group      string  `json:"group"`
	Name       string  `json:"name"`
	Version    string  `json:"version"`
	Assets     []Asset `json:"assets"`
}

// Asset is one entry of the assets listing, or one asset of a component.
type Asset struct {
	ID          string   `json:"id"`
	Path        string   `json:"path"`
	DownloadURL string   `json:"downloadUrl"`
	Repository  string   `json:"repository"`
	Format      string   `json:"format"`
	ContentType string   `json:"contentType"`
	Checksum    Checksum `json:"checksum"`
}

// Checksum carries the hashes Nexus publishes per asset. Servers differ in
// which algorithms they expose, so any field may be empty.
type Checksum struct {
	SHA256 string `json:"sha256"`
	SHA1   string `json:"sha1"`
	MD5    string `json:"md5"`
}

// Preferred returns the strongest available hash and its value.
func (c Checksum) Preferred() (algo, value string) {
	switch {
	case c.SHA256 != "":
		return "sha256", c.SHA256
	case c.SHA1 != "":
		return "sha1", c.SHA1
	case c.MD5 != "":
		return "md5", c.MD5
	}
	return "", ""
}

type componentsPage struct {
	Items             []Component `json:"items"`
	ContinuationToken string      `json:"continuationToken"`
}

type assetsPage struct {
	Items             []Asset `json:"items"`
	ContinuationToken string  `json:"continuationToken"`
}

// ClientConfig carries everything needed to talk to one Nexus server.
type ClientConfig struct {
	Server        types.ServerConfig
	Timeout       time.Duration // Per-request timeout
	RetryAttempts int           // Transport retries after the first attempt
	RetryInterval time.Duration // Initial backoff interval, default 500ms
	RateLimit     float64       // Requests per second, 0 disables limiting
	Insecure      bool          // Skip TLS certificate verification
}

// Client talks to one Nexus server.
type Client struct {
	base          string
	username      string
	password      string
	http          *http.Client
	limiter       *rate.Limiter
	retryAttempts int
	retryInterval time.Duration
	log           logger.Logger
}

// NewClient builds a client for the configured server.
func NewClient(cfg ClientConfig, log logger.Logger) *Client {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	interval := cfg.RetryInterval
	if interval == 0 {
		interval = 500 * time.Millisecond
	}
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.Insecure},
	}
	return &Client{
		base:          strings.TrimSuffix(cfg.Server.URL, "/"),
		username:      cfg.Server.Username,
		password:      cfg.Server.Password,
		http:          &http.Client{Timeout: cfg.Timeout, Transport: transport},
		limiter:       rate.NewLimiter(limit, 1),
		retryAttempts: cfg.RetryAttempts,
		retryInterval: interval,
		log:           log,
	}
}

// Server returns the base URL the client talks to.
func (c *Client) Server() string {
	return c.base
}

// apiURL builds a service/rest/v1 listing URL.
func (c *Client) apiURL(endpoint, repo, token string) string {
	u := fmt.Sprintf("%s/%s/%s?repository=%s", c.base, apiPath, endpoint, url.QueryEscape(repo))
	if token != "" {
		u += "&continuationToken=" + url.QueryEscape(token)
	}
	return u
}

// do performs one HTTP request with rate limiting and basic auth applied.
// Network-level failures come back as transport errors.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, apperrors.WrapInternal(err, "rate limiter wait")
	}
	if c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.WrapTransport(err, fmt.Sprintf("%s %s", req.Method, req.URL))
	}
	return resp, nil
}

// classifyStatus maps an unexpected HTTP status to the error taxonomy.
func classifyStatus(op string, status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperrors.Newf(apperrors.KindAuth, "%s: server returned %d", op, status)
	case status == http.StatusNotFound:
		return apperrors.Newf(apperrors.KindNotFound, "%s: server returned 404", op)
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		return apperrors.Newf(apperrors.KindTransport, "%s: server returned %d", op, status)
	default:
		return apperrors.Newf(apperrors.KindInternal, "%s: unexpected status %d", op, status)
	}
}

// classifyDecode maps a response body decode failure to the error taxonomy.
// A body that ends mid-value or a read error from the connection is a
// transport failure; malformed JSON on an intact body is not.
func classifyDecode(op string, err error) error {
	msg := fmt.Sprintf("%s: decode response", op)
	var nerr net.Error
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.As(err, &nerr) {
		return apperrors.WrapTransport(err, msg)
	}
	return apperrors.WrapInternal(err, msg)
}

// withRetry runs fn, retrying transport failures with exponential backoff
// up to the configured bound. Other error kinds fail immediately.
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
		if !apperrors.Retryable(err) {
			return backoff.Permanent(err)
		}
		c.log.Warn("%s failed (attempt %d): %v", op, attempt, err)
		return err
	}, policy)
}

// getJSON fetches a URL and decodes the JSON response body into out.
func (c *Client) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	op := fmt.Sprintf("GET %s", rawURL)
	return c.withRetry(ctx, op, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return apperrors.WrapInternal(err, op)
		}
		resp, err := c.do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			return classifyStatus(op, resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return classifyDecode(op, err)
		}
		return nil
	})
}

// ListComponents returns every component of a repository, following
// continuation tokens until the listing is exhausted.
func (c *Client) ListComponents(ctx context.Context, repo string) ([]Component, error) {
	c.log.Debug("listing components of %s on %s", repo, c.base)

	var items []Component
	token := ""
	for {
		var page componentsPage
		if err := c.getJSON(ctx, c.apiURL("components", repo, token), &page); err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
		if page.ContinuationToken == "" {
			return items, nil
		}
		token = page.ContinuationToken
	}
}

// ListAssets returns every asset of a repository, following continuation
// tokens until the listing is exhausted. No filename filter is applied;
// see FilterAssets.
func (c *Client) ListAssets(ctx context.Context, repo string) ([]Asset, error) {
	c.log.Debug("listing assets of %s on %s", repo, c.base)

	var items []Asset
	token := ""
	for {
		var page assetsPage
		if err := c.getJSON(ctx, c.apiURL("assets", repo, token), &page); err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
		if page.ContinuationToken == "" {
			return items, nil
		}
		token = page.ContinuationToken
	}
}

// DownloadAsset fetches one asset into dest, creating parent directories.
// The download streams into a .partial file that is renamed only after the
// published checksum matches, so an interrupted run never leaves a
// half-written artifact under its final name. A checksum mismatch triggers
// one re-download before the asset is declared corrupt. Returns the number
// of payload bytes fetched.
func (c *Client) DownloadAsset(ctx context.Context, asset Asset, dest string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, apperrors.WrapInternal(err, fmt.Sprintf("create directory for %s", dest))
	}

	algo, want := asset.Checksum.Preferred()
	partial := dest + PartialSuffix

	for attempt := 0; attempt < 2; attempt++ {
		n, got, err := c.fetchToFile(ctx, asset.DownloadURL, partial, algo)
		if err != nil {
			os.Remove(partial)
			return 0, err
		}
		if want == "" || strings.EqualFold(got, want) {
			if err := os.Rename(partial, dest); err != nil {
				os.Remove(partial)
				return 0, apperrors.WrapInternal(err, fmt.Sprintf("finalize %s", dest))
			}
			return n, nil
		}
		c.log.Warn("checksum mismatch for %s (%s: got %s, want %s), re-downloading",
			asset.Path, algo, got, want)
		os.Remove(partial)
	}
	return 0, apperrors.Newf(apperrors.KindIntegrity,
		"checksum mismatch for %s after re-download", asset.Path)
}

// fetchToFile streams a URL into dest, hashing the payload with algo as it
// is written. Transport failures restart the whole fetch.
func (c *Client) fetchToFile(ctx context.Context, rawURL, dest, algo string) (int64, string, error) {
	op := fmt.Sprintf("download %s", rawURL)
	var written int64
	var sum string

	err := c.withRetry(ctx, op, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return apperrors.WrapInternal(err, op)
		}
		resp, err := c.do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			return classifyStatus(op, resp.StatusCode)
		}

		f, err := os.Create(dest)
		if err != nil {
			return apperrors.WrapInternal(err, fmt.Sprintf("create %s", dest))
		}
		defer f.Close()

		hasher := newHasher(algo)
		var w io.Writer = f
		if hasher != nil {
			w = io.MultiWriter(f, hasher)
		}

		written, err = io.Copy(w, resp.Body)
		if err != nil {
			return apperrors.WrapTransport(err, op)
		}
		if hasher != nil {
			sum = hex.EncodeToString(hasher.Sum(nil))
		}
		return f.Close()
	})
	return written, sum, err
}

// newHasher returns a hash for the named algorithm, nil when unknown.
func newHasher(algo string) hash.Hash {
	switch algo {
	case "sha256":
		return sha256.New()
	case "sha1":
		return sha1.New()
	case "md5":
		return md5.New()
	}
	return nil
}

// hashFile computes the named hash over a file's contents.
func hashFile(path, algo string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := newHasher(algo)
	if hasher == nil {
		return "", fmt.Errorf("unknown hash algorithm %q", algo)
	}
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// LocalMatches reports whether the file at path already holds the asset's
// content, judged by the strongest checksum the server published. Assets
// without any published checksum match on existence alone.
func LocalMatches(asset Asset, path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	algo, want := asset.Checksum.Preferred()
	if want == "" {
		return true, nil
	}
	got, err := hashFile(path, algo)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(got, want), nil
}
