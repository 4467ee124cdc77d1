// Copyright (c) 2026 VRT
// Licensed under the MIT License. See LICENSE file in the project root for details.

package nexus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/vrtdev/nexus-api-tools/internal/pkg/errors"
	"github.com/vrtdev/nexus-api-tools/internal/pkg/logger"
	"github.com/vrtdev/nexus-api-tools/internal/types"
)

func newTestClient(url, username, password string, retries int) *Client {
	return NewClient(ClientConfig{
		Server:        types.ServerConfig{URL: url, Username: username, Password: password},
		Timeout:       5 * time.Second,
		RetryAttempts: retries,
		RetryInterval: time.Millisecond,
	}, logger.NewNop())
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestListAssetsPagination(t *testing.T) {
	var sawAuth atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/service/rest/v1/assets" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("repository") != "repo-a" {
			t.Errorf("unexpected repository %q", r.URL.Query().Get("repository"))
		}
		if user, pass, ok := r.BasicAuth(); ok && user == "reader" && pass == "secret" {
			sawAuth.Store(true)
		}

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("continuationToken") {
		case "":
			json.NewEncoder(w).Encode(assetsPage{
				Items:             []Asset{{ID: "a1", Path: "dir/one.txt"}, {ID: "a2", Path: "dir/two.txt"}},
				ContinuationToken: "page2",
			})
		case "page2":
			json.NewEncoder(w).Encode(assetsPage{
				Items: []Asset{{ID: "a3", Path: "dir/three.txt"}},
			})
		default:
			t.Errorf("unexpected continuation token %q", r.URL.Query().Get("continuationToken"))
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "reader", "secret", 0)
	assets, err := c.ListAssets(context.Background(), "repo-a")
	if err != nil {
		t.Fatalf("ListAssets() error = %v", err)
	}
	if len(assets) != 3 {
		t.Errorf("expected 3 assets across pages, got %d", len(assets))
	}
	if !sawAuth.Load() {
		t.Error("expected basic auth credentials on requests")
	}
}

func TestListComponentsPagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/service/rest/v1/components" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("continuationToken") == "" {
			json.NewEncoder(w).Encode(componentsPage{
				Items:             []Component{{Name: "app", Version: "1.0"}},
				ContinuationToken: "next",
			})
			return
		}
		json.NewEncoder(w).Encode(componentsPage{
			Items: []Component{{Name: "app", Version: "2.0"}},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "", "", 0)
	components, err := c.ListComponents(context.Background(), "repo-a")
	if err != nil {
		t.Fatalf("ListComponents() error = %v", err)
	}
	if len(components) != 2 {
		t.Errorf("expected 2 components, got %d", len(components))
	}
}

func TestListAssetsNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unknown repository", http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "", "", 3)
	_, err := c.ListAssets(context.Background(), "missing-repo")
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if !apperrors.IsNotFound(err) {
		t.Errorf("expected not-found error, got kind %v", apperrors.KindOf(err))
	}
	if calls.Load() != 1 {
		t.Errorf("404 must not be retried, got %d calls", calls.Load())
	}
}

func TestListAssetsAuthErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "forbidden", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "x", "bad", 3)
	_, err := c.ListAssets(context.Background(), "repo-a")
	if !apperrors.IsAuth(err) {
		t.Errorf("expected auth error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("auth errors must not be retried, got %d calls", calls.Load())
	}
}

func TestRetryBoundPermanentFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "", "", 3)
	_, err := c.ListAssets(context.Background(), "repo-a")
	if !apperrors.IsTransport(err) {
		t.Errorf("expected transport error, got %v", err)
	}
	// The first attempt plus the configured number of retries, no more.
	if calls.Load() != 4 {
		t.Errorf("expected exactly 4 attempts, got %d", calls.Load())
	}
}

func TestRetryTransientFailureRecovers(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(assetsPage{Items: []Asset{{ID: "a1"}}})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "", "", 3)
	assets, err := c.ListAssets(context.Background(), "repo-a")
	if err != nil {
		t.Fatalf("expected recovery within the retry bound, got %v", err)
	}
	if len(assets) != 1 || calls.Load() != 3 {
		t.Errorf("expected 1 asset after 3 calls, got %d assets after %d calls", len(assets), calls.Load())
	}
}

func TestRetryTruncatedBodyRecovers(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			// A connection dropped mid-body reaches the decoder as an
			// unexpected EOF, not as a failed request.
			fmt.Fprint(w, `{"items": [{"id": "a1", "path": "dir/one.`)
			return
		}
		json.NewEncoder(w).Encode(assetsPage{Items: []Asset{{ID: "a1", Path: "dir/one.txt"}}})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "", "", 3)
	assets, err := c.ListAssets(context.Background(), "repo-a")
	if err != nil {
		t.Fatalf("expected the truncated body to be retried, got %v", err)
	}
	if len(assets) != 1 || calls.Load() != 2 {
		t.Errorf("expected 1 asset after 2 calls, got %d assets after %d calls", len(assets), calls.Load())
	}
}

func TestMalformedBodyNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items": ]`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "", "", 3)
	_, err := c.ListAssets(context.Background(), "repo-a")
	if err == nil {
		t.Fatal("expected error for malformed JSON")
	}
	if apperrors.IsTransport(err) {
		t.Errorf("malformed JSON on an intact body is not a transport error: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("malformed JSON must not be retried, got %d calls", calls.Load())
	}
}

func TestDownloadAsset(t *testing.T) {
	content := []byte("artifact payload")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "dir", "one.txt")
	asset := Asset{
		Path:        "dir/one.txt",
		DownloadURL: srv.URL + "/repository/repo-a/dir/one.txt",
		Checksum:    Checksum{SHA256: sha256Hex(content)},
	}

	c := newTestClient(srv.URL, "", "", 0)
	n, err := c.DownloadAsset(context.Background(), asset, dest)
	if err != nil {
		t.Fatalf("DownloadAsset() error = %v", err)
	}
	if n != int64(len(content)) {
		t.Errorf("expected %d bytes, got %d", len(content), n)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("reading downloaded file: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("downloaded content mismatch: %q", got)
	}
	if _, err := os.Stat(dest + ".partial"); !os.IsNotExist(err) {
		t.Error("partial file should be gone after a successful download")
	}
}

func TestDownloadAssetChecksumMismatch(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte("corrupted payload"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "one.txt")
	asset := Asset{
		Path:        "one.txt",
		DownloadURL: srv.URL + "/one.txt",
		Checksum:    Checksum{SHA256: sha256Hex([]byte("expected payload"))},
	}

	c := newTestClient(srv.URL, "", "", 0)
	_, err := c.DownloadAsset(context.Background(), asset, dest)
	if err == nil {
		t.Fatal("expected integrity error")
	}
	if !apperrors.IsIntegrity(err) {
		t.Errorf("expected integrity error, got kind %v", apperrors.KindOf(err))
	}
	if calls.Load() != 2 {
		t.Errorf("expected exactly one re-download, got %d fetches", calls.Load())
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("corrupt download must not be kept under the final name")
	}
	if _, err := os.Stat(dest + ".partial"); !os.IsNotExist(err) {
		t.Error("partial file should be cleaned up")
	}
}

func TestDownloadAssetRecoversOnRedownload(t *testing.T) {
	content := []byte("good payload")
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Write([]byte("flipped bits"))
			return
		}
		w.Write(content)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "one.txt")
	asset := Asset{
		Path:        "one.txt",
		DownloadURL: srv.URL + "/one.txt",
		Checksum:    Checksum{SHA256: sha256Hex(content)},
	}

	c := newTestClient(srv.URL, "", "", 0)
	if _, err := c.DownloadAsset(context.Background(), asset, dest); err != nil {
		t.Fatalf("expected recovery on re-download, got %v", err)
	}
	got, _ := os.ReadFile(dest)
	if string(got) != string(content) {
		t.Errorf("unexpected content after recovery: %q", got)
	}
}

func TestDownloadAssetNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "one.txt")
	asset := Asset{Path: "one.txt", DownloadURL: srv.URL + "/one.txt"}

	c := newTestClient(srv.URL, "", "", 0)
	_, err := c.DownloadAsset(context.Background(), asset, dest)
	if !apperrors.IsNotFound(err) {
		t.Errorf("expected not-found error, got %v", err)
	}
	if _, err := os.Stat(dest + ".partial"); !os.IsNotExist(err) {
		t.Error("partial file should be cleaned up after a failed download")
	}
}

func TestChecksumPreferred(t *testing.T) {
	tests := []struct {
		name     string
		checksum Checksum
		wantAlgo string
	}{
		{"sha256 wins", Checksum{SHA256: "a", SHA1: "b", MD5: "c"}, "sha256"},
		{"sha1 second", Checksum{SHA1: "b", MD5: "c"}, "sha1"},
		{"md5 last", Checksum{MD5: "c"}, "md5"},
		{"none", Checksum{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			algo, _ := tt.checksum.Preferred()
			if algo != tt.wantAlgo {
				t.Errorf("Preferred() algo = %q, want %q", algo, tt.wantAlgo)
			}
		})
	}
}

func TestLocalMatches(t *testing.T) {
	dir := t.TempDir()
	content := []byte("stable content")
	path := filepath.Join(dir, "file.bin")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		asset Asset
		path  string
		want  bool
	}{
		{
			name:  "missing file",
			asset: Asset{Checksum: Checksum{SHA256: sha256Hex(content)}},
			path:  filepath.Join(dir, "absent.bin"),
			want:  false,
		},
		{
			name:  "matching checksum",
			asset: Asset{Checksum: Checksum{SHA256: sha256Hex(content)}},
			path:  path,
			want:  true,
		},
		{
			name:  "mismatched checksum",
			asset: Asset{Checksum: Checksum{SHA256: sha256Hex([]byte("other content"))}},
			path:  path,
			want:  false,
		},
		{
			name:  "no checksum falls back to existence",
			asset: Asset{},
			path:  path,
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LocalMatches(tt.asset, tt.path)
			if err != nil {
				t.Fatalf("LocalMatches() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("LocalMatches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLocalMatchesUppercaseChecksum(t *testing.T) {
	dir := t.TempDir()
	content := []byte("case test")
	path := filepath.Join(dir, "file.bin")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	asset := Asset{Checksum: Checksum{SHA256: fmt.Sprintf("%X", sha256.Sum256(content))}}
	got, err := LocalMatches(asset, path)
	if err != nil {
		t.Fatal(err)
	}
	if !got {
		t.Error("checksum comparison should ignore case")
	}
}
