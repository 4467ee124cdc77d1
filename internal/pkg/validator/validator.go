// Copyright (c) 2026 VRT
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package validator provides input validation for configuration values.
package validator

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// repoNamePattern matches Nexus repository names: leading alphanumeric,
	// then alphanumerics, dots, underscores and hyphens.
	repoNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

	// registryHostPattern matches a bare registry host with an optional port,
	// e.g. "registry.example.com" or "localhost:5000".
	registryHostPattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9.-]*[a-zA-Z0-9])?(:[0-9]{1,5})?$`)
)

// ValidateRepoName checks that name is a plausible Nexus repository name.
func ValidateRepoName(name string) error {
	if name == "" {
		return fmt.Errorf("repository name is empty")
	}
	if len(name) > 200 {
		return fmt.Errorf("repository name too long: %d characters", len(name))
	}
	if !repoNamePattern.MatchString(name) {
		return fmt.Errorf("invalid repository name: %q", name)
	}
	return nil
}

// ValidateServerURL checks that raw is an absolute http or https URL
// with a host and no embedded credentials.
func ValidateServerURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("server URL is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid server URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server URL %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("server URL %q has no host", raw)
	}
	if u.User != nil {
		return fmt.Errorf("server URL %q must not embed credentials", raw)
	}
	return nil
}

// ValidateRegistryHost checks that host is a bare host[:port] suitable
// for a Docker registry reference. Schemes belong to the server URL, not
// the registry host.
func ValidateRegistryHost(host string) error {
	if host == "" {
		return fmt.Errorf("registry host is empty")
	}
	if strings.Contains(host, "://") {
		return fmt.Errorf("registry host %q must not include a scheme", host)
	}
	if strings.Contains(host, "/") {
		return fmt.Errorf("registry host %q must not include a path", host)
	}
	if !registryHostPattern.MatchString(host) {
		return fmt.Errorf("invalid registry host: %q", host)
	}
	return nil
}

// ValidateLocalPath checks that path is a usable working directory root.
func ValidateLocalPath(path string) error {
	if path == "" {
		return fmt.Errorf("local path is empty")
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("local path %q must be absolute", path)
	}
	return nil
}

// ValidateRelativePath checks that path stays inside the directory it is
// joined to. Nexus asset paths become filesystem paths, so a path that
// climbs out with ".." must be rejected before any file is written.
func ValidateRelativePath(path string) error {
	if path == "" {
		return fmt.Errorf("relative path is empty")
	}
	if filepath.IsAbs(path) || strings.HasPrefix(path, "/") {
		return fmt.Errorf("path %q must be relative", path)
	}
	clean := filepath.Clean(path)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path %q escapes the working directory", path)
	}
	return nil
}

// ValidateWorkers checks the per-action concurrency limit.
func ValidateWorkers(n int) error {
	if n < 1 || n > 64 {
		return fmt.Errorf("workers must be between 1 and 64, got %d", n)
	}
	return nil
}

// ValidateRetryAttempts checks the transport retry budget.
func ValidateRetryAttempts(n int) error {
	if n < 0 || n > 10 {
		return fmt.Errorf("retry attempts must be between 0 and 10, got %d", n)
	}
	return nil
}
