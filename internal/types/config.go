// Copyright (c) 2026 VRT
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package types defines configuration types for the Nexus copy tool.
package types

import "time"

// Config represents the complete application configuration after the
// action file, flags and environment have been merged.
type Config struct {
	LocalPath   string         // Working directory for downloaded artifacts and staged images
	Source      ServerConfig   // Source Nexus server
	Destination ServerConfig   // Destination Nexus server
	Docker      DockerConfig   // Docker registry endpoints backed by the Nexus servers
	Transfer    TransferConfig // Transfer behaviour shared by all actions
	Listen      ListenConfig   // Optional status HTTP server
	Insecure    bool           // Skip TLS certificate verification on both servers
	Verbose     bool           // Enable debug logging
}

// ServerConfig identifies one Nexus server and its credentials.
type ServerConfig struct {
	URL      string // Base URL (e.g., "https://nexus.example.com")
	Username string // Basic auth user, empty for anonymous
	Password string // Basic auth password
}

// DockerConfig defines the registry hosts used for docker-format actions.
// Nexus exposes docker repositories on dedicated connector ports, so these
// usually differ from the REST API hosts.
type DockerConfig struct {
	SourceRegistry      string // Source registry host[:port]
	DestinationRegistry string // Destination registry host[:port]
}

// TransferConfig defines transfer behaviour shared by all actions.
type TransferConfig struct {
	Workers        int           // Concurrent transfers within one action (default: 1)
	RetryAttempts  int           // Retries after a transport failure (default: 3)
	RequestTimeout time.Duration // Per-request timeout (default: 5m)
	RateLimit      float64       // Requests per second per server, 0 disables limiting
	Overwrite      bool          // Re-transfer artifacts that already exist at the destination
}

// ListenConfig defines the optional status HTTP server.
type ListenConfig struct {
	Enabled        bool     // Whether to serve run status over HTTP
	Host           string   // Listening address (e.g., "127.0.0.1")
	Port           int      // Listening port (e.g., 8080)
	AllowedOrigins []string // CORS allowed origins (e.g., ["*"])
}

// Masked returns a copy of s safe for logging, with the password replaced.
func (s ServerConfig) Masked() ServerConfig {
	if s.Password != "" {
		s.Password = "****"
	}
	return s
}
