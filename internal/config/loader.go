// Copyright (c) 2026 VRT
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package config loads the YAML action file and resolves it against the
// flag/environment defaults into a validated configuration and action list.
//
// Resolution order follows the original tool: command-line flags and
// environment provide defaults, the action file's config section overrides
// them. All defaulting happens here, once; validation covers the whole file
// before any network call is made.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wesovilabs/koazee"
	"gopkg.in/yaml.v3"

	"github.com/vrtdev/nexus-api-tools/internal/models"
	apperrors "github.com/vrtdev/nexus-api-tools/internal/pkg/errors"
	"github.com/vrtdev/nexus-api-tools/internal/pkg/validator"
	"github.com/vrtdev/nexus-api-tools/internal/types"
)

// rawFile mirrors the action file's YAML layout. Unknown keys are rejected.
type rawFile struct {
	Config  rawConfig   `yaml:"config"`
	Actions []rawAction `yaml:"actions"`
}

// rawConfig is the file's config section. Pointer fields distinguish an
// absent key from an explicit zero so the file can override flag defaults
// either way.
type rawConfig struct {
	LocalPath               string   `yaml:"local_path"`
	SourceServer            string   `yaml:"source_server"`
	SourceUser              string   `yaml:"source_user"`
	SourcePassword          string   `yaml:"source_password"`
	DestinationServer       string   `yaml:"destination_server"`
	DestinationUser         string   `yaml:"destination_user"`
	DestinationPassword     string   `yaml:"destination_password"`
	DockerSourceServer      string   `yaml:"docker_source_server"`
	DockerDestinationServer string   `yaml:"docker_destination_server"`
	DefaultAction           string   `yaml:"default_action"`
	Overwrite               *bool    `yaml:"overwrite"`
	Workers                 *int     `yaml:"workers"`
	RetryAttempts           *int     `yaml:"retry_attempts"`
	RequestTimeout          *int     `yaml:"request_timeout"`
	RateLimit               *float64 `yaml:"rate_limit"`
	Insecure                *bool    `yaml:"insecure"`
}

// rawAction is one entry of the file's actions section.
type rawAction struct {
	Repo        string `yaml:"repo"`
	Description string `yaml:"description"`
	Type        string `yaml:"type"`
	Action      string `yaml:"action"`
	Path        string `yaml:"path"`
	Active      *bool  `yaml:"active"`
	Source      string `yaml:"source"`
	Destination string `yaml:"destination"`
}

// Load reads the action file at path, merges its config section over base,
// resolves per-action defaults and validates everything. It returns the
// effective configuration and the ordered action list.
func Load(path string, base types.Config) (*types.Config, []*models.Action, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, apperrors.WrapConfig(err, fmt.Sprintf("cannot open action file %s", path))
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var raw rawFile
	if err := dec.Decode(&raw); err != nil {
		return nil, nil, apperrors.WrapConfig(err, fmt.Sprintf("cannot parse action file %s", path))
	}
	if len(raw.Actions) == 0 {
		return nil, nil, apperrors.Newf(apperrors.KindConfig, "action file %s declares no actions", path)
	}

	cfg := merge(base, raw.Config)

	var problems []string
	actions := resolveActions(raw, &problems)
	validate(cfg, raw.Config.DefaultAction, actions, &problems)

	if len(problems) > 0 {
		return nil, nil, apperrors.Newf(apperrors.KindConfig,
			"invalid action file %s:\n  %s", path, strings.Join(problems, "\n  "))
	}
	return cfg, actions, nil
}

// Resolve produces the effective configuration for actions that were
// synthesized from command-line flags instead of an action file. The same
// defaulting and validation applies; there is no file section to merge.
func Resolve(base types.Config, actions []*models.Action) (*types.Config, error) {
	cfg := merge(base, rawConfig{})

	var problems []string
	for _, a := range actions {
		if err := validator.ValidateRepoName(a.Repo); err != nil {
			problems = append(problems, err.Error())
		}
	}
	validate(cfg, "", actions, &problems)

	if len(problems) > 0 {
		return nil, apperrors.Newf(apperrors.KindConfig,
			"invalid configuration:\n  %s", strings.Join(problems, "\n  "))
	}
	return cfg, nil
}

// merge applies the file's config section over the flag/env defaults and
// fills remaining zero values with the tool defaults.
func merge(base types.Config, rc rawConfig) *types.Config {
	cfg := base

	if rc.LocalPath != "" {
		cfg.LocalPath = rc.LocalPath
	}
	if rc.SourceServer != "" {
		cfg.Source.URL = rc.SourceServer
	}
	if rc.SourceUser != "" {
		cfg.Source.Username = rc.SourceUser
	}
	if rc.SourcePassword != "" {
		cfg.Source.Password = rc.SourcePassword
	}
	if rc.DestinationServer != "" {
		cfg.Destination.URL = rc.DestinationServer
	}
	if rc.DestinationUser != "" {
		cfg.Destination.Username = rc.DestinationUser
	}
	if rc.DestinationPassword != "" {
		cfg.Destination.Password = rc.DestinationPassword
	}
	if rc.DockerSourceServer != "" {
		cfg.Docker.SourceRegistry = rc.DockerSourceServer
	}
	if rc.DockerDestinationServer != "" {
		cfg.Docker.DestinationRegistry = rc.DockerDestinationServer
	}
	if rc.Overwrite != nil {
		cfg.Transfer.Overwrite = *rc.Overwrite
	}
	if rc.Workers != nil {
		cfg.Transfer.Workers = *rc.Workers
	}
	if rc.RetryAttempts != nil {
		cfg.Transfer.RetryAttempts = *rc.RetryAttempts
	}
	if rc.RequestTimeout != nil {
		cfg.Transfer.RequestTimeout = time.Duration(*rc.RequestTimeout) * time.Second
	}
	if rc.RateLimit != nil {
		cfg.Transfer.RateLimit = *rc.RateLimit
	}
	if rc.Insecure != nil {
		cfg.Insecure = *rc.Insecure
	}

	if cfg.LocalPath == "" {
		cfg.LocalPath = "."
	}
	if abs, err := filepath.Abs(cfg.LocalPath); err == nil {
		cfg.LocalPath = abs
	}
	if cfg.Transfer.Workers == 0 {
		cfg.Transfer.Workers = 1
	}
	if cfg.Transfer.RequestTimeout == 0 {
		cfg.Transfer.RequestTimeout = 5 * time.Minute
	}
	return &cfg
}

// resolveActions turns the raw action entries into model actions with all
// defaults applied. Structural problems are collected, not returned early,
// so one pass reports every mistake in the file.
func resolveActions(raw rawFile, problems *[]string) []*models.Action {
	defaultVerb := models.VerbBoth
	if raw.Config.DefaultAction != "" {
		if v, err := models.ParseVerb(raw.Config.DefaultAction); err == nil {
			defaultVerb = v
		}
		// An invalid default_action is reported by validate.
	}

	seen := make([]string, 0, len(raw.Actions))
	actions := make([]*models.Action, 0, len(raw.Actions))

	for i, ra := range raw.Actions {
		name := ra.Repo
		if name == "" {
			name = fmt.Sprintf("actions[%d]", i)
			*problems = append(*problems, fmt.Sprintf("%s: repo is required", name))
		} else if err := validator.ValidateRepoName(ra.Repo); err != nil {
			*problems = append(*problems, err.Error())
		}

		stream := koazee.StreamOf(seen)
		if contains, _ := stream.Contains(ra.Repo); contains && ra.Repo != "" {
			*problems = append(*problems, fmt.Sprintf("%s: duplicate repo", name))
		}
		seen = append(seen, ra.Repo)

		var format models.Format
		if ra.Type == "" {
			*problems = append(*problems, fmt.Sprintf("%s: type is required", name))
		} else {
			var err error
			if format, err = models.ParseFormat(ra.Type); err != nil {
				*problems = append(*problems, fmt.Sprintf("%s: %v", name, err))
			}
		}

		verb := defaultVerb
		if ra.Action != "" {
			var err error
			if verb, err = models.ParseVerb(ra.Action); err != nil {
				*problems = append(*problems, fmt.Sprintf("%s: %v", name, err))
				verb = defaultVerb
			}
		}

		path := ra.Path
		if path == "" {
			path = filepath.Join("data", ra.Repo)
		}
		if err := validator.ValidateRelativePath(path); err != nil {
			*problems = append(*problems, fmt.Sprintf("%s: %v", name, err))
		}

		active := true
		if ra.Active != nil {
			active = *ra.Active
		}

		a := models.NewAction(ra.Repo, format, verb, path, active)
		a.Description = ra.Description
		a.SourceRegistry = ra.Source
		a.DestinationRegistry = ra.Destination

		if format != models.FormatDocker && (ra.Source != "" || ra.Destination != "") {
			*problems = append(*problems, fmt.Sprintf(
				"%s: source/destination overrides are only valid for docker actions", name))
		}

		actions = append(actions, a)
	}
	return actions
}

// verbNeedsSource reports whether the verb reads from the source server.
func verbNeedsSource(v models.Verb) bool {
	return v == models.VerbGet || v == models.VerbBoth ||
		v == models.VerbListAssets || v == models.VerbListComponents
}

// verbNeedsDestination reports whether the verb writes to the destination.
func verbNeedsDestination(v models.Verb) bool {
	return v == models.VerbUpload || v == models.VerbBoth
}

// validate checks the merged configuration against what the active actions
// actually need. Inactive actions impose no requirements.
func validate(cfg *types.Config, rawDefaultAction string, actions []*models.Action, problems *[]string) {
	if rawDefaultAction != "" {
		if _, err := models.ParseVerb(rawDefaultAction); err != nil {
			*problems = append(*problems, fmt.Sprintf("default_action: %v", err))
		}
	}

	if err := validator.ValidateLocalPath(cfg.LocalPath); err != nil {
		*problems = append(*problems, err.Error())
	}
	if err := validator.ValidateWorkers(cfg.Transfer.Workers); err != nil {
		*problems = append(*problems, err.Error())
	}
	if err := validator.ValidateRetryAttempts(cfg.Transfer.RetryAttempts); err != nil {
		*problems = append(*problems, err.Error())
	}
	if cfg.Transfer.RateLimit < 0 {
		*problems = append(*problems, fmt.Sprintf("rate_limit must not be negative, got %g", cfg.Transfer.RateLimit))
	}
	if cfg.Transfer.RequestTimeout <= 0 {
		*problems = append(*problems, fmt.Sprintf("request_timeout must be positive, got %s", cfg.Transfer.RequestTimeout))
	}

	var needSource, needDestination bool
	for _, a := range actions {
		if !a.Active {
			continue
		}
		if a.Format == models.FormatDocker {
			if verbNeedsSource(a.Verb) && a.SourceRegistry == "" && cfg.Docker.SourceRegistry == "" {
				*problems = append(*problems, fmt.Sprintf("%s: docker_source_server is required", a.Repo))
			}
			if verbNeedsDestination(a.Verb) && a.DestinationRegistry == "" && cfg.Docker.DestinationRegistry == "" {
				*problems = append(*problems, fmt.Sprintf("%s: docker_destination_server is required", a.Repo))
			}
			for _, host := range []string{a.SourceRegistry, a.DestinationRegistry} {
				if host != "" {
					if err := validator.ValidateRegistryHost(host); err != nil {
						*problems = append(*problems, fmt.Sprintf("%s: %v", a.Repo, err))
					}
				}
			}
			continue
		}
		if verbNeedsSource(a.Verb) {
			needSource = true
		}
		if verbNeedsDestination(a.Verb) {
			needDestination = true
		}
	}

	if needSource {
		if cfg.Source.URL == "" {
			*problems = append(*problems, "source_server is required")
		} else if err := validator.ValidateServerURL(cfg.Source.URL); err != nil {
			*problems = append(*problems, err.Error())
		}
	}
	if needDestination {
		if cfg.Destination.URL == "" {
			*problems = append(*problems, "destination_server is required")
		} else if err := validator.ValidateServerURL(cfg.Destination.URL); err != nil {
			*problems = append(*problems, err.Error())
		}
	}

	for _, host := range []string{cfg.Docker.SourceRegistry, cfg.Docker.DestinationRegistry} {
		if host != "" {
			if err := validator.ValidateRegistryHost(host); err != nil {
				*problems = append(*problems, err.Error())
			}
		}
	}
}
