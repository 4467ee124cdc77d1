// Copyright (c) 2026 VRT
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package main is the entry point for the nexus-copy command.
// It loads the action file (or synthesizes actions from the direct
// repository flags), wires the Nexus and registry clients, and executes
// the migration run.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vrtdev/nexus-api-tools/internal/config"
	"github.com/vrtdev/nexus-api-tools/internal/docker"
	"github.com/vrtdev/nexus-api-tools/internal/handler"
	"github.com/vrtdev/nexus-api-tools/internal/migrate"
	"github.com/vrtdev/nexus-api-tools/internal/models"
	"github.com/vrtdev/nexus-api-tools/internal/nexus"
	apperrors "github.com/vrtdev/nexus-api-tools/internal/pkg/errors"
	"github.com/vrtdev/nexus-api-tools/internal/pkg/logger"
	"github.com/vrtdev/nexus-api-tools/internal/report"
	"github.com/vrtdev/nexus-api-tools/internal/repository"
	"github.com/vrtdev/nexus-api-tools/internal/router"
	"github.com/vrtdev/nexus-api-tools/internal/types"
)

// exitCode is set by run and picked up by main, so deferred cleanup still
// executes before the process exits.
var exitCode int

// rootCmd is the root command for the CLI application.
var rootCmd = &cobra.Command{
	Use:   "nexus-copy",
	Short: "Copy artifact repositories between Nexus servers",
	Long: `nexus-copy migrates hosted repositories between two Sonatype Nexus
servers. Generic formats (raw, maven2, npm, pypi, apt, yum, rubygems,
nuget) move through the Nexus REST API with a local staging directory;
docker repositories move through the registry v2 protocol with an OCI
image layout as the staging area. Runs are idempotent: artifacts already
present at the destination are skipped by checksum or digest.`,
	Run: run,
}

// init initializes command-line flags and environment variable bindings.
// Every flag can also be set through the environment with the NEXUS_
// prefix and underscores replacing hyphens, e.g. NEXUS_SOURCE_PASSWORD
// for --source-password.
func init() {
	rootCmd.Flags().StringP("file", "f", "", "YAML action file describing the migration")

	rootCmd.Flags().String("source-server", "", "Source Nexus base URL")
	rootCmd.Flags().String("source-user", "", "Source Nexus username")
	rootCmd.Flags().String("source-password", "", "Source Nexus password")
	rootCmd.Flags().String("destination-server", "", "Destination Nexus base URL")
	rootCmd.Flags().String("destination-user", "", "Destination Nexus username")
	rootCmd.Flags().String("destination-password", "", "Destination Nexus password")
	rootCmd.Flags().String("docker-source-server", "", "Source Docker registry host[:port]")
	rootCmd.Flags().String("docker-destination-server", "", "Destination Docker registry host[:port]")

	rootCmd.Flags().StringP("local-path", "p", "", "Working directory for staged artifacts (default: current directory)")

	rootCmd.Flags().String("list-assets", "", "List the assets of one source repository and exit")
	rootCmd.Flags().String("list-components", "", "List the components of one source repository and exit")
	rootCmd.Flags().String("download-assets", "", "Download the assets of one source repository")
	rootCmd.Flags().String("upload-components", "", "Upload staged artifacts to one destination repository")
	rootCmd.Flags().String("upload-type", "", "Repository format for --upload-components (raw, maven2, npm, ...)")

	rootCmd.Flags().Bool("overwrite", false, "Re-transfer artifacts that already exist at the destination")
	rootCmd.Flags().Int("workers", 1, "Concurrent transfers within one action")
	rootCmd.Flags().Int("retry-attempts", 3, "Retries after a transport failure")
	rootCmd.Flags().Int("request-timeout", 300, "Per-request timeout in seconds")
	rootCmd.Flags().Float64("rate-limit", 0, "Requests per second per server, 0 disables limiting")
	rootCmd.Flags().Bool("insecure", false, "Skip TLS certificate verification")

	rootCmd.Flags().String("listen", "", "Serve run status over HTTP on host:port (e.g. 127.0.0.1:8080)")
	rootCmd.Flags().StringSlice("cors-allowed-origins", []string{"*"}, "CORS allowed origins for the status API")

	rootCmd.Flags().BoolP("verbose", "v", false, "Enable debug logging")

	viper.BindPFlags(rootCmd.Flags())

	// Set environment variable prefix to "NEXUS"
	viper.SetEnvPrefix("NEXUS")
	viper.AutomaticEnv()
	// Replace hyphens with underscores in environment variable names
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
}

// baseConfig assembles the flag/environment configuration the action file
// is resolved against.
func baseConfig() (types.Config, error) {
	cfg := types.Config{
		LocalPath: viper.GetString("local-path"),
		Source: types.ServerConfig{
			URL:      viper.GetString("source-server"),
			Username: viper.GetString("source-user"),
			Password: viper.GetString("source-password"),
		},
		Destination: types.ServerConfig{
			URL:      viper.GetString("destination-server"),
			Username: viper.GetString("destination-user"),
			Password: viper.GetString("destination-password"),
		},
		Docker: types.DockerConfig{
			SourceRegistry:      viper.GetString("docker-source-server"),
			DestinationRegistry: viper.GetString("docker-destination-server"),
		},
		Transfer: types.TransferConfig{
			Workers:        viper.GetInt("workers"),
			RetryAttempts:  viper.GetInt("retry-attempts"),
			RequestTimeout: time.Duration(viper.GetInt("request-timeout")) * time.Second,
			RateLimit:      viper.GetFloat64("rate-limit"),
			Overwrite:      viper.GetBool("overwrite"),
		},
		Insecure: viper.GetBool("insecure"),
		Verbose:  viper.GetBool("verbose"),
	}

	if addr := viper.GetString("listen"); addr != "" {
		host, portStr, err := net.SplitHostPort(addr)
		if err != nil {
			return cfg, apperrors.WrapConfig(err, fmt.Sprintf("invalid --listen address %q", addr))
		}
		port, err := strconv.Atoi(portStr)
		if err != nil || port < 1 || port > 65535 {
			return cfg, apperrors.Newf(apperrors.KindConfig, "invalid --listen port %q", portStr)
		}
		cfg.Listen = types.ListenConfig{
			Enabled:        true,
			Host:           host,
			Port:           port,
			AllowedOrigins: viper.GetStringSlice("cors-allowed-origins"),
		}
	}
	return cfg, nil
}

// directRequested reports whether any of the single-repository flags were
// given.
func directRequested() bool {
	return viper.GetString("list-assets") != "" ||
		viper.GetString("list-components") != "" ||
		viper.GetString("download-assets") != "" ||
		viper.GetString("upload-components") != ""
}

// directActions synthesizes the action list for the single-repository
// flags, in the order the flags are documented: list, download, upload.
// The staging directory is the local path root itself.
func directActions() ([]*models.Action, error) {
	var actions []*models.Action
	if repo := viper.GetString("list-assets"); repo != "" {
		actions = append(actions, models.NewAction(repo, models.FormatRaw, models.VerbListAssets, ".", true))
	}
	if repo := viper.GetString("list-components"); repo != "" {
		actions = append(actions, models.NewAction(repo, models.FormatRaw, models.VerbListComponents, ".", true))
	}
	if repo := viper.GetString("download-assets"); repo != "" {
		actions = append(actions, models.NewAction(repo, models.FormatRaw, models.VerbGet, ".", true))
	}
	if repo := viper.GetString("upload-components"); repo != "" {
		format, err := models.ParseFormat(viper.GetString("upload-type"))
		if err != nil {
			return nil, apperrors.Newf(apperrors.KindConfig,
				"--upload-components requires a valid --upload-type: %v", err)
		}
		actions = append(actions, models.NewAction(repo, format, models.VerbUpload, ".", true))
	}
	return actions, nil
}

// run resolves the configuration and executes the migration. It stores the
// process exit code instead of exiting so deferred cleanup runs.
func run(cmd *cobra.Command, args []string) {
	log := logger.New(viper.GetBool("verbose"))

	base, err := baseConfig()
	if err != nil {
		log.Error("%v", err)
		exitCode = 2
		return
	}

	file := viper.GetString("file")
	direct := directRequested()

	switch {
	case file == "" && !direct:
		cmd.Help()
		exitCode = 2
		return
	case file != "" && direct:
		log.Error("--file cannot be combined with the single-repository flags")
		exitCode = 2
		return
	}

	var cfg *types.Config
	var actions []*models.Action
	label := file
	if file != "" {
		cfg, actions, err = config.Load(file, base)
	} else {
		label = "command line"
		actions, err = directActions()
		if err == nil {
			cfg, err = config.Resolve(base, actions)
		}
	}
	if err != nil {
		log.Error("%v", err)
		exitCode = 2
		return
	}

	exitCode = execute(cfg, actions, label, log)
}

// execute wires the clients and the coordinator, runs the actions, and
// returns the process exit code.
func execute(cfg *types.Config, actions []*models.Action, label string, log logger.Logger) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	migrationRun := models.NewMigrationRun(uuid.New().String(), label, actions)

	log.Info("Local path: %s", cfg.LocalPath)
	log.Debug("Source: %+v", cfg.Source.Masked())
	log.Debug("Destination: %+v", cfg.Destination.Masked())
	warnDockerHost(actions, log)

	nexusCfg := func(server types.ServerConfig) nexus.ClientConfig {
		return nexus.ClientConfig{
			Server:        server,
			Timeout:       cfg.Transfer.RequestTimeout,
			RetryAttempts: cfg.Transfer.RetryAttempts,
			RateLimit:     cfg.Transfer.RateLimit,
			Insecure:      cfg.Insecure,
		}
	}
	src := nexus.NewClient(nexusCfg(cfg.Source), log)
	dest := nexus.NewClient(nexusCfg(cfg.Destination), log)

	registryFactory := func(server types.ServerConfig) migrate.RegistryFactory {
		return func(host string) migrate.RegistryAPI {
			return docker.NewClient(docker.ClientConfig{
				Registry:      host,
				Username:      server.Username,
				Password:      server.Password,
				Insecure:      cfg.Insecure,
				RetryAttempts: cfg.Transfer.RetryAttempts,
			}, log)
		}
	}

	reporter := report.New(os.Stdout)
	coordinator := migrate.New(cfg, src, dest,
		registryFactory(cfg.Source), registryFactory(cfg.Destination),
		reporter, log)

	if cfg.Listen.Enabled {
		shutdown := startStatusServer(cfg, migrationRun, log)
		defer shutdown()
	}

	interrupted := false
	if err := coordinator.Run(ctx, migrationRun); err != nil {
		log.Warn("Run interrupted: %v", err)
		interrupted = true
	}

	code := reporter.Summary(migrationRun)
	if interrupted && code == 0 {
		code = 1
	}
	return code
}

// startStatusServer serves the read-only run status API until the returned
// shutdown function is called.
func startStatusServer(cfg *types.Config, migrationRun *models.MigrationRun, log logger.Logger) func() {
	repo := repository.NewInMemoryRunRepository()
	repo.SetRun(migrationRun)

	statusHandler := handler.NewStatusHandler(repo, log)
	engine := router.New(statusHandler).Setup(cfg)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Listen.Host, cfg.Listen.Port),
		Handler: engine,
	}
	go func() {
		log.Info("Status API listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Status API: %v", err)
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Status API shutdown: %v", err)
		}
	}
}

// warnDockerHost warns when docker actions run on a machine that hosts a
// Docker daemon. The transfer never touches the daemon, but staging a whole
// registry next to one is usually a disk-space surprise.
func warnDockerHost(actions []*models.Action, log logger.Logger) {
	for _, a := range actions {
		if a.Active && a.Format == models.FormatDocker {
			if _, err := os.Stat("/var/run/docker.sock"); err == nil {
				log.Warn("Docker actions stage images on local disk; this host runs a Docker daemon, check free space")
			}
			return
		}
	}
}

// main is the application entry point.
func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
	os.Exit(exitCode)
}
