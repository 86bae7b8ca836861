// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/autobrr/debridauto/internal/autoadd"
	"github.com/autobrr/debridauto/internal/buildinfo"
	"github.com/autobrr/debridauto/internal/config"
	"github.com/autobrr/debridauto/internal/debrid"
	"github.com/autobrr/debridauto/internal/domain"
	"github.com/autobrr/debridauto/internal/notify"
)

func main() {
	config.InitDefaultLogger(buildinfo.Version)

	var rootCmd = &cobra.Command{
		Use:   "debridauto",
		Short: "Automatic debrid cache submission",
		Long: `debridauto - submits curated content hashes to a debrid service,
filtered by your quality, year and size preferences.`,
	}

	rootCmd.Version = buildinfo.Version

	rootCmd.AddCommand(RunRunCommand())
	rootCmd.AddCommand(RunWatchCommand())
	rootCmd.AddCommand(RunVersionCommand(buildinfo.Version))
	rootCmd.AddCommand(RunGenerateConfigCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func RunRunCommand() *cobra.Command {
	var (
		configDir string
		dataDir   string
		logPath   string
		catalog   string
		maxItems  int
		force     bool
		dryRun    bool
	)

	var command = &cobra.Command{
		Use:   "run",
		Short: "Execute a single pass",
		Long: `Execute one pass: load the catalog, filter it against preferences,
skip anything already processed and submit the remainder.

Per-item submission failures do not fail the run; the exit code is
non-zero only when the catalog or configuration cannot be loaded or
the service rejects the credentials.`,
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory path (default is OS-specific: ~/.config/debridauto/ or %APPDATA%\\debridauto\\). Can also be a direct path to a .toml file")
	command.Flags().StringVar(&dataDir, "data-dir", "", "data directory for the ledger and other files (default is next to config file)")
	command.Flags().StringVar(&logPath, "log-path", "", "log file path (default is stdout)")
	command.Flags().StringVar(&catalog, "catalog", "", "catalog file path (overrides catalogPath from config)")
	command.Flags().IntVar(&maxItems, "max-items", 0, "cap submissions for this pass (overrides maxItemsPerRun)")
	command.Flags().BoolVar(&force, "force", false, "resubmit hashes already recorded in the ledger")
	command.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be submitted without remote calls or ledger writes")

	command.Run = func(cmd *cobra.Command, args []string) {
		app := NewApplication(configDir, dataDir, logPath, catalog)
		app.runOnce(autoadd.Options{MaxItems: maxItems, Force: force, DryRun: dryRun})
	}

	return command
}

func RunWatchCommand() *cobra.Command {
	var (
		configDir string
		dataDir   string
		logPath   string
		catalog   string
		maxItems  int
		dryRun    bool
	)

	var command = &cobra.Command{
		Use:   "watch",
		Short: "Run passes on an interval",
		Long: `Run an immediate pass, then repeat every checkIntervalHours until
interrupted. Configuration changes are picked up between passes.`,
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory path (default is OS-specific: ~/.config/debridauto/ or %APPDATA%\\debridauto\\). Can also be a direct path to a .toml file")
	command.Flags().StringVar(&dataDir, "data-dir", "", "data directory for the ledger and other files (default is next to config file)")
	command.Flags().StringVar(&logPath, "log-path", "", "log file path (default is stdout)")
	command.Flags().StringVar(&catalog, "catalog", "", "catalog file path (overrides catalogPath from config)")
	command.Flags().IntVar(&maxItems, "max-items", 0, "cap submissions per pass (overrides maxItemsPerRun)")
	command.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be submitted without remote calls or ledger writes")

	command.Run = func(cmd *cobra.Command, args []string) {
		app := NewApplication(configDir, dataDir, logPath, catalog)
		app.watch(autoadd.Options{MaxItems: maxItems, DryRun: dryRun})
	}

	return command
}

func RunVersionCommand(version string) *cobra.Command {
	var command = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of debridauto",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	return command
}

func RunGenerateConfigCommand() *cobra.Command {
	var configDir string

	command := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate a default configuration file",
		Long: `Generate a default configuration file without running a pass.

If no --config-dir is specified, uses the OS-specific default location:
- Linux/macOS: ~/.config/debridauto/config.toml
- Windows: %APPDATA%\debridauto\config.toml

You can specify either a directory path or a direct file path:
- Directory: debridauto generate-config --config-dir /path/to/config/
- File: debridauto generate-config --config-dir /path/to/myconfig.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var configPath string
			if configDir != "" {
				if strings.HasSuffix(strings.ToLower(configDir), ".toml") {
					configPath = configDir
				} else if info, err := os.Stat(configDir); err == nil && !info.IsDir() {
					configPath = configDir
				} else {
					configPath = filepath.Join(configDir, "config.toml")
				}
			} else {
				defaultDir := config.GetDefaultConfigDir()
				configPath = filepath.Join(defaultDir, "config.toml")
			}

			if _, err := os.Stat(configPath); err == nil {
				cmd.Printf("Configuration file already exists at: %s\n", configPath)
				cmd.Println("Skipping generation to avoid overwriting existing configuration.")
				return nil
			}

			if err := config.WriteDefaultConfig(configPath); err != nil {
				return fmt.Errorf("failed to create configuration file: %w", err)
			}

			cmd.Printf("Configuration file created successfully at: %s\n", configPath)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")

	return command
}

func readSecret(prompt string) (string, error) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Print(prompt)
		secret, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read token: %w", err)
		}
		return string(secret), nil
	} else {
		fmt.Fprint(os.Stderr, prompt)
		var secret string
		if _, err := fmt.Scanln(&secret); err != nil {
			return "", fmt.Errorf("failed to read token from stdin: %w", err)
		}
		return secret, nil
	}
}

type Application struct {
	configDir   string
	dataDir     string
	logPath     string
	catalogPath string
}

func NewApplication(configDir, dataDir, logPath, catalogPath string) *Application {
	return &Application{
		configDir:   configDir,
		dataDir:     dataDir,
		logPath:     logPath,
		catalogPath: catalogPath,
	}
}

// setup initializes configuration and constructs the pipeline service.
func (app *Application) setup() (*config.AppConfig, *autoadd.Service) {
	cfg, err := config.New(app.configDir, buildinfo.Version)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize configuration")
	}

	// Override with CLI flags if provided
	if app.dataDir != "" {
		os.Setenv("DEBRIDAUTO__DATA_DIR", app.dataDir)
		cfg.SetDataDir(app.dataDir)
	}
	if app.logPath != "" {
		os.Setenv("DEBRIDAUTO__LOG_PATH", app.logPath)
		cfg.Config.LogPath = app.logPath
	}
	if app.catalogPath != "" {
		cfg.Config.CatalogPath = app.catalogPath
	}

	cfg.ApplyLogConfig()

	log.Info().Str("version", buildinfo.Version).Msg("Starting debridauto")

	if strings.TrimSpace(cfg.Config.APIToken) == "" {
		token, err := readSecret("Enter debrid API token: ")
		if err != nil {
			log.Fatal().Err(err).Msg("No API token configured")
		}
		if strings.TrimSpace(token) == "" {
			log.Fatal().Msg("API token cannot be empty")
		}
		cfg.Config.APIToken = strings.TrimSpace(token)
	}

	client := debrid.NewClient(cfg.Config.APIURL, cfg.Config.APIToken)
	notifier := notify.NewService(cfg.Config)

	svc := autoadd.NewService(cfg.Config, cfg.GetCatalogPath(), cfg.GetLedgerPath(), client, notifier)

	return cfg, svc
}

func (app *Application) runOnce(opts autoadd.Options) {
	_, svc := app.setup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := svc.Run(ctx, opts)
	if err != nil {
		log.Error().Err(err).Msg("Run failed")
		os.Exit(1)
	}

	log.Info().Str("outcome", autoadd.Describe(report)).Msg("Run complete")
	os.Exit(0)
}

func (app *Application) watch(opts autoadd.Options) {
	cfg, svc := app.setup()

	scheduler := autoadd.NewScheduler(svc, time.Duration(cfg.Config.CheckIntervalHours)*time.Hour, opts)
	cfg.RegisterReloadListener(func(conf *domain.Config) {
		svc.UpdateConfig(conf)
		scheduler.SetInterval(time.Duration(conf.CheckIntervalHours) * time.Hour)
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	defer stop()

	if err := scheduler.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("Watch loop stopped unexpectedly")
		os.Exit(1)
	}

	log.Info().Msg("Shutting down")
	os.Exit(0)
}
