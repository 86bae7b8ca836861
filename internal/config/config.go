// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/autobrr/debridauto/internal/domain"
)

var envPrefix = "DEBRIDAUTO__"

type AppConfig struct {
	Config  *domain.Config
	viper   *viper.Viper
	dataDir string
	version string

	listenersMu sync.RWMutex
	listeners   []func(*domain.Config)
}

func New(configDirOrPath string, versions ...string) (*AppConfig, error) {
	version := "dev"
	if len(versions) > 0 && strings.TrimSpace(versions[0]) != "" {
		version = versions[0]
	}

	c := &AppConfig{
		viper:   viper.New(),
		Config:  &domain.Config{},
		version: version,
	}

	// Set defaults
	c.defaults()

	// Load from config file
	if err := c.load(configDirOrPath); err != nil {
		return nil, err
	}

	// Override with environment variables
	c.loadFromEnv()

	// Unmarshal the configuration
	if err := c.viper.Unmarshal(c.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	c.Config.Version = c.version

	// Resolve data directory after config is unmarshaled
	c.resolveDataDir()

	// Watch for config changes
	c.watchConfig()

	return c, nil
}

func (c *AppConfig) defaults() {
	c.viper.SetDefault("logLevel", "INFO")
	c.viper.SetDefault("logPath", "")
	c.viper.SetDefault("logMaxSize", 50)
	c.viper.SetDefault("logMaxBackups", 3)
	c.viper.SetDefault("dataDir", "") // Empty means auto-detect (next to config file)

	c.viper.SetDefault("catalogPath", "hashlist.json")

	c.viper.SetDefault("apiUrl", "https://api.real-debrid.com/rest/1.0")
	c.viper.SetDefault("apiToken", "")
	c.viper.SetDefault("requestDelaySeconds", 2)

	c.viper.SetDefault("qualityPreferences", []string{"2160p", "1080p", "720p"})
	c.viper.SetDefault("minYear", 2020)
	c.viper.SetDefault("maxYear", time.Now().Year())
	c.viper.SetDefault("minSizeGb", 0.5)
	c.viper.SetDefault("maxSizeGb", 50.0)
	c.viper.SetDefault("excludeKeywords", []string{
		"cam", "ts", "screener", "workprint", "telecine",
		"r5", "dvdscr", "hdcam", "hdts",
	})
	c.viper.SetDefault("includeKeywords", []string{})

	c.viper.SetDefault("maxItemsPerRun", 30)
	c.viper.SetDefault("checkIntervalHours", 6)

	c.viper.SetDefault("telegramBotToken", "")
	c.viper.SetDefault("telegramChatId", "")
	c.viper.SetDefault("webhookUrls", []string{})
	c.viper.SetDefault("notifyUrls", []string{})
}

func (c *AppConfig) load(configDirOrPath string) error {
	c.viper.SetConfigType("toml")

	if configDirOrPath != "" {
		// Determine if this is a directory or file path
		configPath := c.resolveConfigPath(configDirOrPath)
		c.viper.SetConfigFile(configPath)

		// Try to read the config
		if err := c.viper.ReadInConfig(); err != nil {
			// If file doesn't exist, create it
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				if err := c.writeDefaultConfig(configPath); err != nil {
					return err
				}
				// Re-read after creating
				if err := c.viper.ReadInConfig(); err != nil {
					return fmt.Errorf("failed to read newly created config: %w", err)
				}
				return nil
			}
			return fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		// Search for config in standard locations
		c.viper.SetConfigName("config")
		c.viper.AddConfigPath(".")                   // Current directory
		c.viper.AddConfigPath(GetDefaultConfigDir()) // OS-specific config directory

		// Try to read existing config
		if err := c.viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				// No config found, create in OS-specific location
				defaultConfigPath := filepath.Join(GetDefaultConfigDir(), "config.toml")
				if err := c.writeDefaultConfig(defaultConfigPath); err != nil {
					return err
				}
				// Set the config file explicitly and read it
				c.viper.SetConfigFile(defaultConfigPath)
				if err := c.viper.ReadInConfig(); err != nil {
					return fmt.Errorf("failed to read newly created config: %w", err)
				}
				// Explicitly set data directory for newly created config
				c.dataDir = filepath.Dir(defaultConfigPath)
				return nil
			}
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	return nil
}

func (c *AppConfig) loadFromEnv() {
	// DO NOT use AutomaticEnv() - it reads ALL env vars and causes conflicts with K8s
	// Instead, explicitly bind only the environment variables we want

	c.viper.BindEnv("logLevel", envPrefix+"LOG_LEVEL")
	c.viper.BindEnv("logPath", envPrefix+"LOG_PATH")
	c.viper.BindEnv("logMaxSize", envPrefix+"LOG_MAX_SIZE")
	c.viper.BindEnv("logMaxBackups", envPrefix+"LOG_MAX_BACKUPS")
	c.viper.BindEnv("dataDir", envPrefix+"DATA_DIR")

	c.viper.BindEnv("catalogPath", envPrefix+"CATALOG_PATH")

	c.viper.BindEnv("apiUrl", envPrefix+"API_URL")
	c.bindOrReadFromFile("apiToken", envPrefix+"API_TOKEN")
	c.viper.BindEnv("requestDelaySeconds", envPrefix+"REQUEST_DELAY_SECONDS")

	c.viper.BindEnv("minYear", envPrefix+"MIN_YEAR")
	c.viper.BindEnv("maxYear", envPrefix+"MAX_YEAR")
	c.viper.BindEnv("minSizeGb", envPrefix+"MIN_SIZE_GB")
	c.viper.BindEnv("maxSizeGb", envPrefix+"MAX_SIZE_GB")

	c.viper.BindEnv("maxItemsPerRun", envPrefix+"MAX_ITEMS_PER_RUN")
	c.viper.BindEnv("checkIntervalHours", envPrefix+"CHECK_INTERVAL_HOURS")

	c.bindOrReadFromFile("telegramBotToken", envPrefix+"TELEGRAM_BOT_TOKEN")
	c.viper.BindEnv("telegramChatId", envPrefix+"TELEGRAM_CHAT_ID")
}

func (c *AppConfig) watchConfig() {
	c.viper.WatchConfig()
	c.viper.OnConfigChange(func(e fsnotify.Event) {
		log.Info().Msgf("Config file changed: %s", e.Name)

		// Unmarshal into a fresh struct and swap the pointer, so a pass
		// holding the previous config keeps reading a consistent snapshot.
		fresh := &domain.Config{}
		if err := c.viper.Unmarshal(fresh); err != nil {
			log.Error().Err(err).Msg("Failed to reload configuration")
			return
		}
		c.Config = fresh

		// Apply dynamic changes
		c.applyDynamicChanges()
	})
}

func (c *AppConfig) applyDynamicChanges() {
	c.Config.Version = c.version
	c.ApplyLogConfig()

	c.notifyListeners()
}

// RegisterReloadListener registers a callback that's invoked when the configuration file is reloaded.
func (c *AppConfig) RegisterReloadListener(fn func(*domain.Config)) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *AppConfig) notifyListeners() {
	c.listenersMu.RLock()
	listeners := append([]func(*domain.Config){}, c.listeners...)
	c.listenersMu.RUnlock()

	if len(listeners) == 0 {
		return
	}

	copied := *c.Config
	for _, listener := range listeners {
		listener(&copied)
	}
}

func (c *AppConfig) writeDefaultConfig(path string) error {
	// Check if config already exists
	if _, err := os.Stat(path); err == nil {
		log.Debug().Msgf("Config file already exists at: %s", path)
		return nil
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}
	log.Debug().Msgf("Created config directory: %s", dir)

	// Create config template
	configTemplate := `# config.toml - Auto-generated on first run

# Log level
# Default: "INFO"
# Options: "ERROR", "DEBUG", "INFO", "WARN", "TRACE"
logLevel = "{{ .logLevel }}"

# Log file path
# If not defined, logs to stdout
# Optional
#logPath = "log/debridauto.log"

# Log rotation
# Maximum log file size in megabytes before rotation
# Default: {{ .logMaxSize }}
#logMaxSize = {{ .logMaxSize }}

# Number of rotated log files to retain (0 keeps all)
# Default: {{ .logMaxBackups }}
#logMaxBackups = {{ .logMaxBackups }}

# Data directory (default: next to config file)
# The processed-hash ledger (processed.json) is kept inside this directory
#dataDir = "/var/db/debridauto"

# Hash list catalog file
# Relative paths are resolved against the data directory
# Default: "hashlist.json"
#catalogPath = "hashlist.json"

# Debrid service API
# Default: Real-Debrid REST endpoint
#apiUrl = "https://api.real-debrid.com/rest/1.0"

# API token for the debrid service
# Can also be supplied via {{ .envPrefix }}API_TOKEN
apiToken = ""

# Seconds to wait between add requests
# Default: {{ .requestDelaySeconds }}
#requestDelaySeconds = {{ .requestDelaySeconds }}

# Quality preferences in order of preference (best first)
# An empty list admits every quality
qualityPreferences = ["2160p", "1080p", "720p"]

# Release year window (inclusive)
minYear = {{ .minYear }}
maxYear = {{ .maxYear }}

# Size window in GB (inclusive)
minSizeGb = {{ .minSizeGb }}
maxSizeGb = {{ .maxSizeGb }}

# Titles containing any of these substrings are skipped (case-insensitive)
excludeKeywords = ["cam", "ts", "screener", "workprint", "telecine", "r5", "dvdscr", "hdcam", "hdts"]

# When set, a title must contain at least one of these substrings
#includeKeywords = ["bluray", "web-dl", "webrip", "hdtv", "brrip"]

# Maximum number of submissions per run
# Default: {{ .maxItemsPerRun }}
maxItemsPerRun = {{ .maxItemsPerRun }}

# Hours between runs in watch mode
# Default: {{ .checkIntervalHours }}
checkIntervalHours = {{ .checkIntervalHours }}

# Telegram notifications
# Can also be supplied via {{ .envPrefix }}TELEGRAM_BOT_TOKEN / {{ .envPrefix }}TELEGRAM_CHAT_ID
#telegramBotToken = ""
#telegramChatId = ""

# Generic webhook endpoints that receive the run summary
#webhookUrls = [
#       "https://hooks.example.com/services/xxx",
#]

# Additional notification URLs, passed to the router verbatim
#notifyUrls = []
`

	// Prepare template data
	data := map[string]any{
		"logLevel":            c.viper.GetString("logLevel"),
		"logMaxSize":          c.viper.GetInt("logMaxSize"),
		"logMaxBackups":       c.viper.GetInt("logMaxBackups"),
		"requestDelaySeconds": c.viper.GetInt("requestDelaySeconds"),
		"minYear":             c.viper.GetInt("minYear"),
		"maxYear":             c.viper.GetInt("maxYear"),
		"minSizeGb":           c.viper.GetFloat64("minSizeGb"),
		"maxSizeGb":           c.viper.GetFloat64("maxSizeGb"),
		"maxItemsPerRun":      c.viper.GetInt("maxItemsPerRun"),
		"checkIntervalHours":  c.viper.GetInt("checkIntervalHours"),
		"envPrefix":           envPrefix,
	}

	// Parse and execute template
	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse config template: %w", err)
	}

	// Create config file
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := tmpl.Execute(f, data); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Info().Msgf("Created default config file: %s", path)
	return nil
}

// Helper functions

// GetDefaultConfigDir returns the OS-specific config directory
func GetDefaultConfigDir() string {
	// First check if XDG_CONFIG_HOME is set (Docker containers set this to /config)
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		// If XDG_CONFIG_HOME is /config (Docker), use it directly
		if xdgConfig == "/config" {
			return xdgConfig
		}
		// Otherwise append debridauto subdirectory
		return filepath.Join(xdgConfig, "debridauto")
	}

	switch runtime.GOOS {
	case "windows":
		// Use %APPDATA%\debridauto on Windows
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "debridauto")
		}
		// Fallback to home directory
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "AppData", "Roaming", "debridauto")
	default:
		// Use ~/.config/debridauto for Unix-like systems
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "debridauto")
	}
}

func (c *AppConfig) ApplyLogConfig() {
	zerolog.TimeFieldFormat = time.RFC3339

	setLogLevel(c.Config.LogLevel)

	writer := c.baseLogWriter()

	if c.Config.LogPath != "" {
		multiWriter, err := setupLogFile(c.Config.LogPath, writer, c.Config.LogMaxSize, c.Config.LogMaxBackups)
		if err != nil {
			log.Error().Err(err).Msg("Failed to setup log file")
		} else {
			writer = multiWriter
		}
	}

	log.Logger = log.Logger.Output(writer)
}

func setLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Logger.Level(lvl)
}

func setupLogFile(path string, base io.Writer, maxSize, maxBackups int) (io.Writer, error) {
	// Create log directory if needed
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	if maxSize <= 0 {
		maxSize = 50
	}

	if maxBackups < 0 {
		maxBackups = 0
	}

	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
	}

	return io.MultiWriter(base, rotator), nil
}

func baseLogWriter(version string) io.Writer {
	if isDevBuild(version) {
		writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		writer.PartsOrder = []string{zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName}
		writer.FormatTimestamp = func(i any) string {
			if i == nil {
				return ""
			}
			return fmt.Sprint(i)
		}
		writer.FormatMessage = func(i any) string {
			if i == nil {
				return ""
			}
			msg := strings.TrimSpace(fmt.Sprint(i))
			if msg == "" {
				return ""
			}
			return msg
		}
		return writer
	}
	return os.Stderr
}

func (c *AppConfig) baseLogWriter() io.Writer {
	return baseLogWriter(c.version)
}

// DefaultLogWriter returns the base log writer for the provided version.
func DefaultLogWriter(version string) io.Writer {
	return baseLogWriter(version)
}

// InitDefaultLogger configures zerolog with the default writer for this version.
// This is used by CLI entry points before a configuration file is loaded.
func InitDefaultLogger(version string) {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Logger.Output(DefaultLogWriter(version))
}

func isDevBuild(version string) bool {
	v := strings.ToLower(strings.TrimSpace(version))
	return v == "" || v == "dev" || strings.HasSuffix(v, "-dev")
}

// resolveConfigPath determines the actual config file path from the provided directory or file path
func (c *AppConfig) resolveConfigPath(configDirOrPath string) string {
	// Check if it's a direct file path (ends with .toml)
	if strings.HasSuffix(strings.ToLower(configDirOrPath), ".toml") {
		return configDirOrPath
	}

	// Check if the path points to an existing file (backward compatibility)
	if info, err := os.Stat(configDirOrPath); err == nil && !info.IsDir() {
		return configDirOrPath
	}

	// Treat as directory path and append config.toml
	return filepath.Join(configDirOrPath, "config.toml")
}

// resolveDataDir sets the data directory based on configuration
func (c *AppConfig) resolveDataDir() {
	switch {
	case c.Config.DataDir != "":
		c.dataDir = c.Config.DataDir
	case c.viper.ConfigFileUsed() != "":
		c.dataDir = filepath.Dir(c.viper.ConfigFileUsed())
	default:
		c.dataDir = "."
	}
}

// GetLedgerPath returns the path to the processed-hash ledger file
func (c *AppConfig) GetLedgerPath() string {
	return filepath.Join(c.dataDir, "processed.json")
}

// GetCatalogPath returns the resolved path to the hash list catalog file
func (c *AppConfig) GetCatalogPath() string {
	if filepath.IsAbs(c.Config.CatalogPath) {
		return c.Config.CatalogPath
	}
	return filepath.Join(c.dataDir, c.Config.CatalogPath)
}

// GetDataDir returns the resolved data directory path.
func (c *AppConfig) GetDataDir() string {
	return c.dataDir
}

// SetDataDir sets the data directory (used by CLI flags)
func (c *AppConfig) SetDataDir(dir string) {
	c.dataDir = dir
}

// GetConfigDir returns the directory containing the config file
func (c *AppConfig) GetConfigDir() string {
	if c.viper.ConfigFileUsed() != "" {
		return filepath.Dir(c.viper.ConfigFileUsed())
	}
	// Fallback to default config directory when no config file is explicitly used
	return GetDefaultConfigDir()
}

func WriteDefaultConfig(path string) error {
	c := &AppConfig{
		viper: viper.New(),
	}

	c.defaults()

	return c.writeDefaultConfig(path)
}

// Sets viper variable if environment variable with _FILE suffix is present
func (c *AppConfig) bindOrReadFromFile(viperVar string, envVar string) {
	envVarFile := envVar + "_FILE"
	if filePath := os.Getenv(envVarFile); filePath != "" {
		content, err := os.ReadFile(filePath)
		if err != nil {
			log.Fatal().Err(err).Str("path", filePath).Msg("Could not read " + envVarFile)
		}
		c.viper.Set(viperVar, strings.TrimSpace(string(content)))
	} else {
		c.viper.BindEnv(viperVar, envVar)
	}
}
