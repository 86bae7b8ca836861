// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerPathResolution(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, tmpDir string) (configPath string, envDataDir string, expectedLedgerPath string)
	}{
		{
			name: "default_next_to_config",
			prepare: func(t *testing.T, tmpDir string) (string, string, string) {
				configPath := filepath.Join(tmpDir, "config.toml")
				content := "apiToken = \"test-token\"\n"
				require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))
				return configPath, "", filepath.Join(tmpDir, "processed.json")
			},
		},
		{
			name: "explicit_data_dir_in_config",
			prepare: func(t *testing.T, tmpDir string) (string, string, string) {
				configPath := filepath.Join(tmpDir, "config.toml")
				dataDir := filepath.Join(tmpDir, "data")
				require.NoError(t, os.MkdirAll(dataDir, 0o755))
				content := fmt.Sprintf("apiToken = \"test-token\"\ndataDir = %q\n", dataDir)
				require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))
				return configPath, "", filepath.Join(dataDir, "processed.json")
			},
		},
		{
			name: "env_var_override",
			prepare: func(t *testing.T, tmpDir string) (string, string, string) {
				configPath := filepath.Join(tmpDir, "config.toml")
				configDataDir := filepath.Join(tmpDir, "config-data")
				envDataDir := filepath.Join(tmpDir, "env-data")
				require.NoError(t, os.MkdirAll(configDataDir, 0o755))
				require.NoError(t, os.MkdirAll(envDataDir, 0o755))
				content := fmt.Sprintf("apiToken = \"test-token\"\ndataDir = %q\n", configDataDir)
				require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))
				return configPath, envDataDir, filepath.Join(envDataDir, "processed.json")
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configPath, envValue, expectedLedgerPath := tt.prepare(t, tmpDir)
			if envValue != "" {
				t.Setenv(envPrefix+"DATA_DIR", envValue)
			}

			cfg, err := New(configPath)
			require.NoError(t, err)

			assert.Equal(t, filepath.Clean(expectedLedgerPath), filepath.Clean(cfg.GetLedgerPath()))
		})
	}
}

func TestCatalogPathResolution(t *testing.T) {
	tests := []struct {
		name        string
		catalogPath string
		expected    func(dataDir string) string
	}{
		{
			name:        "default_relative_to_data_dir",
			catalogPath: "",
			expected:    func(dataDir string) string { return filepath.Join(dataDir, "hashlist.json") },
		},
		{
			name:        "relative_path",
			catalogPath: "catalogs/movies.json",
			expected:    func(dataDir string) string { return filepath.Join(dataDir, "catalogs", "movies.json") },
		},
		{
			name:        "absolute_path",
			catalogPath: filepath.Join(os.TempDir(), "absolute-list.json"),
			expected:    func(string) string { return filepath.Join(os.TempDir(), "absolute-list.json") },
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.toml")
			content := "apiToken = \"test-token\"\n"
			if tt.catalogPath != "" {
				content += fmt.Sprintf("catalogPath = %q\n", tt.catalogPath)
			}
			require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

			cfg, err := New(configPath)
			require.NoError(t, err)

			assert.Equal(t, filepath.Clean(tt.expected(tmpDir)), filepath.Clean(cfg.GetCatalogPath()))
		})
	}
}

func TestConfigDirResolution(t *testing.T) {
	tests := []struct {
		name           string
		input          string
		setupFile      bool
		fileIsDir      bool
		expectedSuffix string
	}{
		{
			name:           "toml_file_extension",
			input:          "/path/to/custom.toml",
			expectedSuffix: "custom.toml",
		},
		{
			name:           "TOML_file_extension_uppercase",
			input:          "/path/to/CONFIG.TOML",
			expectedSuffix: "CONFIG.TOML",
		},
		{
			name:           "directory_path",
			input:          "/path/to/config",
			expectedSuffix: "config.toml",
		},
		{
			name:           "existing_file_without_toml",
			input:          "/path/to/configfile",
			setupFile:      true,
			fileIsDir:      false,
			expectedSuffix: "configfile",
		},
		{
			name:           "existing_directory",
			input:          "/path/to/configdir",
			setupFile:      true,
			fileIsDir:      true,
			expectedSuffix: "config.toml",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			inputPath := filepath.Join(tmpDir, filepath.Base(tt.input))

			if tt.setupFile {
				if tt.fileIsDir {
					err := os.MkdirAll(inputPath, 0o755)
					require.NoError(t, err)
				} else {
					err := os.WriteFile(inputPath, []byte("test"), 0o644)
					require.NoError(t, err)
				}
			}

			c := &AppConfig{}
			result := c.resolveConfigPath(inputPath)
			assert.True(t, strings.HasSuffix(result, tt.expectedSuffix),
				"Expected result %s to end with %s", result, tt.expectedSuffix)
		})
	}
}

func TestNewLoadsConfigFromFileOrDirectory(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, tmpDir string) (inputPath string, expectedAPIURL string, expectedMinYear int)
	}{
		{
			name: "config_file_path",
			prepare: func(t *testing.T, tmpDir string) (string, string, int) {
				configPath := filepath.Join(tmpDir, "myconfig.toml")
				content := "apiUrl = \"https://debrid.example.com/api\"\nminYear = 2015\n"
				require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))
				return configPath, "https://debrid.example.com/api", 2015
			},
		},
		{
			name: "config_directory_path",
			prepare: func(t *testing.T, tmpDir string) (string, string, int) {
				configDir := filepath.Join(tmpDir, "configdir")
				require.NoError(t, os.MkdirAll(configDir, 0o755))
				content := "apiUrl = \"https://other.example.com/v1\"\nminYear = 1999\n"
				require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.toml"), []byte(content), 0o644))
				return configDir, "https://other.example.com/v1", 1999
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			inputPath, expectedAPIURL, expectedMinYear := tt.prepare(t, tmpDir)

			cfg, err := New(inputPath)
			require.NoError(t, err)

			assert.Equal(t, expectedAPIURL, cfg.Config.APIURL)
			assert.Equal(t, expectedMinYear, cfg.Config.MinYear)
		})
	}
}

func TestNewCreatesDefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	cfg, err := New(configPath)
	require.NoError(t, err)

	// File was generated
	_, statErr := os.Stat(configPath)
	require.NoError(t, statErr)

	// Defaults are in effect
	assert.Equal(t, "https://api.real-debrid.com/rest/1.0", cfg.Config.APIURL)
	assert.Equal(t, []string{"2160p", "1080p", "720p"}, cfg.Config.QualityPreferences)
	assert.Equal(t, 30, cfg.Config.MaxItemsPerRun)
	assert.Equal(t, 6, cfg.Config.CheckIntervalHours)
	assert.InDelta(t, 0.5, cfg.Config.MinSizeGB, 0.001)
	assert.InDelta(t, 50.0, cfg.Config.MaxSizeGB, 0.001)
	assert.Contains(t, cfg.Config.ExcludeKeywords, "cam")
}

func TestBindOrReadFromFile(t *testing.T) {
	tmpKeyFile := func(t *testing.T, tmpDir string) string {
		tokenPath := filepath.Join(tmpDir, "token-file.txt")
		content := "token-from-file\n"
		require.NoError(t, os.WriteFile(tokenPath, []byte(content), 0o644))
		return tokenPath
	}

	noTmpKeyFile := func(t *testing.T, tmpDir string) string {
		return ""
	}

	genConfigFile := func(t *testing.T, tmpDir string) string {
		configPath := filepath.Join(tmpDir, "myconfig.toml")
		content := "minYear = 2015\n"
		require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))
		return configPath
	}

	tests := []struct {
		name            string
		envVarValue     string
		envVarFileValue func(t *testing.T, tmpDir string) string
		expectedValue   string
	}{
		{
			name:            "only_file_env_var",
			envVarValue:     "",
			envVarFileValue: tmpKeyFile,
			expectedValue:   "token-from-file",
		},
		{
			name:            "only_normal_env_var",
			envVarValue:     "token-not-from-file",
			envVarFileValue: noTmpKeyFile,
			expectedValue:   "token-not-from-file",
		},
		{
			name:            "file_env_var_wins",
			envVarValue:     "token-not-from-file",
			envVarFileValue: tmpKeyFile,
			expectedValue:   "token-from-file",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			envVar := envPrefix + "API_TOKEN"

			if tt.envVarValue != "" {
				t.Setenv(envVar, tt.envVarValue)
			}

			envVarFilePath := tt.envVarFileValue(t, t.TempDir())
			if envVarFilePath != "" {
				t.Setenv(envVar+"_FILE", envVarFilePath)
			}

			configPath := genConfigFile(t, t.TempDir())
			cfg, err := New(configPath)

			require.NoError(t, err)
			assert.Equal(t, tt.expectedValue, cfg.Config.APIToken)
		})
	}
}

func TestIsDevBuild(t *testing.T) {
	assert.True(t, isDevBuild(""))
	assert.True(t, isDevBuild("dev"))
	assert.True(t, isDevBuild("1.2.0-dev"))
	assert.False(t, isDevBuild("v1.2.0"))
}
