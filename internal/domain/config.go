// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// Config represents the application configuration
type Config struct {
	Version       string
	LogLevel      string `toml:"logLevel" mapstructure:"logLevel"`
	LogPath       string `toml:"logPath" mapstructure:"logPath"`
	LogMaxSize    int    `toml:"logMaxSize" mapstructure:"logMaxSize"`
	LogMaxBackups int    `toml:"logMaxBackups" mapstructure:"logMaxBackups"`
	DataDir       string `toml:"dataDir" mapstructure:"dataDir"`

	// CatalogPath points at the hash list catalog file. Relative paths are
	// resolved against the data directory.
	CatalogPath string `toml:"catalogPath" mapstructure:"catalogPath"`

	// Debrid service connection
	APIURL              string `toml:"apiUrl" mapstructure:"apiUrl"`
	APIToken            string `toml:"apiToken" mapstructure:"apiToken"`
	RequestDelaySeconds int    `toml:"requestDelaySeconds" mapstructure:"requestDelaySeconds"`

	// Content preferences. QualityPreferences is ordered best-first; an empty
	// list admits every quality.
	QualityPreferences []string `toml:"qualityPreferences" mapstructure:"qualityPreferences"`
	MinYear            int      `toml:"minYear" mapstructure:"minYear"`
	MaxYear            int      `toml:"maxYear" mapstructure:"maxYear"`
	MinSizeGB          float64  `toml:"minSizeGb" mapstructure:"minSizeGb"`
	MaxSizeGB          float64  `toml:"maxSizeGb" mapstructure:"maxSizeGb"`
	ExcludeKeywords    []string `toml:"excludeKeywords" mapstructure:"excludeKeywords"`
	IncludeKeywords    []string `toml:"includeKeywords" mapstructure:"includeKeywords"`

	// Run limits
	MaxItemsPerRun     int `toml:"maxItemsPerRun" mapstructure:"maxItemsPerRun"`
	CheckIntervalHours int `toml:"checkIntervalHours" mapstructure:"checkIntervalHours"`

	// Notification channels. TelegramBotToken/TelegramChatID configure the
	// chat-bot channel; WebhookURLs are generic incoming webhooks; NotifyURLs
	// are passed to the notification router verbatim.
	TelegramBotToken string   `toml:"telegramBotToken" mapstructure:"telegramBotToken"`
	TelegramChatID   string   `toml:"telegramChatId" mapstructure:"telegramChatId"`
	WebhookURLs      []string `toml:"webhookUrls" mapstructure:"webhookUrls"`
	NotifyURLs       []string `toml:"notifyUrls" mapstructure:"notifyUrls"`
}
