// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package notify

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/debridauto/internal/domain"
)

const (
	maxTitleLength   = 80
	maxMessageLength = 1000
	maxListedTitles  = 5
)

// Summary aggregates the per-item results of one run for notification.
type Summary struct {
	Source           string
	Added            int
	Failed           int
	SkippedDuplicate int
	SkippedFiltered  int
	AddedTitles      []string
}

// Service dispatches run summaries to the configured notification targets.
// Every target is attempted independently; a delivery failure is logged and
// never fails the run.
type Service struct {
	targets []string
}

// NewService builds the target list from the configured channels. The
// chat-bot channel and generic webhooks are translated into router URLs;
// notifyUrls entries are taken verbatim.
func NewService(cfg *domain.Config) *Service {
	s := &Service{}

	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		s.targets = append(s.targets, fmt.Sprintf(
			"telegram://%s@telegram?chats=%s", cfg.TelegramBotToken, cfg.TelegramChatID))
	}

	for _, u := range cfg.WebhookURLs {
		if target := webhookTarget(u); target != "" {
			s.targets = append(s.targets, target)
		}
	}

	s.targets = append(s.targets, cfg.NotifyURLs...)

	if len(s.targets) == 0 {
		log.Debug().Msg("No notification targets configured")
	}

	return s
}

// webhookTarget rewrites a plain webhook URL into the router's generic
// service scheme.
func webhookTarget(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	switch {
	case rawURL == "":
		return ""
	case strings.HasPrefix(rawURL, "https://"):
		return "generic://" + strings.TrimPrefix(rawURL, "https://")
	case strings.HasPrefix(rawURL, "http://"):
		return "generic+http://" + strings.TrimPrefix(rawURL, "http://")
	default:
		// assume it is already a router URL
		return rawURL
	}
}

// Enabled reports whether any target is configured.
func (s *Service) Enabled() bool {
	return len(s.targets) > 0
}

// SendSummary formats and delivers the run summary to every target.
func (s *Service) SendSummary(summary Summary) {
	s.Send("Run complete", FormatSummary(summary))
}

// SendError delivers a run-level failure message to every target.
func (s *Service) SendError(message string) {
	s.Send("Run failed", message)
}

// Send delivers a message to each target independently. Failures are logged
// per target; the remaining targets are still attempted.
func (s *Service) Send(title, message string) {
	if len(s.targets) == 0 || strings.TrimSpace(message) == "" {
		return
	}

	for _, target := range s.targets {
		if err := send(target, title, message); err != nil {
			log.Error().Err(err).Str("target", redactTarget(target)).Msg("Notification delivery failed")
			continue
		}
		log.Debug().Str("target", redactTarget(target)).Msg("Notification sent")
	}
}

func send(target, title, message string) error {
	sender, err := router.New(nil, target)
	if err != nil {
		return err
	}

	params := types.Params{}
	if trimmed := strings.TrimSpace(title); trimmed != "" {
		params.SetTitle(truncate(trimmed, maxTitleLength))
	}

	var errs []string
	for _, sendErr := range sender.Send(truncate(message, maxMessageLength), &params) {
		if sendErr != nil {
			errs = append(errs, sendErr.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// FormatSummary renders the human-readable run summary.
func FormatSummary(summary Summary) string {
	var b strings.Builder

	if summary.Source != "" {
		fmt.Fprintf(&b, "Source: %s\n", summary.Source)
	}
	fmt.Fprintf(&b, "Added: %d\n", summary.Added)
	fmt.Fprintf(&b, "Skipped: %d\n", summary.SkippedDuplicate+summary.SkippedFiltered)
	fmt.Fprintf(&b, "Failed: %d", summary.Failed)

	if len(summary.AddedTitles) > 0 {
		b.WriteString("\n\nAdded items:")
		listed := summary.AddedTitles
		if len(listed) > maxListedTitles {
			listed = listed[:maxListedTitles]
		}
		for _, title := range listed {
			fmt.Fprintf(&b, "\n- %s", title)
		}
		if extra := len(summary.AddedTitles) - maxListedTitles; extra > 0 {
			fmt.Fprintf(&b, "\n- ... and %d more", extra)
		}
	}

	return b.String()
}

func truncate(value string, limit int) string {
	trimmed := strings.TrimSpace(value)
	if limit <= 0 || utf8.RuneCountInString(trimmed) <= limit {
		return trimmed
	}
	runes := []rune(trimmed)
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}

// redactTarget hides credentials embedded in a target URL when logging.
func redactTarget(target string) string {
	if idx := strings.Index(target, "://"); idx != -1 {
		rest := target[idx+3:]
		if at := strings.Index(rest, "@"); at != -1 {
			return target[:idx+3] + "***" + rest[at:]
		}
	}
	return target
}
