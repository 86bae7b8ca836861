// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package autoadd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/debridauto/internal/catalog"
	"github.com/autobrr/debridauto/internal/debrid"
	"github.com/autobrr/debridauto/internal/domain"
	"github.com/autobrr/debridauto/internal/filter"
	"github.com/autobrr/debridauto/internal/ledger"
	"github.com/autobrr/debridauto/internal/notify"
)

// State tracks run progress. Failed is reachable only from the load and
// credential phases; submission failures are per-item.
type State string

const (
	StateInit       State = "init"
	StateLoaded     State = "loaded"
	StateFiltered   State = "filtered"
	StateSubmitting State = "submitting"
	StateFinalizing State = "finalizing"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// DebridClient is the remote service boundary used by the pipeline.
type DebridClient interface {
	CheckAuth(ctx context.Context) (*debrid.User, error)
	AddMagnet(ctx context.Context, magnet string) (*debrid.AddResult, error)
	SelectFiles(ctx context.Context, torrentID string) error
	TorrentHashes(ctx context.Context) (map[string]struct{}, error)
}

// Notifier is the notification boundary; delivery failures never fail a run.
type Notifier interface {
	Enabled() bool
	SendSummary(summary notify.Summary)
	SendError(message string)
}

// Result records the outcome for a single candidate.
type Result struct {
	Hash     string
	Title    string
	Outcome  ledger.Outcome
	RemoteID string
	Err      string
}

// Report summarizes one run. Results keep candidate order.
type Report struct {
	State       State
	Source      string
	CatalogSize int
	Candidates  int
	Attempts    int
	Results     []Result
}

// Count returns the number of results with the given outcome.
func (r *Report) Count(outcome ledger.Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == outcome {
			n++
		}
	}
	return n
}

// Options are per-run overrides from the CLI surface.
type Options struct {
	// MaxItems overrides maxItemsPerRun when positive.
	MaxItems int
	// Force bypasses ledger-based deduplication for this run.
	Force bool
	// DryRun stops before any remote call or ledger write.
	DryRun bool
}

// Service runs the filter-and-submit pipeline. All state is explicit: the
// catalog and ledger paths, the client and the notifier are injected, so the
// pipeline is testable with fixtures.
type Service struct {
	catalogPath string
	ledgerPath  string
	client      DebridClient
	notifier    Notifier

	// now is swapped in tests
	now func() time.Time

	// mu guards cfg and delay; a config reload can land while a pass runs.
	mu    sync.Mutex
	cfg   domain.Config
	delay time.Duration
}

func NewService(cfg *domain.Config, catalogPath, ledgerPath string, client DebridClient, notifier Notifier) *Service {
	return &Service{
		catalogPath: catalogPath,
		ledgerPath:  ledgerPath,
		client:      client,
		notifier:    notifier,
		now:         time.Now,
		cfg:         *cfg,
		delay:       delayFor(cfg.RequestDelaySeconds),
	}
}

func delayFor(seconds int) time.Duration {
	if seconds <= 0 {
		return 2 * time.Second
	}
	return time.Duration(seconds) * time.Second
}

// UpdateConfig replaces the pipeline configuration. Takes effect on the next
// pass; an in-flight pass keeps its snapshot.
func (s *Service) UpdateConfig(conf *domain.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = *conf
	s.delay = delayFor(conf.RequestDelaySeconds)
}

// snapshot returns the configuration and delay for one pass.
func (s *Service) snapshot() (domain.Config, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.delay
}

// Run executes one pipeline pass. The returned error is non-nil only for
// run-fatal conditions: catalog/ledger load failures and rejected
// credentials. Per-item failures are recorded in the report.
func (s *Service) Run(ctx context.Context, opts Options) (*Report, error) {
	report := &Report{State: StateInit}

	cat, err := catalog.Load(s.catalogPath)
	if err != nil {
		report.State = StateFailed
		s.notifyError(err)
		return report, err
	}
	report.Source = cat.Source
	report.CatalogSize = cat.Len()

	led, err := ledger.Load(s.ledgerPath)
	if err != nil {
		report.State = StateFailed
		s.notifyError(err)
		return report, err
	}
	report.State = StateLoaded

	cfg, delay := s.snapshot()

	prefs := filter.FromConfig(&cfg)
	candidates := prefs.Apply(cat.Entries())
	report.Candidates = len(candidates)
	report.State = StateFiltered

	log.Info().
		Int("catalog", cat.Len()).
		Int("candidates", len(candidates)).
		Str("source", cat.Source).
		Msg("Filtered catalog against preferences")

	// Filtered-out entries are reported but never ledger-recorded, so a
	// preference change re-admits them on a later run.
	kept := make(map[string]struct{}, len(candidates))
	for _, e := range candidates {
		kept[e.Hash] = struct{}{}
	}
	for _, e := range cat.Entries() {
		if _, ok := kept[e.Hash]; !ok {
			report.Results = append(report.Results, Result{
				Hash:    e.Hash,
				Title:   e.Title,
				Outcome: ledger.OutcomeSkippedFiltered,
			})
		}
	}

	queue := s.dedup(ctx, report, candidates, led, opts)

	maxItems := cfg.MaxItemsPerRun
	if opts.MaxItems > 0 {
		maxItems = opts.MaxItems
	}
	if maxItems > 0 && len(queue) > maxItems {
		log.Info().Int("limit", maxItems).Int("queued", len(queue)).Msg("Truncating queue to per-run limit")
		queue = queue[:maxItems]
	}
	report.Attempts = len(queue)

	if opts.DryRun {
		report.State = StateDone
		log.Info().Int("wouldSubmit", len(queue)).Msg("Dry run, skipping submission")
		return report, nil
	}

	runErr := s.submit(ctx, report, queue, led, delay)

	report.State = StateFinalizing
	if err := led.Persist(); err != nil {
		log.Error().Err(err).Msg("Failed to persist ledger")
		if runErr == nil {
			runErr = err
		}
	}

	s.sendNotification(report)

	if runErr != nil {
		report.State = StateFailed
		s.notifyError(runErr)
		return report, runErr
	}

	report.State = StateDone
	return report, nil
}

// dedup removes candidates already in the ledger (unless forced) and those
// already present in the account. The account check is independent of the
// ledger: account duplicates are reported but never ledger-recorded.
func (s *Service) dedup(ctx context.Context, report *Report, candidates []catalog.Entry, led *ledger.Ledger, opts Options) []catalog.Entry {
	var existing map[string]struct{}
	if !opts.DryRun {
		var err error
		existing, err = s.client.TorrentHashes(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Could not list account content, skipping account-level duplicate check")
			existing = nil
		} else {
			log.Debug().Int("existing", len(existing)).Msg("Fetched account content for duplicate check")
		}
	}

	queue := make([]catalog.Entry, 0, len(candidates))
	for _, e := range candidates {
		if !opts.Force && led.Blocks(e.Hash) {
			report.Results = append(report.Results, Result{
				Hash:    e.Hash,
				Title:   e.Title,
				Outcome: ledger.OutcomeSkippedDuplicate,
			})
			continue
		}
		if _, ok := existing[e.Hash]; ok {
			report.Results = append(report.Results, Result{
				Hash:    e.Hash,
				Title:   e.Title,
				Outcome: ledger.OutcomeSkippedDuplicate,
			})
			continue
		}
		queue = append(queue, e)
	}
	return queue
}

// submit runs the sequential add loop with a fixed inter-request delay.
// Rejected credentials abort the remaining loop; any other failure is
// recorded and the loop proceeds.
func (s *Service) submit(ctx context.Context, report *Report, queue []catalog.Entry, led *ledger.Ledger, delay time.Duration) error {
	if len(queue) == 0 {
		log.Info().Msg("Nothing to submit")
		return nil
	}

	user, err := s.client.CheckAuth(ctx)
	if err != nil {
		return fmt.Errorf("debrid service check failed: %w", err)
	}
	log.Info().Str("user", user.Username).Int("queued", len(queue)).Msg("Submitting candidates")

	report.State = StateSubmitting

	for i, e := range queue {
		if i > 0 {
			if err := wait(ctx, delay); err != nil {
				return err
			}
		}

		magnet, err := debrid.Magnet(e.Hash)
		if err != nil {
			report.Results = append(report.Results, Result{
				Hash: e.Hash, Title: e.Title, Outcome: ledger.OutcomeFailed, Err: err.Error(),
			})
			led.Record(e.Hash, ledger.OutcomeFailed, s.now())
			continue
		}

		added, err := s.client.AddMagnet(ctx, magnet)
		if err != nil {
			var apiErr *debrid.APIError
			if errors.As(err, &apiErr) && apiErr.IsAuth() {
				report.Results = append(report.Results, Result{
					Hash: e.Hash, Title: e.Title, Outcome: ledger.OutcomeFailed, Err: err.Error(),
				})
				led.Record(e.Hash, ledger.OutcomeFailed, s.now())
				return fmt.Errorf("authentication rejected, aborting run: %w", err)
			}

			log.Error().Err(err).Str("hash", e.Hash).Str("title", e.Title).Msg("Failed to add magnet")
			report.Results = append(report.Results, Result{
				Hash: e.Hash, Title: e.Title, Outcome: ledger.OutcomeFailed, Err: err.Error(),
			})
			led.Record(e.Hash, ledger.OutcomeFailed, s.now())
			continue
		}

		if added.ID != "" {
			if err := s.client.SelectFiles(ctx, added.ID); err != nil {
				log.Warn().Err(err).Str("torrentID", added.ID).Msg("Could not select files")
			}
		}

		log.Info().Str("hash", e.Hash).Str("title", e.Title).Str("torrentID", added.ID).Msg("Added magnet")
		report.Results = append(report.Results, Result{
			Hash: e.Hash, Title: e.Title, Outcome: ledger.OutcomeAdded, RemoteID: added.ID,
		})
		led.Record(e.Hash, ledger.OutcomeAdded, s.now())
	}

	return nil
}

// wait sleeps for the fixed inter-request delay, honoring cancellation.
func wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// notifyError reports a run-fatal failure to the configured channels.
func (s *Service) notifyError(err error) {
	if s.notifier == nil || !s.notifier.Enabled() {
		return
	}
	s.notifier.SendError(err.Error())
}

func (s *Service) sendNotification(report *Report) {
	if s.notifier == nil || !s.notifier.Enabled() {
		return
	}

	added := report.Count(ledger.OutcomeAdded)
	failed := report.Count(ledger.OutcomeFailed)
	if added == 0 && failed == 0 {
		return
	}

	summary := notify.Summary{
		Source:           report.Source,
		Added:            added,
		Failed:           failed,
		SkippedDuplicate: report.Count(ledger.OutcomeSkippedDuplicate),
		SkippedFiltered:  report.Count(ledger.OutcomeSkippedFiltered),
	}
	for _, res := range report.Results {
		if res.Outcome == ledger.OutcomeAdded {
			summary.AddedTitles = append(summary.AddedTitles, res.Title)
		}
	}

	s.notifier.SendSummary(summary)
}

// Describe renders a short log line for a report.
func Describe(report *Report) string {
	return fmt.Sprintf("added=%d failed=%d skipped_duplicate=%d skipped_filtered=%d",
		report.Count(ledger.OutcomeAdded),
		report.Count(ledger.OutcomeFailed),
		report.Count(ledger.OutcomeSkippedDuplicate),
		report.Count(ledger.OutcomeSkippedFiltered))
}
