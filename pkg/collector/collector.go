// Package collector orchestrates one fetch-merge-save run: it plans the date
// ranges still missing from the cache, queries the mail provider for each,
// extracts debit records from the returned bodies, merges them into the
// cached set, rotates the cache, and reports the aggregate.
package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/ymurata/debitwatch/pkg/aggregate"
	"github.com/ymurata/debitwatch/pkg/api"
	"github.com/ymurata/debitwatch/pkg/cache"
	"github.com/ymurata/debitwatch/pkg/extractor"
	"github.com/ymurata/debitwatch/pkg/planner"
)

// Config holds the collector's run settings.
type Config struct {
	// Query is the provider search query, e.g. "subject:(口座振替)".
	Query string
	// Senders is the allow-list applied to each returned email's From
	// header before extraction.
	Senders []string
}

// Result reports what a run obtained. The range and record counters exist so
// a partially degraded run (some provider searches failed) is visible to the
// caller rather than silently looking complete.
type Result struct {
	Summary api.Summary
	Mode    api.Mode

	// Records is the full merged record set after the run, valid entries
	// only, sorted by month.
	Records []api.DebitRecord
	// NewRecords holds just the records this run added.
	NewRecords []api.DebitRecord
	// CachedMonths is the set of months that were already cached before the
	// run started.
	CachedMonths map[string]bool

	RangesPlanned int
	RangesFailed  int
	EmailsSeen    int
	// SavedTo is the cache file written by this run, empty when nothing new
	// arrived or the save failed.
	SavedTo string
}

// Collector wires the provider, cache store and planner together.
type Collector struct {
	provider api.Provider
	store    *cache.Store
	planner  *planner.Planner
	senders  extractor.SenderFilter
	query    string
	logger   *slog.Logger
}

// New creates a collector.
func New(provider api.Provider, store *cache.Store, plan *planner.Planner, cfg Config, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		provider: provider,
		store:    store,
		planner:  plan,
		senders:  extractor.NewSenderFilter(cfg.Senders),
		query:    cfg.Query,
		logger:   logger,
	}
}

// Run executes one collection pass for the given mode. now is the run's
// notion of "today" and becomes the new cache watermark.
//
// A provider failure for a single range is logged and that range contributes
// nothing; the run continues and reports whatever it obtained. Planner
// invariant violations abort the run.
func (c *Collector) Run(ctx context.Context, mode api.Mode, now time.Time) (*Result, error) {
	snap, err := c.store.LoadCurrent()
	if err != nil {
		return nil, err
	}

	var cached []api.DebitRecord
	var lastFetch *time.Time
	if snap != nil {
		cached = cache.FilterValid(snap.Records)
		lastFetch = &snap.CreatedAt
	}
	cachedMonths := snap.Months()

	ranges, err := c.planner.Plan(mode, now, lastFetch, cachedMonths)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Mode:          mode,
		CachedMonths:  cachedMonths,
		RangesPlanned: len(ranges),
	}

	var fetched []api.DebitRecord
	for _, rng := range ranges {
		emails, err := c.provider.Search(ctx, c.query, rng.Start, rng.End)
		if err != nil {
			c.logger.Error("provider search failed, skipping range", "range", rng, "error", err)
			result.RangesFailed++
			continue
		}

		c.logger.Info("searched range", "range", rng, "emails", len(emails))
		result.EmailsSeen += len(emails)

		for _, email := range emails {
			if !c.senders.Valid(email.From) {
				c.logger.Debug("skipping email from unlisted sender", "from", email.From, "id", email.ID)
				continue
			}
			rec, ok := extractor.Extract(email.Body, email.Received)
			if !ok {
				// Not every matching email carries a debit; a parse miss
				// is expected, not an error.
				c.logger.Debug("no debit record in email", "id", email.ID)
				continue
			}
			rec.EmailID = email.ID
			fetched = append(fetched, rec)
		}
	}

	fetched = cache.FilterValid(fetched)
	merged := aggregate.Merge(cached, fetched)
	result.Records = merged
	result.NewRecords = newRecords(cached, merged)

	if len(result.NewRecords) > 0 {
		path, err := c.store.Save(merged, now)
		if err != nil {
			// The previous snapshot is still on disk; the run's aggregate
			// is unaffected, so report it rather than aborting.
			c.logger.Error("failed to save cache snapshot", "error", err)
		} else {
			result.SavedTo = path
		}
	}

	var filter aggregate.MonthFilter
	if mode == api.ModeThisMonth {
		filter = aggregate.SingleMonth(now.Format("2006-01"))
	}
	result.Summary = aggregate.Aggregate(merged, filter)

	c.logger.Info("run complete",
		"mode", mode.String(),
		"ranges_planned", result.RangesPlanned,
		"ranges_failed", result.RangesFailed,
		"emails", result.EmailsSeen,
		"new_records", len(result.NewRecords),
		"total_records", len(merged),
	)
	return result, nil
}

// newRecords returns the merged entries that were not in the cached set.
// Merge keeps cached entries and appends new ones before sorting, so a key
// comparison is the reliable way to recover the delta.
func newRecords(cached, merged []api.DebitRecord) []api.DebitRecord {
	known := make(map[string]bool, len(cached))
	for _, r := range cached {
		known[r.Key()] = true
	}
	var added []api.DebitRecord
	for _, r := range merged {
		if !known[r.Key()] {
			added = append(added, r)
		}
	}
	return added
}
