// Package planner computes which date ranges a run still needs to query.
//
// This is the delicate part of the pipeline: month boundaries, the floor
// clamp, and the "already fetched earlier today" narrowing all live here, and
// each rule is exercised independently by the tests. Ranges are inclusive on
// both ends and always emitted in chronological order.
package planner

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ymurata/debitwatch/pkg/api"
)

// ErrInvalidRange reports a planner bug: a produced range with start after
// end or start before the floor. Callers treat it as fatal rather than
// silently skipping, since it means the planning logic itself has drifted.
var ErrInvalidRange = errors.New("invalid fetch range")

// Planner produces fetch ranges bounded below by a fixed floor month, the
// earliest month for which the bank's emails carry usable amount data.
type Planner struct {
	floor  time.Time
	logger *slog.Logger
}

// New creates a planner with the given "YYYY-MM" floor month.
func New(floorMonth string, logger *slog.Logger) (*Planner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	floor, err := time.Parse("2006-01", floorMonth)
	if err != nil {
		return nil, fmt.Errorf("parsing floor month %q: %w", floorMonth, err)
	}
	return &Planner{floor: floor, logger: logger}, nil
}

// Plan computes the date ranges still needing a provider query.
//
// lastFetch is the cache's creation timestamp, nil on a cold start.
// cachedMonths is the set of "YYYY-MM" keys already present in the cache.
func (p *Planner) Plan(mode api.Mode, today time.Time, lastFetch *time.Time, cachedMonths map[string]bool) ([]api.FetchRange, error) {
	today = dateOf(today)
	if today.Before(p.floor) {
		p.logger.Warn("today precedes the floor month, nothing to fetch",
			"today", today.Format("2006-01-02"),
			"floor", p.floor.Format("2006-01"),
		)
		return nil, nil
	}

	var ranges []api.FetchRange
	switch mode {
	case api.ModeThisMonth:
		ranges = p.planThisMonth(today, lastFetch)
	case api.ModePastYear:
		ranges = p.planMonths(monthStart(today).AddDate(0, -11, 0), today, cachedMonths)
	case api.ModeGapFill:
		ranges = p.planMonths(p.floor, today, cachedMonths)
	default:
		return nil, fmt.Errorf("unknown fetch mode %v", mode)
	}

	if err := p.validate(ranges); err != nil {
		return nil, err
	}
	return ranges, nil
}

// planThisMonth covers the first of the current month through today. When the
// cache was already written this month, the start narrows to that day so
// covered days are not queried again.
func (p *Planner) planThisMonth(today time.Time, lastFetch *time.Time) []api.FetchRange {
	start := monthStart(today)
	if lastFetch != nil && monthStart(*lastFetch).Equal(start) {
		start = dateOf(*lastFetch)
		p.logger.Debug("narrowing range to last fetch", "start", start.Format("2006-01-02"))
	}
	if start.Before(p.floor) {
		start = p.floor
	}
	return []api.FetchRange{{Start: start, End: today}}
}

// planMonths emits one range per calendar month between from and today that
// is not already cached, skipping months before the floor.
func (p *Planner) planMonths(from, today time.Time, cachedMonths map[string]bool) []api.FetchRange {
	var ranges []api.FetchRange
	var excluded []string

	current := monthStart(today)
	for month := monthStart(from); !month.After(current); month = month.AddDate(0, 1, 0) {
		key := month.Format("2006-01")
		if month.Before(p.floor) {
			excluded = append(excluded, key)
			continue
		}
		if cachedMonths[key] {
			continue
		}
		ranges = append(ranges, monthRange(month, today))
	}

	if len(excluded) > 0 {
		p.logger.Warn("months before the floor have no amount data and are skipped",
			"floor", p.floor.Format("2006-01"),
			"months", strings.Join(excluded, ","),
		)
	}
	p.logger.Info("planned fetch ranges", "count", len(ranges))
	return ranges
}

// validate enforces the planner's own invariants. Violations are programming
// errors and surface loudly.
func (p *Planner) validate(ranges []api.FetchRange) error {
	prev := time.Time{}
	for _, r := range ranges {
		if r.Start.After(r.End) {
			return fmt.Errorf("%w: start %s after end %s", ErrInvalidRange,
				r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"))
		}
		if r.Start.Before(p.floor) {
			return fmt.Errorf("%w: start %s precedes floor %s", ErrInvalidRange,
				r.Start.Format("2006-01-02"), p.floor.Format("2006-01"))
		}
		if r.Start.Before(prev) {
			return fmt.Errorf("%w: ranges not chronological at %s", ErrInvalidRange, r)
		}
		prev = r.Start
	}
	return nil
}

// monthRange covers one calendar month, clamped to today for the current
// month.
func monthRange(month, today time.Time) api.FetchRange {
	end := month.AddDate(0, 1, -1) // last day of the month
	if end.After(today) {
		end = today
	}
	return api.FetchRange{Start: month, End: end}
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
