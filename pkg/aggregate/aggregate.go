// Package aggregate merges fetched records into cached ones and derives
// summaries. Everything here is a pure transformation.
package aggregate

import (
	"sort"

	"github.com/ymurata/debitwatch/pkg/api"
)

// Merge unions cached and fetched records by dedup key. Cached entries are
// retained as-is, new entries are appended, and the result is re-sorted by
// year-month ascending with the original order preserved for ties. Merging
// the same fetch twice is a no-op.
func Merge(cached, fetched []api.DebitRecord) []api.DebitRecord {
	seen := make(map[string]bool, len(cached))
	merged := make([]api.DebitRecord, 0, len(cached)+len(fetched))

	for _, r := range cached {
		if seen[r.Key()] {
			continue
		}
		seen[r.Key()] = true
		merged = append(merged, r)
	}
	for _, r := range fetched {
		if seen[r.Key()] {
			continue
		}
		seen[r.Key()] = true
		merged = append(merged, r)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].YearMonth < merged[j].YearMonth
	})
	return merged
}

// MonthFilter restricts an aggregation to certain year-months. A nil filter
// admits everything.
type MonthFilter func(yearMonth string) bool

// SingleMonth returns a filter admitting only the given year-month.
func SingleMonth(yearMonth string) MonthFilter {
	return func(ym string) bool { return ym == yearMonth }
}

// Aggregate groups records by month and by payee and sums the amounts.
// Empty input yields a Summary with empty maps and zero counts.
func Aggregate(records []api.DebitRecord, filter MonthFilter) api.Summary {
	summary := api.Summary{
		ByMonth: make(map[string]int64),
		ByPayee: make(map[string]int64),
	}

	for _, r := range records {
		if filter != nil && !filter(r.YearMonth) {
			continue
		}
		summary.ByMonth[r.YearMonth] += r.Amount
		summary.ByPayee[r.Payee] += r.Amount
		summary.Total += r.Amount
		summary.RecordCount++
	}

	summary.MonthCount = len(summary.ByMonth)
	summary.PayeeCount = len(summary.ByPayee)
	return summary
}

// Months returns the summary's year-months in ascending order.
func Months(s api.Summary) []string {
	months := make([]string, 0, len(s.ByMonth))
	for m := range s.ByMonth {
		months = append(months, m)
	}
	sort.Strings(months)
	return months
}

// PayeesByTotal returns the summary's payees ordered by descending total,
// ties broken alphabetically so output is stable.
func PayeesByTotal(s api.Summary) []string {
	payees := make([]string, 0, len(s.ByPayee))
	for p := range s.ByPayee {
		payees = append(payees, p)
	}
	sort.Slice(payees, func(i, j int) bool {
		if s.ByPayee[payees[i]] != s.ByPayee[payees[j]] {
			return s.ByPayee[payees[i]] > s.ByPayee[payees[j]]
		}
		return payees[i] < payees[j]
	})
	return payees
}
