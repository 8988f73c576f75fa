package planner

import (
	"errors"
	"testing"
	"time"

	"github.com/ymurata/debitwatch/pkg/api"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func mustPlanner(t *testing.T, floor string) *Planner {
	t.Helper()
	p, err := New(floor, nil)
	if err != nil {
		t.Fatalf("new planner: %v", err)
	}
	return p
}

func assertRanges(t *testing.T, got []api.FetchRange, want []api.FetchRange) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("ranges: got %d, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if !got[i].Start.Equal(want[i].Start) || !got[i].End.Equal(want[i].End) {
			t.Errorf("range %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestPlanThisMonth_FullMonth(t *testing.T) {
	p := mustPlanner(t, "2025-01")

	ranges, err := p.Plan(api.ModeThisMonth, date(2025, 7, 15), nil, nil)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	assertRanges(t, ranges, []api.FetchRange{
		{Start: date(2025, 7, 1), End: date(2025, 7, 15)},
	})
}

func TestPlanThisMonth_NarrowedToLastFetch(t *testing.T) {
	p := mustPlanner(t, "2025-01")

	lastFetch := time.Date(2025, 7, 10, 9, 0, 0, 0, time.UTC)
	cached := map[string]bool{"2025-07": true}

	ranges, err := p.Plan(api.ModeThisMonth, date(2025, 7, 15), &lastFetch, cached)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	assertRanges(t, ranges, []api.FetchRange{
		{Start: date(2025, 7, 10), End: date(2025, 7, 15)},
	})
}

func TestPlanThisMonth_LastFetchPreviousMonthIgnored(t *testing.T) {
	p := mustPlanner(t, "2025-01")

	lastFetch := time.Date(2025, 6, 28, 23, 0, 0, 0, time.UTC)

	ranges, err := p.Plan(api.ModeThisMonth, date(2025, 7, 2), &lastFetch, nil)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	assertRanges(t, ranges, []api.FetchRange{
		{Start: date(2025, 7, 1), End: date(2025, 7, 2)},
	})
}

func TestPlanThisMonth_FetchedTodayYieldsSingleDay(t *testing.T) {
	p := mustPlanner(t, "2025-01")

	lastFetch := time.Date(2025, 7, 15, 8, 0, 0, 0, time.UTC)

	ranges, err := p.Plan(api.ModeThisMonth, date(2025, 7, 15), &lastFetch, nil)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	assertRanges(t, ranges, []api.FetchRange{
		{Start: date(2025, 7, 15), End: date(2025, 7, 15)},
	})
}

func TestPlanThisMonth_FirstDayOfMonth(t *testing.T) {
	p := mustPlanner(t, "2025-01")

	ranges, err := p.Plan(api.ModeThisMonth, date(2025, 8, 1), nil, nil)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	assertRanges(t, ranges, []api.FetchRange{
		{Start: date(2025, 8, 1), End: date(2025, 8, 1)},
	})
}

func TestPlanGapFill_FromFloor(t *testing.T) {
	p := mustPlanner(t, "2025-02")

	ranges, err := p.Plan(api.ModeGapFill, date(2025, 7, 15), nil, map[string]bool{})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	assertRanges(t, ranges, []api.FetchRange{
		{Start: date(2025, 2, 1), End: date(2025, 2, 28)},
		{Start: date(2025, 3, 1), End: date(2025, 3, 31)},
		{Start: date(2025, 4, 1), End: date(2025, 4, 30)},
		{Start: date(2025, 5, 1), End: date(2025, 5, 31)},
		{Start: date(2025, 6, 1), End: date(2025, 6, 30)},
		{Start: date(2025, 7, 1), End: date(2025, 7, 15)},
	})
}

func TestPlanGapFill_SkipsCachedMonths(t *testing.T) {
	p := mustPlanner(t, "2025-02")

	cached := map[string]bool{
		"2025-02": true,
		"2025-04": true,
		"2025-07": true,
	}

	ranges, err := p.Plan(api.ModeGapFill, date(2025, 7, 15), nil, cached)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	assertRanges(t, ranges, []api.FetchRange{
		{Start: date(2025, 3, 1), End: date(2025, 3, 31)},
		{Start: date(2025, 5, 1), End: date(2025, 5, 31)},
		{Start: date(2025, 6, 1), End: date(2025, 6, 30)},
	})
}

func TestPlanGapFill_AllCached(t *testing.T) {
	p := mustPlanner(t, "2025-05")

	cached := map[string]bool{"2025-05": true, "2025-06": true, "2025-07": true}

	ranges, err := p.Plan(api.ModeGapFill, date(2025, 7, 15), nil, cached)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(ranges) != 0 {
		t.Errorf("expected no ranges, got %v", ranges)
	}
}

func TestPlanPastYear_RespectsFloor(t *testing.T) {
	p := mustPlanner(t, "2025-01")

	// Twelve months ending 2025-07 would reach back to 2024-08; everything
	// before the floor must be skipped, never clamped into a range.
	ranges, err := p.Plan(api.ModePastYear, date(2025, 7, 15), nil, map[string]bool{})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	if len(ranges) != 7 {
		t.Fatalf("expected 7 ranges (2025-01..2025-07), got %d: %v", len(ranges), ranges)
	}
	if !ranges[0].Start.Equal(date(2025, 1, 1)) {
		t.Errorf("first range starts %v, want 2025-01-01", ranges[0].Start)
	}
	for _, r := range ranges {
		if r.Start.Before(date(2025, 1, 1)) {
			t.Errorf("range %v precedes the floor", r)
		}
	}
}

func TestPlanPastYear_SkipsCachedAndClampsCurrent(t *testing.T) {
	p := mustPlanner(t, "2024-01")

	cached := map[string]bool{
		"2024-08": true, "2024-09": true, "2024-10": true,
		"2024-11": true, "2024-12": true, "2025-01": true,
		"2025-02": true, "2025-03": true, "2025-04": true,
		"2025-05": true,
	}

	ranges, err := p.Plan(api.ModePastYear, date(2025, 7, 15), nil, cached)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	assertRanges(t, ranges, []api.FetchRange{
		{Start: date(2025, 6, 1), End: date(2025, 6, 30)},
		{Start: date(2025, 7, 1), End: date(2025, 7, 15)},
	})
}

func TestPlanPastYear_DecemberRollover(t *testing.T) {
	p := mustPlanner(t, "2024-01")

	ranges, err := p.Plan(api.ModePastYear, date(2025, 1, 10), nil, map[string]bool{})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	if len(ranges) != 12 {
		t.Fatalf("expected 12 ranges, got %d", len(ranges))
	}
	// 2024-12 must cover the full month including the 31st.
	dec := ranges[10]
	if !dec.Start.Equal(date(2024, 12, 1)) || !dec.End.Equal(date(2024, 12, 31)) {
		t.Errorf("december range: got %v", dec)
	}
	jan := ranges[11]
	if !jan.Start.Equal(date(2025, 1, 1)) || !jan.End.Equal(date(2025, 1, 10)) {
		t.Errorf("current month range: got %v", jan)
	}
}

func TestPlanChronologicalOrder(t *testing.T) {
	p := mustPlanner(t, "2025-01")

	ranges, err := p.Plan(api.ModeGapFill, date(2025, 7, 15), nil, map[string]bool{"2025-03": true})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	for i := 1; i < len(ranges); i++ {
		if !ranges[i].Start.After(ranges[i-1].End) {
			t.Errorf("ranges out of order: %v then %v", ranges[i-1], ranges[i])
		}
	}
}

func TestPlanTodayBeforeFloor(t *testing.T) {
	p := mustPlanner(t, "2025-06")

	ranges, err := p.Plan(api.ModeThisMonth, date(2025, 3, 10), nil, nil)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(ranges) != 0 {
		t.Errorf("expected no ranges before the floor, got %v", ranges)
	}
}

func TestPlanFloorEqualsCurrentMonth(t *testing.T) {
	p := mustPlanner(t, "2025-07")

	ranges, err := p.Plan(api.ModeGapFill, date(2025, 7, 15), nil, map[string]bool{})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	assertRanges(t, ranges, []api.FetchRange{
		{Start: date(2025, 7, 1), End: date(2025, 7, 15)},
	})
}

func TestPlanUnknownMode(t *testing.T) {
	p := mustPlanner(t, "2025-01")

	if _, err := p.Plan(api.Mode(99), date(2025, 7, 15), nil, nil); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestValidateRejectsInvertedRange(t *testing.T) {
	p := mustPlanner(t, "2025-01")

	err := p.validate([]api.FetchRange{
		{Start: date(2025, 7, 15), End: date(2025, 7, 1)},
	})
	if !errors.Is(err, ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange, got %v", err)
	}
}

func TestValidateRejectsPreFloorRange(t *testing.T) {
	p := mustPlanner(t, "2025-06")

	err := p.validate([]api.FetchRange{
		{Start: date(2025, 5, 1), End: date(2025, 5, 31)},
	})
	if !errors.Is(err, ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange, got %v", err)
	}
}

func TestNewRejectsBadFloor(t *testing.T) {
	if _, err := New("not-a-month", nil); err == nil {
		t.Error("expected error for malformed floor month")
	}
}
