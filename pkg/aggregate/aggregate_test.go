package aggregate

import (
	"reflect"
	"testing"

	"github.com/ymurata/debitwatch/pkg/api"
)

func TestMergeDedupByEmailID(t *testing.T) {
	cached := []api.DebitRecord{
		{YearMonth: "2025-06", Payee: "東京電力", Amount: 8500, EmailID: "msg-001"},
	}
	fetched := []api.DebitRecord{
		{YearMonth: "2025-06", Payee: "東京電力", Amount: 8500, EmailID: "msg-001"}, // duplicate
		{YearMonth: "2025-07", Payee: "東京ガス", Amount: 3200, EmailID: "msg-002"},
	}

	merged := Merge(cached, fetched)

	if len(merged) != 2 {
		t.Fatalf("got %d records, want 2: %v", len(merged), merged)
	}
	if merged[0].EmailID != "msg-001" || merged[1].EmailID != "msg-002" {
		t.Errorf("unexpected merge result: %v", merged)
	}
}

func TestMergeIdempotent(t *testing.T) {
	cached := []api.DebitRecord{
		{YearMonth: "2025-05", Payee: "A", Amount: 100, EmailID: "a"},
		{YearMonth: "2025-06", Payee: "B", Amount: 200, EmailID: "b"},
	}
	fetched := []api.DebitRecord{
		{YearMonth: "2025-06", Payee: "B", Amount: 200, EmailID: "b"},
		{YearMonth: "2025-07", Payee: "C", Amount: 300, EmailID: "c"},
	}

	once := Merge(cached, fetched)
	twice := Merge(once, fetched)

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("merge not idempotent:\nonce:  %v\ntwice: %v", once, twice)
	}
}

func TestMergeContentKeyFallback(t *testing.T) {
	// Records cached by older versions carry no email ID; the content tuple
	// serves as the key.
	cached := []api.DebitRecord{
		{YearMonth: "2025-06", Payee: "水道局", Amount: 4100},
	}
	fetched := []api.DebitRecord{
		{YearMonth: "2025-06", Payee: "水道局", Amount: 4100}, // same tuple, no ID
	}

	merged := Merge(cached, fetched)
	if len(merged) != 1 {
		t.Fatalf("content-duplicate should collapse, got %d records", len(merged))
	}
}

func TestMergeSameContentDifferentEmails(t *testing.T) {
	// Two genuine debits with identical payee and amount in one month arrive
	// in distinct emails and must both survive.
	cached := []api.DebitRecord{
		{YearMonth: "2025-06", Payee: "NHK", Amount: 1100, EmailID: "msg-010"},
	}
	fetched := []api.DebitRecord{
		{YearMonth: "2025-06", Payee: "NHK", Amount: 1100, EmailID: "msg-011"},
	}

	merged := Merge(cached, fetched)
	if len(merged) != 2 {
		t.Fatalf("distinct email IDs must not collapse, got %d records", len(merged))
	}
}

func TestMergeSortsByMonthStable(t *testing.T) {
	cached := []api.DebitRecord{
		{YearMonth: "2025-07", Payee: "later", Amount: 1, EmailID: "1"},
		{YearMonth: "2025-06", Payee: "first", Amount: 2, EmailID: "2"},
		{YearMonth: "2025-06", Payee: "second", Amount: 3, EmailID: "3"},
	}
	fetched := []api.DebitRecord{
		{YearMonth: "2025-06", Payee: "third", Amount: 4, EmailID: "4"},
		{YearMonth: "2025-05", Payee: "oldest", Amount: 5, EmailID: "5"},
	}

	merged := Merge(cached, fetched)

	wantPayees := []string{"oldest", "first", "second", "third", "later"}
	if len(merged) != len(wantPayees) {
		t.Fatalf("got %d records, want %d", len(merged), len(wantPayees))
	}
	for i, payee := range wantPayees {
		if merged[i].Payee != payee {
			t.Errorf("position %d: got %q, want %q", i, merged[i].Payee, payee)
		}
	}
}

func TestMergeEmptyInputs(t *testing.T) {
	if got := Merge(nil, nil); len(got) != 0 {
		t.Errorf("merge of nothing: got %v", got)
	}

	records := []api.DebitRecord{{YearMonth: "2025-06", Payee: "A", Amount: 1, EmailID: "a"}}
	if got := Merge(records, nil); len(got) != 1 {
		t.Errorf("merge with empty fetch: got %v", got)
	}
	if got := Merge(nil, records); len(got) != 1 {
		t.Errorf("merge into empty cache: got %v", got)
	}
}

func TestAggregate(t *testing.T) {
	records := []api.DebitRecord{
		{YearMonth: "2025-02", Payee: "A", Amount: 100},
		{YearMonth: "2025-02", Payee: "B", Amount: 200},
		{YearMonth: "2025-03", Payee: "A", Amount: 50},
	}

	summary := Aggregate(records, nil)

	if summary.Total != 350 {
		t.Errorf("total: got %d, want 350", summary.Total)
	}
	wantByMonth := map[string]int64{"2025-02": 300, "2025-03": 50}
	if !reflect.DeepEqual(summary.ByMonth, wantByMonth) {
		t.Errorf("by month: got %v, want %v", summary.ByMonth, wantByMonth)
	}
	wantByPayee := map[string]int64{"A": 150, "B": 200}
	if !reflect.DeepEqual(summary.ByPayee, wantByPayee) {
		t.Errorf("by payee: got %v, want %v", summary.ByPayee, wantByPayee)
	}
	if summary.RecordCount != 3 {
		t.Errorf("record count: got %d, want 3", summary.RecordCount)
	}
	if summary.MonthCount != 2 {
		t.Errorf("month count: got %d, want 2", summary.MonthCount)
	}
	if summary.PayeeCount != 2 {
		t.Errorf("payee count: got %d, want 2", summary.PayeeCount)
	}
}

func TestAggregateEmpty(t *testing.T) {
	summary := Aggregate(nil, nil)

	if summary.Total != 0 || summary.RecordCount != 0 || summary.MonthCount != 0 || summary.PayeeCount != 0 {
		t.Errorf("empty aggregate not zero: %+v", summary)
	}
	if summary.ByMonth == nil || summary.ByPayee == nil {
		t.Error("maps must be empty, not nil")
	}
}

func TestAggregateSingleMonthFilter(t *testing.T) {
	records := []api.DebitRecord{
		{YearMonth: "2025-06", Payee: "A", Amount: 100},
		{YearMonth: "2025-07", Payee: "A", Amount: 250},
		{YearMonth: "2025-07", Payee: "B", Amount: 80},
	}

	summary := Aggregate(records, SingleMonth("2025-07"))

	if summary.Total != 330 {
		t.Errorf("total: got %d, want 330", summary.Total)
	}
	if summary.MonthCount != 1 {
		t.Errorf("month count: got %d, want 1", summary.MonthCount)
	}
	if summary.RecordCount != 2 {
		t.Errorf("record count: got %d, want 2", summary.RecordCount)
	}
}

func TestMonthsSorted(t *testing.T) {
	summary := Aggregate([]api.DebitRecord{
		{YearMonth: "2025-07", Payee: "A", Amount: 1},
		{YearMonth: "2025-02", Payee: "A", Amount: 1},
		{YearMonth: "2025-05", Payee: "A", Amount: 1},
	}, nil)

	want := []string{"2025-02", "2025-05", "2025-07"}
	if got := Months(summary); !reflect.DeepEqual(got, want) {
		t.Errorf("months: got %v, want %v", got, want)
	}
}

func TestPayeesByTotal(t *testing.T) {
	summary := Aggregate([]api.DebitRecord{
		{YearMonth: "2025-06", Payee: "small", Amount: 10},
		{YearMonth: "2025-06", Payee: "big", Amount: 900},
		{YearMonth: "2025-06", Payee: "mid", Amount: 100},
		{YearMonth: "2025-07", Payee: "small", Amount: 90},
	}, nil)

	want := []string{"big", "mid", "small"}
	if got := PayeesByTotal(summary); !reflect.DeepEqual(got, want) {
		t.Errorf("payees: got %v, want %v", got, want)
	}
}
