// Package api defines the core interfaces and data structures for debitwatch.
package api

import (
	"context"
	"fmt"
	"time"
)

// DebitRecord holds one direct-debit entry extracted from a notification email.
type DebitRecord struct {
	// YearMonth is the calendar month of the debit, formatted "YYYY-MM".
	YearMonth string `json:"year_month"`
	Payee     string `json:"payee"`
	// Amount is the debited amount in yen. Zero-amount records are dropped
	// before aggregation.
	Amount int64 `json:"amount"`
	// EmailID is the provider message ID the record was extracted from.
	// It is the preferred dedup key; records cached by older versions may
	// lack it.
	EmailID string `json:"email_id,omitempty"`
}

// Key returns the dedup key for the record. The email ID wins when present;
// two legitimate debits with the same payee and amount in one month arrive in
// separate emails and must not collapse into one record.
func (r DebitRecord) Key() string {
	if r.EmailID != "" {
		return "id:" + r.EmailID
	}
	return fmt.Sprintf("rec:%s|%s|%d", r.YearMonth, r.Payee, r.Amount)
}

// Snapshot is the persisted cache state: all known records plus the creation
// timestamp used as the fetch watermark.
type Snapshot struct {
	CreatedAt time.Time
	Records   []DebitRecord
}

// Months returns the set of year-months present in the snapshot.
func (s *Snapshot) Months() map[string]bool {
	months := make(map[string]bool)
	if s == nil {
		return months
	}
	for _, r := range s.Records {
		months[r.YearMonth] = true
	}
	return months
}

// Mode selects which date ranges a run queries.
type Mode int

const (
	// ModeThisMonth fetches the current month, narrowed to the days after the
	// last fetch when the cache was created this month.
	ModeThisMonth Mode = iota
	// ModePastYear fetches the twelve calendar months ending at the current
	// month, skipping months already cached.
	ModePastYear
	// ModeGapFill fetches every month missing from the cache between the
	// floor month and the current month.
	ModeGapFill
)

func (m Mode) String() string {
	switch m {
	case ModeThisMonth:
		return "this-month"
	case ModePastYear:
		return "past-year"
	case ModeGapFill:
		return "gap-fill"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// FetchRange is a concrete date interval to query against the mail provider.
// Both Start and End are inclusive calendar dates at midnight; providers that
// use exclusive upper bounds translate End themselves.
type FetchRange struct {
	Start time.Time
	End   time.Time
}

func (f FetchRange) String() string {
	return f.Start.Format("2006-01-02") + ".." + f.End.Format("2006-01-02")
}

// Email is one decoded message returned by a Provider.
type Email struct {
	// ID is the provider's message identifier.
	ID string
	// From is the raw sender header value.
	From string
	// Body is the charset-decoded plain text of the message.
	Body string
	// Received is when the message arrived.
	Received time.Time
}

// Provider searches a mail account for messages matching a query within a
// date range. The range is inclusive on both ends. Implementations return
// already-decoded bodies; the core never sees raw transfer encodings.
type Provider interface {
	Search(ctx context.Context, query string, after, before time.Time) ([]Email, error)
}

// Summary is the derived aggregate over a set of debit records. It is never
// persisted.
type Summary struct {
	ByMonth     map[string]int64 `json:"by_month"`
	ByPayee     map[string]int64 `json:"by_payee"`
	Total       int64            `json:"total"`
	RecordCount int              `json:"record_count"`
	MonthCount  int              `json:"month_count"`
	PayeeCount  int              `json:"payee_count"`
}
