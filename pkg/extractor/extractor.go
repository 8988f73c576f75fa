// Package extractor parses bank direct-debit notification emails into debit
// records. The format is fixed by contract with one bank's notification
// template (住信SBIネット銀行); this is deliberately not a general parser.
package extractor

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/width"

	"github.com/ymurata/debitwatch/pkg/api"
)

var (
	// payeePattern captures the payee line. The payee ends at a newline or
	// at the next field label, whichever comes first; single-line bodies
	// terminate at the amount label or the end of text.
	payeePattern = regexp.MustCompile(`口座振替先\s*[:：]\s*([\s\S]+?)(?:\r?\n|お申込先|引落金額|$)`)

	// amountPattern captures the debited amount, optionally prefixed with a
	// yen sign and thousands-separated.
	amountPattern = regexp.MustCompile(`引落金額\s*[:：]\s*(¥?[\d,]+)円`)
)

// Extract parses one email body into a debit record. The body must already be
// charset-decoded text. The returned bool is false when the notification
// template does not match, the payee is empty, or the amount is not a
// positive integer; none of these are errors, they just mean this email
// carries no usable debit.
//
// Full-width digits, commas, colons and yen signs are folded to their
// half-width forms before matching, so bodies composed on either width
// convention parse identically.
func Extract(body string, received time.Time) (api.DebitRecord, bool) {
	if body == "" {
		return api.DebitRecord{}, false
	}

	// width.Fold narrows full-width ASCII variants while widening half-width
	// katakana, so payee names keep their canonical form.
	folded := width.Fold.String(body)

	payeeMatch := payeePattern.FindStringSubmatch(folded)
	if payeeMatch == nil {
		return api.DebitRecord{}, false
	}
	payee := strings.TrimSpace(payeeMatch[1])
	if payee == "" {
		return api.DebitRecord{}, false
	}

	amountMatch := amountPattern.FindStringSubmatch(folded)
	if amountMatch == nil {
		return api.DebitRecord{}, false
	}
	amount, err := parseAmount(amountMatch[1])
	if err != nil || amount <= 0 {
		return api.DebitRecord{}, false
	}

	return api.DebitRecord{
		YearMonth: received.Format("2006-01"),
		Payee:     payee,
		Amount:    amount,
	}, true
}

func parseAmount(s string) (int64, error) {
	s = strings.ReplaceAll(s, "¥", "")
	s = strings.ReplaceAll(s, ",", "")
	return strconv.ParseInt(s, 10, 64)
}

// SenderFilter is an allow-list of sender addresses or domain suffixes.
type SenderFilter []string

// NewSenderFilter builds a filter from configured addresses. Entries are
// matched case-insensitively as substrings of the From header, so "@bank.com"
// admits every address at that domain.
func NewSenderFilter(addrs []string) SenderFilter {
	filter := make(SenderFilter, 0, len(addrs))
	for _, a := range addrs {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" {
			filter = append(filter, a)
		}
	}
	return filter
}

// Valid reports whether the From header value matches the allow-list. An
// empty filter admits everything.
func (f SenderFilter) Valid(from string) bool {
	if len(f) == 0 {
		return true
	}
	from = strings.ToLower(from)
	for _, allowed := range f {
		if strings.Contains(from, allowed) {
			return true
		}
	}
	return false
}
