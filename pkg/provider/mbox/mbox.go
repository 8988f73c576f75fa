// Package mbox implements the mail provider over a local mbox dump. It
// exists for offline runs and for exercising the pipeline against captured
// mail without touching the Gmail API.
package mbox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/mail"
	"os"
	"regexp"
	"strings"
	"time"

	gombox "github.com/emersion/go-mbox"

	"github.com/ymurata/debitwatch/pkg/api"
)

// Provider reads messages from one mbox file.
type Provider struct {
	path   string
	logger *slog.Logger
}

// New creates a provider for the given mbox file path.
func New(path string, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{path: path, logger: logger}
}

var subjectTerm = regexp.MustCompile(`subject:\(([^)]+)\)`)

// Search scans the mbox and returns messages whose Date falls within
// [after, before] and whose Subject contains the query's subject term.
// Queries use the same "subject:(...)" shape the Gmail provider sends, so
// the two providers are interchangeable behind api.Provider.
func (p *Provider) Search(_ context.Context, query string, after, before time.Time) ([]api.Email, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("opening mbox: %w", err)
	}
	defer f.Close()

	term := query
	if m := subjectTerm.FindStringSubmatch(query); m != nil {
		term = m[1]
	}

	// End of day on the inclusive upper bound.
	limit := time.Date(before.Year(), before.Month(), before.Day(), 0, 0, 0, 0, before.Location()).AddDate(0, 0, 1)

	var emails []api.Email
	mr := gombox.NewReader(f)
	for i := 0; ; i++ {
		msgReader, err := mr.NextMessage()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading mbox message %d: %w", i, err)
		}

		email, ok := p.parseMessage(msgReader, term, after, limit)
		if ok {
			emails = append(emails, email)
		}
	}

	p.logger.Debug("mbox search", "path", p.path, "matched", len(emails))
	return emails, nil
}

func (p *Provider) parseMessage(r io.Reader, term string, after, limit time.Time) (api.Email, bool) {
	msg, err := mail.ReadMessage(r)
	if err != nil {
		p.logger.Warn("skipping unparseable mbox message", "error", err)
		return api.Email{}, false
	}

	date, err := msg.Header.Date()
	if err != nil {
		p.logger.Warn("skipping mbox message without a date", "error", err)
		return api.Email{}, false
	}
	if date.Before(after) || !date.Before(limit) {
		return api.Email{}, false
	}

	subject := decodeHeader(msg.Header.Get("Subject"))
	if term != "" && !strings.Contains(subject, term) {
		return api.Email{}, false
	}

	body, err := io.ReadAll(msg.Body)
	if err != nil {
		p.logger.Warn("skipping mbox message with unreadable body", "error", err)
		return api.Email{}, false
	}

	return api.Email{
		ID:       strings.Trim(msg.Header.Get("Message-Id"), "<>"),
		From:     decodeHeader(msg.Header.Get("From")),
		Body:     string(body),
		Received: date,
	}, true
}

// decodeHeader unwraps RFC 2047 encoded words; raw values pass through.
func decodeHeader(v string) string {
	dec := mime.WordDecoder{}
	decoded, err := dec.DecodeHeader(v)
	if err != nil {
		return v
	}
	return decoded
}
