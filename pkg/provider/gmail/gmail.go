// Package gmail implements the mail provider against the Gmail API.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/ymurata/debitwatch/pkg/api"
)

const user = "me"

// Provider searches a Gmail account for debit notification emails.
type Provider struct {
	client *gmail.Service
	logger *slog.Logger
}

// New creates a Gmail provider using an OAuth-authorized HTTP client.
func New(httpClient *http.Client, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := gmail.NewService(context.Background(), option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}

	return &Provider{client: client, logger: logger}, nil
}

// Search lists messages matching the query within [after, before] and
// returns their decoded bodies. Gmail's "before:" operator excludes the
// named day, so the inclusive upper bound is sent as before+1d.
func (p *Provider) Search(ctx context.Context, query string, after, before time.Time) ([]api.Email, error) {
	q := fmt.Sprintf("%s after:%s before:%s",
		query,
		after.Format("2006/01/02"),
		before.AddDate(0, 0, 1).Format("2006/01/02"),
	)
	p.logger.Debug("gmail search", "query", q)

	var resp *gmail.ListMessagesResponse
	err := retry.Do(
		func() error {
			var err error
			resp, err = p.client.Users.Messages.List(user).Q(q).Context(ctx).Do()
			return err
		},
		retry.RetryIf(isRetryable),
		retry.Attempts(3),
		retry.Delay(2*time.Second),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	emails := make([]api.Email, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		email, err := p.fetchMessage(ctx, msg.Id)
		if err != nil {
			// One unreadable message should not void the whole range.
			p.logger.Warn("failed to fetch message", "id", msg.Id, "error", err)
			continue
		}
		emails = append(emails, email)
	}

	return emails, nil
}

func (p *Provider) fetchMessage(ctx context.Context, id string) (api.Email, error) {
	var msg *gmail.Message
	err := retry.Do(
		func() error {
			var err error
			msg, err = p.client.Users.Messages.Get(user, id).Context(ctx).Do()
			return err
		},
		retry.RetryIf(isRetryable),
		retry.Attempts(3),
		retry.Delay(2*time.Second),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return api.Email{}, fmt.Errorf("getting message: %w", err)
	}

	body := extractBody(msg.Payload)
	if body == "" {
		// The snippet usually contains the template fields when the body
		// itself could not be decoded.
		body = msg.Snippet
	}

	return api.Email{
		ID:       id,
		From:     headerValue(msg.Payload, "From"),
		Body:     body,
		Received: time.Unix(msg.InternalDate/1000, 0),
	}, nil
}

// extractBody prefers the text/plain part; the bank's notifications are
// plain text. Falls back to the top-level body data.
func extractBody(payload *gmail.MessagePart) string {
	if payload == nil {
		return ""
	}

	for _, part := range payload.Parts {
		if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" {
			if decoded, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
				return string(decoded)
			}
		}
	}

	if payload.Body != nil && payload.Body.Data != "" {
		if decoded, err := base64.URLEncoding.DecodeString(payload.Body.Data); err == nil {
			return string(decoded)
		}
	}

	return ""
}

func headerValue(payload *gmail.MessagePart, name string) string {
	if payload == nil {
		return ""
	}
	for _, h := range payload.Headers {
		if h.Name == name {
			return h.Value
		}
	}
	return ""
}

// isRetryable reports whether a Gmail API error is worth retrying:
// rate limiting and transient server errors.
func isRetryable(err error) bool {
	if apiErr, ok := err.(*googleapi.Error); ok {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	return false
}
