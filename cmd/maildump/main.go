// Command maildump fetches direct-debit notification emails and dumps their
// bodies to files. This utility is used to collect email samples for unit
// testing.
package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/ymurata/debitwatch/pkg/client"
	"github.com/ymurata/debitwatch/pkg/config"
	"github.com/ymurata/debitwatch/pkg/logging"
)

const dumpDir = "tests/data/dump"

func main() {
	_ = godotenv.Load()
	logger := logging.Setup(logging.DefaultConfig())

	cfg := config.Default()
	if subject := os.Getenv("DEBITWATCH_SEARCH_SUBJECT"); subject != "" {
		cfg.SearchSubject = subject
	}

	httpClient, err := client.New(cfg.SecretsFile, cfg.TokenFile, gmail.GmailReadonlyScope)
	if err != nil {
		logger.Error("failed to create http client", "error", err)
		os.Exit(1)
	}

	svc, err := gmail.NewService(context.Background(), option.WithHTTPClient(httpClient))
	if err != nil {
		logger.Error("failed to create gmail service", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(dumpDir, 0o755); err != nil {
		logger.Error("failed to create dump directory", "error", err)
		os.Exit(1)
	}

	logger.Info("dumping messages", "query", cfg.Query())

	count, err := dumpMessages(context.Background(), svc, cfg.Query(), logger)
	if err != nil {
		logger.Error("failed to dump messages", "error", err)
		os.Exit(1)
	}

	logger.Info("email dump complete", "dumped", count, "directory", dumpDir)
}

func dumpMessages(ctx context.Context, svc *gmail.Service, query string, logger *slog.Logger) (int, error) {
	resp, err := svc.Users.Messages.List("me").Q(query).MaxResults(10).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("listing messages: %w", err)
	}

	count := 0
	for _, msg := range resp.Messages {
		if err := dumpMessage(ctx, svc, msg.Id, logger); err != nil {
			logger.Warn("failed to dump message", "message_id", msg.Id, "error", err)
			continue
		}
		count++
	}

	return count, nil
}

func dumpMessage(ctx context.Context, svc *gmail.Service, msgID string, logger *slog.Logger) error {
	msg, err := svc.Users.Messages.Get("me", msgID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("getting message: %w", err)
	}

	var subject string
	for _, header := range msg.Payload.Headers {
		if header.Name == "Subject" {
			subject = header.Value
			break
		}
	}

	receivedTime := time.Unix(msg.InternalDate/1000, 0)
	dateFormatted := receivedTime.Format("2006-01-02_150405")

	body := extractBody(msg)
	if body == "" {
		return fmt.Errorf("empty message body")
	}

	filename := sanitizeFilename(fmt.Sprintf("debit_%s_%s.txt", dateFormatted, subject))
	filePath := filepath.Join(dumpDir, filename)

	if _, err := os.Stat(filePath); err == nil {
		logger.Debug("file already exists, skipping", "file", filename)
		return nil
	}

	if err := os.WriteFile(filePath, []byte(body), 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	logger.Info("dumped email", "file", filename, "subject", subject)
	return nil
}

func extractBody(msg *gmail.Message) string {
	// text/plain first; the fixtures are easiest to read that way
	for _, part := range msg.Payload.Parts {
		if part.MimeType == "text/plain" {
			bodyBytes, err := base64.URLEncoding.DecodeString(part.Body.Data)
			if err != nil {
				continue
			}
			return string(bodyBytes)
		}
	}

	for _, part := range msg.Payload.Parts {
		if part.MimeType == "text/html" {
			bodyBytes, err := base64.URLEncoding.DecodeString(part.Body.Data)
			if err != nil {
				continue
			}
			return string(bodyBytes)
		}
	}

	if msg.Payload.Body != nil && msg.Payload.Body.Data != "" {
		bodyBytes, err := base64.URLEncoding.DecodeString(msg.Payload.Body.Data)
		if err == nil {
			return string(bodyBytes)
		}
	}

	return ""
}

func sanitizeFilename(name string) string {
	unsafe := regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	name = unsafe.ReplaceAllString(name, "_")
	name = regexp.MustCompile(`_+`).ReplaceAllString(name, "_")

	name = strings.Trim(name, "_")
	if len(name) > 200 {
		name = name[:200]
	}

	return name
}
