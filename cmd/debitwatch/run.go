package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	kJson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"google.golang.org/api/gmail/v1"

	"github.com/ymurata/debitwatch/pkg/analyzer"
	"github.com/ymurata/debitwatch/pkg/api"
	"github.com/ymurata/debitwatch/pkg/archive/postgres"
	"github.com/ymurata/debitwatch/pkg/cache"
	"github.com/ymurata/debitwatch/pkg/client"
	"github.com/ymurata/debitwatch/pkg/collector"
	"github.com/ymurata/debitwatch/pkg/config"
	"github.com/ymurata/debitwatch/pkg/planner"
	gmailprovider "github.com/ymurata/debitwatch/pkg/provider/gmail"
	mboxprovider "github.com/ymurata/debitwatch/pkg/provider/mbox"
)

type runOptions struct {
	mode        api.Mode
	summaryOnly bool
	analyze     bool
	archive     bool
}

// runCollect executes one collection pass and renders the result.
func runCollect(logger *slog.Logger, opts runOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	provider, err := newProvider(cfg, logger)
	if err != nil {
		return err
	}

	store := cache.New(cfg.CacheDir, logger.With("component", "cache"))
	plan, err := planner.New(cfg.FloorMonth, logger.With("component", "planner"))
	if err != nil {
		return err
	}

	col := collector.New(provider, store, plan, collector.Config{
		Query:   cfg.Query(),
		Senders: cfg.Senders,
	}, logger.With("component", "collector"))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	result, err := col.Run(ctx, opts.mode, time.Now())
	if err != nil {
		return err
	}

	source := result.SavedTo
	if source == "" {
		source = cfg.CacheDir + " (cached)"
	}

	render(result, source, opts, logger)

	if opts.analyze {
		paths, err := analyzer.New(result.Records, source, logger).SaveCharts(cfg.OutputDir)
		if err != nil {
			return fmt.Errorf("writing charts: %w", err)
		}
		for _, p := range paths {
			fmt.Printf("グラフを保存しました: %s\n", p)
		}
	}

	if opts.archive {
		if err := archiveRecords(ctx, cfg, result.Records, logger); err != nil {
			return err
		}
	}

	return nil
}

// render writes the run's records to stdout in the shape the mode calls for.
func render(result *collector.Result, source string, opts runOptions, logger *slog.Logger) {
	records := result.Records
	if opts.mode == api.ModeThisMonth {
		// The flat listing covers only the month being reported.
		month := time.Now().Format("2006-01")
		var filtered []api.DebitRecord
		for _, r := range records {
			if r.YearMonth == month {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}

	a := analyzer.New(records, source, logger)
	if opts.summaryOnly {
		a.WriteTotal(os.Stdout)
		return
	}

	newKeys := make(map[string]bool, len(result.NewRecords))
	for _, r := range result.NewRecords {
		newKeys[r.Key()] = true
	}
	a.WriteDetails(os.Stdout, opts.mode != api.ModeThisMonth, newKeys)
}

func archiveRecords(ctx context.Context, cfg config.Config, records []api.DebitRecord, logger *slog.Logger) error {
	if cfg.Postgres.Host == "" {
		return fmt.Errorf("DEBITWATCH_POSTGRES_HOST is required for --archive")
	}

	ar, err := postgres.New(postgres.Config{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
	}, logger.With("component", "archive"))
	if err != nil {
		return fmt.Errorf("connecting to archive: %w", err)
	}
	defer ar.Close()

	n, err := ar.Store(ctx, records)
	if err != nil {
		return fmt.Errorf("archiving records: %w", err)
	}
	fmt.Printf("アーカイブに%d件保存しました\n", n)
	return nil
}

// newProvider returns the mbox provider when a dump path is configured, the
// Gmail provider otherwise.
func newProvider(cfg config.Config, logger *slog.Logger) (api.Provider, error) {
	if cfg.MboxFile != "" {
		logger.Info("using mbox provider", "path", cfg.MboxFile)
		return mboxprovider.New(cfg.MboxFile, logger.With("component", "mbox")), nil
	}

	httpClient, err := client.New(cfg.SecretsFile, cfg.TokenFile, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("creating http client: %w", err)
	}
	return gmailprovider.New(httpClient, logger.With("component", "gmail"))
}

// configFile is read when present; environment variables override it.
const configFile = "config.json"

// loadConfig builds the configuration: defaults, then the optional JSON
// config file, then environment variables.
func loadConfig() (config.Config, error) {
	cfg := config.Default()

	k := koanf.New(".")

	if _, err := os.Stat(configFile); err == nil {
		if err := k.Load(file.Provider(configFile), kJson.Parser()); err != nil {
			return cfg, fmt.Errorf("loading %s: %w", configFile, err)
		}
	}

	err := k.Load(env.Provider("DEBITWATCH_", ".", func(s string) string {
		// The sender list is a comma-separated scalar; decoded by hand below.
		if s == "DEBITWATCH_SENDERS" {
			return ""
		}
		return s
	}), nil)
	if err != nil {
		return cfg, fmt.Errorf("loading config from environment: %w", err)
	}

	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return cfg, fmt.Errorf("unmarshaling config: %w", err)
	}

	if raw := os.Getenv("DEBITWATCH_SENDERS"); raw != "" {
		cfg.Senders = splitList(raw)
	}

	cfg.Postgres = config.PostgresConfig{
		Host:     os.Getenv("DEBITWATCH_POSTGRES_HOST"),
		Port:     intEnv("DEBITWATCH_POSTGRES_PORT"),
		Database: os.Getenv("DEBITWATCH_POSTGRES_DB"),
		User:     os.Getenv("DEBITWATCH_POSTGRES_USER"),
		Password: os.Getenv("DEBITWATCH_POSTGRES_PASSWORD"),
		SSLMode:  os.Getenv("DEBITWATCH_POSTGRES_SSLMODE"),
	}

	return cfg, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// intEnv parses an integer environment variable. A malformed value is
// reported and treated as unset so the caller's default applies.
func intEnv(key string) int {
	raw := os.Getenv(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("ignoring malformed environment variable", "key", key, "value", raw)
		return 0
	}
	return n
}
