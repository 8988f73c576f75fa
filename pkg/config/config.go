// Package config holds the application configuration for debitwatch.
package config

import "fmt"

// ClientSecretFile is the default path to the Google OAuth credentials JSON file.
const ClientSecretFile = "data/client_secret.json"

// TokenFile is the default path to the cached OAuth token.
const TokenFile = "data/token.json"

// Config holds the application configuration loaded from environment variables.
type Config struct {
	// CacheDir is the directory holding the rotating result_debit_*.csv
	// snapshot. Environment variable: DEBITWATCH_CACHE_DIR
	CacheDir string `koanf:"DEBITWATCH_CACHE_DIR"`

	// OutputDir is where the analyzer writes chart artifacts.
	// Environment variable: DEBITWATCH_OUTPUT_DIR
	OutputDir string `koanf:"DEBITWATCH_OUTPUT_DIR"`

	// FloorMonth is the earliest "YYYY-MM" for which the bank's notification
	// emails carry a usable amount field. Months before it are never queried.
	// Environment variable: DEBITWATCH_FLOOR_MONTH
	FloorMonth string `koanf:"DEBITWATCH_FLOOR_MONTH"`

	// SearchSubject is the subject term of the bank's debit notifications.
	// Environment variable: DEBITWATCH_SEARCH_SUBJECT
	SearchSubject string `koanf:"DEBITWATCH_SEARCH_SUBJECT"`

	// Senders is the allow-list of sender addresses or domains.
	// Environment variable: DEBITWATCH_SENDERS (comma-separated)
	Senders []string `koanf:"DEBITWATCH_SENDERS"`

	// SecretsFile is the path to the Google OAuth credentials JSON file.
	// Environment variable: DEBITWATCH_SECRETS_FILE
	SecretsFile string `koanf:"DEBITWATCH_SECRETS_FILE"`

	// TokenFile is the path to the cached OAuth token.
	// Environment variable: DEBITWATCH_TOKEN_FILE
	TokenFile string `koanf:"DEBITWATCH_TOKEN_FILE"`

	// MboxFile, when set, reads messages from a local mbox dump instead of
	// the Gmail API. Environment variable: DEBITWATCH_MBOX_FILE
	MboxFile string `koanf:"DEBITWATCH_MBOX_FILE"`

	// Postgres configures the optional long-term archive.
	Postgres PostgresConfig
}

// PostgresConfig holds the archive database connection configuration.
type PostgresConfig struct {
	Host     string `koanf:"DEBITWATCH_POSTGRES_HOST"`
	Port     int    `koanf:"DEBITWATCH_POSTGRES_PORT"`
	Database string `koanf:"DEBITWATCH_POSTGRES_DB"`
	User     string `koanf:"DEBITWATCH_POSTGRES_USER"`
	Password string `koanf:"DEBITWATCH_POSTGRES_PASSWORD"`
	SSLMode  string `koanf:"DEBITWATCH_POSTGRES_SSLMODE"`
}

// Default returns the configuration matching the bank this tool was written
// for (住信SBIネット銀行 direct-debit notifications).
func Default() Config {
	return Config{
		CacheDir:      "data",
		OutputDir:     "outputs",
		FloorMonth:    "2025-01",
		SearchSubject: "口座振替",
		Senders: []string{
			"post_master@netbk.co.jp",
			"@netbk.co.jp",
		},
		SecretsFile: ClientSecretFile,
		TokenFile:   TokenFile,
	}
}

// Validate checks that the fields the core depends on are present.
func (c Config) Validate() error {
	if c.CacheDir == "" {
		return fmt.Errorf("cache directory is required")
	}
	if c.FloorMonth == "" {
		return fmt.Errorf("floor month is required")
	}
	if c.SearchSubject == "" {
		return fmt.Errorf("search subject is required")
	}
	return nil
}

// Query returns the provider search query for the configured subject.
func (c Config) Query() string {
	return fmt.Sprintf("subject:(%s)", c.SearchSubject)
}
