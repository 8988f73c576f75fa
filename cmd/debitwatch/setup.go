package main

import (
	"fmt"
	"log/slog"
	"os"

	"google.golang.org/api/gmail/v1"

	"github.com/ymurata/debitwatch/pkg/client"
)

// runSetup handles the OAuth setup flow.
func runSetup(logger *slog.Logger, force bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Println("=== Debitwatch Setup ===")
	fmt.Println()

	if cfg.MboxFile != "" {
		fmt.Printf("DEBITWATCH_MBOX_FILE is set (%s); no Google authentication needed.\n", cfg.MboxFile)
		return nil
	}

	// Check if credentials file exists
	if _, err := os.Stat(cfg.SecretsFile); os.IsNotExist(err) {
		return fmt.Errorf("credentials file not found: %s\n\nTo get your credentials:\n"+
			"1. Go to https://console.cloud.google.com/apis/credentials\n"+
			"2. Create an OAuth 2.0 Client ID (Desktop application)\n"+
			"3. Download the JSON file and save it as '%s'", cfg.SecretsFile, cfg.SecretsFile)
	}

	// Check if already authenticated
	if !force && client.HasToken(cfg.TokenFile) {
		fmt.Printf("Already authenticated! Token file exists: %s\n", cfg.TokenFile)
		fmt.Println()
		fmt.Println("To re-authenticate, run: debitwatch setup --force")
		return nil
	}

	if force {
		if err := os.Remove(cfg.TokenFile); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove existing token", "error", err)
		}
		fmt.Println("Forcing re-authentication...")
		fmt.Println()
	}

	fmt.Println("This will set up OAuth authentication with Google.")
	fmt.Println()
	fmt.Println("Required permissions:")
	fmt.Println("  - Gmail: Read emails (search-only, nothing is modified)")
	fmt.Println()
	fmt.Println("Starting authentication...")
	fmt.Println()

	// Trigger OAuth flow by creating client
	if _, err := client.New(cfg.SecretsFile, cfg.TokenFile, gmail.GmailReadonlyScope); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	fmt.Println()
	fmt.Println("=== Setup Complete ===")
	fmt.Println()
	fmt.Printf("Token saved to: %s\n", cfg.TokenFile)
	fmt.Println()
	fmt.Println("Run 'debitwatch run' to fetch this month's direct debits.")
	fmt.Println()

	return nil
}
