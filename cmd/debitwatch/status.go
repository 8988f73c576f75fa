package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/ymurata/debitwatch/pkg/cache"
	"github.com/ymurata/debitwatch/pkg/client"
	"github.com/ymurata/debitwatch/pkg/config"
	"github.com/ymurata/debitwatch/pkg/logging"
)

// runStatus checks the configuration, cache and authentication status.
func runStatus() error {
	fmt.Println("=== Debitwatch Status ===")
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	allGood := true

	checkConfig(cfg, &allGood)
	checkCache(cfg, &allGood)

	if cfg.MboxFile != "" {
		checkMbox(cfg, &allGood)
	} else {
		token := checkCredentials(cfg, &allGood)
		if token != nil {
			checkGmailConnectivity(cfg, &allGood)
		}
	}

	fmt.Println()
	if allGood {
		fmt.Println("Status: ✓ Ready to run")
		fmt.Println()
		fmt.Println("Run 'debitwatch run' to fetch this month's direct debits.")
	} else {
		fmt.Println("Status: ✗ Configuration issues detected")
		fmt.Println()
		fmt.Println("Fix the issues above, then run 'debitwatch status' again.")
	}

	return nil
}

func checkConfig(cfg config.Config, allGood *bool) {
	fmt.Print("Configuration: ")
	if err := cfg.Validate(); err != nil {
		fmt.Printf("✗ %v\n", err)
		*allGood = false
		return
	}
	fmt.Printf("✓ floor=%s subject=%q senders=%d\n", cfg.FloorMonth, cfg.SearchSubject, len(cfg.Senders))
}

func checkCache(cfg config.Config, allGood *bool) {
	fmt.Printf("Cache (%s): ", cfg.CacheDir)

	store := cache.New(cfg.CacheDir, logging.Setup(logging.QuietConfig()))
	snap, err := store.LoadCurrent()
	if err != nil {
		fmt.Printf("✗ %v\n", err)
		*allGood = false
		return
	}
	if snap == nil {
		fmt.Println("⚠ Empty (first run will fetch everything since the floor month)")
		return
	}
	fmt.Printf("✓ %d records over %d months, fetched %s\n",
		len(snap.Records), len(snap.Months()), snap.CreatedAt.Format("2006-01-02"))
}

func checkMbox(cfg config.Config, allGood *bool) {
	fmt.Printf("Mbox file (%s): ", cfg.MboxFile)
	info, err := os.Stat(cfg.MboxFile)
	if err != nil {
		fmt.Println("✗ Not found")
		*allGood = false
		return
	}
	fmt.Printf("✓ Found (%d bytes)\n", info.Size())
}

func checkCredentials(cfg config.Config, allGood *bool) *oauth2.Token {
	fmt.Printf("Credentials file (%s): ", cfg.SecretsFile)
	if _, err := os.Stat(cfg.SecretsFile); os.IsNotExist(err) {
		fmt.Println("✗ Not found")
		*allGood = false
	} else {
		fmt.Println("✓ Found")
	}

	fmt.Printf("OAuth token (%s): ", cfg.TokenFile)
	token, err := checkToken(cfg.TokenFile)
	if err != nil {
		fmt.Printf("✗ %v\n", err)
		*allGood = false
		return nil
	}

	if token.Expiry.Before(time.Now()) {
		fmt.Println("⚠ Expired (will refresh on next run)")
	} else {
		fmt.Printf("✓ Valid (expires: %s)\n", token.Expiry.Format(time.RFC3339))
	}
	return token
}

func checkToken(tokenPath string) (*oauth2.Token, error) {
	data, err := os.ReadFile(tokenPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("not found (run 'debitwatch setup')")
		}
		return nil, err
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("invalid format")
	}

	return &token, nil
}

func checkGmailConnectivity(cfg config.Config, allGood *bool) {
	fmt.Println()
	fmt.Println("API Connectivity:")

	httpClient, err := client.New(cfg.SecretsFile, cfg.TokenFile, gmail.GmailReadonlyScope)
	if err != nil {
		fmt.Printf("  OAuth client: ✗ %v\n", err)
		*allGood = false
		return
	}

	fmt.Print("  Gmail API: ")
	if err := testGmailAPI(httpClient); err != nil {
		fmt.Printf("✗ %v\n", err)
		*allGood = false
	} else {
		fmt.Println("✓ Connected")
	}
}

func testGmailAPI(httpClient *http.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}

	// List labels as a simple connectivity test
	if _, err := svc.Users.Labels.List("me").Context(ctx).Do(); err != nil {
		return fmt.Errorf("API call failed: %w", err)
	}

	return nil
}
