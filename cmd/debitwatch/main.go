package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/ymurata/debitwatch/pkg/api"
	"github.com/ymurata/debitwatch/pkg/logging"
)

func main() {
	// .env is optional; deployments set real environment variables.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runCmd := flag.NewFlagSet("run", flag.ExitOnError)
		year := runCmd.Bool("year", false, "fetch the past twelve months instead of the current month")
		fill := runCmd.Bool("fill", false, "fetch every month missing from the cache")
		summaryOnly := runCmd.Bool("summary-only", false, "print only the total amount")
		analyze := runCmd.Bool("analyze", false, "write chart artifacts after the run")
		archive := runCmd.Bool("archive", false, "store the merged records in the PostgreSQL archive")
		runCmd.Parse(os.Args[2:])

		if *year && *fill {
			fmt.Fprintln(os.Stderr, "Error: --year and --fill are mutually exclusive")
			os.Exit(1)
		}

		mode := api.ModeThisMonth
		switch {
		case *year:
			mode = api.ModePastYear
		case *fill:
			mode = api.ModeGapFill
		}

		logCfg := logging.DefaultConfig()
		if *summaryOnly {
			// The total is the whole output; keep logs out of the way.
			logCfg = logging.QuietConfig()
		}
		logger := logging.Setup(logCfg)

		opts := runOptions{
			mode:        mode,
			summaryOnly: *summaryOnly,
			analyze:     *analyze,
			archive:     *archive,
		}
		if err := runCollect(logger, opts); err != nil {
			logger.Error("run failed", "error", err)
			os.Exit(1)
		}

	case "setup":
		setupCmd := flag.NewFlagSet("setup", flag.ExitOnError)
		force := setupCmd.Bool("force", false, "re-authenticate even if a token exists")
		setupCmd.Parse(os.Args[2:])

		logger := logging.Setup(logging.DefaultConfig())
		if err := runSetup(logger, *force); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "status":
		if err := runStatus(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`debitwatch - bank direct-debit tracker over Gmail

Usage:
  debitwatch <command> [flags]

Commands:
  run       Fetch and report direct-debit records
  setup     Run the Google OAuth flow
  status    Check configuration and authentication
  help      Show this help

Run flags:
  --year          Fetch the past twelve months
  --fill          Fetch every month missing from the cache
  --summary-only  Print only the total amount
  --analyze       Write chart artifacts to the output directory
  --archive       Store the merged records in the PostgreSQL archive

Configuration is read from config.json when present; environment
variables (and a .env file) override it.

Environment:
  DEBITWATCH_CACHE_DIR      Snapshot directory (default "data")
  DEBITWATCH_OUTPUT_DIR     Chart output directory (default "outputs")
  DEBITWATCH_FLOOR_MONTH    Earliest month to query, "YYYY-MM"
  DEBITWATCH_SEARCH_SUBJECT Notification subject term
  DEBITWATCH_SENDERS        Comma-separated sender allow-list
  DEBITWATCH_SECRETS_FILE   OAuth client secret JSON path
  DEBITWATCH_TOKEN_FILE     Cached OAuth token path
  DEBITWATCH_MBOX_FILE      Read a local mbox dump instead of Gmail`)
}
