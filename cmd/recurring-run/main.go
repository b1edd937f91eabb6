// Command recurring-run processes recurring rules once, for backfills and
// manual runs against the configured backend.
//
//	recurring-run                          # today
//	recurring-run -date 2025-03-31         # one day
//	recurring-run -from 2025-03-01 -to 2025-03-31 -user 7
//	recurring-run -date 2025-03-31 -rule 42
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"

	"gagyebu/internal/backend"
	"gagyebu/internal/cli"
	"gagyebu/internal/config"
	"gagyebu/internal/core"
	"gagyebu/internal/log"
	"gagyebu/internal/services"
)

var (
	okColor   = color.New(color.FgGreen)
	skipColor = color.New(color.FgYellow)
	failColor = color.New(color.FgRed, color.Bold)
	dimColor  = color.New(color.Faint)
)

type options struct {
	date, from, to string
	userID, ruleID int64
}

func main() {
	os.Exit(realMain())
}

// realMain returns the exit code so deferred cleanup runs before exit.
func realMain() int {
	var opts options
	flag.StringVar(&opts.date, "date", "", "day to process (YYYY-MM-DD), defaults to today")
	flag.StringVar(&opts.from, "from", "", "first day of a range (YYYY-MM-DD)")
	flag.StringVar(&opts.to, "to", "", "last day of a range (YYYY-MM-DD)")
	flag.Int64Var(&opts.userID, "user", 0, "only process rules created by this user")
	flag.Int64Var(&opts.ruleID, "rule", 0, "only process this rule (single day only)")
	flag.Parse()

	cfg := cli.LoadAndValidateConfig()
	// Progress goes to stdout in color; only warnings and errors are logged.
	cfg.LogLevel = "warn"
	logger := cli.SetupLogger(cfg, log.ComponentRecurring)

	ctx, stop := cli.SignalContext()
	defer stop()

	be := cli.InitBackend(ctx, logger, cfg)
	defer closeBackend(be, logger)

	processor := cli.NewProcessor(cfg, be, logger)

	if err := run(ctx, processor, cfg, opts); err != nil {
		failColor.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

func closeBackend(be *backend.BackendResult, logger *log.Logger) {
	if err := be.Cleanup(); err != nil {
		logger.Error("Backend cleanup failed", log.FieldError, err)
	}
}

func run(ctx context.Context, processor *services.RecurringProcessor, cfg *config.Config, opts options) error {
	var userID, ruleID *int64
	if opts.userID > 0 {
		userID = &opts.userID
	}
	if opts.ruleID > 0 {
		ruleID = &opts.ruleID
	}

	if opts.from != "" || opts.to != "" {
		if opts.from == "" || opts.to == "" {
			return fmt.Errorf("-from and -to must be given together")
		}
		if ruleID != nil {
			return fmt.Errorf("-rule cannot be combined with a range")
		}
		start, err := core.ParseDate(opts.from)
		if err != nil {
			return fmt.Errorf("invalid -from %q: %w", opts.from, err)
		}
		end, err := core.ParseDate(opts.to)
		if err != nil {
			return fmt.Errorf("invalid -to %q: %w", opts.to, err)
		}
		if days := core.DaysBetween(start, end); days > cfg.MaxRangeDays {
			return fmt.Errorf("range spans %d days, at most %d allowed", days, cfg.MaxRangeDays)
		}

		results, err := processor.ProcessForRange(ctx, start, end, userID)
		for _, r := range results {
			printResult(r)
		}
		if err != nil {
			return err
		}
		printTotals(results)
		return nil
	}

	date := processor.Today()
	if opts.date != "" {
		d, err := core.ParseDate(opts.date)
		if err != nil {
			return fmt.Errorf("invalid -date %q: %w", opts.date, err)
		}
		date = d
	}

	result, err := processor.ProcessForDate(ctx, date, core.ProcessOptions{RuleID: ruleID, UserID: userID})
	if err != nil {
		return err
	}
	printResult(result)
	return nil
}

func printResult(r core.DateResult) {
	fmt.Printf("%s  ", r.Date)
	if r.Error != "" {
		failColor.Printf("failed: %s\n", r.Error)
		return
	}
	okColor.Printf("%d created", r.Created)
	fmt.Print(", ")
	skipColor.Printf("%d skipped", r.Skipped)
	if r.Failed > 0 {
		fmt.Print(", ")
		failColor.Printf("%d failed", r.Failed)
	}
	dimColor.Printf("  (%d rules)\n", r.Total)
	for _, f := range r.Failures {
		failColor.Printf("    rule %d: %s\n", f.RuleID, f.Error)
	}
}

func printTotals(results []core.DateResult) {
	var created, skipped, failed int
	for _, r := range results {
		created += r.Created
		skipped += r.Skipped
		failed += r.Failed
	}
	fmt.Printf("%d days: ", len(results))
	okColor.Printf("%d created", created)
	fmt.Print(", ")
	skipColor.Printf("%d skipped", skipped)
	if failed > 0 {
		fmt.Print(", ")
		failColor.Printf("%d failed", failed)
	}
	fmt.Println()
}
