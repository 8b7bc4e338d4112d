package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/quorumreview/internal/changeset"
	"github.com/quorumreview/internal/config"
	"github.com/quorumreview/internal/logging"
	"github.com/quorumreview/internal/review"
	"github.com/quorumreview/internal/strategy"
)

// ReviewCommand returns the review command
func ReviewCommand() *cli.Command {
	return &cli.Command{
		Name:  "review",
		Usage: "Review a code change from a unified diff",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "diff",
				Aliases: []string{"f"},
				Usage:   "Read the unified diff from `FILE` (- for stdin)",
				Value:   "-",
			},
			&cli.StringFlag{
				Name:    "title",
				Aliases: []string{"t"},
				Usage:   "Title of the change",
			},
			&cli.StringFlag{
				Name:  "description",
				Usage: "Description of the change",
			},
			&cli.StringFlag{
				Name:  "pr",
				Usage: "Pull request identifier",
				Value: "local",
			},
			&cli.StringFlag{
				Name:  "platform",
				Usage: "Source platform the change came from",
				Value: "local",
			},
			&cli.StringFlag{
				Name:    "repository",
				Aliases: []string{"r"},
				Usage:   "Repository in owner/name form",
				Value:   "local/workspace",
			},
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"d"},
				Usage:   "Print the execution decision without calling the oracle",
			},
		},
		Action: runReview,
	}
}

func runReview(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	diff, err := readDiff(c.String("diff"))
	if err != nil {
		return err
	}

	if c.Bool("dry-run") {
		return printDecision(cfg, diff, c.String("title"), c.String("description"), log)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	store, db, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	svc, err := buildService(ctx, cfg, store, log)
	if err != nil {
		return err
	}

	report, err := svc.Run(ctx, review.Request{
		PRID:        c.String("pr"),
		Platform:    c.String("platform"),
		Repository:  c.String("repository"),
		Title:       c.String("title"),
		Description: c.String("description"),
		Diff:        diff,
	})
	if err != nil {
		return fmt.Errorf("review failed: %w", err)
	}

	printReport(report)
	return nil
}

// readDiff loads the unified diff from a file, or stdin for "-".
func readDiff(path string) (string, error) {
	if path == "-" || path == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read diff from stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read diff file: %w", err)
	}
	return string(data), nil
}

// printDecision runs only the strategy selection and reports what a full
// review would do. No oracle credentials are needed for this path.
func printDecision(cfg *config.Config, diff, title, description string, log zerolog.Logger) error {
	cd, err := changeset.FromUnifiedDiff(strings.NewReader(diff), title, description)
	if err != nil {
		return fmt.Errorf("failed to parse diff: %w", err)
	}
	if err := strategy.Validate(&cd); err != nil {
		return err
	}

	selector := strategy.NewSelector(cfg.Strategy, nil, logging.Component(log, "strategy"))
	decision, err := selector.Select(&cd)
	if err != nil {
		return err
	}

	fmt.Println("=== Execution Decision ===")
	fmt.Printf("Mode: %s\n", decision.Mode)
	fmt.Printf("Reason: %s\n", decision.Reason)
	fmt.Printf("Files: %d, changed lines: %d\n", decision.Metrics.FileCount, decision.Metrics.TotalLOC)
	fmt.Printf("Complexity: %.2f\n", decision.Complexity)
	if len(decision.Factors) > 0 {
		fmt.Printf("Factors: %s\n", strings.Join(decision.Factors, ", "))
	}
	if decision.Mode == strategy.ModeIncrementalBatch {
		fmt.Printf("Batches: %d of up to %d files each\n", decision.EstimatedBatches, decision.BatchSize)
	}
	fmt.Printf("Estimated tokens per pass: %d\n", strategy.EstimateTokens(decision.Metrics, decision.Complexity))
	return nil
}

func printReport(report *review.Report) {
	fmt.Printf("Mode: %s\n", report.Decision.Mode)

	fmt.Println("\n=== Review Summary ===")
	fmt.Println(report.Opinion.Summary)
	fmt.Printf("\nDecision: %s\n", report.Opinion.Decision)
	if report.Opinion.Issues != nil {
		fmt.Printf("Issues: %d critical, %d major, %d minor\n",
			report.Opinion.Issues.Critical, report.Opinion.Issues.Major, report.Opinion.Issues.Minor)
	}

	if len(report.Opinion.Comments) == 0 {
		return
	}
	fmt.Println("\n=== Comments ===")
	for i, comment := range report.Opinion.Comments {
		fmt.Printf("\n--- Comment %d ---\n", i+1)
		fmt.Printf("File: %s, Line: %d\n", comment.File, comment.Line)
		fmt.Printf("Severity: %s\n", comment.Severity)
		fmt.Printf("Message: %s\n", comment.Message)
		if comment.Why != "" {
			fmt.Printf("Why: %s\n", comment.Why)
		}
		if comment.Suggestion != "" {
			fmt.Printf("Suggestion: %s\n", comment.Suggestion)
		}
	}
}
