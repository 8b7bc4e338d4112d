package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/quorumreview/internal/state"
)

// StateCommand returns the command group for persisted review state
func StateCommand() *cli.Command {
	return &cli.Command{
		Name:  "state",
		Usage: "Inspect and maintain persisted review state",
		Subcommands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "Print the stored state of one review",
				ArgsUsage: "PLATFORM REPOSITORY PR_ID",
				Action:    runStateShow,
			},
			{
				Name:  "cleanup",
				Usage: "Remove review states older than the retention window",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "max-age-days",
						Usage: "Remove states with no activity for this many days",
						Value: 30,
					},
				},
				Action: runStateCleanup,
			},
		},
	}
}

func runStateShow(c *cli.Context) error {
	if c.NArg() < 3 {
		return fmt.Errorf("missing required arguments: PLATFORM REPOSITORY PR_ID")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	url := resolveDatabaseURL(cfg)
	if url == "" {
		return fmt.Errorf("no database configured; set database.url or DATABASE_URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, db, err := openPostgres(ctx, url, log)
	if err != nil {
		return err
	}
	defer db.Close()

	key := state.Key{
		Platform:   c.Args().Get(0),
		Repository: c.Args().Get(1),
		PRID:       c.Args().Get(2),
	}
	st, err := store.Load(ctx, key)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return fmt.Errorf("no state recorded for %s", key.String())
		}
		return fmt.Errorf("failed to load state: %w", err)
	}

	out, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render state: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func runStateCleanup(c *cli.Context) error {
	maxAgeDays := c.Int("max-age-days")
	if maxAgeDays <= 0 {
		return fmt.Errorf("max-age-days must be a positive integer")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	url := resolveDatabaseURL(cfg)
	if url == "" {
		return fmt.Errorf("no database configured; set database.url or DATABASE_URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, db, err := openPostgres(ctx, url, log)
	if err != nil {
		return err
	}
	defer db.Close()

	removed, err := store.CleanupOldStates(ctx, maxAgeDays)
	if err != nil {
		return fmt.Errorf("failed to clean up states: %w", err)
	}

	fmt.Printf("Removed %d review states older than %d days\n", removed, maxAgeDays)
	return nil
}
