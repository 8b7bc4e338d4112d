package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/quorumreview/internal/api"
	"github.com/quorumreview/internal/jobqueue"
	"github.com/quorumreview/internal/logging"
)

// ServeCommand returns the CLI command for starting the API server
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the QuorumReview API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides the config)",
			},
			&cli.BoolFlag{
				Name:  "no-queue",
				Usage: "Disable the background job queue even when a database is available",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	log := newLogger(cfg)

	port := cfg.Server.Port
	if c.IsSet("port") {
		port = c.Int("port")
	}

	ctx := context.Background()

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

	var queue *jobqueue.Queue
	if url := resolveDatabaseURL(cfg); url != "" && !c.Bool("no-queue") {
		queue, err = jobqueue.NewQueue(ctx, url, svc, &cfg.Queue, logging.Component(log, "jobqueue"))
		if err != nil {
			return fmt.Errorf("failed to create job queue: %w", err)
		}
		if err := queue.Start(ctx); err != nil {
			return fmt.Errorf("failed to start job queue: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := queue.Stop(stopCtx); err != nil {
				log.Error().Err(err).Msg("failed to stop job queue cleanly")
			}
			queue.Close()
		}()
	}

	fmt.Printf("Starting QuorumReview API server on port %d...\n", port)

	server := api.NewServer(port, svc, store, queue, log)
	return server.Start()
}
