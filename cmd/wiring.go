package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/quorumreview/internal/config"
	"github.com/quorumreview/internal/database"
	"github.com/quorumreview/internal/logging"
	"github.com/quorumreview/internal/oracle"
	"github.com/quorumreview/internal/redact"
	"github.com/quorumreview/internal/retry"
	"github.com/quorumreview/internal/review"
	"github.com/quorumreview/internal/state"
	"github.com/quorumreview/internal/strategy"
)

// loadConfig reads the configuration for a CLI command. Callers that talk
// to the oracle must still run cfg.Validate before building the pipeline.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	return logging.New(os.Stderr, cfg.General.LogLevel, cfg.General.LogPretty)
}

// resolveDatabaseURL prefers the configured URL and falls back to the
// DATABASE_URL environment (including a .env file in a parent directory).
func resolveDatabaseURL(cfg *config.Config) string {
	if cfg.Database.URL != "" {
		return cfg.Database.URL
	}
	if url, err := database.ResolveURL(); err == nil {
		return url
	}
	return ""
}

// openPostgres connects the durable state store and makes sure its schema
// exists. The caller owns closing the returned handle.
func openPostgres(ctx context.Context, url string, log zerolog.Logger) (*state.PostgresStore, *sql.DB, error) {
	db, err := database.Connect(url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := state.NewPostgresStore(db, logging.Component(log, "state"))
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ensure state schema: %w", err)
	}

	return store, db, nil
}

// openStore picks the state store for a command: Postgres when a database
// is reachable, otherwise the in-memory store. The returned *sql.DB is nil
// for the memory store.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (state.Store, *sql.DB, error) {
	url := resolveDatabaseURL(cfg)
	if url == "" {
		log.Warn().Msg("no database configured, review state is in-memory only")
		return state.NewMemoryStore(), nil, nil
	}
	return openPostgres(ctx, url, log)
}

// buildService assembles the review pipeline from configuration.
func buildService(ctx context.Context, cfg *config.Config, store state.Store, log zerolog.Logger) (*review.Service, error) {
	client, err := oracle.NewLangChainClient(ctx, cfg.Oracle, logging.Component(log, "oracle"))
	if err != nil {
		return nil, fmt.Errorf("failed to create oracle client: %w", err)
	}

	invoker := retry.New(cfg.Retry, logging.Component(log, "retry"))
	parser := oracle.NewParser(logging.Component(log, "parser"))
	opts := review.Options{Model: cfg.Oracle.Model, MaxTokens: cfg.Review.MaxTokens}

	var scrubber *redact.Scrubber
	if cfg.Review.Redact {
		scrubber, err = redact.New(logging.Component(log, "redact"))
		if err != nil {
			// A nil scrubber passes text through unchanged.
			log.Warn().Err(err).Msg("secret scrubber unavailable, prompts will not be redacted")
			scrubber = nil
		}
	}

	svc := review.NewService(
		strategy.NewSelector(cfg.Strategy, nil, logging.Component(log, "strategy")),
		review.NewDispatcher(client, invoker, parser, opts, logging.Component(log, "dispatch")),
		review.NewMerger(client, invoker, parser, opts, cfg.Review.MergeTemperature, logging.Component(log, "merge")),
		scrubber,
		store,
		cfg.Review.Temperatures,
		logging.Component(log, "review"),
	)
	return svc, nil
}
