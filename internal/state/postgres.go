package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// PostgresStore persists ReviewState snapshots in a review_states table:
// one row per key holding the full state as JSONB plus an indexed
// checkpoint_at column for the age-based cleanup query.
type PostgresStore struct {
	db  *sql.DB
	log zerolog.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB, log zerolog.Logger) *PostgresStore {
	return &PostgresStore{db: db, log: log}
}

// EnsureSchema creates the review_states table and its cleanup index.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS review_states (
			pr_id TEXT NOT NULL,
			platform TEXT NOT NULL,
			repository TEXT NOT NULL,
			state JSONB NOT NULL,
			checkpoint_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (pr_id, platform, repository)
		);
		CREATE INDEX IF NOT EXISTS review_states_checkpoint_at_idx
			ON review_states (checkpoint_at);
	`

	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create review_states schema: %w", err)
	}
	return nil
}

// Save upserts the full snapshot for the state's key. The row replace is
// atomic, so concurrent saves to one key resolve last-write-wins.
func (p *PostgresStore) Save(ctx context.Context, s *ReviewState) error {
	blob, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode review state: %w", err)
	}

	const query = `
		INSERT INTO review_states (pr_id, platform, repository, state, checkpoint_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (pr_id, platform, repository)
		DO UPDATE SET state = EXCLUDED.state, checkpoint_at = EXCLUDED.checkpoint_at, updated_at = now()
	`

	if _, err := p.db.ExecContext(ctx, query,
		s.Key.PRID, s.Key.Platform, s.Key.Repository, blob, s.LastActivity(),
	); err != nil {
		return fmt.Errorf("failed to save review state: %w", err)
	}

	p.log.Debug().
		Str("key", s.Key.String()).
		Str("phase", string(s.Phase)).
		Msg("review state saved")
	return nil
}

// Load reads the snapshot for key, or ErrNotFound.
func (p *PostgresStore) Load(ctx context.Context, key Key) (*ReviewState, error) {
	const query = `
		SELECT state FROM review_states
		WHERE pr_id = $1 AND platform = $2 AND repository = $3
	`

	var blob []byte
	err := p.db.QueryRowContext(ctx, query, key.PRID, key.Platform, key.Repository).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load review state: %w", err)
	}

	var s ReviewState
	if err := json.Unmarshal(blob, &s); err != nil {
		return nil, fmt.Errorf("failed to decode review state: %w", err)
	}
	return &s, nil
}

// CleanupOldStates deletes every row whose checkpoint_at is older than
// maxAgeDays and returns the number removed.
func (p *PostgresStore) CleanupOldStates(ctx context.Context, maxAgeDays int) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -maxAgeDays)

	res, err := p.db.ExecContext(ctx, `DELETE FROM review_states WHERE checkpoint_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up review states: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count cleaned up review states: %w", err)
	}

	if n > 0 {
		p.log.Info().Int64("removed", n).Int("max_age_days", maxAgeDays).Msg("cleaned up old review states")
	}
	return int(n), nil
}
