/*
Package jobqueue configuration - tunable parameters for the River job queue.

Performance: raise MaxWorkers for more concurrent reviews; each worker holds
one oracle conversation at a time, so the practical ceiling is the provider's
rate limit, not CPU.

Reliability: MaxAttempts bounds how often a crashed or failed review job is
retaken. Retries here are coarse job-level retakes; per-call oracle retries
are handled inside the review pipeline and are not River's concern.

Database: PostgreSQL with River's schema migrations applied (river migrate-up).
Jobs and their error trails live in River's own tables.
*/
package jobqueue

import (
	"time"

	"github.com/riverqueue/river"
)

// QueueConfig holds the tunable parameters for the review job queue.
type QueueConfig struct {
	// MaxWorkers is the number of review jobs processed concurrently.
	MaxWorkers int `koanf:"max_workers" json:"max_workers"`

	// MaxAttempts bounds job-level retakes of a failed review run.
	MaxAttempts int `koanf:"max_attempts" json:"max_attempts"`

	// JobTimeout is the ceiling for one review run, batches included.
	JobTimeout time.Duration `koanf:"job_timeout" json:"job_timeout"`
}

// DefaultQueueConfig returns the default queue parameters.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		MaxWorkers:  5,
		MaxAttempts: 3,
		JobTimeout:  10 * time.Minute,
	}
}

// RiverQueues converts the config to River's queue map.
func (c *QueueConfig) RiverQueues() map[string]river.QueueConfig {
	return map[string]river.QueueConfig{
		river.QueueDefault: {MaxWorkers: c.MaxWorkers},
	}
}
