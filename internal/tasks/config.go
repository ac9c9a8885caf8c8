package tasks

import "time"

// Config holds configuration for the request retry queue.
type Config struct {
	// Workers is the number of concurrent task workers. Default: 1
	Workers int

	// ReplayAttempts is the total number of sends per queued request. Default: 3
	ReplayAttempts int

	// ReplayInitialDelay is the first backoff interval. Default: 1s
	ReplayInitialDelay time.Duration

	// ReplayMaxDelay caps the backoff interval. Default: 30s
	ReplayMaxDelay time.Duration

	// TaskTimeout bounds the sends of one replay run. Default: 30m
	TaskTimeout time.Duration

	// OfflineDelay is how long a replay parked while offline waits before it
	// checks connectivity again. Default: 30s
	OfflineDelay time.Duration

	// ReleaseAfter is when stuck tasks are released back to queue. Default: 45m
	ReleaseAfter time.Duration

	// CleanupInterval is how often to clean up completed tasks. Default: 1h
	CleanupInterval time.Duration

	// RetentionDuration is how long to keep completed tasks. Default: 24h
	RetentionDuration time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Workers:            1,
		ReplayAttempts:     3,
		ReplayInitialDelay: 1 * time.Second,
		ReplayMaxDelay:     30 * time.Second,
		TaskTimeout:        30 * time.Minute,
		OfflineDelay:       30 * time.Second,
		ReleaseAfter:       45 * time.Minute,
		CleanupInterval:    1 * time.Hour,
		RetentionDuration:  24 * time.Hour,
	}
}
