package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/caresync/internal/remote"
)

// Caller sends one remote call.
type Caller interface {
	Call(ctx context.Context, method, path string, body any, opts ...remote.CallOption) (*remote.Response, error)
}

// OnlineChecker reports current connectivity.
type OnlineChecker interface {
	Online() bool
}

// Requeuer parks a replay for a later run.
type Requeuer interface {
	Requeue(ctx context.Context, task ReplayRequestTask, wait time.Duration) error
}

// ReplayRequestTask is a mutating remote call that failed for lack of network.
// Sent counts the sends already made across runs.
type ReplayRequestTask struct {
	Method string          `json:"method"`
	Path   string          `json:"path"`
	Body   json.RawMessage `json:"body,omitempty"`
	Sent   int             `json:"sent,omitempty"`
}

// Config returns the queue configuration for replay tasks. backlite runs each
// task once; sends are retried inside the processor under exponential backoff,
// and a replay that finds the session offline is parked as a new delayed task.
func (t ReplayRequestTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "replay_request",
		MaxAttempts: 1,
		Timeout:     time.Hour,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// ReplayRequestProcessor sends the request until it succeeds or
// cfg.ReplayAttempts sends are used up. Only network failures are retried.
// While offline nothing is sent: the task is parked for cfg.OfflineDelay
// without holding the worker, and parked time does not count as an attempt.
func ReplayRequestProcessor(caller Caller, online OnlineChecker, requeue Requeuer, cfg Config) backlite.QueueProcessor[ReplayRequestTask] {
	return func(ctx context.Context, task ReplayRequestTask) error {
		if caller == nil || online == nil || requeue == nil {
			return fmt.Errorf("replay processor not configured")
		}

		limit := cfg.ReplayAttempts
		if limit <= 0 {
			limit = DefaultConfig().ReplayAttempts
		}
		if task.Sent >= limit {
			log.Printf("[TASK] Dropped %s %s: %d sends already used", task.Method, task.Path, task.Sent)
			return fmt.Errorf("replay %s %s: attempts exhausted", task.Method, task.Path)
		}

		if !online.Online() {
			return park(ctx, requeue, task, cfg, limit)
		}

		timeout := cfg.TaskTimeout
		if timeout <= 0 {
			timeout = DefaultConfig().TaskTimeout
		}
		sendCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		lostConnection := false
		err := backoff.Retry(func() error {
			task.Sent++
			_, err := caller.Call(sendCtx, task.Method, task.Path, task.Body, remote.WithoutReplay())
			if err == nil {
				return nil
			}
			if !errors.Is(err, remote.ErrNetwork) {
				return backoff.Permanent(err)
			}
			if !online.Online() {
				lostConnection = true
				return backoff.Permanent(err)
			}
			return err
		}, backoff.WithContext(backoff.WithMaxRetries(newReplayBackoff(cfg), uint64(limit-task.Sent-1)), sendCtx))

		if err != nil && lostConnection && task.Sent < limit {
			return park(ctx, requeue, task, cfg, limit)
		}
		if err != nil {
			log.Printf("[TASK] Dropped %s %s after %d attempts: %v", task.Method, task.Path, task.Sent, err)
			return fmt.Errorf("replay %s %s: %w", task.Method, task.Path, err)
		}

		log.Printf("[TASK] Replayed %s %s", task.Method, task.Path)
		return nil
	}
}

// NewReplayRequestQueue creates a backlite queue for replay tasks.
func NewReplayRequestQueue(caller Caller, online OnlineChecker, requeue Requeuer, cfg Config) backlite.Queue {
	return backlite.NewQueue(ReplayRequestProcessor(caller, online, requeue, cfg))
}

func newReplayBackoff(cfg Config) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.ReplayInitialDelay
	bo.MaxInterval = cfg.ReplayMaxDelay
	bo.MaxElapsedTime = 0
	return bo
}

func park(ctx context.Context, requeue Requeuer, task ReplayRequestTask, cfg Config, limit int) error {
	delay := cfg.OfflineDelay
	if delay <= 0 {
		delay = DefaultConfig().OfflineDelay
	}
	if err := requeue.Requeue(ctx, task, delay); err != nil {
		return fmt.Errorf("failed to park replay of %s %s: %w", task.Method, task.Path, err)
	}
	log.Printf("[TASK] Parked %s %s while offline (%d/%d sends used), next check in %v",
		task.Method, task.Path, task.Sent, limit, delay)
	return nil
}
