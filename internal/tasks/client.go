package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/caresync/internal/remote"
)

// Client wraps backlite as the durable request retry queue. It is kept apart
// from the mutation queue: it holds raw remote calls made by the application
// while offline, not entity changes.
type Client struct {
	client *backlite.Client
	db     *sql.DB
	config Config

	mu      sync.RWMutex
	started bool
}

// TasksDBPath returns the retry queue database path for a main database,
// e.g. caresync.db -> caresync-tasks.db.
func TasksDBPath(mainDBPath string) string {
	dir := filepath.Dir(mainDBPath)
	base := filepath.Base(mainDBPath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	return filepath.Join(dir, name+"-tasks"+ext)
}

// NewClient opens the retry queue in its own SQLite database next to the main one.
func NewClient(mainDBPath string, cfg Config) (*Client, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	db, err := sql.Open("sqlite3", TasksDBPath(mainDBPath)+"?_journal=WAL&_timeout=5000&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open tasks database: %w", err)
	}

	db.SetMaxOpenConns(cfg.Workers + 5)
	db.SetMaxIdleConns(cfg.Workers + 2)
	db.SetConnMaxLifetime(time.Hour)

	client, err := backlite.NewClient(backlite.ClientConfig{
		DB:              db,
		NumWorkers:      cfg.Workers,
		ReleaseAfter:    cfg.ReleaseAfter,
		CleanupInterval: cfg.CleanupInterval,
		Logger:          &stdLogger{},
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create backlite client: %w", err)
	}

	if err := client.Install(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to install backlite schema: %w", err)
	}

	return &Client{
		client: client,
		db:     db,
		config: cfg,
	}, nil
}

// Register registers task queues with the client.
// Must be called before Start().
func (c *Client) Register(queues ...backlite.Queue) {
	for _, q := range queues {
		c.client.Register(q)
	}
}

// Start begins processing tasks. This is non-blocking and should be called
// in a goroutine. Use Stop() for graceful shutdown.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	log.Printf("Request retry queue started with %d workers", c.config.Workers)
	c.client.Start(ctx)
}

// Stop gracefully shuts down the task queue, waiting for active tasks to complete.
// Returns true if all workers finished before the context deadline.
func (c *Client) Stop(ctx context.Context) bool {
	c.mu.RLock()
	if !c.started {
		c.mu.RUnlock()
		return true
	}
	c.mu.RUnlock()

	log.Println("Stopping request retry queue...")
	success := c.client.Stop(ctx)
	if success {
		log.Println("Request retry queue stopped gracefully")
	} else {
		log.Println("Request retry queue stopped with timeout (some replays may not have completed)")
	}
	return success
}

// Close releases all resources. Should be called after Stop().
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Add starts an operation to enqueue one or more tasks.
func (c *Client) Add(tasks ...backlite.Task) *backlite.TaskAddOp {
	return c.client.Add(tasks...)
}

// EnqueueReplay stores a request for replay once connectivity returns.
func (c *Client) EnqueueReplay(ctx context.Context, req remote.Request) error {
	_, err := c.client.Add(ReplayRequestTask{
		Method: req.Method,
		Path:   req.Path,
		Body:   req.Body,
	}).Ctx(ctx).Save()
	if err != nil {
		return fmt.Errorf("failed to queue replay of %s %s: %w", req.Method, req.Path, err)
	}
	log.Printf("[TASK] Queued %s %s for replay", req.Method, req.Path)
	return nil
}

// Requeue stores a replay again to run after wait.
func (c *Client) Requeue(ctx context.Context, task ReplayRequestTask, wait time.Duration) error {
	if _, err := c.client.Add(task).Ctx(ctx).Wait(wait).Save(); err != nil {
		return fmt.Errorf("failed to requeue %s %s: %w", task.Method, task.Path, err)
	}
	return nil
}

// EnqueueActivityCleanup schedules removal of activity events older than retentionDays.
func (c *Client) EnqueueActivityCleanup(ctx context.Context, retentionDays int) error {
	_, err := c.client.Add(CleanupActivityTask{RetentionDays: retentionDays}).Ctx(ctx).Save()
	if err != nil {
		return fmt.Errorf("failed to queue activity cleanup: %w", err)
	}
	return nil
}

// Pending counts queued replays that have not run yet.
func (c *Client) Pending(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM backlite_tasks").Scan(&n)
	return n, err
}

// stdLogger implements backlite.Logger using standard library log.
type stdLogger struct{}

func (l *stdLogger) Info(message string, params ...any) {
	log.Printf("[TASK] "+message, params...)
}

func (l *stdLogger) Error(message string, params ...any) {
	log.Printf("[TASK ERROR] "+message, params...)
}
