// Package syncengine drains the mutation queue against the remote service.
//
// A drain pass reads every queue entry oldest first and handles each one to
// completion before the next: resolve the entity, check that its parent is
// known remotely, send one remote call, then acknowledge or record the failure.
// Entries that fail maxRetries times are evicted and announced on the bus.
// At most one pass runs at a time; overlapping requests are no-ops.
package syncengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mrlokans/caresync/internal/database"
	"github.com/mrlokans/caresync/internal/database/queue"
	"github.com/mrlokans/caresync/internal/entities"
	"github.com/mrlokans/caresync/internal/events"
	"github.com/mrlokans/caresync/internal/lifecycle"
	"github.com/mrlokans/caresync/internal/remote"
)

const DefaultMaxRetries = 3

// Caller sends one remote call.
type Caller interface {
	Call(ctx context.Context, method, path string, body any, opts ...remote.CallOption) (*remote.Response, error)
}

type OnlineChecker interface {
	Online() bool
}

// ProgressReporter persists the state of the current and last pass.
type ProgressReporter interface {
	StartSync(totalItems int) error
	UpdateProgress(processed, succeeded, failed, evicted int, currentItem string) error
	CompleteSync(succeeded bool, errorMsg string) error
	LastSuccessAt() (*time.Time, error)
}

type Publisher interface {
	Publish(e events.Event)
}

// PassRecorder receives every finished pass, e.g. for metrics.
type PassRecorder interface {
	RecordPass(ctx context.Context, report Report)
}

// Skip reasons for a pass that did not run.
const (
	SkippedInProgress = "in_progress"
	SkippedOffline    = "offline"
)

// Report summarizes one drain pass.
type Report struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Total   int `json:"total"`
	Synced  int `json:"synced"`
	Failed  int `json:"failed"`
	Evicted int `json:"evicted"`
	Dropped int `json:"dropped"`

	// Remaining is the queue depth after the pass.
	Remaining int64 `json:"remaining"`

	// Skipped is set when the pass did not run at all.
	Skipped string `json:"skipped,omitempty"`

	// Aborted is set when the session expired mid-pass.
	Aborted bool `json:"aborted,omitempty"`
}

type outcome int

const (
	outcomeSynced outcome = iota
	outcomeDropped
	outcomeFailed
	outcomeEvicted
	outcomeAuthExpired
)

type Config struct {
	MaxRetries int
}

type Engine struct {
	store    *database.Store
	queue    *queue.Repository
	caller   Caller
	online   OnlineChecker
	progress ProgressReporter
	bus      Publisher
	recorder PassRecorder

	maxRetries int

	running atomic.Bool

	// mu guards stopping so no Trigger adds to wg once Stop has begun.
	mu       sync.Mutex
	stopping bool
	wg       sync.WaitGroup
}

func NewEngine(cfg Config, store *database.Store, q *queue.Repository, caller Caller, online OnlineChecker) *Engine {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Engine{
		store:      store,
		queue:      q,
		caller:     caller,
		online:     online,
		maxRetries: maxRetries,
	}
}

func (e *Engine) WithProgress(p ProgressReporter) *Engine {
	e.progress = p
	return e
}

func (e *Engine) WithPublisher(p Publisher) *Engine {
	e.bus = p
	return e
}

func (e *Engine) WithRecorder(r PassRecorder) *Engine {
	e.recorder = r
	return e
}

// Running reports whether a pass is in flight.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Pending returns the current queue depth.
func (e *Engine) Pending(ctx context.Context) (int64, error) {
	return e.queue.Count(ctx)
}

// Trigger starts a pass in the background. It is safe to call at any rate.
// After Stop it does nothing.
func (e *Engine) Trigger() {
	e.mu.Lock()
	if e.stopping {
		e.mu.Unlock()
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		if _, err := e.Drain(context.Background()); err != nil &&
			!errors.Is(err, ErrDrainInProgress) && !errors.Is(err, ErrOffline) {
			log.Printf("Sync engine: drain failed: %v", err)
		}
	}()
}

// Wait blocks until every triggered pass has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Stop refuses further triggers and waits for the running ones.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopping = true
	e.mu.Unlock()
	e.wg.Wait()
}

// Drain runs one pass over the queue. A pass is not cancelled once started:
// each entry runs to completion or failure, bounded by the remote call timeout.
func (e *Engine) Drain(ctx context.Context) (Report, error) {
	if !e.running.CompareAndSwap(false, true) {
		return Report{Skipped: SkippedInProgress}, ErrDrainInProgress
	}
	defer e.running.Store(false)

	if !e.online.Online() {
		return Report{Skipped: SkippedOffline}, ErrOffline
	}

	ctx = context.WithoutCancel(ctx)
	report := Report{StartedAt: time.Now()}

	entries, err := e.queue.Pending(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to read mutation queue: %w", err)
	}
	report.Total = len(entries)

	if len(entries) > 0 {
		log.Printf("Sync engine: draining %d queued mutations", len(entries))
	}
	e.reportStart(len(entries))

	for i, entry := range entries {
		res := e.process(ctx, entry)
		switch res {
		case outcomeSynced:
			report.Synced++
		case outcomeDropped:
			report.Dropped++
		case outcomeFailed:
			report.Failed++
		case outcomeEvicted:
			report.Evicted++
		case outcomeAuthExpired:
			report.Aborted = true
		}
		if report.Aborted {
			log.Printf("Sync engine: session expired, stopping pass with %d entries left", len(entries)-i)
			break
		}
		e.reportProgress(i+1, report, entry)
	}

	report.FinishedAt = time.Now()
	if report.Remaining, err = e.queue.Count(ctx); err != nil {
		log.Printf("Sync engine: failed to count remaining mutations: %v", err)
	}

	e.finish(ctx, report)
	return report, nil
}

func (e *Engine) process(ctx context.Context, entry entities.MutationQueueEntry) outcome {
	rt, ok := routes[entry.EntityKind]
	info, known := entities.LookupKind(entry.EntityKind)
	if !ok || !known {
		return e.fail(ctx, entry, fmt.Errorf("%w: %s", database.ErrUnknownKind, entry.EntityKind))
	}

	rec, err := e.store.Get(ctx, entry.EntityKind, entry.TargetLocalID)
	if errors.Is(err, database.ErrNotFound) {
		log.Printf("Sync engine: dropping %s of missing %s %s", entry.Action, entry.EntityKind, entry.TargetLocalID)
		if err := e.queue.Remove(ctx, entry.ID); err != nil {
			log.Printf("Sync engine: failed to drop entry %d: %v", entry.ID, err)
		}
		return outcomeDropped
	}
	if err != nil {
		return e.fail(ctx, entry, err)
	}
	meta := rec.Meta()

	if entry.Action == entities.ActionDelete {
		return e.sendDelete(ctx, entry, rt, meta)
	}

	body, err := entryBody(entry, rec)
	if err != nil {
		return e.fail(ctx, entry, err)
	}

	// Child bodies carry the parent's remote id on every create and update.
	if info.Parent != "" {
		parentRemoteID, err := e.parentRemoteID(ctx, info.Parent, rec.ParentLocalID())
		if err != nil {
			return e.fail(ctx, entry, err)
		}
		if rt.parentField != "" {
			body[rt.parentField] = parentRemoteID
		}
	}

	switch {
	case entry.Action == entities.ActionCreate && !meta.HasRemoteID():
		resp, err := e.caller.Call(ctx, http.MethodPost, rt.collection, body, remote.WithoutReplay())
		if err != nil {
			return e.fail(ctx, entry, err)
		}
		remoteID, err := extractRemoteID(resp.Body, rt.envelope)
		if err != nil {
			return e.fail(ctx, entry, err)
		}
		return e.acknowledge(ctx, entry, remoteID)

	case meta.HasRemoteID():
		// Updates, and creates already accepted remotely (duplicate delivery).
		if _, err := e.caller.Call(ctx, http.MethodPut, rt.item(*meta.RemoteID), body, remote.WithoutReplay()); err != nil {
			return e.fail(ctx, entry, err)
		}
		return e.acknowledge(ctx, entry, "")

	default:
		return e.fail(ctx, entry, ErrMissingRemoteID)
	}
}

func (e *Engine) sendDelete(ctx context.Context, entry entities.MutationQueueEntry, rt route, meta *entities.SyncMeta) outcome {
	// A parent goes only after its children are purged.
	pending, err := e.hasChildren(ctx, entry.EntityKind, entry.TargetLocalID)
	if err != nil {
		return e.fail(ctx, entry, err)
	}
	if pending {
		return e.fail(ctx, entry, ErrChildrenPending)
	}

	if meta.HasRemoteID() {
		if _, err := e.caller.Call(ctx, http.MethodDelete, rt.item(*meta.RemoteID), nil, remote.WithoutReplay()); err != nil {
			return e.fail(ctx, entry, err)
		}
	}

	err = e.store.Transaction(ctx, func(tx *database.Store) error {
		if err := tx.Remove(ctx, entry.EntityKind, entry.TargetLocalID); err != nil {
			return err
		}
		_, err := e.queue.WithTx(tx.DB()).RemoveFor(ctx, entry.EntityKind, entry.TargetLocalID)
		return err
	})
	if err != nil {
		log.Printf("Sync engine: failed to purge %s %s: %v", entry.EntityKind, entry.TargetLocalID, err)
		return outcomeFailed
	}
	return outcomeSynced
}

// hasChildren reports whether any record, deleted or not, still references
// the entity as its parent.
func (e *Engine) hasChildren(ctx context.Context, kind entities.Kind, localID string) (bool, error) {
	for _, child := range entities.ChildKinds(kind) {
		for _, err := range e.store.Query(ctx, child, database.Filter{IncludeDeleted: true, ParentLocalID: localID}) {
			if err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) parentRemoteID(ctx context.Context, kind entities.Kind, localID string) (string, error) {
	parent, err := e.store.Get(ctx, kind, localID)
	if errors.Is(err, database.ErrNotFound) {
		return "", ErrDependencyNotReady
	}
	if err != nil {
		return "", err
	}
	if !parent.Meta().HasRemoteID() {
		return "", ErrDependencyNotReady
	}
	return *parent.Meta().RemoteID, nil
}

// acknowledge removes the entry and stores the remote id. The entity is marked
// synced only if no later entry for it is still queued.
func (e *Engine) acknowledge(ctx context.Context, entry entities.MutationQueueEntry, remoteID string) outcome {
	err := e.store.Transaction(ctx, func(tx *database.Store) error {
		q := e.queue.WithTx(tx.DB())
		if err := q.Remove(ctx, entry.ID); err != nil {
			return err
		}

		rec, err := tx.Get(ctx, entry.EntityKind, entry.TargetLocalID)
		if errors.Is(err, database.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		remaining, err := q.CountFor(ctx, entry.EntityKind, entry.TargetLocalID)
		if err != nil {
			return err
		}

		if remoteID != "" {
			rec.Meta().RemoteID = &remoteID
		}
		_, err = tx.Put(ctx, rec, lifecycle.WriteOptions{Synced: lifecycle.Bool(remaining == 0)})
		return err
	})
	if err != nil {
		if remoteID != "" {
			log.Printf("Sync engine: remote id %s of %s %s was not saved: %v", remoteID, entry.EntityKind, entry.TargetLocalID, err)
		}
		return e.fail(ctx, entry, fmt.Errorf("failed to acknowledge entry %d: %w", entry.ID, err))
	}
	return outcomeSynced
}

// fail records a failed attempt and evicts the entry at the retry ceiling.
func (e *Engine) fail(ctx context.Context, entry entities.MutationQueueEntry, cause error) outcome {
	if errors.Is(cause, remote.ErrAuthExpired) {
		return outcomeAuthExpired
	}

	retries, err := e.queue.RecordFailure(ctx, entry.ID, cause)
	if err != nil {
		log.Printf("Sync engine: failed to record failure on entry %d: %v", entry.ID, err)
		return outcomeFailed
	}

	if retries < e.maxRetries {
		log.Printf("Sync engine: %s %s %s failed (attempt %d/%d): %v",
			entry.Action, entry.EntityKind, entry.TargetLocalID, retries, e.maxRetries, cause)
		return outcomeFailed
	}

	if err := e.queue.Remove(ctx, entry.ID); err != nil {
		log.Printf("Sync engine: failed to evict entry %d: %v", entry.ID, err)
		return outcomeFailed
	}

	log.Printf("Sync engine: evicted %s %s %s after %d attempts: %v",
		entry.Action, entry.EntityKind, entry.TargetLocalID, retries, cause)
	e.publish(events.Event{
		Type:    events.MutationEvicted,
		Kind:    entry.EntityKind,
		LocalID: entry.TargetLocalID,
		Action:  entry.Action,
		Err:     fmt.Errorf("%w: %w", ErrRetryCeilingExceeded, cause).Error(),
	})
	return outcomeEvicted
}

// entryBody returns the payload snapshot of the entry, falling back to the
// entity's current fields for entries queued without one.
func entryBody(entry entities.MutationQueueEntry, rec entities.Entity) (map[string]any, error) {
	if entry.Payload == "" {
		return rec.Fields(), nil
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(entry.Payload), &body); err != nil {
		return nil, fmt.Errorf("corrupt payload on entry %d: %w", entry.ID, err)
	}
	if body == nil {
		body = map[string]any{}
	}
	return body, nil
}

func (e *Engine) reportStart(total int) {
	if e.progress == nil {
		return
	}
	if err := e.progress.StartSync(total); err != nil {
		log.Printf("Sync engine: failed to record pass start: %v", err)
	}
}

func (e *Engine) reportProgress(processed int, r Report, entry entities.MutationQueueEntry) {
	if e.progress == nil {
		return
	}
	current := string(entry.EntityKind) + "/" + entry.TargetLocalID
	if err := e.progress.UpdateProgress(processed, r.Synced, r.Failed, r.Evicted, current); err != nil {
		log.Printf("Sync engine: failed to record progress: %v", err)
	}
}

func (e *Engine) finish(ctx context.Context, r Report) {
	var lastSuccess *time.Time
	if e.progress != nil {
		errMsg := ""
		if r.Aborted {
			errMsg = remote.ErrAuthExpired.Error()
		}
		if err := e.progress.CompleteSync(!r.Aborted, errMsg); err != nil {
			log.Printf("Sync engine: failed to record pass completion: %v", err)
		}
		var err error
		if lastSuccess, err = e.progress.LastSuccessAt(); err != nil {
			log.Printf("Sync engine: failed to read last successful pass: %v", err)
		}
	}

	if r.Total > 0 {
		log.Printf("Sync engine: pass finished: %d synced, %d failed, %d evicted, %d dropped, %d remaining",
			r.Synced, r.Failed, r.Evicted, r.Dropped, r.Remaining)
	}

	e.publish(events.Event{Type: events.SyncProgress, Pending: r.Remaining, LastSuccessAt: lastSuccess})
	e.publish(events.Event{Type: events.SyncCompleted, Synced: r.Synced, Failed: r.Failed, Evicted: r.Evicted})

	if e.recorder != nil {
		e.recorder.RecordPass(ctx, r)
	}
}

func (e *Engine) publish(ev events.Event) {
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}
