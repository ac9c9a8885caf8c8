// Package notify turns bus events into user-visible notices. Every notice is
// logged, persisted to the activity log and kept in a short in-memory list
// for the local API.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mrlokans/caresync/internal/entities"
	"github.com/mrlokans/caresync/internal/events"
)

const DefaultRecentLimit = 20

// Store persists activity events.
type Store interface {
	LogEvent(event *entities.ActivityEvent) error
	GetEvents(eventType entities.ActivityType, limit, offset int) ([]entities.ActivityEvent, int64, error)
	DeleteOldEvents(olderThan time.Time) (int64, error)
}

// Notice is one message shown to the user.
type Notice struct {
	Type    entities.ActivityType   `json:"type"`
	Status  entities.ActivityStatus `json:"status"`
	Message string                  `json:"message"`
	At      time.Time               `json:"at"`
}

type Notifier struct {
	store Store
	limit int

	mu     sync.RWMutex
	recent []Notice
}

// NewNotifier creates a notifier. A nil store keeps notices in memory only.
func NewNotifier(store Store, recentLimit int) *Notifier {
	if recentLimit <= 0 {
		recentLimit = DefaultRecentLimit
	}
	return &Notifier{store: store, limit: recentLimit}
}

// Run handles events until ctx is done or the channel is closed.
func (n *Notifier) Run(ctx context.Context, ch <-chan events.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			n.Handle(e)
		}
	}
}

// Handle records the notice for e, if e is one the user should see.
func (n *Notifier) Handle(e events.Event) {
	event := toActivity(e)
	if event == nil {
		return
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	log.Printf("Notice: %s", event.Description)

	n.mu.Lock()
	n.recent = append(n.recent, Notice{
		Type:    event.Type,
		Status:  event.Status,
		Message: event.Description,
		At:      event.CreatedAt,
	})
	if len(n.recent) > n.limit {
		n.recent = n.recent[len(n.recent)-n.limit:]
	}
	n.mu.Unlock()

	if n.store == nil {
		return
	}
	if err := n.store.LogEvent(event); err != nil {
		log.Printf("Failed to log activity event: %v", err)
	}
}

// Recent returns the latest notices, newest first.
func (n *Notifier) Recent() []Notice {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]Notice, len(n.recent))
	for i, notice := range n.recent {
		out[len(n.recent)-1-i] = notice
	}
	return out
}

// Events retrieves paginated persisted notices. An empty type matches all.
func (n *Notifier) Events(eventType entities.ActivityType, limit, offset int) ([]entities.ActivityEvent, int64, error) {
	if n.store == nil {
		return nil, 0, nil
	}
	return n.store.GetEvents(eventType, limit, offset)
}

// DeleteOldEvents removes events older than the specified duration.
func (n *Notifier) DeleteOldEvents(retention time.Duration) (int64, error) {
	if n.store == nil {
		return 0, nil
	}
	cutoff := time.Now().Add(-retention)
	return n.store.DeleteOldEvents(cutoff)
}

func toActivity(e events.Event) *entities.ActivityEvent {
	switch e.Type {
	case events.ConnectivityChanged:
		if e.Online {
			return &entities.ActivityEvent{
				Type:        entities.ActivityConnectivity,
				Action:      "went_online",
				Description: "Back online, syncing changes",
				Status:      entities.ActivityStatusInfo,
				CreatedAt:   e.At,
			}
		}
		return &entities.ActivityEvent{
			Type:        entities.ActivityConnectivity,
			Action:      "went_offline",
			Description: "You are offline, changes will sync when the connection returns",
			Status:      entities.ActivityStatusInfo,
			CreatedAt:   e.At,
		}

	case events.SyncCompleted:
		if e.Synced < 1 {
			return nil
		}
		event := &entities.ActivityEvent{
			Type:        entities.ActivitySync,
			Action:      "sync_completed",
			Description: fmt.Sprintf("Synced %d %s", e.Synced, plural(e.Synced, "change", "changes")),
			Status:      entities.ActivityStatusSuccess,
			CreatedAt:   e.At,
		}
		metadata := map[string]any{
			"synced":  e.Synced,
			"failed":  e.Failed,
			"evicted": e.Evicted,
		}
		if mdBytes, err := json.Marshal(metadata); err == nil {
			event.Metadata = string(mdBytes)
		}
		return event

	case events.MutationEvicted:
		return &entities.ActivityEvent{
			Type:          entities.ActivityEviction,
			Action:        "mutation_evicted",
			Description:   fmt.Sprintf("Could not sync a change to %s, it was discarded after repeated failures", e.Kind),
			EntityKind:    e.Kind,
			EntityLocalID: e.LocalID,
			Status:        entities.ActivityStatusFailed,
			ErrorMsg:      truncate(e.Err, 500),
			CreatedAt:     e.At,
		}

	case events.AuthExpired:
		return &entities.ActivityEvent{
			Type:        entities.ActivityAuth,
			Action:      "session_expired",
			Description: "Session expired, please log in again",
			Status:      entities.ActivityStatusFailed,
			CreatedAt:   e.At,
		}
	}
	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// truncate shortens a string to max length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
