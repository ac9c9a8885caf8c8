package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/caresync/internal/entities"
	"github.com/mrlokans/caresync/internal/notify"
	"github.com/mrlokans/caresync/internal/syncengine"
)

// SyncController reports sync state and runs drain passes on demand.
type SyncController struct {
	engine    SyncEngine
	progress  ProgressReader
	queue     QueueLister
	session   SessionState
	replays   ReplayCounter
	scheduler ScheduleInfo
	notices   NoticeSource
}

func NewSyncController(cfg RouterConfig) *SyncController {
	return &SyncController{
		engine:    cfg.Engine,
		progress:  cfg.Progress,
		queue:     cfg.Queue,
		session:   cfg.Session,
		replays:   cfg.Replays,
		scheduler: cfg.Scheduler,
		notices:   cfg.Notices,
	}
}

// StatusResponse is what the UI polls for its sync indicator.
type StatusResponse struct {
	Online         bool                   `json:"online"`
	Authenticated  bool                   `json:"authenticated"`
	Pending        int64                  `json:"pending"`
	Running        bool                   `json:"running"`
	PendingReplays int                    `json:"pending_replays"`
	LastPass       *entities.SyncProgress `json:"last_pass,omitempty"`
	LastSuccessAt  *time.Time             `json:"last_success_at,omitempty"`
	NextRunAt      *time.Time             `json:"next_run_at,omitempty"`
	Notices        []notify.Notice        `json:"notices"`
}

func (sc *SyncController) Status(c *gin.Context) {
	ctx := c.Request.Context()

	pending, err := sc.engine.Pending(ctx)
	if err != nil {
		respondInternalError(c, err, "count pending mutations")
		return
	}

	resp := StatusResponse{
		Online:        sc.session.Online(),
		Authenticated: sc.session.Authenticated(),
		Pending:       pending,
		Running:       sc.engine.Running(),
		Notices:       []notify.Notice{},
	}

	if sc.progress != nil {
		progress, err := sc.progress.GetSyncProgress()
		if err != nil {
			respondInternalError(c, err, "read sync progress")
			return
		}
		if progress != nil {
			resp.LastPass = progress
			resp.LastSuccessAt = progress.LastSuccessAt
		}
	}

	if sc.replays != nil {
		if n, err := sc.replays.Pending(ctx); err == nil {
			resp.PendingReplays = n
		}
	}
	if sc.scheduler != nil {
		resp.NextRunAt = sc.scheduler.NextRunTime()
	}
	if sc.notices != nil {
		resp.Notices = sc.notices.Recent()
	}

	c.JSON(http.StatusOK, resp)
}

// Sync runs one drain pass and returns its report.
func (sc *SyncController) Sync(c *gin.Context) {
	report, err := sc.engine.Drain(c.Request.Context())
	switch {
	case errors.Is(err, syncengine.ErrOffline):
		respondError(c, http.StatusServiceUnavailable, "offline, changes stay queued")
	case errors.Is(err, syncengine.ErrDrainInProgress):
		respondAccepted(c, "sync already in progress", nil)
	case err != nil:
		respondInternalError(c, err, "drain mutation queue")
	default:
		c.JSON(http.StatusOK, report)
	}
}

type queueEntryResponse struct {
	ID        uint      `json:"id"`
	Action    string    `json:"action"`
	Kind      string    `json:"entity_kind"`
	LocalID   string    `json:"target_local_id"`
	Retries   int       `json:"retries"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Queue lists pending mutations oldest first.
func (sc *SyncController) Queue(c *gin.Context) {
	entries, err := sc.queue.Pending(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "list mutation queue")
		return
	}

	out := make([]queueEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, queueEntryResponse{
			ID:        e.ID,
			Action:    string(e.Action),
			Kind:      string(e.EntityKind),
			LocalID:   e.TargetLocalID,
			Retries:   e.Retries,
			LastError: e.LastError,
			CreatedAt: e.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, list(out))
}

// Activity lists persisted notices, most recent first.
func (sc *SyncController) Activity(c *gin.Context) {
	limit, offset, ok := parsePagination(c, 50, 200)
	if !ok {
		return
	}

	events, total, err := sc.notices.Events(entities.ActivityType(c.Query("type")), limit, offset)
	if err != nil {
		respondInternalError(c, err, "list activity")
		return
	}
	if events == nil {
		events = []entities.ActivityEvent{}
	}

	c.JSON(http.StatusOK, PaginatedResponse{
		Data:    events,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: int64(offset+len(events)) < total,
	})
}
