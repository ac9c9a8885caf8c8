package interfaces

// This file contains compile-time interface implementation checks.
// These ensure that concrete types satisfy their interfaces at compile time,
// catching missing methods before runtime.
//
// To verify all checks pass: go build ./internal/interfaces/...

import (
	"github.com/mrlokans/caresync/internal/connectivity"
	"github.com/mrlokans/caresync/internal/database/activity"
	"github.com/mrlokans/caresync/internal/database/queue"
	"github.com/mrlokans/caresync/internal/database/sync"
	"github.com/mrlokans/caresync/internal/events"
	"github.com/mrlokans/caresync/internal/http"
	"github.com/mrlokans/caresync/internal/notify"
	"github.com/mrlokans/caresync/internal/records"
	"github.com/mrlokans/caresync/internal/remote"
	"github.com/mrlokans/caresync/internal/scheduler"
	"github.com/mrlokans/caresync/internal/session"
	"github.com/mrlokans/caresync/internal/syncengine"
	"github.com/mrlokans/caresync/internal/tasks"
	"github.com/mrlokans/caresync/internal/telemetry"
	"github.com/mrlokans/caresync/internal/tokenstore"
)

// =============================================================================
// Data Access Layer
// =============================================================================

// Records service behind the HTTP API
var _ http.RecordsService = (*records.Service)(nil)

// Queue and progress readers
var _ http.QueueLister = (*queue.Repository)(nil)
var _ http.ProgressReader = (*sync.Repository)(nil)
var _ syncengine.ProgressReporter = (*sync.Repository)(nil)

// Activity log
var _ notify.Store = (*activity.Repository)(nil)

// Token persistence
var _ session.TokenPersister = (*tokenstore.TokenStore)(nil)

// =============================================================================
// Remote Service
// =============================================================================

var _ syncengine.Caller = (*remote.Client)(nil)
var _ tasks.Caller = (*remote.Client)(nil)
var _ connectivity.Prober = (*remote.Client)(nil)

// Request retry queue
var _ remote.Replayer = (*tasks.Client)(nil)
var _ http.ReplayCounter = (*tasks.Client)(nil)
var _ tasks.Requeuer = (*tasks.Client)(nil)

// =============================================================================
// Session State
// =============================================================================

var _ syncengine.OnlineChecker = (*session.Context)(nil)
var _ tasks.OnlineChecker = (*session.Context)(nil)
var _ scheduler.OnlineChecker = (*session.Context)(nil)
var _ http.SessionState = (*session.Context)(nil)
var _ http.OnlineChecker = (*session.Context)(nil)

// =============================================================================
// Sync Engine
// =============================================================================

var _ http.SyncEngine = (*syncengine.Engine)(nil)
var _ scheduler.Drainer = (*syncengine.Engine)(nil)
var _ http.ScheduleInfo = (*scheduler.SyncScheduler)(nil)
var _ syncengine.PassRecorder = (*telemetry.Recorder)(nil)

// =============================================================================
// Events
// =============================================================================

var _ syncengine.Publisher = (*events.Bus)(nil)
var _ remote.Publisher = (*events.Bus)(nil)
var _ connectivity.Publisher = (*events.Bus)(nil)
var _ http.NoticeSource = (*notify.Notifier)(nil)
var _ tasks.ActivityCleaner = (*notify.Notifier)(nil)
