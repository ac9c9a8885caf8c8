package http

import (
	"github.com/mrlokans/caresync/internal/database"
)

// RouterConfig contains all dependencies and configuration needed
// to create the HTTP router.
type RouterConfig struct {
	// Core dependencies
	Database *database.Database
	Records  RecordsService
	Session  SessionState

	// Sync
	Engine    SyncEngine
	Progress  ProgressReader
	Queue     QueueLister
	Replays   ReplayCounter // optional
	Scheduler ScheduleInfo  // optional

	// Notices (optional)
	Notices NoticeSource

	// OnLogin runs after a new token is stored, e.g. to start a drain.
	OnLogin func()

	// Application info
	Version string
}
