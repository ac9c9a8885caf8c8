// Package interfaces documents the core abstractions used throughout the application.
//
// This package consolidates interface documentation to help contributors understand
// extension points and how to implement new functionality.
//
// # Interface Categories
//
// ## Data Access Interfaces
//
//   - RecordsService: Patient, plan and step CRUD (internal/http/stores.go)
//   - QueueLister: Pending mutation queue entries (internal/http/stores.go)
//   - ProgressReporter: Sync pass progress (internal/syncengine/engine.go)
//   - Store: Activity log persistence (internal/notify/notifier.go)
//   - TokenPersister: Bearer token storage (internal/session/session.go)
//
// ## Remote Service Interfaces
//
//   - Caller: One remote call (internal/syncengine/engine.go, internal/tasks/replay.go)
//   - Prober: Reachability check (internal/connectivity/monitor.go)
//   - Replayer: Request retry queue (internal/remote/client.go)
//   - Requeuer: Parks replays while offline (internal/tasks/replay.go)
//
// ## Event Interfaces
//
//   - Publisher: Sync and session events (internal/syncengine, internal/remote, internal/connectivity)
//   - PassRecorder: Metrics for finished passes (internal/syncengine/engine.go)
//
// # Adding a New Record Kind
//
// To sync a new entity kind (e.g., appointments), add the entity to
// internal/entities/clinical.go with an embedded SyncMeta and a Kind() method,
// then a migration in internal/database/migrations.go. Its route goes into
// internal/syncengine/routes.go:
//
//	entities.KindAppointment: {
//		collection:  "/appointments",
//		parentField: "patient_id",
//		envelope:    "appointment",
//	},
//
// Create, update and delete operations belong in internal/records/service.go.
// Every write goes through lifecycle so the queue entry lands in the same
// transaction. CRUD routes are registered in internal/http/router.go.
//
// # Adding a New Background Job
//
// Define a backlite task and processor in internal/tasks/, then register the
// queue in internal/entrypoint/entrypoint.go:
//
//	type ExportTask struct{ Since time.Time }
//
//	func (t ExportTask) Config() backlite.QueueConfig { ... }
//
//	func NewExportQueue(exporter Exporter) backlite.Queue
//
// # Compile-Time Interface Checks
//
// All implementations should include compile-time checks to ensure they satisfy
// their interfaces. This catches missing methods at compile time rather than runtime:
//
//	var _ SomeInterface = (*MyImplementation)(nil)
//
// This pattern is used throughout the codebase. See checks.go for examples.
package interfaces
