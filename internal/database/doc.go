// Package database provides the local entity store for the application.
//
// # Architecture
//
// The database layer is organized into domain-specific sub-packages:
//
//	database/
//	├── database.go      # Connection setup
//	├── migrations.go    # Versioned, additive schema history
//	├── store.go         # Put/Get/Query/Remove over entity kinds
//	├── queue/           # Durable mutation queue
//	├── sync/            # Sync pass progress tracking
//	└── activity/        # User-visible activity log
//
// # Using the Store
//
//	db, err := database.NewDatabase("./caresync.db")
//	store := db.Store()
//
//	id, err := store.Put(ctx, &entities.Patient{Name: "Jane Doe"}, lifecycle.WriteOptions{})
//	patient, err := database.GetAs[*entities.Patient](ctx, store, entities.KindPatient, id)
//
//	for rec, err := range store.Query(ctx, entities.KindPatient, database.Filter{}) {
//		...
//	}
//
// # Schema Evolution
//
// Schema changes are appended to Migrations() with the next version number.
// A step may create tables, columns and indexes; it never drops or renames
// anything. Each step uses its own snapshot struct so that later entity
// changes do not alter what an old step creates.
//
// # Adding a New Entity Kind
//
//  1. Add the model to internal/entities and register it in the kinds table
//  2. Append a create-table migration with a snapshot struct
//  3. Add the remote route in internal/syncengine
//  4. Add validated write operations in internal/records
package database
