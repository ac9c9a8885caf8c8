package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
)

// Migration is one additive schema step. Up receives a transaction and may only
// create tables, columns and indexes it owns.
type Migration struct {
	Version int
	Name    string
	Up      func(tx *gorm.DB) error
}

type schemaMigration struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"size:100;not null"`
	AppliedAt time.Time `gorm:"not null"`
}

func (schemaMigration) TableName() string {
	return "schema_migrations"
}

// The structs below are point-in-time snapshots of each table as a migration
// created it. They must not follow later changes to the entities package.

type syncMetaV1 struct {
	LocalID   string  `gorm:"primaryKey;size:36"`
	RemoteID  *string `gorm:"index;size:64"`
	Synced    bool    `gorm:"index;not null"`
	Deleted   bool    `gorm:"index;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type patientV1 struct {
	Meta        syncMetaV1 `gorm:"embedded"`
	Name        string     `gorm:"size:255;not null"`
	DateOfBirth *time.Time
	Sex         string `gorm:"size:16"`
	Phone       string `gorm:"size:32"`
	Notes       string `gorm:"type:text"`
}

func (patientV1) TableName() string { return "patients" }

type mutationEntryV2 struct {
	ID            uint      `gorm:"primaryKey;autoIncrement"`
	Action        string    `gorm:"size:16;not null"`
	EntityKind    string    `gorm:"size:32;not null;index:idx_mutation_target"`
	TargetLocalID string    `gorm:"size:36;not null;index:idx_mutation_target"`
	Payload       string    `gorm:"type:text"`
	Retries       int       `gorm:"not null"`
	LastError     string    `gorm:"type:text"`
	CreatedAt     time.Time `gorm:"index"`
}

func (mutationEntryV2) TableName() string { return "mutation_queue" }

type treatmentPlanV3 struct {
	Meta           syncMetaV1 `gorm:"embedded"`
	PatientLocalID string     `gorm:"index;size:36;not null"`
	Diagnosis      string     `gorm:"size:512;not null"`
	Status         string     `gorm:"size:20;not null"`
	StartDate      *time.Time
	EndDate        *time.Time
	Notes          string `gorm:"type:text"`
}

func (treatmentPlanV3) TableName() string { return "treatment_plans" }

type planStepV4 struct {
	Meta        syncMetaV1 `gorm:"embedded"`
	PlanLocalID string     `gorm:"index;size:36;not null"`
	Title       string     `gorm:"size:512;not null"`
	Position    int
	Status      string `gorm:"size:20;not null"`
	DueDate     *time.Time
	Notes       string `gorm:"type:text"`
}

func (planStepV4) TableName() string { return "plan_steps" }

type patientV5 struct {
	MRN string `gorm:"index;size:64"`
}

func (patientV5) TableName() string { return "patients" }

type syncProgressV6 struct {
	ID            uint   `gorm:"primaryKey"`
	SyncType      string `gorm:"size:50;uniqueIndex"`
	Status        string `gorm:"size:20"`
	TotalItems    int
	Processed     int
	Succeeded     int
	Failed        int
	Evicted       int
	CurrentItem   string `gorm:"size:512"`
	Error         string `gorm:"type:text"`
	StartedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
	LastSuccessAt *time.Time
}

func (syncProgressV6) TableName() string { return "sync_progress" }

type activityEventV7 struct {
	ID            uint      `gorm:"primaryKey"`
	Type          string    `gorm:"index;size:50"`
	Action        string    `gorm:"size:100"`
	Description   string    `gorm:"size:500"`
	EntityKind    string    `gorm:"size:32"`
	EntityLocalID string    `gorm:"index;size:36"`
	Metadata      string    `gorm:"type:text"`
	Status        string    `gorm:"size:20"`
	ErrorMsg      string    `gorm:"size:500"`
	CreatedAt     time.Time `gorm:"index"`
}

func (activityEventV7) TableName() string { return "activity_events" }

type sessionTokenV8 struct {
	ID         uint `gorm:"primaryKey"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Account    string `gorm:"type:varchar(255);not null;uniqueIndex"`
	Token      string `gorm:"type:text;not null"`
	LastUsedAt *time.Time
}

func (sessionTokenV8) TableName() string { return "session_tokens" }

func createTable(model any) func(tx *gorm.DB) error {
	return func(tx *gorm.DB) error {
		if tx.Migrator().HasTable(model) {
			return nil
		}
		return tx.Migrator().CreateTable(model)
	}
}

// Migrations returns the schema history of the local store in version order.
func Migrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_patients", Up: createTable(&patientV1{})},
		{Version: 2, Name: "create_mutation_queue", Up: createTable(&mutationEntryV2{})},
		{Version: 3, Name: "create_treatment_plans", Up: createTable(&treatmentPlanV3{})},
		{Version: 4, Name: "create_plan_steps", Up: createTable(&planStepV4{})},
		{Version: 5, Name: "add_patients_mrn", Up: func(tx *gorm.DB) error {
			m := tx.Migrator()
			if !m.HasColumn(&patientV5{}, "MRN") {
				if err := m.AddColumn(&patientV5{}, "MRN"); err != nil {
					return err
				}
			}
			if !m.HasIndex(&patientV5{}, "MRN") {
				return m.CreateIndex(&patientV5{}, "MRN")
			}
			return nil
		}},
		{Version: 6, Name: "create_sync_progress", Up: createTable(&syncProgressV6{})},
		{Version: 7, Name: "create_activity_events", Up: createTable(&activityEventV7{})},
		{Version: 8, Name: "create_session_tokens", Up: createTable(&sessionTokenV8{})},
	}
}

// Migrate applies every step newer than the recorded schema version, in order.
// Each step commits together with its schema_migrations row, so a failed step
// leaves the schema at the previous version and stops the run.
func Migrate(db *gorm.DB, steps []Migration) error {
	if err := validateMigrations(steps); err != nil {
		return err
	}

	if err := db.AutoMigrate(&schemaMigration{}); err != nil {
		return fmt.Errorf("failed to prepare schema_migrations: %w", err)
	}

	current, err := currentVersion(db)
	if err != nil {
		return err
	}

	if len(steps) > 0 && current > steps[len(steps)-1].Version {
		return fmt.Errorf("database schema version %d is newer than supported version %d",
			current, steps[len(steps)-1].Version)
	}

	for _, step := range steps {
		if step.Version <= current {
			continue
		}

		err := db.Transaction(func(tx *gorm.DB) error {
			if err := step.Up(tx); err != nil {
				return err
			}
			return tx.Create(&schemaMigration{
				Version:   step.Version,
				Name:      step.Name,
				AppliedAt: time.Now(),
			}).Error
		})
		if err != nil {
			return &MigrationError{Version: step.Version, Name: step.Name, Err: err}
		}

		log.Printf("Applied migration %d: %s", step.Version, step.Name)
	}

	return nil
}

func validateMigrations(steps []Migration) error {
	prev := 0
	for _, step := range steps {
		if step.Version <= prev {
			return fmt.Errorf("migration %q has version %d, must be greater than %d", step.Name, step.Version, prev)
		}
		if step.Up == nil {
			return fmt.Errorf("migration %d (%s) has no Up step", step.Version, step.Name)
		}
		prev = step.Version
	}
	return nil
}

func currentVersion(db *gorm.DB) (int, error) {
	var version int
	row := db.Model(&schemaMigration{}).Select("COALESCE(MAX(version), 0)").Row()
	if err := row.Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}
