package http

import (
	"context"
	"time"

	"github.com/mrlokans/caresync/internal/entities"
	"github.com/mrlokans/caresync/internal/notify"
	"github.com/mrlokans/caresync/internal/records"
	"github.com/mrlokans/caresync/internal/syncengine"
)

// This file consolidates the interfaces used by HTTP controllers. Each
// controller depends only on what it calls.

// --- Records ---

type PatientService interface {
	CreatePatient(ctx context.Context, in records.PatientInput) (*entities.Patient, error)
	UpdatePatient(ctx context.Context, localID string, patch records.PatientPatch) (*entities.Patient, error)
	DeletePatient(ctx context.Context, localID string) error
	GetPatient(ctx context.Context, localID string) (*entities.Patient, error)
	ListPatients(ctx context.Context) ([]*entities.Patient, error)
}

type PlanService interface {
	CreatePlan(ctx context.Context, in records.PlanInput) (*entities.TreatmentPlan, error)
	UpdatePlan(ctx context.Context, localID string, patch records.PlanPatch) (*entities.TreatmentPlan, error)
	DeletePlan(ctx context.Context, localID string) error
	GetPlan(ctx context.Context, localID string) (*entities.TreatmentPlan, error)
	ListPlans(ctx context.Context, patientLocalID string) ([]*entities.TreatmentPlan, error)
}

type StepService interface {
	CreateStep(ctx context.Context, in records.StepInput) (*entities.PlanStep, error)
	UpdateStep(ctx context.Context, localID string, patch records.StepPatch) (*entities.PlanStep, error)
	DeleteStep(ctx context.Context, localID string) error
	GetStep(ctx context.Context, localID string) (*entities.PlanStep, error)
	ListSteps(ctx context.Context, planLocalID string) ([]*entities.PlanStep, error)
}

// RecordsService combines the three record services; *records.Service implements it.
type RecordsService interface {
	PatientService
	PlanService
	StepService
}

// --- Sync ---

// SyncEngine runs and reports on drain passes.
type SyncEngine interface {
	Drain(ctx context.Context) (syncengine.Report, error)
	Pending(ctx context.Context) (int64, error)
	Running() bool
}

// ProgressReader reads the persisted state of the last pass.
type ProgressReader interface {
	GetSyncProgress() (*entities.SyncProgress, error)
}

// QueueLister lists queued mutations.
type QueueLister interface {
	Pending(ctx context.Context) ([]entities.MutationQueueEntry, error)
}

// ReplayCounter counts remote requests waiting for replay.
type ReplayCounter interface {
	Pending(ctx context.Context) (int, error)
}

type ScheduleInfo interface {
	NextRunTime() *time.Time
}

// --- Session ---

type SessionState interface {
	Online() bool
	Authenticated() bool
	SetToken(token string) error
	ClearToken()
}

// --- Notices ---

type NoticeSource interface {
	Recent() []notify.Notice
	Events(eventType entities.ActivityType, limit, offset int) ([]entities.ActivityEvent, int64, error)
}
