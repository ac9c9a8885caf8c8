// Package records is the write API used by the UI layer. Every operation
// validates its input, writes through the local store and appends one
// mutation queue entry per written record in the same transaction. Deletes
// cascade to live children, which are queued before their parent.
package records

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mrlokans/caresync/internal/database"
	"github.com/mrlokans/caresync/internal/database/queue"
	"github.com/mrlokans/caresync/internal/entities"
	"github.com/mrlokans/caresync/internal/lifecycle"
)

// Service performs validated local writes.
type Service struct {
	store *database.Store
	queue *queue.Repository

	// onWrite runs after every committed write, e.g. to nudge the sync engine.
	onWrite func()
}

func NewService(store *database.Store, queue *queue.Repository) *Service {
	return &Service{store: store, queue: queue}
}

// OnWrite registers a callback invoked after each committed write.
func (s *Service) OnWrite(fn func()) {
	s.onWrite = fn
}

type PatientInput struct {
	Name        string     `json:"name"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Sex         string     `json:"sex,omitempty"`
	MRN         string     `json:"mrn,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

// PatientPatch changes only the fields that are set.
type PatientPatch struct {
	Name        *string    `json:"name,omitempty"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Sex         *string    `json:"sex,omitempty"`
	MRN         *string    `json:"mrn,omitempty"`
	Phone       *string    `json:"phone,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
}

type PlanInput struct {
	PatientLocalID string              `json:"patient_local_id"`
	Diagnosis      string              `json:"diagnosis"`
	Status         entities.PlanStatus `json:"status,omitempty"`
	StartDate      *time.Time          `json:"start_date,omitempty"`
	EndDate        *time.Time          `json:"end_date,omitempty"`
	Notes          string              `json:"notes,omitempty"`
}

type PlanPatch struct {
	Diagnosis *string              `json:"diagnosis,omitempty"`
	Status    *entities.PlanStatus `json:"status,omitempty"`
	StartDate *time.Time           `json:"start_date,omitempty"`
	EndDate   *time.Time           `json:"end_date,omitempty"`
	Notes     *string              `json:"notes,omitempty"`
}

type StepInput struct {
	PlanLocalID string              `json:"plan_local_id"`
	Title       string              `json:"title"`
	Position    int                 `json:"position"`
	Status      entities.StepStatus `json:"status,omitempty"`
	DueDate     *time.Time          `json:"due_date,omitempty"`
	Notes       string              `json:"notes,omitempty"`
}

type StepPatch struct {
	Title    *string              `json:"title,omitempty"`
	Position *int                 `json:"position,omitempty"`
	Status   *entities.StepStatus `json:"status,omitempty"`
	DueDate  *time.Time           `json:"due_date,omitempty"`
	Notes    *string              `json:"notes,omitempty"`
}

// CreatePatient stores a new patient and queues its create.
func (s *Service) CreatePatient(ctx context.Context, in PatientInput) (*entities.Patient, error) {
	p := &entities.Patient{
		Name:        strings.TrimSpace(in.Name),
		DateOfBirth: in.DateOfBirth,
		Sex:         in.Sex,
		MRN:         strings.TrimSpace(in.MRN),
		Phone:       in.Phone,
		Notes:       in.Notes,
	}
	if err := validatePatient(p); err != nil {
		return nil, err
	}
	if err := s.write(ctx, p, entities.ActionCreate, lifecycle.WriteOptions{}); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdatePatient applies a patch and queues an update.
func (s *Service) UpdatePatient(ctx context.Context, localID string, patch PatientPatch) (*entities.Patient, error) {
	p, err := liveRecord[*entities.Patient](ctx, s.store, entities.KindPatient, localID)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		p.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.DateOfBirth != nil {
		p.DateOfBirth = patch.DateOfBirth
	}
	if patch.Sex != nil {
		p.Sex = *patch.Sex
	}
	if patch.MRN != nil {
		p.MRN = strings.TrimSpace(*patch.MRN)
	}
	if patch.Phone != nil {
		p.Phone = *patch.Phone
	}
	if patch.Notes != nil {
		p.Notes = *patch.Notes
	}

	if err := validatePatient(p); err != nil {
		return nil, err
	}
	if err := s.write(ctx, p, entities.ActionUpdate, lifecycle.WriteOptions{}); err != nil {
		return nil, err
	}
	return p, nil
}

// DeletePatient soft-deletes a patient with its plans and steps and queues
// their deletes.
func (s *Service) DeletePatient(ctx context.Context, localID string) error {
	return s.softDelete(ctx, entities.KindPatient, localID)
}

func (s *Service) GetPatient(ctx context.Context, localID string) (*entities.Patient, error) {
	return liveRecord[*entities.Patient](ctx, s.store, entities.KindPatient, localID)
}

func (s *Service) ListPatients(ctx context.Context) ([]*entities.Patient, error) {
	return database.Collect[*entities.Patient](s.store.Query(ctx, entities.KindPatient, database.Filter{}))
}

// CreatePlan stores a new treatment plan for an existing patient.
func (s *Service) CreatePlan(ctx context.Context, in PlanInput) (*entities.TreatmentPlan, error) {
	if err := s.requireParent(ctx, entities.KindPatient, "patient_local_id", in.PatientLocalID); err != nil {
		return nil, err
	}

	t := &entities.TreatmentPlan{
		PatientLocalID: in.PatientLocalID,
		Diagnosis:      strings.TrimSpace(in.Diagnosis),
		Status:         in.Status,
		StartDate:      in.StartDate,
		EndDate:        in.EndDate,
		Notes:          in.Notes,
	}
	if t.Status == "" {
		t.Status = entities.PlanStatusDraft
	}
	if err := validatePlan(t); err != nil {
		return nil, err
	}
	if err := s.write(ctx, t, entities.ActionCreate, lifecycle.WriteOptions{}); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) UpdatePlan(ctx context.Context, localID string, patch PlanPatch) (*entities.TreatmentPlan, error) {
	t, err := liveRecord[*entities.TreatmentPlan](ctx, s.store, entities.KindTreatmentPlan, localID)
	if err != nil {
		return nil, err
	}

	if patch.Diagnosis != nil {
		t.Diagnosis = strings.TrimSpace(*patch.Diagnosis)
	}
	if patch.Status != nil {
		t.Status = *patch.Status
	}
	if patch.StartDate != nil {
		t.StartDate = patch.StartDate
	}
	if patch.EndDate != nil {
		t.EndDate = patch.EndDate
	}
	if patch.Notes != nil {
		t.Notes = *patch.Notes
	}

	if err := validatePlan(t); err != nil {
		return nil, err
	}
	if err := s.write(ctx, t, entities.ActionUpdate, lifecycle.WriteOptions{}); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) DeletePlan(ctx context.Context, localID string) error {
	return s.softDelete(ctx, entities.KindTreatmentPlan, localID)
}

func (s *Service) GetPlan(ctx context.Context, localID string) (*entities.TreatmentPlan, error) {
	return liveRecord[*entities.TreatmentPlan](ctx, s.store, entities.KindTreatmentPlan, localID)
}

// ListPlans lists the plans of one patient, or every plan when patientLocalID is empty.
func (s *Service) ListPlans(ctx context.Context, patientLocalID string) ([]*entities.TreatmentPlan, error) {
	return database.Collect[*entities.TreatmentPlan](s.store.Query(ctx, entities.KindTreatmentPlan, database.Filter{ParentLocalID: patientLocalID}))
}

// CreateStep stores a new step for an existing treatment plan.
func (s *Service) CreateStep(ctx context.Context, in StepInput) (*entities.PlanStep, error) {
	if err := s.requireParent(ctx, entities.KindTreatmentPlan, "plan_local_id", in.PlanLocalID); err != nil {
		return nil, err
	}

	st := &entities.PlanStep{
		PlanLocalID: in.PlanLocalID,
		Title:       strings.TrimSpace(in.Title),
		Position:    in.Position,
		Status:      in.Status,
		DueDate:     in.DueDate,
		Notes:       in.Notes,
	}
	if st.Status == "" {
		st.Status = entities.StepStatusPending
	}
	if err := validateStep(st); err != nil {
		return nil, err
	}
	if err := s.write(ctx, st, entities.ActionCreate, lifecycle.WriteOptions{}); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Service) UpdateStep(ctx context.Context, localID string, patch StepPatch) (*entities.PlanStep, error) {
	st, err := liveRecord[*entities.PlanStep](ctx, s.store, entities.KindPlanStep, localID)
	if err != nil {
		return nil, err
	}

	if patch.Title != nil {
		st.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Position != nil {
		st.Position = *patch.Position
	}
	if patch.Status != nil {
		st.Status = *patch.Status
	}
	if patch.DueDate != nil {
		st.DueDate = patch.DueDate
	}
	if patch.Notes != nil {
		st.Notes = *patch.Notes
	}

	if err := validateStep(st); err != nil {
		return nil, err
	}
	if err := s.write(ctx, st, entities.ActionUpdate, lifecycle.WriteOptions{}); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Service) DeleteStep(ctx context.Context, localID string) error {
	return s.softDelete(ctx, entities.KindPlanStep, localID)
}

func (s *Service) GetStep(ctx context.Context, localID string) (*entities.PlanStep, error) {
	return liveRecord[*entities.PlanStep](ctx, s.store, entities.KindPlanStep, localID)
}

func (s *Service) ListSteps(ctx context.Context, planLocalID string) ([]*entities.PlanStep, error) {
	return database.Collect[*entities.PlanStep](s.store.Query(ctx, entities.KindPlanStep, database.Filter{ParentLocalID: planLocalID}))
}

// write commits the entity and its queue entry atomically.
func (s *Service) write(ctx context.Context, rec entities.Entity, action entities.MutationAction, opts lifecycle.WriteOptions) error {
	err := s.store.Transaction(ctx, func(tx *database.Store) error {
		return s.stage(ctx, tx, rec, action, opts)
	})
	if err != nil {
		return fmt.Errorf("failed to %s %s: %w", action, rec.Kind(), err)
	}

	s.notify()
	return nil
}

// stage writes one record and appends its queue entry inside tx.
func (s *Service) stage(ctx context.Context, tx *database.Store, rec entities.Entity, action entities.MutationAction, opts lifecycle.WriteOptions) error {
	localID, err := tx.Put(ctx, rec, opts)
	if err != nil {
		return err
	}

	var payload map[string]any
	if action != entities.ActionDelete {
		payload = rec.Fields()
	}
	_, err = s.queue.WithTx(tx.DB()).Enqueue(ctx, action, rec.Kind(), localID, payload)
	return err
}

func (s *Service) notify() {
	if s.onWrite != nil {
		s.onWrite()
	}
}

func (s *Service) softDelete(ctx context.Context, kind entities.Kind, localID string) error {
	rec, err := s.store.Get(ctx, kind, localID)
	if err != nil {
		return err
	}
	if rec.Meta().Deleted {
		return invalid("local_id", "already deleted")
	}

	err = s.store.Transaction(ctx, func(tx *database.Store) error {
		return s.deleteTree(ctx, tx, rec)
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}

	s.notify()
	return nil
}

// deleteTree soft-deletes rec after its live descendants, so every child's
// delete entry sits ahead of its parent's in the queue.
func (s *Service) deleteTree(ctx context.Context, tx *database.Store, rec entities.Entity) error {
	for _, kind := range entities.ChildKinds(rec.Kind()) {
		children, err := database.Collect[entities.Entity](tx.Query(ctx, kind, database.Filter{ParentLocalID: rec.Meta().LocalID}))
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := s.deleteTree(ctx, tx, child); err != nil {
				return err
			}
		}
	}
	return s.stage(ctx, tx, rec, entities.ActionDelete, lifecycle.WriteOptions{Deleted: lifecycle.Bool(true)})
}

func (s *Service) requireParent(ctx context.Context, kind entities.Kind, field, localID string) error {
	if localID == "" {
		return invalid(field, "is required")
	}
	parent, err := s.store.Get(ctx, kind, localID)
	if errors.Is(err, database.ErrNotFound) {
		return invalid(field, "does not reference an existing record")
	}
	if err != nil {
		return err
	}
	if parent.Meta().Deleted {
		return invalid(field, "references a deleted record")
	}
	return nil
}

// liveRecord loads a record that may still be written to.
func liveRecord[T entities.Entity](ctx context.Context, store *database.Store, kind entities.Kind, localID string) (T, error) {
	rec, err := database.GetAs[T](ctx, store, kind, localID)
	if err != nil {
		return rec, err
	}
	if rec.Meta().Deleted {
		var zero T
		return zero, invalid("local_id", "record is deleted")
	}
	return rec, nil
}
