package records

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/caresync/internal/database"
	"github.com/mrlokans/caresync/internal/database/queue"
	"github.com/mrlokans/caresync/internal/entities"
)

type fixture struct {
	svc   *Service
	store *database.Store
	queue *queue.Repository
}

func setup(t *testing.T) fixture {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "records.db"), database.Options{LogLevel: logger.Silent})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := db.Store()
	q := queue.NewRepository(db.DB)
	return fixture{svc: NewService(store, q), store: store, queue: q}
}

func strPtr(s string) *string { return &s }

func TestCreatePatient(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	writes := 0
	f.svc.OnWrite(func() { writes++ })

	p, err := f.svc.CreatePatient(ctx, PatientInput{Name: "  Jane Doe  "})
	require.NoError(t, err)
	assert.NotEmpty(t, p.LocalID)
	assert.Equal(t, "Jane Doe", p.Name)
	assert.False(t, p.Synced)
	assert.Equal(t, 1, writes)

	entries, err := f.queue.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entities.ActionCreate, entries[0].Action)
	assert.Equal(t, entities.KindPatient, entries[0].EntityKind)
	assert.Equal(t, p.LocalID, entries[0].TargetLocalID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(entries[0].Payload), &payload))
	assert.Equal(t, "Jane Doe", payload["name"])
}

func TestCreatePatient_ValidationFailsBeforeQueueing(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		in    PatientInput
		field string
	}{
		{"missing name", PatientInput{Name: "   "}, "name"},
		{"bad sex", PatientInput{Name: "Jane Doe", Sex: "x"}, "sex"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreatePatient(ctx, tt.in)
			require.ErrorIs(t, err, ErrValidation)

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}

	count, err := f.queue.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestUpdatePatient(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p, err := f.svc.CreatePatient(ctx, PatientInput{Name: "Jane Doe", Phone: "555-0100"})
	require.NoError(t, err)

	updated, err := f.svc.UpdatePatient(ctx, p.LocalID, PatientPatch{Name: strPtr("Jane Smith")})
	require.NoError(t, err)
	assert.Equal(t, "Jane Smith", updated.Name)
	assert.Equal(t, "555-0100", updated.Phone)

	entries, err := f.queue.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, entities.ActionUpdate, entries[1].Action)
}

func TestDeletePatient(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p, err := f.svc.CreatePatient(ctx, PatientInput{Name: "Jane Doe"})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeletePatient(ctx, p.LocalID))

	// Soft-deleted: still stored, hidden from listings
	rec, err := f.store.Get(ctx, entities.KindPatient, p.LocalID)
	require.NoError(t, err)
	assert.True(t, rec.Meta().Deleted)

	patients, err := f.svc.ListPatients(ctx)
	require.NoError(t, err)
	assert.Empty(t, patients)

	entries, err := f.queue.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, entities.ActionDelete, entries[1].Action)
	assert.Empty(t, entries[1].Payload)

	t.Run("writes to a deleted record are rejected", func(t *testing.T) {
		_, err := f.svc.UpdatePatient(ctx, p.LocalID, PatientPatch{Name: strPtr("Back")})
		assert.ErrorIs(t, err, ErrValidation)

		err = f.svc.DeletePatient(ctx, p.LocalID)
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestDeletePatient_CascadesToChildren(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p, err := f.svc.CreatePatient(ctx, PatientInput{Name: "Jane Doe"})
	require.NoError(t, err)
	plan, err := f.svc.CreatePlan(ctx, PlanInput{PatientLocalID: p.LocalID, Diagnosis: "Hypertension"})
	require.NoError(t, err)
	step, err := f.svc.CreateStep(ctx, StepInput{PlanLocalID: plan.LocalID, Title: "Check BP"})
	require.NoError(t, err)
	other, err := f.svc.CreatePatient(ctx, PatientInput{Name: "John Roe"})
	require.NoError(t, err)
	otherPlan, err := f.svc.CreatePlan(ctx, PlanInput{PatientLocalID: other.LocalID, Diagnosis: "Asthma"})
	require.NoError(t, err)

	writes := 0
	f.svc.OnWrite(func() { writes++ })
	require.NoError(t, f.svc.DeletePatient(ctx, p.LocalID))
	assert.Equal(t, 1, writes)

	for kind, localID := range map[entities.Kind]string{
		entities.KindPatient:       p.LocalID,
		entities.KindTreatmentPlan: plan.LocalID,
		entities.KindPlanStep:      step.LocalID,
	} {
		rec, err := f.store.Get(ctx, kind, localID)
		require.NoError(t, err)
		assert.True(t, rec.Meta().Deleted, "%s not deleted", kind)
	}

	// Another patient's plan is untouched
	kept, err := f.svc.GetPlan(ctx, otherPlan.LocalID)
	require.NoError(t, err)
	assert.False(t, kept.Deleted)

	entries, err := f.queue.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 8)
	deletes := entries[5:]
	for _, e := range deletes {
		assert.Equal(t, entities.ActionDelete, e.Action)
	}
	// Children are queued ahead of their parents
	assert.Equal(t, step.LocalID, deletes[0].TargetLocalID)
	assert.Equal(t, plan.LocalID, deletes[1].TargetLocalID)
	assert.Equal(t, p.LocalID, deletes[2].TargetLocalID)
}

func TestDeletePlan_CascadesToSteps(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p, err := f.svc.CreatePatient(ctx, PatientInput{Name: "Jane Doe"})
	require.NoError(t, err)
	plan, err := f.svc.CreatePlan(ctx, PlanInput{PatientLocalID: p.LocalID, Diagnosis: "Hypertension"})
	require.NoError(t, err)
	first, err := f.svc.CreateStep(ctx, StepInput{PlanLocalID: plan.LocalID, Title: "Check BP", Position: 1})
	require.NoError(t, err)
	second, err := f.svc.CreateStep(ctx, StepInput{PlanLocalID: plan.LocalID, Title: "Adjust dose", Position: 2})
	require.NoError(t, err)
	// Already deleted steps are not queued twice
	require.NoError(t, f.svc.DeleteStep(ctx, first.LocalID))

	require.NoError(t, f.svc.DeletePlan(ctx, plan.LocalID))

	entries, err := f.queue.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 7)
	assert.Equal(t, second.LocalID, entries[5].TargetLocalID)
	assert.Equal(t, plan.LocalID, entries[6].TargetLocalID)

	// The patient stays live
	_, err = f.svc.GetPatient(ctx, p.LocalID)
	assert.NoError(t, err)
}

func TestCreatePlan(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p, err := f.svc.CreatePatient(ctx, PatientInput{Name: "Jane Doe"})
	require.NoError(t, err)

	plan, err := f.svc.CreatePlan(ctx, PlanInput{PatientLocalID: p.LocalID, Diagnosis: "Hypertension"})
	require.NoError(t, err)
	assert.Equal(t, entities.PlanStatusDraft, plan.Status)

	plans, err := f.svc.ListPlans(ctx, p.LocalID)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, plan.LocalID, plans[0].LocalID)
}

func TestCreatePlan_Validation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p, err := f.svc.CreatePatient(ctx, PatientInput{Name: "Jane Doe"})
	require.NoError(t, err)
	deleted, err := f.svc.CreatePatient(ctx, PatientInput{Name: "Gone"})
	require.NoError(t, err)
	require.NoError(t, f.svc.DeletePatient(ctx, deleted.LocalID))

	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, -1)

	tests := []struct {
		name  string
		in    PlanInput
		field string
	}{
		{"missing patient", PlanInput{Diagnosis: "Asthma"}, "patient_local_id"},
		{"unknown patient", PlanInput{PatientLocalID: "nope", Diagnosis: "Asthma"}, "patient_local_id"},
		{"deleted patient", PlanInput{PatientLocalID: deleted.LocalID, Diagnosis: "Asthma"}, "patient_local_id"},
		{"missing diagnosis", PlanInput{PatientLocalID: p.LocalID}, "diagnosis"},
		{"bad status", PlanInput{PatientLocalID: p.LocalID, Diagnosis: "Asthma", Status: "paused"}, "status"},
		{"end before start", PlanInput{PatientLocalID: p.LocalID, Diagnosis: "Asthma", StartDate: &start, EndDate: &end}, "end_date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreatePlan(ctx, tt.in)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestSteps(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p, err := f.svc.CreatePatient(ctx, PatientInput{Name: "Jane Doe"})
	require.NoError(t, err)
	plan, err := f.svc.CreatePlan(ctx, PlanInput{PatientLocalID: p.LocalID, Diagnosis: "Hypertension"})
	require.NoError(t, err)

	step, err := f.svc.CreateStep(ctx, StepInput{PlanLocalID: plan.LocalID, Title: "Measure blood pressure", Position: 1})
	require.NoError(t, err)
	assert.Equal(t, entities.StepStatusPending, step.Status)

	done := entities.StepStatusDone
	updated, err := f.svc.UpdateStep(ctx, step.LocalID, StepPatch{Status: &done})
	require.NoError(t, err)
	assert.Equal(t, entities.StepStatusDone, updated.Status)

	negative := -1
	_, err = f.svc.UpdateStep(ctx, step.LocalID, StepPatch{Position: &negative})
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, f.svc.DeleteStep(ctx, step.LocalID))

	steps, err := f.svc.ListSteps(ctx, plan.LocalID)
	require.NoError(t, err)
	assert.Empty(t, steps)

	// create patient, plan, step, update step, delete step
	count, err := f.queue.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
}

func TestGetPatient_NotFound(t *testing.T) {
	f := setup(t)

	_, err := f.svc.GetPatient(context.Background(), "missing")
	assert.ErrorIs(t, err, database.ErrNotFound)
}
