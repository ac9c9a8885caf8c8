package records

import (
	"github.com/mrlokans/caresync/internal/entities"
)

const (
	maxNameLength  = 255
	maxTextLength  = 512
	maxShortLength = 64
)

func validatePatient(p *entities.Patient) error {
	if p.Name == "" {
		return invalid("name", "is required")
	}
	if len(p.Name) > maxNameLength {
		return invalid("name", "is too long")
	}
	if len(p.MRN) > maxShortLength {
		return invalid("mrn", "is too long")
	}
	switch p.Sex {
	case "", "female", "male", "other", "unknown":
	default:
		return invalid("sex", "must be one of female, male, other, unknown")
	}
	return nil
}

func validatePlan(t *entities.TreatmentPlan) error {
	if t.Diagnosis == "" {
		return invalid("diagnosis", "is required")
	}
	if len(t.Diagnosis) > maxTextLength {
		return invalid("diagnosis", "is too long")
	}
	switch t.Status {
	case entities.PlanStatusDraft, entities.PlanStatusActive, entities.PlanStatusCompleted, entities.PlanStatusCancelled:
	default:
		return invalid("status", "unknown plan status "+string(t.Status))
	}
	if t.StartDate != nil && t.EndDate != nil && t.EndDate.Before(*t.StartDate) {
		return invalid("end_date", "is before start_date")
	}
	return nil
}

func validateStep(s *entities.PlanStep) error {
	if s.Title == "" {
		return invalid("title", "is required")
	}
	if len(s.Title) > maxTextLength {
		return invalid("title", "is too long")
	}
	if s.Position < 0 {
		return invalid("position", "must not be negative")
	}
	switch s.Status {
	case entities.StepStatusPending, entities.StepStatusDone, entities.StepStatusSkipped:
	default:
		return invalid("status", "unknown step status "+string(s.Status))
	}
	return nil
}
