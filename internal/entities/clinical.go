package entities

import (
	"time"
)

// Kind names an entity collection. The value doubles as the table name.
type Kind string

const (
	KindPatient       Kind = "patients"
	KindTreatmentPlan Kind = "treatment_plans"
	KindPlanStep      Kind = "plan_steps"
)

func (k Kind) String() string {
	return string(k)
}

type PlanStatus string

const (
	PlanStatusDraft     PlanStatus = "draft"
	PlanStatusActive    PlanStatus = "active"
	PlanStatusCompleted PlanStatus = "completed"
	PlanStatusCancelled PlanStatus = "cancelled"
)

type StepStatus string

const (
	StepStatusPending StepStatus = "pending"
	StepStatusDone    StepStatus = "done"
	StepStatusSkipped StepStatus = "skipped"
)

// dateLayout is the wire format for calendar dates sent to the remote service.
const dateLayout = "2006-01-02"

// SyncMeta carries the local/remote identity and sync state shared by every entity.
// CreatedAt and UpdatedAt are stamped by the store, never by gorm or the caller.
type SyncMeta struct {
	LocalID   string    `gorm:"primaryKey;size:36" json:"local_id"`
	RemoteID  *string   `gorm:"index;size:64" json:"remote_id,omitempty"`
	Synced    bool      `gorm:"index;not null" json:"synced"`
	Deleted   bool      `gorm:"index;not null" json:"deleted"`
	CreatedAt time.Time `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`
}

// Meta gives the store access to the sync fields of any entity embedding SyncMeta.
func (m *SyncMeta) Meta() *SyncMeta {
	return m
}

// HasRemoteID reports whether the remote service has accepted this entity.
func (m *SyncMeta) HasRemoteID() bool {
	return m.RemoteID != nil && *m.RemoteID != ""
}

// Entity is implemented by every record kept in the local store.
type Entity interface {
	Kind() Kind
	Meta() *SyncMeta
	// ParentLocalID returns the local id of the parent entity, or "" for root kinds.
	ParentLocalID() string
	// Fields returns the caller-visible domain fields in their remote wire form.
	Fields() map[string]any
}

// KindInfo describes the shape of an entity collection.
type KindInfo struct {
	Kind   Kind
	Parent Kind

	// ParentColumn is the column holding the parent's local id.
	ParentColumn string

	New func() Entity
}

var kinds = map[Kind]KindInfo{
	KindPatient: {
		Kind: KindPatient,
		New:  func() Entity { return &Patient{} },
	},
	KindTreatmentPlan: {
		Kind:         KindTreatmentPlan,
		Parent:       KindPatient,
		ParentColumn: "patient_local_id",
		New:          func() Entity { return &TreatmentPlan{} },
	},
	KindPlanStep: {
		Kind:         KindPlanStep,
		Parent:       KindTreatmentPlan,
		ParentColumn: "plan_local_id",
		New:          func() Entity { return &PlanStep{} },
	},
}

// LookupKind returns the description of a known entity kind.
func LookupKind(k Kind) (KindInfo, bool) {
	info, ok := kinds[k]
	return info, ok
}

// Kinds lists every entity kind, parents before children.
func Kinds() []Kind {
	return []Kind{KindPatient, KindTreatmentPlan, KindPlanStep}
}

// ChildKinds lists the kinds whose parent is k.
func ChildKinds(k Kind) []Kind {
	var out []Kind
	for _, kind := range Kinds() {
		if kinds[kind].Parent == k {
			out = append(out, kind)
		}
	}
	return out
}

type Patient struct {
	SyncMeta
	Name        string     `gorm:"size:255;not null" json:"name"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Sex         string     `gorm:"size:16" json:"sex,omitempty"`
	MRN         string     `gorm:"index;size:64" json:"mrn,omitempty"` // medical record number
	Phone       string     `gorm:"size:32" json:"phone,omitempty"`
	Notes       string     `gorm:"type:text" json:"notes,omitempty"`
}

func (Patient) TableName() string {
	return string(KindPatient)
}

func (*Patient) Kind() Kind { return KindPatient }

func (*Patient) ParentLocalID() string { return "" }

func (p *Patient) Fields() map[string]any {
	return map[string]any{
		"name":          p.Name,
		"date_of_birth": formatDate(p.DateOfBirth),
		"sex":           p.Sex,
		"mrn":           p.MRN,
		"phone":         p.Phone,
		"notes":         p.Notes,
	}
}

type TreatmentPlan struct {
	SyncMeta
	PatientLocalID string     `gorm:"index;size:36;not null" json:"patient_local_id"`
	Diagnosis      string     `gorm:"size:512;not null" json:"diagnosis"`
	Status         PlanStatus `gorm:"size:20;not null" json:"status"`
	StartDate      *time.Time `json:"start_date,omitempty"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	Notes          string     `gorm:"type:text" json:"notes,omitempty"`
}

func (TreatmentPlan) TableName() string {
	return string(KindTreatmentPlan)
}

func (*TreatmentPlan) Kind() Kind { return KindTreatmentPlan }

func (t *TreatmentPlan) ParentLocalID() string { return t.PatientLocalID }

func (t *TreatmentPlan) Fields() map[string]any {
	return map[string]any{
		"diagnosis":  t.Diagnosis,
		"status":     string(t.Status),
		"start_date": formatDate(t.StartDate),
		"end_date":   formatDate(t.EndDate),
		"notes":      t.Notes,
	}
}

type PlanStep struct {
	SyncMeta
	PlanLocalID string     `gorm:"index;size:36;not null" json:"plan_local_id"`
	Title       string     `gorm:"size:512;not null" json:"title"`
	Position    int        `json:"position"`
	Status      StepStatus `gorm:"size:20;not null" json:"status"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Notes       string     `gorm:"type:text" json:"notes,omitempty"`
}

func (PlanStep) TableName() string {
	return string(KindPlanStep)
}

func (*PlanStep) Kind() Kind { return KindPlanStep }

func (s *PlanStep) ParentLocalID() string { return s.PlanLocalID }

func (s *PlanStep) Fields() map[string]any {
	return map[string]any{
		"title":    s.Title,
		"position": s.Position,
		"status":   string(s.Status),
		"due_date": formatDate(s.DueDate),
		"notes":    s.Notes,
	}
}

func formatDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}
