package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/caresync/internal/entities"
	"github.com/mrlokans/caresync/internal/records"
)

// RecordsController exposes the local clinical records. Every write is stored
// locally and queued for sync; none of these handlers talk to the remote service.
type RecordsController struct {
	records RecordsService
}

func NewRecordsController(svc RecordsService) *RecordsController {
	return &RecordsController{records: svc}
}

type listResponse[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

func list[T any](items []T) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Data: items, Total: len(items)}
}

// --- Patients ---

type patientRequest struct {
	Name        *string `json:"name"`
	DateOfBirth *string `json:"date_of_birth"`
	Sex         *string `json:"sex"`
	MRN         *string `json:"mrn"`
	Phone       *string `json:"phone"`
	Notes       *string `json:"notes"`
}

func (r patientRequest) patch() (records.PatientPatch, error) {
	dob, err := parseDate("date_of_birth", r.DateOfBirth)
	if err != nil {
		return records.PatientPatch{}, err
	}
	return records.PatientPatch{
		Name:        r.Name,
		DateOfBirth: dob,
		Sex:         r.Sex,
		MRN:         r.MRN,
		Phone:       r.Phone,
		Notes:       r.Notes,
	}, nil
}

func (r patientRequest) input() (records.PatientInput, error) {
	dob, err := parseDate("date_of_birth", r.DateOfBirth)
	if err != nil {
		return records.PatientInput{}, err
	}
	return records.PatientInput{
		Name:        deref(r.Name),
		DateOfBirth: dob,
		Sex:         deref(r.Sex),
		MRN:         deref(r.MRN),
		Phone:       deref(r.Phone),
		Notes:       deref(r.Notes),
	}, nil
}

func (rc *RecordsController) ListPatients(c *gin.Context) {
	patients, err := rc.records.ListPatients(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "list patients")
		return
	}
	c.JSON(http.StatusOK, list(patients))
}

func (rc *RecordsController) GetPatient(c *gin.Context) {
	id, ok := parseLocalIDParam(c, "id")
	if !ok {
		return
	}
	patient, err := rc.records.GetPatient(c.Request.Context(), id)
	if err != nil {
		respondRecordError(c, err, "patient")
		return
	}
	c.JSON(http.StatusOK, patient)
}

func (rc *RecordsController) CreatePatient(c *gin.Context) {
	var req patientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	in, err := req.input()
	if err != nil {
		respondRecordError(c, err, "patient")
		return
	}
	patient, err := rc.records.CreatePatient(c.Request.Context(), in)
	if err != nil {
		respondRecordError(c, err, "patient")
		return
	}
	respondCreated(c, patient)
}

func (rc *RecordsController) UpdatePatient(c *gin.Context) {
	id, ok := parseLocalIDParam(c, "id")
	if !ok {
		return
	}
	var req patientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	patch, err := req.patch()
	if err != nil {
		respondRecordError(c, err, "patient")
		return
	}
	patient, err := rc.records.UpdatePatient(c.Request.Context(), id, patch)
	if err != nil {
		respondRecordError(c, err, "patient")
		return
	}
	c.JSON(http.StatusOK, patient)
}

func (rc *RecordsController) DeletePatient(c *gin.Context) {
	id, ok := parseLocalIDParam(c, "id")
	if !ok {
		return
	}
	if err := rc.records.DeletePatient(c.Request.Context(), id); err != nil {
		respondRecordError(c, err, "patient")
		return
	}
	respondSuccess(c, "patient deleted")
}

// --- Treatment plans ---

type planRequest struct {
	PatientLocalID *string `json:"patient_local_id"`
	Diagnosis      *string `json:"diagnosis"`
	Status         *string `json:"status"`
	StartDate      *string `json:"start_date"`
	EndDate        *string `json:"end_date"`
	Notes          *string `json:"notes"`
}

func (r planRequest) dates() (start, end *time.Time, err error) {
	s, err := parseDate("start_date", r.StartDate)
	if err != nil {
		return nil, nil, err
	}
	e, err := parseDate("end_date", r.EndDate)
	if err != nil {
		return nil, nil, err
	}
	return s, e, nil
}

func (r planRequest) input() (records.PlanInput, error) {
	start, end, err := r.dates()
	if err != nil {
		return records.PlanInput{}, err
	}
	return records.PlanInput{
		PatientLocalID: deref(r.PatientLocalID),
		Diagnosis:      deref(r.Diagnosis),
		Status:         entities.PlanStatus(deref(r.Status)),
		StartDate:      start,
		EndDate:        end,
		Notes:          deref(r.Notes),
	}, nil
}

func (r planRequest) patch() (records.PlanPatch, error) {
	start, end, err := r.dates()
	if err != nil {
		return records.PlanPatch{}, err
	}
	patch := records.PlanPatch{
		Diagnosis: r.Diagnosis,
		StartDate: start,
		EndDate:   end,
		Notes:     r.Notes,
	}
	if r.Status != nil {
		status := entities.PlanStatus(*r.Status)
		patch.Status = &status
	}
	return patch, nil
}

func (rc *RecordsController) ListPlans(c *gin.Context) {
	patientID := c.Query("patient_id")
	if patientID == "" {
		respondBadRequest(c, "patient_id is required")
		return
	}
	plans, err := rc.records.ListPlans(c.Request.Context(), patientID)
	if err != nil {
		respondInternalError(c, err, "list treatment plans")
		return
	}
	c.JSON(http.StatusOK, list(plans))
}

func (rc *RecordsController) GetPlan(c *gin.Context) {
	id, ok := parseLocalIDParam(c, "id")
	if !ok {
		return
	}
	plan, err := rc.records.GetPlan(c.Request.Context(), id)
	if err != nil {
		respondRecordError(c, err, "treatment plan")
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (rc *RecordsController) CreatePlan(c *gin.Context) {
	var req planRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	in, err := req.input()
	if err != nil {
		respondRecordError(c, err, "treatment plan")
		return
	}
	plan, err := rc.records.CreatePlan(c.Request.Context(), in)
	if err != nil {
		respondRecordError(c, err, "treatment plan")
		return
	}
	respondCreated(c, plan)
}

func (rc *RecordsController) UpdatePlan(c *gin.Context) {
	id, ok := parseLocalIDParam(c, "id")
	if !ok {
		return
	}
	var req planRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	patch, err := req.patch()
	if err != nil {
		respondRecordError(c, err, "treatment plan")
		return
	}
	plan, err := rc.records.UpdatePlan(c.Request.Context(), id, patch)
	if err != nil {
		respondRecordError(c, err, "treatment plan")
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (rc *RecordsController) DeletePlan(c *gin.Context) {
	id, ok := parseLocalIDParam(c, "id")
	if !ok {
		return
	}
	if err := rc.records.DeletePlan(c.Request.Context(), id); err != nil {
		respondRecordError(c, err, "treatment plan")
		return
	}
	respondSuccess(c, "treatment plan deleted")
}

// --- Plan steps ---

type stepRequest struct {
	PlanLocalID *string `json:"plan_local_id"`
	Title       *string `json:"title"`
	Position    *int    `json:"position"`
	Status      *string `json:"status"`
	DueDate     *string `json:"due_date"`
	Notes       *string `json:"notes"`
}

func (r stepRequest) input() (records.StepInput, error) {
	due, err := parseDate("due_date", r.DueDate)
	if err != nil {
		return records.StepInput{}, err
	}
	in := records.StepInput{
		PlanLocalID: deref(r.PlanLocalID),
		Title:       deref(r.Title),
		Status:      entities.StepStatus(deref(r.Status)),
		DueDate:     due,
		Notes:       deref(r.Notes),
	}
	if r.Position != nil {
		in.Position = *r.Position
	}
	return in, nil
}

func (r stepRequest) patch() (records.StepPatch, error) {
	due, err := parseDate("due_date", r.DueDate)
	if err != nil {
		return records.StepPatch{}, err
	}
	patch := records.StepPatch{
		Title:    r.Title,
		Position: r.Position,
		DueDate:  due,
		Notes:    r.Notes,
	}
	if r.Status != nil {
		status := entities.StepStatus(*r.Status)
		patch.Status = &status
	}
	return patch, nil
}

func (rc *RecordsController) ListSteps(c *gin.Context) {
	planID := c.Query("plan_id")
	if planID == "" {
		respondBadRequest(c, "plan_id is required")
		return
	}
	steps, err := rc.records.ListSteps(c.Request.Context(), planID)
	if err != nil {
		respondInternalError(c, err, "list plan steps")
		return
	}
	c.JSON(http.StatusOK, list(steps))
}

func (rc *RecordsController) GetStep(c *gin.Context) {
	id, ok := parseLocalIDParam(c, "id")
	if !ok {
		return
	}
	step, err := rc.records.GetStep(c.Request.Context(), id)
	if err != nil {
		respondRecordError(c, err, "plan step")
		return
	}
	c.JSON(http.StatusOK, step)
}

func (rc *RecordsController) CreateStep(c *gin.Context) {
	var req stepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	in, err := req.input()
	if err != nil {
		respondRecordError(c, err, "plan step")
		return
	}
	step, err := rc.records.CreateStep(c.Request.Context(), in)
	if err != nil {
		respondRecordError(c, err, "plan step")
		return
	}
	respondCreated(c, step)
}

func (rc *RecordsController) UpdateStep(c *gin.Context) {
	id, ok := parseLocalIDParam(c, "id")
	if !ok {
		return
	}
	var req stepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	patch, err := req.patch()
	if err != nil {
		respondRecordError(c, err, "plan step")
		return
	}
	step, err := rc.records.UpdateStep(c.Request.Context(), id, patch)
	if err != nil {
		respondRecordError(c, err, "plan step")
		return
	}
	c.JSON(http.StatusOK, step)
}

func (rc *RecordsController) DeleteStep(c *gin.Context) {
	id, ok := parseLocalIDParam(c, "id")
	if !ok {
		return
	}
	if err := rc.records.DeleteStep(c.Request.Context(), id); err != nil {
		respondRecordError(c, err, "plan step")
		return
	}
	respondSuccess(c, "plan step deleted")
}

func deref[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}
	return *v
}
