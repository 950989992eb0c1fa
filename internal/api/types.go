package api

import (
	"time"

	"github.com/hackgods/clinic-slot-scheduling/internal/availability"
)

type CreateRuleRequest struct {
	FacilityID          int64          `json:"facility_id"`
	DoctorID            int64          `json:"doctor_id"`
	ServiceOfferingID   *int64         `json:"service_offering_id"`
	DayOfWeek           int            `json:"day_of_week"`
	StartTime           string         `json:"start_time"`
	EndTime             string         `json:"end_time"`
	SlotDurationMinutes int            `json:"slot_duration_minutes"`
	SlotIntervalMinutes *int           `json:"slot_interval_minutes"`
	Meta                map[string]any `json:"meta"`
}

type CreateExceptionRequest struct {
	RuleID     *int64         `json:"rule_id"`
	FacilityID int64          `json:"facility_id"`
	DoctorID   int64          `json:"doctor_id"`
	StartAt    time.Time      `json:"start_at"`
	EndAt      time.Time      `json:"end_at"`
	Type       string         `json:"type"`
	Reason     string         `json:"reason"`
	Meta       map[string]any `json:"meta"`
}

type CreateSlotRequest struct {
	FacilityID        int64     `json:"facility_id"`
	DoctorID          int64     `json:"doctor_id"`
	ServiceOfferingID *int64    `json:"service_offering_id"`
	StartAt           time.Time `json:"start_at"`
	EndAt             time.Time `json:"end_at"`
}

type BookSlotRequest struct {
	PatientID int64 `json:"patient_id"`
}

type CreatePatientRequest struct {
	Name  string  `json:"name"`
	Email *string `json:"email"`
}

// GenerateRequest takes calendar dates (YYYY-MM-DD). Empty dates default to
// today and today plus the generation horizon.
type GenerateRequest struct {
	FacilityID *int64 `json:"facility_id"`
	DoctorID   *int64 `json:"doctor_id"`
	From       string `json:"from"`
	To         string `json:"to"`
}

type ReconcileRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type RuleFailureResponse struct {
	RuleID int64  `json:"rule_id"`
	Error  string `json:"error"`
}

type GenerateResponse struct {
	From              string                `json:"from"`
	To                string                `json:"to"`
	RulesProcessed    int                   `json:"rules_processed"`
	RulesFailed       int                   `json:"rules_failed"`
	DatesBlocked      int                   `json:"dates_blocked"`
	TotalSlotsCreated int                   `json:"total_slots_created"`
	Failures          []RuleFailureResponse `json:"failures,omitempty"`
}

func newGenerateResponse(req availability.GenerateRequest, s availability.Summary) GenerateResponse {
	resp := GenerateResponse{
		From:              req.Start.Format(time.DateOnly),
		To:                req.End.Format(time.DateOnly),
		RulesProcessed:    s.RulesProcessed,
		RulesFailed:       s.RulesFailed,
		DatesBlocked:      s.DatesBlocked,
		TotalSlotsCreated: s.TotalSlotsCreated,
	}
	for _, f := range s.Failures {
		resp.Failures = append(resp.Failures, RuleFailureResponse{RuleID: f.RuleID, Error: f.Err.Error()})
	}
	return resp
}

type SweepResponse struct {
	Released int `json:"released"`
}

type ReconcileResponse struct {
	Booked   int `json:"booked"`
	Reopened int `json:"reopened"`
}

type ListResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func newListResponse[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Count: len(items)}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
