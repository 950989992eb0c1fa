package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/hackgods/clinic-slot-scheduling/internal/availability"
)

// Rules

func createRuleHandler(rules availability.RuleStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateRuleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		start, err := availability.ParseTimeOfDay(req.StartTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_time", err.Error())
			return
		}
		end, err := availability.ParseTimeOfDay(req.EndTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end_time", err.Error())
			return
		}

		rule := availability.Rule{
			FacilityID:          req.FacilityID,
			DoctorID:            req.DoctorID,
			ServiceOfferingID:   req.ServiceOfferingID,
			DayOfWeek:           req.DayOfWeek,
			StartTime:           start,
			EndTime:             end,
			SlotDurationMinutes: req.SlotDurationMinutes,
			SlotIntervalMinutes: req.SlotIntervalMinutes,
			Active:              true,
			Meta:                req.Meta,
		}
		if err := rule.Validate(); err != nil {
			handleServiceError(w, err)
			return
		}

		if err := rules.CreateRule(r.Context(), &rule); err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, rule)
	}
}

func listRulesHandler(rules availability.RuleStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		facilityID, err := queryInt64(r, "facility_id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_facility_id", err.Error())
			return
		}
		doctorID, err := queryInt64(r, "doctor_id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", err.Error())
			return
		}
		activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active"))

		list, err := rules.ListRules(r.Context(), availability.RuleFilter{
			FacilityID: facilityID,
			DoctorID:   doctorID,
			ActiveOnly: activeOnly,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, newListResponse(list))
	}
}

func getRuleHandler(rules availability.RuleStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_rule_id", err.Error())
			return
		}

		rule, err := rules.GetRule(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, rule)
	}
}

// setRuleActiveHandler flips the active flag. Rules are never deleted so
// slots keep their back-reference.
func setRuleActiveHandler(rules availability.RuleStore, active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_rule_id", err.Error())
			return
		}

		if err := rules.SetRuleActive(r.Context(), id, active); err != nil {
			handleServiceError(w, err)
			return
		}

		rule, err := rules.GetRule(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, rule)
	}
}

// Exceptions

func createExceptionHandler(exceptions availability.ExceptionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateExceptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		ex := availability.Exception{
			RuleID:     req.RuleID,
			FacilityID: req.FacilityID,
			DoctorID:   req.DoctorID,
			StartAt:    req.StartAt,
			EndAt:      req.EndAt,
			Type:       availability.ExceptionType(req.Type),
			Reason:     req.Reason,
			Meta:       req.Meta,
		}
		if ex.Type == "" {
			ex.Type = availability.ExceptionBlocked
		}
		if err := ex.Validate(); err != nil {
			handleServiceError(w, err)
			return
		}

		if err := exceptions.CreateException(r.Context(), &ex); err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, ex)
	}
}

func listExceptionsHandler(exceptions availability.ExceptionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		facilityID, err := queryInt64(r, "facility_id")
		if err != nil || facilityID == nil {
			writeError(w, http.StatusBadRequest, "invalid_facility_id", "facility_id is required")
			return
		}
		doctorID, err := queryInt64(r, "doctor_id")
		if err != nil || doctorID == nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id is required")
			return
		}
		from, err := queryTime(r, "from")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", err.Error())
			return
		}
		to, err := queryTime(r, "to")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", err.Error())
			return
		}
		if to.IsZero() {
			to = maxTime
		}

		list, err := exceptions.ListExceptions(r.Context(), *facilityID, *doctorID, from, to)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, newListResponse(list))
	}
}

func deleteExceptionHandler(exceptions availability.ExceptionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_exception_id", err.Error())
			return
		}

		if err := exceptions.DeleteException(r.Context(), id); err != nil {
			handleServiceError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// Slots

func listOpenSlotsHandler(svc *availability.BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q availability.SlotQuery
		var err error

		if q.FacilityID, err = queryInt64(r, "facility_id"); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_facility_id", err.Error())
			return
		}
		if q.DoctorID, err = queryInt64(r, "doctor_id"); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", err.Error())
			return
		}
		if q.ServiceOfferingID, err = queryInt64(r, "service_offering_id"); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_offering_id", err.Error())
			return
		}
		if q.From, err = queryTime(r, "from"); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", err.Error())
			return
		}
		if q.To, err = queryTime(r, "to"); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", err.Error())
			return
		}
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if q.Limit, err = strconv.Atoi(raw); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
				return
			}
		}

		slots, err := svc.FindOpenSlots(r.Context(), q)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, newListResponse(slots))
	}
}

func getSlotHandler(svc *availability.BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", err.Error())
			return
		}

		slot, err := svc.GetSlot(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, slot)
	}
}

func createSlotHandler(svc *availability.BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		slot, err := svc.CreateManualSlot(r.Context(), availability.SlotDraft{
			FacilityID:        req.FacilityID,
			DoctorID:          req.DoctorID,
			ServiceOfferingID: req.ServiceOfferingID,
			StartAt:           req.StartAt,
			EndAt:             req.EndAt,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, slot)
	}
}

func bookSlotHandler(svc *availability.BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", err.Error())
			return
		}

		var req BookSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		booking, err := svc.Book(r.Context(), id, req.PatientID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, booking)
	}
}

func listSlotAppointmentsHandler(svc *availability.BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", err.Error())
			return
		}

		appts, err := svc.ListAppointments(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, newListResponse(appts))
	}
}

func createPatientHandler(patients availability.AppointmentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreatePatientRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			writeError(w, http.StatusBadRequest, "validation_failed", "name is required")
			return
		}

		p := availability.Patient{Name: strings.TrimSpace(req.Name), Email: req.Email}
		if err := patients.CreatePatient(r.Context(), &p); err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, p)
	}
}

func getPatientHandler(patients availability.AppointmentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", err.Error())
			return
		}

		p, err := patients.GetPatient(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, p)
	}
}

// slotTransitionHandler serves reserve and cancel, which share the
// same shape: a slot id in the path and the updated slot in the response.
func slotTransitionHandler(transition func(ctx context.Context, id int64) (*availability.Slot, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", err.Error())
			return
		}

		slot, err := transition(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, slot)
	}
}
