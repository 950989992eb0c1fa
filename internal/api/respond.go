package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hackgods/clinic-slot-scheduling/internal/availability"
	"github.com/hackgods/clinic-slot-scheduling/internal/lock"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// handleServiceError maps scheduling errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, availability.ErrRuleNotFound):
		writeError(w, http.StatusNotFound, "rule_not_found", err.Error())
	case errors.Is(err, availability.ErrExceptionNotFound):
		writeError(w, http.StatusNotFound, "exception_not_found", err.Error())
	case errors.Is(err, availability.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, availability.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())

	case errors.Is(err, availability.ErrSlotNotOpen):
		writeError(w, http.StatusConflict, "slot_not_open", err.Error())
	case errors.Is(err, availability.ErrReservationExpired):
		writeError(w, http.StatusConflict, "reservation_expired", err.Error())
	case errors.Is(err, availability.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, availability.ErrDuplicateSlot):
		writeError(w, http.StatusConflict, "duplicate_slot", err.Error())
	case errors.Is(err, lock.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "resource_busy", "the resource is being modified, please retry shortly")

	case errors.Is(err, availability.ErrMissingOwner),
		errors.Is(err, availability.ErrInvalidDayOfWeek),
		errors.Is(err, availability.ErrInvalidTimeWindow),
		errors.Is(err, availability.ErrInvalidDuration),
		errors.Is(err, availability.ErrInvalidInterval),
		errors.Is(err, availability.ErrInvalidTimeOfDay),
		errors.Is(err, availability.ErrInvalidExceptionAt),
		errors.Is(err, availability.ErrInvalidException),
		errors.Is(err, availability.ErrInvalidSlotWindow),
		errors.Is(err, availability.ErrPatientRequired):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())

	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
