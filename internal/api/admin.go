package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/hackgods/clinic-slot-scheduling/internal/availability"
)

// maxTime stands in for an open upper bound in range queries.
var maxTime = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

// AdminHandler exposes the operator triggers. Each run goes to completion
// even if the caller disconnects.
type AdminHandler struct {
	generator   *availability.Generator
	sweeper     *availability.Sweeper
	reconciler  *availability.Reconciler
	loc         *time.Location
	horizonDays int
	now         func() time.Time
}

func NewAdminHandler(generator *availability.Generator, sweeper *availability.Sweeper, reconciler *availability.Reconciler, loc *time.Location, horizonDays int) *AdminHandler {
	if loc == nil {
		loc = time.UTC
	}
	if horizonDays <= 0 {
		horizonDays = 30
	}
	return &AdminHandler{
		generator:   generator,
		sweeper:     sweeper,
		reconciler:  reconciler,
		loc:         loc,
		horizonDays: horizonDays,
		now:         time.Now,
	}
}

// decodeOptional decodes a JSON body, treating an empty body as zero value.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (h *AdminHandler) dateRange(from, to string) (time.Time, time.Time, error) {
	today := availability.StartOfDay(h.now().In(h.loc))

	start, err := parseDate(from, h.loc, today)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseDate(to, h.loc, start.AddDate(0, 0, h.horizonDays))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, errors.New("to must not be before from")
	}
	return start, end, nil
}

func (h *AdminHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	start, end, err := h.dateRange(req.From, req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date_range", err.Error())
		return
	}

	genReq := availability.GenerateRequest{
		FacilityID: req.FacilityID,
		DoctorID:   req.DoctorID,
		Start:      start,
		End:        end,
	}
	summary, err := h.generator.Run(context.WithoutCancel(r.Context()), genReq)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newGenerateResponse(genReq, summary))
}

func (h *AdminHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	released, err := h.sweeper.Sweep(context.WithoutCancel(r.Context()), h.now())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SweepResponse{Released: released})
}

func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	start, end, err := h.dateRange(req.From, req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date_range", err.Error())
		return
	}

	// The range covers whole days, so extend the end to its last second.
	res, err := h.reconciler.Reconcile(context.WithoutCancel(r.Context()), start, end.AddDate(0, 0, 1).Add(-time.Second))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ReconcileResponse{Booked: res.Booked, Reopened: res.Reopened})
}
