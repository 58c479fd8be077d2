package api

import (
	"net/http"
	"strconv"

	"github.com/sipsa-io/sipsa/internal/api/middleware"
)

// handleAuditByRequest returns the full audit trail of one request id.
func (s *Server) handleAuditByRequest(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("requestId")
	loc := middleware.GetTimezone(r.Context())

	events, err := s.deps.Audit.AuditTrailByRequestID(r.Context(), requestID)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to query audit trail"))

		return
	}

	if len(events) == 0 {
		WriteErrorResponse(w, r, s.logger, NotFound("no audit trail for request "+requestID))

		return
	}

	dtos := make([]AuditEventDTO, len(events))
	for i, event := range events {
		dtos[i] = toAuditEventDTO(event, loc)
	}

	writeJSON(w, http.StatusOK, AuditTrailDTO{
		RequestID:  requestID,
		EventCount: len(events),
		FirstEvent: formatTime(events[0].OccurredAt, loc),
		LastEvent:  formatTime(events[len(events)-1].OccurredAt, loc),
		Events:     dtos,
	})
}

// handleAuditByRun returns the audit events of one run.
func (s *Server) handleAuditByRun(w http.ResponseWriter, r *http.Request) {
	runID, err := strconv.ParseInt(r.PathValue("runId"), 10, 64)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("runId must be an integer"))

		return
	}

	loc := middleware.GetTimezone(r.Context())

	events, err := s.deps.Audit.AuditTrailByRunID(r.Context(), runID)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to query audit trail"))

		return
	}

	if len(events) == 0 {
		WriteErrorResponse(w, r, s.logger, NotFound("no audit events for run "+r.PathValue("runId")))

		return
	}

	dtos := make([]AuditEventDTO, len(events))
	for i, event := range events {
		dtos[i] = toAuditEventDTO(event, loc)
	}

	writeJSON(w, http.StatusOK, dtos)
}

// handleAuditRecent returns the last 100 audit events, newest first.
func (s *Server) handleAuditRecent(w http.ResponseWriter, r *http.Request) {
	loc := middleware.GetTimezone(r.Context())

	events, err := s.deps.Audit.RecentEvents(r.Context())
	if err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to query recent audit events"))

		return
	}

	dtos := make([]AuditEventDTO, len(events))
	for i, event := range events {
		dtos[i] = toAuditEventDTO(event, loc)
	}

	writeJSON(w, http.StatusOK, dtos)
}
