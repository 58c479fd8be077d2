package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/sipsa-io/sipsa/internal/ingestion"
	"github.com/sipsa-io/sipsa/internal/storage"
)

// handleTriggerIngestion accepts a manual ingestion trigger and hands it off
// to asynchronous execution. The response is immediate with the correlation
// id; it never waits for ingestion completion.
func (s *Server) handleTriggerIngestion(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	method := r.URL.Query().Get("method")
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	s.logger.Info("Ingestion request received",
		slog.String("request_id", requestID),
		slog.String("method", method),
		slog.Bool("force", force),
	)

	// Synchronous so the receipt is durable before any decision is taken.
	s.deps.Auditor.RequestReceived(r.Context(), requestID, storage.SourceManual, method, force)

	if method == "" {
		reason := "Method parameter is required and cannot be blank"
		s.deps.Auditor.RequestRejected(r.Context(), requestID, storage.SourceManual, reason)
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":            reason,
			"availableMethods": s.deps.Registry.MethodNames(),
			"requestId":        requestID,
		})

		return
	}

	if !s.deps.Registry.IsValidMethod(method) {
		reason := "Invalid method: " + method
		s.deps.Auditor.RequestRejected(r.Context(), requestID, storage.SourceManual, reason)
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":            reason,
			"availableMethods": s.deps.Registry.MethodNames(),
			"requestId":        requestID,
		})

		return
	}

	s.deps.Auditor.RequestAccepted(r.Context(), requestID, storage.SourceManual, method, force)

	req := ingestion.ManualRequest(method, requestID)
	if force {
		req = ingestion.ManualForcedRequest(method, requestID)
	}

	// Detached from the request context: the ingestion outlives the HTTP
	// exchange and runs to terminal status.
	go func() {
		if err := s.deps.Job.Execute(context.Background(), req); err != nil {
			s.logger.Error("Async ingestion failed",
				slog.String("request_id", requestID),
				slog.String("method", method),
				slog.String("error", err.Error()),
			)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"requestId": requestID,
		"status":    "ACCEPTED",
		"method":    method,
		"force":     force,
	})
}

// handleListMethods returns the registered ingestion methods.
func (s *Server) handleListMethods(w http.ResponseWriter, _ *http.Request) {
	methods := s.deps.Registry.MethodNames()

	writeJSON(w, http.StatusOK, map[string]any{
		"methods": methods,
		"count":   len(methods),
	})
}
