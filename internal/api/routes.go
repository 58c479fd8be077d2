package api

import "net/http"

// setupRoutes registers all HTTP routes.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	// Operational trigger surface.
	mux.HandleFunc("POST /internal/ingestion/run", s.handleTriggerIngestion)
	mux.HandleFunc("GET /internal/ingestion/methods", s.handleListMethods)

	// Audit trail surface.
	mux.HandleFunc("GET /internal/audit/request/{requestId}", s.handleAuditByRequest)
	mux.HandleFunc("GET /internal/audit/run/{runId}", s.handleAuditByRun)
	mux.HandleFunc("GET /internal/audit/recent", s.handleAuditRecent)

	// Curated read surface.
	mux.HandleFunc("GET /api/v1/sipsa/ciudad", s.handleListCiudad)
	mux.HandleFunc("GET /api/v1/sipsa/parcial", s.handleListParcial)
	mux.HandleFunc("GET /api/v1/sipsa/mayoristas-semanal", s.handleListSemana)
	mux.HandleFunc("GET /api/v1/sipsa/mayoristas-mensual", s.handleListMes)
	mux.HandleFunc("GET /api/v1/sipsa/abastecimientos-mensual", s.handleListAbas)

	// Health.
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
}
