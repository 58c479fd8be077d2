package api

import (
	"context"
	"net/http"
	"time"

	"github.com/sipsa-io/sipsa/internal/api/middleware"
)

const healthCheckTimeout = 2 * time.Second

type (
	// methodHealth summarizes the last run of one ingestion method.
	methodHealth struct {
		RunID     int64   `json:"runId"`
		WindowKey string  `json:"windowKey"`
		Status    string  `json:"status"`
		StartTime string  `json:"startTime"`
		EndTime   *string `json:"endTime,omitempty"`
		Seen      int     `json:"recordsSeen"`
		Inserted  int     `json:"recordsInserted"`
		Rejected  int     `json:"rejectCount"`
		LastError *string `json:"lastError,omitempty"`
	}

	// healthResponse is the health endpoint payload.
	healthResponse struct {
		Status   string                  `json:"status"`
		Database string                  `json:"database"`
		Uptime   string                  `json:"uptime"`
		Methods  map[string]methodHealth `json:"methods"`
	}
)

// handleHealth reports storage connectivity and the latest run per method.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	loc := middleware.GetTimezone(r.Context())

	response := healthResponse{
		Status:   "UP",
		Database: "UP",
		Uptime:   time.Since(s.startTime).Round(time.Second).String(),
		Methods:  map[string]methodHealth{},
	}

	if err := s.deps.DB.PingContext(ctx); err != nil {
		response.Status = "DOWN"
		response.Database = "DOWN"

		writeJSON(w, http.StatusServiceUnavailable, response)

		return
	}

	runs, err := s.deps.Runs.LatestRuns(ctx)
	if err == nil {
		for _, run := range runs {
			entry := methodHealth{
				RunID:     run.RunID,
				WindowKey: run.WindowKey,
				Status:    string(run.Status),
				StartTime: formatTime(run.StartTime, loc),
				EndTime:   formatTimePtr(run.EndTime, loc),
				Seen:      run.RecordsSeen,
				Inserted:  run.RecordsInserted,
				Rejected:  run.RejectCount,
				LastError: run.LastErrorMessage,
			}
			response.Methods[run.MethodName] = entry
		}
	}

	writeJSON(w, http.StatusOK, response)
}
