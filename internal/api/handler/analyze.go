package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/thalloran/vitalog/internal/analysis"
	mw "github.com/thalloran/vitalog/internal/api/middleware"
	"github.com/thalloran/vitalog/internal/api/response"
	"github.com/thalloran/vitalog/pkg/models"
)

const defaultWindowDays = 7

// AnalysisRunner defines the interface the analyze handler depends on.
type AnalysisRunner interface {
	RunAnalysis(ctx context.Context, req analysis.Request) (*models.AnalysisRecord, error)
}

// NewAnalyzeHandler returns an http.HandlerFunc for POST /api/v1/analyses.
func NewAnalyzeHandler(svc AnalysisRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		var req struct {
			Kind        string `json:"kind"`
			Backend     string `json:"backend"`
			WindowStart string `json:"window_start"`
			WindowEnd   string `json:"window_end"`
			Query       string `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		kind := models.AnalysisKind(req.Kind)
		if !kind.Valid() {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"kind must be one of: nutrition, labwork, correlation, item-lookup, item-bulk-lookup, substance-lookup", nil)
			return
		}

		if !kind.RequiresRecords() && req.Query == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"query is required for lookup kinds", nil)
			return
		}

		end := time.Now().UTC()
		if req.WindowEnd != "" {
			t, err := time.Parse(time.RFC3339, req.WindowEnd)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"window_end must be a valid RFC3339 timestamp", nil)
				return
			}
			end = t
		}

		start := end.AddDate(0, 0, -defaultWindowDays)
		if req.WindowStart != "" {
			t, err := time.Parse(time.RFC3339, req.WindowStart)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"window_start must be a valid RFC3339 timestamp", nil)
				return
			}
			start = t
		}

		if !start.Before(end) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"window_start must be before window_end", nil)
			return
		}

		rec, err := svc.RunAnalysis(r.Context(), analysis.Request{
			UserID:      userID,
			Kind:        kind,
			Backend:     req.Backend,
			WindowStart: start,
			WindowEnd:   end,
			Query:       req.Query,
		})
		if err != nil {
			switch {
			case errors.Is(err, analysis.ErrNoData):
				response.Error(w, http.StatusNotFound, "NO_DATA",
					"No records found for the given kind and window", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		response.Created(w, rec)
	}
}
