package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/thalloran/vitalog/internal/api/middleware"
	"github.com/thalloran/vitalog/internal/api/response"
	"github.com/thalloran/vitalog/internal/store"
	"github.com/thalloran/vitalog/pkg/models"
)

// AnalysisGetter defines the interface the get handler depends on.
type AnalysisGetter interface {
	GetAnalysis(ctx context.Context, userID, id uuid.UUID) (*models.AnalysisRecord, error)
}

// NewGetAnalysisHandler returns an http.HandlerFunc for
// GET /api/v1/analyses/{analysisID}.
func NewGetAnalysisHandler(svc AnalysisGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "analysisID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"analysisID must be a valid UUID", nil)
			return
		}

		rec, err := svc.GetAnalysis(r.Context(), userID, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Analysis not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, rec)
	}
}
