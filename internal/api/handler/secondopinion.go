package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/thalloran/vitalog/internal/analysis"
	mw "github.com/thalloran/vitalog/internal/api/middleware"
	"github.com/thalloran/vitalog/internal/api/response"
	"github.com/thalloran/vitalog/internal/store"
	"github.com/thalloran/vitalog/pkg/models"
)

// SecondOpinionRequester defines the interface the second-opinion handler
// depends on.
type SecondOpinionRequester interface {
	RequestSecondOpinion(ctx context.Context, userID, recordID uuid.UUID, backend string) (*models.SecondOpinion, error)
}

// NewSecondOpinionHandler returns an http.HandlerFunc for
// POST /api/v1/analyses/{analysisID}/second-opinion. Unlike the primary
// analysis run, backend failures here surface to the caller so the request
// can be retried.
func NewSecondOpinionHandler(svc SecondOpinionRequester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		recordID, err := uuid.Parse(chi.URLParam(r, "analysisID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"analysisID must be a valid UUID", nil)
			return
		}

		var req struct {
			Backend string `json:"backend"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Backend == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "backend is required", nil)
			return
		}

		op, err := svc.RequestSecondOpinion(r.Context(), userID, recordID, req.Backend)
		if err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Analysis not found", nil)
			case errors.Is(err, models.ErrBackendNotConfigured):
				response.Error(w, http.StatusBadRequest, "BACKEND_NOT_CONFIGURED",
					"The requested backend is not configured", nil)
			case errors.Is(err, models.ErrBackendAuth):
				response.Error(w, http.StatusBadGateway, "BACKEND_AUTH_FAILED",
					"The backend rejected the configured credentials", nil)
			case errors.Is(err, models.ErrBackendQuota):
				response.Error(w, http.StatusServiceUnavailable, "BACKEND_QUOTA_EXCEEDED",
					"The backend quota or rate limit was exceeded", nil)
			case errors.Is(err, models.ErrBackendTransport):
				response.Error(w, http.StatusBadGateway, "BACKEND_UNAVAILABLE",
					"The backend could not be reached", nil)
			case errors.Is(err, analysis.ErrParse), errors.Is(err, analysis.ErrValidation):
				response.Error(w, http.StatusBadGateway, "BAD_BACKEND_RESPONSE",
					"The backend returned an unusable response", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		response.Created(w, op)
	}
}
