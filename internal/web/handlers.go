package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/justestif/go-genre-classifier/internal/apperrors"
)

// PredictRequest is the body of POST /api/predict.
type PredictRequest struct {
	Lyrics string `json:"lyrics"`
}

// GenresResponse is the body of GET /api/genres.
type GenresResponse struct {
	Genres []string `json:"genres"`
}

// Handlers contains HTTP handlers for the prediction API.
type Handlers struct {
	predictor Predictor
	log       *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(predictor Predictor, log *slog.Logger) *Handlers {
	return &Handlers{
		predictor: predictor,
		log:       log,
	}
}

// Health reports liveness (GET /healthz).
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Genres lists the genres the model can predict (GET /api/genres).
func (h *Handlers) Genres(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, GenresResponse{Genres: h.predictor.Genres()})
}

// Predict classifies one set of lyrics (POST /api/predict).
func (h *Handlers) Predict(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBytes)

	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
			return
		}
		h.writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	result, err := h.predictor.PredictGenre(req.Lyrics)
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusOK, result)
	case errors.Is(err, apperrors.ErrInputValidation):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.log.Error("prediction failed", slog.String("error", err.Error()))
		h.writeError(w, http.StatusInternalServerError, "prediction failed")
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
