package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Lixing-Zhang/restaurant-backend/internal/catalog"
	"github.com/Lixing-Zhang/restaurant-backend/internal/service"
)

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
	DishID    int64  `json:"dishId,omitempty"`
	Requested *int   `json:"requested,omitempty"`
	Available *int   `json:"available,omitempty"`
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data interface{}, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

// WriteError writes an error response in JSON format
func WriteError(w http.ResponseWriter, status int, message string, logger *slog.Logger) {
	WriteJSON(w, status, ErrorResponse{Error: message}, logger)
}

// WriteServiceError maps a service error onto its status code and body
func WriteServiceError(w http.ResponseWriter, err error, logger *slog.Logger) {
	var (
		stockErr   *service.InsufficientStockError
		unknownErr *service.UnknownDishError
	)

	switch {
	case errors.As(err, &stockErr):
		WriteJSON(w, http.StatusConflict, ErrorResponse{
			Error:     err.Error(),
			DishID:    stockErr.DishID,
			Requested: &stockErr.Requested,
			Available: &stockErr.Available,
		}, logger)
	case errors.As(err, &unknownErr):
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), DishID: unknownErr.DishID}, logger)
	case errors.Is(err, service.ErrEmptyOrder),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrInvalidPrice),
		errors.Is(err, catalog.ErrInvalidMenu):
		WriteError(w, http.StatusBadRequest, err.Error(), logger)
	case errors.Is(err, service.ErrDishNotFound),
		errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, service.ErrCategoryNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), logger)
	case errors.Is(err, service.ErrDishReferenced):
		WriteError(w, http.StatusConflict, err.Error(), logger)
	case errors.Is(err, service.ErrStorageFailure):
		logger.Error("storage failure", "error", err)
		WriteJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error:     "Storage temporarily unavailable, please retry",
			Retryable: true,
		}, logger)
	default:
		logger.Error("unexpected error", "error", err)
		WriteError(w, http.StatusInternalServerError, "Internal server error", logger)
	}
}
