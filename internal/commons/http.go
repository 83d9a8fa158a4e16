package commons

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"sup/internal/dto"
	apperrors "sup/internal/errors"
)

type validationErrorResponse struct {
	Error   string                       `json:"error"`
	Message string                       `json:"message"`
	Details []apperrors.ValidationDetail `json:"details"`
}

func WriteJSON(w http.ResponseWriter, status int, data interface{}, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}

func WriteValidationError(w http.ResponseWriter, logger *zap.Logger, message string, details ...apperrors.ValidationDetail) {
	WriteJSON(w, http.StatusBadRequest, validationErrorResponse{
		Error:   "VALIDATION_ERROR",
		Message: message,
		Details: details,
	}, logger)
}

// ErrorStatus maps an application error to its HTTP status and error code.
func ErrorStatus(err error) (int, string) {
	if _, ok := apperrors.IsNotFoundError(err); ok {
		return http.StatusNotFound, "NOT_FOUND"
	}
	if _, ok := apperrors.IsForbiddenError(err); ok {
		return http.StatusForbidden, "FORBIDDEN"
	}
	if _, ok := apperrors.IsConflictError(err); ok {
		return http.StatusConflict, "CONFLICT"
	}
	if _, ok := apperrors.IsInsufficientStockError(err); ok {
		return http.StatusConflict, "INSUFFICIENT_STOCK"
	}
	if _, ok := apperrors.IsDeadlockError(err); ok {
		return http.StatusConflict, "DEADLOCK"
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

// WriteError renders err with the status ErrorStatus picks. Validation errors
// keep their field details; unexpected errors are logged and hidden.
func WriteError(w http.ResponseWriter, traceID string, err error, logger *zap.Logger) {
	if ve, ok := apperrors.IsValidationError(err); ok {
		WriteValidationError(w, logger, ve.Message, ve.Details...)
		return
	}

	status, code := ErrorStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("unexpected error", zap.Error(err))
		message = "an unexpected error occurred"
	}

	WriteJSON(w, status, dto.ErrorResponse{
		TraceID:   traceID,
		Status:    status,
		Message:   message,
		Code:      code,
		Timestamp: time.Now().UTC(),
	}, logger)
}
