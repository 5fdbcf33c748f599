package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/probelab/agent-testbed/internal/errors"
)

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// writeError maps application errors onto HTTP statuses: NOT_FOUND to
// 404, validation codes to 400, everything else to 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	code := "INTERNAL_ERROR"
	message := "An internal error occurred"

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		code = appErr.Code
		message = appErr.Message
		switch appErr.Code {
		case "NOT_FOUND":
			status = http.StatusNotFound
		case "INTERNAL_ERROR":
			status = http.StatusInternalServerError
		default:
			status = http.StatusBadRequest
		}
	}

	writeJSON(w, status, errorEnvelope{Error: errorBody{
		Code:      code,
		Message:   message,
		RequestID: RequestID(r.Context()),
	}})
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	writeJSON(w, http.StatusBadRequest, errorEnvelope{Error: errorBody{
		Code:      "INVALID_REQUEST",
		Message:   message,
		RequestID: RequestID(r.Context()),
	}})
}
