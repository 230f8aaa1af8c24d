package middleware

import (
	"encoding/json"
	"net/http"
)

type errorBody struct {
	Error     errorDetail `json:"error"`
	RequestID string      `json:"request_id"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError emits the same envelope as the handlers package. Middleware runs
// before any handler, so it cannot reuse handlers.writeError without an import cycle.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error:     errorDetail{Code: code, Message: message},
		RequestID: GetRequestID(r.Context()),
	})
}
