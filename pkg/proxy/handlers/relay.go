package handlers

import (
	"encoding/json"
	"net/http"
)

// Liveness answers the relay presence check clients send before pairing.
// It carries no body; the x-mte-id header set by the middleware chain is
// what clients look for.
func Liveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// EchoResponse is the body returned by Echo.
type EchoResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// Echo answers GET /api/echo/{msg} with the message it was given.
func Echo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, EchoResponse{
		Status:  http.StatusOK,
		Message: "Echo: " + r.PathValue("msg"),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
