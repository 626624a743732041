package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xela07ax/demonlist-history/internal/domain"
)

// ProblemDetail — ответ об ошибке в формате RFC7807.
type ProblemDetail struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ProblemDetail{
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// statusFor переводит доменные ошибки в HTTP-статус.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidDemonID):
		return http.StatusBadRequest, "Invalid demon id"
	case errors.Is(err, domain.ErrDemonNotFound):
		return http.StatusNotFound, "Demon not found"
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return http.StatusBadGateway, "Demonlist unavailable"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}
