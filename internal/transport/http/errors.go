package http

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/domain"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    domain.Kind `json:"kind"`
	Message string      `json:"message"`
}

var kindStatus = map[domain.Kind]int{
	domain.KindUnauthenticated:  http.StatusUnauthorized,
	domain.KindForbidden:        http.StatusForbidden,
	domain.KindNotFound:         http.StatusNotFound,
	domain.KindInvalidState:     http.StatusConflict,
	domain.KindDeckEmpty:        http.StatusUnprocessableEntity,
	domain.KindNotEnoughPlayers: http.StatusConflict,
	domain.KindConflict:         http.StatusConflict,
	domain.KindInvalidArgument:  http.StatusBadRequest,
	domain.KindInternal:         http.StatusInternalServerError,
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind domain.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	message := err.Error()
	if kind == domain.KindInternal {
		log.Printf("internal error: %v", err)
		message = "internal error"
	}
	writeJSON(w, StatusFor(kind), errorBody{Error: errorDetail{Kind: kind, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}
