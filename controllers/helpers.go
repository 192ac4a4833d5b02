package controllers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/zarkopopovski/persona-chat/completion"
	"github.com/zarkopopovski/persona-chat/db"
	"github.com/zarkopopovski/persona-chat/exchange"
)

const maxJSONBody = 1 << 20

func setJSONHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	setJSONHeaders(w)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func parseRequestBody(r *http.Request, out any) error {
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// parseOptionalBody is parseRequestBody for endpoints whose body may be empty.
func parseOptionalBody(r *http.Request, out any) error {
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// errorStatus maps domain errors to the HTTP status and message sent back
// to the client.
func errorStatus(err error) (int, string) {
	var upstream *completion.UpstreamError

	switch {
	case errors.Is(err, exchange.ErrValidation):
		return http.StatusBadRequest, "Message is required"
	case errors.Is(err, exchange.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, exchange.ErrNotFound), errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.As(err, &upstream):
		return http.StatusBadGateway, upstream.Error()
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
