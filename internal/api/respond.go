package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"tripplanner/internal/domain"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error   domain.Kind `json:"error"`
	Message string      `json:"message"`
	Detail  string      `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError renders err as {error, message}. The wrapped cause is added as
// detail only in development.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		de = domain.Internal(err)
	}

	resp := errorResponse{Error: de.Kind, Message: de.Message}
	info := infoFrom(r.Context())
	if info != nil && info.dev && de.Err != nil {
		resp.Detail = de.Err.Error()
	}

	status := de.HTTPStatus()
	if info != nil && status >= http.StatusInternalServerError {
		info.logger.Error().Err(err).Str("request_id", info.id).Str("kind", string(de.Kind)).Msg("Request failed")
	}
	writeJSON(w, status, resp)
}

// decodeJSON reads a JSON object body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return domain.Validation("request body is required")
		case errors.As(err, &maxErr):
			return domain.Validation("request body exceeds %d bytes", maxErr.Limit)
		default:
			return &domain.Error{Kind: domain.KindValidation, Message: "invalid JSON body", Err: err}
		}
	}
	if dec.More() {
		return domain.Validation("request body must contain a single JSON object")
	}
	return nil
}

func queryLimit(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.Validation("limit must be a non-negative integer")
	}
	return n, nil
}

func attachment(w http.ResponseWriter, name, contentType string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
}
