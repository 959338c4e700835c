package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	apperrors "github.com/goldenseed/entropy/internal/platform/errors"
)

// readJSON decodes a request body, rejecting oversized payloads and
// trailing garbage.
func readJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return apperrors.Wrap(apperrors.CodePayloadInvalid, "request body is not valid JSON", err)
	}
	if decoder.More() {
		return apperrors.New(apperrors.CodePayloadInvalid, "request body has trailing data")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logServerError(err)
	}
}

type errorBody struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// writeError renders a domain error with its mapped status. Unexpected
// errors become an opaque 500; the cause goes to the log only.
func writeError(w http.ResponseWriter, err error) {
	var domainErr *apperrors.Error
	if !errors.As(err, &domainErr) {
		logServerError(err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": errorBody{Code: string(apperrors.CodeUnknown), Message: "internal error"},
		})
		return
	}

	status := domainErr.Code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		logServerError(err)
	}
	writeJSON(w, status, map[string]any{
		"error": errorBody{
			Code:     string(domainErr.Code),
			Message:  domainErr.Message,
			Metadata: domainErr.Metadata,
		},
	})
}
