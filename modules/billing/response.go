package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/dmitrymomot/fintrack/pkg/docstore"
	"github.com/dmitrymomot/fintrack/pkg/logger"
	"github.com/dmitrymomot/fintrack/pkg/subscription"
)

// Response is the envelope of every JSON reply.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error *ErrorDetail   `json:"error,omitempty"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HTTPError pairs a status code with a stable error code.
type HTTPError struct {
	Status int
	Code   string
}

func (e HTTPError) Error() string { return e.Code }

var (
	ErrBadRequest      = HTTPError{Status: http.StatusBadRequest, Code: "bad_request"}
	ErrUnauthenticated = HTTPError{Status: http.StatusUnauthorized, Code: "unauthorized"}
	ErrForbidden       = HTTPError{Status: http.StatusForbidden, Code: "forbidden"}
	ErrNotFound        = HTTPError{Status: http.StatusNotFound, Code: "not_found"}
	ErrConflict        = HTTPError{Status: http.StatusConflict, Code: "conflict"}
	ErrInvalidState    = HTTPError{Status: http.StatusUnprocessableEntity, Code: "invalid_state"}
	ErrValidation      = HTTPError{Status: http.StatusUnprocessableEntity, Code: "validation_error"}
	ErrInternal        = HTTPError{Status: http.StatusInternalServerError, Code: "internal_error"}
)

// classify maps a core error to its HTTP representation.
func classify(err error) HTTPError {
	var httpErr HTTPError
	switch {
	case errors.As(err, &httpErr):
		return httpErr
	case errors.Is(err, subscription.ErrNoIdentity):
		return ErrUnauthenticated
	case errors.Is(err, subscription.ErrUnauthorized):
		return ErrForbidden
	case errors.Is(err, subscription.ErrPlanNotFound),
		errors.Is(err, subscription.ErrSubscriptionNotFound),
		errors.Is(err, subscription.ErrNotificationNotFound),
		errors.Is(err, docstore.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, subscription.ErrSubscriptionAlreadyExists):
		return ErrConflict
	case errors.Is(err, subscription.ErrInvalidSubscriptionState),
		errors.Is(err, subscription.ErrSamePlan):
		return ErrInvalidState
	case errors.Is(err, subscription.ErrInvalidPlanConfiguration),
		errors.Is(err, subscription.ErrInvalidSubscription),
		errors.Is(err, subscription.ErrInvalidNotification):
		return ErrValidation
	case errors.Is(err, subscription.ErrUnknownAction):
		return ErrBadRequest
	default:
		return ErrInternal
	}
}

func writeJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respond(w http.ResponseWriter, status int, data any, meta map[string]any) {
	writeJSON(w, status, Response{Data: data, Meta: meta})
}

// fail writes err as a JSON error. Server errors are logged with their cause
// and answered with a generic message.
func fail(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	e := classify(err)
	msg := err.Error()
	level := slog.LevelWarn
	if e.Status >= http.StatusInternalServerError {
		level = slog.LevelError
		msg = http.StatusText(e.Status)
	}
	log.Log(r.Context(), level, "request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", e.Status),
		logger.Error(err),
	)
	writeJSON(w, e.Status, Response{Error: &ErrorDetail{Code: e.Code, Message: msg}})
}

// decode reads a single JSON object from the request body into v.
func decode(r *http.Request, v any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil || mt != "application/json" {
			return fmt.Errorf("%w: expected application/json", ErrBadRequest)
		}
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", ErrBadRequest)
		}
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: unexpected data after JSON object", ErrBadRequest)
	}
	return nil
}
