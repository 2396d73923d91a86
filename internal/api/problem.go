package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hyperengineering/waypoint/internal/assistant"
	"github.com/hyperengineering/waypoint/internal/payment"
	"github.com/hyperengineering/waypoint/internal/settlement"
	"github.com/hyperengineering/waypoint/internal/store"
	"github.com/hyperengineering/waypoint/internal/transfer"
	"github.com/hyperengineering/waypoint/internal/tree"
	"github.com/hyperengineering/waypoint/internal/validation"
)

// Problem represents an RFC 7807 Problem Details response.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

// problemTypes maps HTTP status codes to RFC 7807 type URIs and titles.
var problemTypes = map[int]struct {
	typeURI string
	title   string
}{
	http.StatusUnauthorized: {
		typeURI: "https://waypoint.dev/errors/unauthorized",
		title:   "Unauthorized",
	},
	http.StatusBadRequest: {
		typeURI: "https://waypoint.dev/errors/bad-request",
		title:   "Bad Request",
	},
	http.StatusForbidden: {
		typeURI: "https://waypoint.dev/errors/forbidden",
		title:   "Forbidden",
	},
	http.StatusNotFound: {
		typeURI: "https://waypoint.dev/errors/not-found",
		title:   "Not Found",
	},
	http.StatusConflict: {
		typeURI: "https://waypoint.dev/errors/conflict",
		title:   "Conflict",
	},
	http.StatusUnprocessableEntity: {
		typeURI: "https://waypoint.dev/errors/validation-error",
		title:   "Validation Error",
	},
	http.StatusTooManyRequests: {
		typeURI: "https://waypoint.dev/errors/rate-limit",
		title:   "Too Many Requests",
	},
	http.StatusInternalServerError: {
		typeURI: "https://waypoint.dev/errors/internal-error",
		title:   "Internal Server Error",
	},
	http.StatusBadGateway: {
		typeURI: "https://waypoint.dev/errors/upstream-error",
		title:   "Bad Gateway",
	},
}

// WriteProblem writes an RFC 7807 Problem Details response.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	pt, ok := problemTypes[status]
	if !ok {
		pt = struct {
			typeURI string
			title   string
		}{
			typeURI: "https://waypoint.dev/errors/unknown",
			title:   http.StatusText(status),
		}
	}

	p := Problem{
		Type:     pt.typeURI,
		Title:    pt.title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		slog.Error("failed to encode problem response", "error", err)
	}
}

// ProblemWithErrors extends Problem with validation error details.
type ProblemWithErrors struct {
	Problem
	Errors []validation.ValidationError `json:"errors,omitempty"`
}

// WriteProblemWithErrors writes a 422 Problem Details response with field errors.
func WriteProblemWithErrors(w http.ResponseWriter, r *http.Request, detail string, errs []validation.ValidationError) {
	pt := problemTypes[http.StatusUnprocessableEntity]

	p := ProblemWithErrors{
		Problem: Problem{
			Type:     pt.typeURI,
			Title:    pt.title,
			Status:   http.StatusUnprocessableEntity,
			Detail:   detail,
			Instance: r.URL.Path,
		},
		Errors: errs,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusUnprocessableEntity)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		slog.Error("failed to encode problem response", "error", err)
	}
}

// MapDomainError converts domain errors to Problem Details responses.
func MapDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var docErr *transfer.DocumentError

	switch {
	case errors.Is(err, store.ErrNotFound):
		WriteProblem(w, r, http.StatusNotFound, "Resource not found")
	case errors.Is(err, store.ErrInvalidPath):
		WriteProblem(w, r, http.StatusBadRequest, "Invalid resource path")
	case errors.Is(err, tree.ErrGoalLocked):
		WriteProblem(w, r, http.StatusConflict, "Goal is locked by a confirmed commitment")
	case errors.Is(err, tree.ErrLegacyReadOnly):
		WriteProblem(w, r, http.StatusForbidden, "Legacy goals are read-only")
	case errors.Is(err, settlement.ErrInvalidAmount):
		WriteProblem(w, r, http.StatusUnprocessableEntity, "Stake amount must be positive")
	case settlement.IsConflict(err):
		WriteProblem(w, r, http.StatusConflict, err.Error())
	case errors.As(err, &docErr):
		WriteProblemWithErrors(w, r, "Transfer document contains invalid fields", docErr.Violations)
	case errors.Is(err, payment.ErrGatewayUnavailable):
		WriteProblem(w, r, http.StatusBadGateway, "Payment gateway unavailable")
	case errors.Is(err, assistant.ErrUnavailable):
		WriteProblem(w, r, http.StatusBadGateway, "Assistant unavailable")
	default:
		// Never expose internal error details to client
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
	}
}
