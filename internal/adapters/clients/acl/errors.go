package acl

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/jsamuelsen/flagcontext-service/internal/adapters/clients"
	"github.com/jsamuelsen/flagcontext-service/internal/domain"
)

// Error names sent by Unleash-compatible servers.
const (
	errNameNotFound       = "NotFoundError"
	errNameValidation     = "ValidationError"
	errNameBadData        = "BadDataError"
	errNameNoAccess       = "NoAccessError"
	errNameAuthentication = "AuthenticationRequired"
)

// errorEnvelope is the toggle server error body:
//
//	{"id": "...", "name": "NotFoundError", "message": "...", "details": [{"message": "..."}]}
type errorEnvelope struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Details []struct {
		Message string `json:"message"`
	} `json:"details"`
}

func (e *errorEnvelope) message() string {
	if e.Message == "" && len(e.Details) > 0 {
		return e.Details[0].Message
	}

	return e.Message
}

// readEnvelope decodes an error body, returning nil when there is nothing
// useful in it.
func readEnvelope(body io.Reader) *errorEnvelope {
	if body == nil {
		return nil
	}

	var env errorEnvelope
	if err := json.NewDecoder(io.LimitReader(body, 64<<10)).Decode(&env); err != nil {
		return nil
	}

	if env.Name == "" && env.message() == "" {
		return nil
	}

	return &env
}

// transportError maps a clients.Client failure to a domain error. Every
// transport failure means the toggle server cannot be reached right now.
func transportError(err error, operation string) error {
	switch {
	case errors.Is(err, clients.ErrCircuitOpen):
		return domain.NewUnavailableError(toggleServiceName, "circuit breaker open during "+operation)
	case errors.Is(err, clients.ErrMaxRetriesExceeded):
		return domain.NewUnavailableError(toggleServiceName, operation+": "+err.Error())
	default:
		return domain.NewUnavailableError(toggleServiceName, operation+" failed: "+err.Error())
	}
}

// responseError maps a response with status >= 400 to a domain error. An
// error name in the body decides the mapping, otherwise the status does.
// entity names the missing item for 404s.
func responseError(resp *http.Response, operation, entity string) error {
	env := readEnvelope(resp.Body)

	name, message := "", http.StatusText(resp.StatusCode)
	if env != nil {
		name = env.Name
		if m := env.message(); m != "" {
			message = m
		}
	}

	switch {
	case name == errNameNotFound, name == "" && resp.StatusCode == http.StatusNotFound:
		return domain.NewNotFoundError(toggleServiceName, entity)
	case name == errNameValidation, name == errNameBadData,
		name == "" && (resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity):
		return domain.NewValidationError("", message)
	case name == errNameNoAccess, name == "" && resp.StatusCode == http.StatusForbidden:
		return domain.NewForbiddenError(operation, message)
	case name == errNameAuthentication, name == "" && resp.StatusCode == http.StatusUnauthorized:
		return domain.NewForbiddenError(operation, "authentication required")
	default:
		return domain.NewUnavailableError(toggleServiceName, operation+": "+message)
	}
}
