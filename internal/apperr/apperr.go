// Package apperr defines the error taxonomy shared by the pipeline, the
// provider clients and the transport layers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind names one of the error classes surfaced to callers.
type Kind string

const (
	KindConfiguration   Kind = "configuration"
	KindExternalService Kind = "external_service"
	KindMalformedOutput Kind = "malformed_output"
	KindNotFound        Kind = "not_found"
	KindInternal        Kind = "internal"
)

var ErrNotFound = errors.New("not found")

// ConfigurationError is fatal: it is raised before any network call is made.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e == nil {
		return "configuration error"
	}
	if e.Field == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func Configuration(field, reason string) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: reason}
}

// ExternalServiceError carries the provider's view of a failed request.
type ExternalServiceError struct {
	Provider   string
	StatusCode int
	Detail     string
	Err        error
}

func (e *ExternalServiceError) Error() string {
	if e == nil {
		return "external service error"
	}
	var b strings.Builder
	b.WriteString(e.Provider)
	if e.Provider == "" {
		b.WriteString("provider")
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " status %d", e.StatusCode)
	}
	if d := strings.TrimSpace(e.Detail); d != "" {
		b.WriteString(": ")
		b.WriteString(d)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// Retryable reports whether repeating the identical request may succeed.
func (e *ExternalServiceError) Retryable() bool {
	if e == nil {
		return false
	}
	switch {
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500 && e.StatusCode <= 599:
		return true
	case e.StatusCode == 0 && e.Err != nil:
		type timeout interface{ Timeout() bool }
		var te timeout
		return errors.As(e.Err, &te) && te.Timeout()
	}
	return false
}

// MalformedOutputError reports model output outside a closed label set.
type MalformedOutputError struct {
	Stage   string
	Output  string
	Allowed []string
}

func (e *MalformedOutputError) Error() string {
	if e == nil {
		return "malformed output"
	}
	out := e.Output
	if len(out) > 120 {
		out = out[:120] + "..."
	}
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("stage %s: malformed output %q", e.Stage, out)
	}
	return fmt.Sprintf("stage %s: output %q is not one of [%s]", e.Stage, out, strings.Join(e.Allowed, ", "))
}

func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

func IsExternal(err error) bool {
	var ee *ExternalServiceError
	return errors.As(err, &ee)
}

func IsMalformed(err error) bool {
	var me *MalformedOutputError
	return errors.As(err, &me)
}

// KindOf classifies err for transport-level reporting.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case IsConfiguration(err):
		return KindConfiguration
	case IsExternal(err):
		return KindExternalService
	case IsMalformed(err):
		return KindMalformedOutput
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	}
	return KindInternal
}

// HTTPStatus maps err to the status code the API answers with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindConfiguration:
		return http.StatusBadRequest
	case KindExternalService, KindMalformedOutput:
		return http.StatusBadGateway
	case KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
