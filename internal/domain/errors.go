package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared across the API client, the automation session and
// the write pipeline. Callers match with errors.Is / errors.As.
var (
	// ErrCredentialsNotConfigured: no UI credentials in config; the browser
	// fallback is unavailable. Fatal misconfiguration, never retried.
	ErrCredentialsNotConfigured = errors.New("automation credentials not configured")

	// ErrLoginFailed: the platform rejected the UI credentials. Detected
	// heuristically from the rendered page, not from a typed API error.
	ErrLoginFailed = errors.New("login failed")

	// ErrAuthExpired: the API token is no longer valid and refresh did not
	// help; requires re-authorization, not a retry.
	ErrAuthExpired = errors.New("authorization expired")

	// ErrNoRefreshToken / ErrAppCredentialsMissing: token plumbing cannot
	// even start. Fatal misconfiguration.
	ErrNoRefreshToken       = errors.New("no refresh token stored")
	ErrAppCredentialsMissing = errors.New("app credentials missing")
	ErrRefreshFailed        = errors.New("token refresh failed")

	// ErrPermissionDenied: role/plan/company policy blocks the call.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrRateLimited: the platform asked us to slow down.
	ErrRateLimited = errors.New("rate limited")

	// ErrRouteUnsupported: the approval route requires department/position
	// routing the API cannot satisfy. Cached as a company-level block.
	ErrRouteUnsupported = errors.New("approval route unsupported")

	// ErrUnknownState: the state probe was inconclusive. Retried per the
	// scheduler's two-tier policy, never acted upon.
	ErrUnknownState = errors.New("attendance state unknown")
)

// APIError carries a non-taxonomy HTTP failure from the platform.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hr api error: status %d: %s", e.Status, e.Body)
}

// FormValidationError reports that the platform's UI form rejected the
// submitted values. Recoverable: the caller may fall back or report it
// per-entry, it never aborts a batch.
type FormValidationError struct {
	Message string
}

func (e *FormValidationError) Error() string {
	return "form validation rejected: " + e.Message
}
