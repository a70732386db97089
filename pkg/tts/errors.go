package tts

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies a provider failure. Retry policy branches on the kind
// alone: auth failures are fatal for the run, everything else is retryable
// at the unit level.
type Kind int

const (
	// KindAPI is a generic service failure (unclassified 4xx/5xx, malformed
	// response, protocol violation).
	KindAPI Kind = iota

	// KindAuth means the credential was rejected. Never retried.
	KindAuth

	// KindQuota means a quota or rate limit was exceeded. Retryable, and
	// the signal for rotating to the next API key.
	KindQuota

	// KindTimeout means the call exceeded its deadline or the transport
	// timed out.
	KindTimeout
)

// String returns the human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindQuota:
		return "quota"
	case KindTimeout:
		return "timeout"
	default:
		return "api"
	}
}

// Retryable reports whether another attempt may succeed.
func (k Kind) Retryable() bool {
	return k != KindAuth
}

// ProviderError is the classified failure returned by every Provider.
// Callers inspect it with errors.As and branch on Kind.
type ProviderError struct {
	// Provider is the registry name of the failing provider.
	Provider string

	// Kind classifies the failure for retry policy.
	Kind Kind

	// Status is the HTTP status code when the failure came from an HTTP
	// response, 0 otherwise.
	Status int

	// Err is the underlying cause, never nil.
	Err error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("tts: %s: %s error (status %d): %v", e.Provider, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("tts: %s: %s error: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewError wraps err as a ProviderError of the given kind.
func NewError(provider string, kind Kind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// ClassifyStatus maps an HTTP response status to a ProviderError.
//
//	401, 403      -> auth
//	429           -> quota
//	408, 504      -> timeout
//	anything else -> api
func ClassifyStatus(provider string, status int, body string) *ProviderError {
	kind := KindAPI
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuth
	case status == http.StatusTooManyRequests:
		kind = KindQuota
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		kind = KindTimeout
	}
	return &ProviderError{
		Provider: provider,
		Kind:     kind,
		Status:   status,
		Err:      fmt.Errorf("unexpected status %d: %s", status, body),
	}
}

// ClassifyTransport maps a transport-level failure (dial, read, context) to
// a ProviderError. Deadline and timeout conditions become KindTimeout so the
// retry layer treats slow calls like any other transient fault.
func ClassifyTransport(provider string, err error) *ProviderError {
	kind := KindAPI
	var nerr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &nerr) && nerr.Timeout():
		kind = KindTimeout
	}
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// KindOf extracts the failure kind from an error chain. The second return
// is false when err does not wrap a ProviderError; callers should then
// treat the failure as KindAPI.
func KindOf(err error) (Kind, bool) {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Kind, true
	}
	return KindAPI, false
}
