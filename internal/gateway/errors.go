package gateway

import "fmt"

// Error reports a failed provider call: network error, provider-reported
// rejection, or a malformed response.
type Error struct {
	Provider string
	Cause    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Provider, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError wraps err as a provider failure.
func NewError(provider string, err error) *Error {
	return &Error{Provider: provider, Cause: err}
}

// Errorf builds a provider failure from a format string.
func Errorf(provider, format string, args ...any) *Error {
	return &Error{Provider: provider, Cause: fmt.Errorf(format, args...)}
}

// UnsupportedProviderError indicates no strategy is registered under the
// requested provider name.
type UnsupportedProviderError struct {
	Provider string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("payment provider %q is not supported", e.Provider)
}
