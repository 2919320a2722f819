package provider

import (
	"errors"
	"fmt"
)

// ErrRunTimeout marks an assistants run that never reached a terminal status
// within the polling window. Always wrapped inside a *ProviderError so the
// API boundary only has to know one adapter failure type.
var ErrRunTimeout = errors.New("run polling timed out")

// ProviderError carries the upstream detail for a failed adapter call:
// transport errors, non-2xx statuses, malformed payloads, and failed runs.
type ProviderError struct {
	Provider   string
	StatusCode int // 0 when the failure happened before an HTTP status existed
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Message, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// UnsupportedProviderError is a configuration-integrity fault: a model config
// names a provider outside the closed enumeration. Never expected against
// validated data, but enforced because configs are operator-editable.
type UnsupportedProviderError struct {
	Provider string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported provider %q", e.Provider)
}
