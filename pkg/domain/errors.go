package domain

import (
	"errors"
	"fmt"
)

// ConfigError reports an invalid deployment configuration, such as an
// embedding dimension that disagrees with the store schema or missing
// provider credentials. It is fatal: startup aborts and nothing retries it.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "configuration error: " + e.Reason
}

// NewConfigError formats a ConfigError.
func NewConfigError(format string, args ...any) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// ProviderError wraps a failure from an embedding or extraction provider.
// Transient failures are retried with backoff at the call site; when
// retries exhaust the enclosing document is marked failed and ingestion
// continues for other documents.
type ProviderError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// MalformedDocumentError marks a document whose content could not be
// parsed into text. The document fails immediately, without retry.
type MalformedDocumentError struct {
	Filename string
	Reason   string
}

func (e *MalformedDocumentError) Error() string {
	return fmt.Sprintf("malformed document %s: %s", e.Filename, e.Reason)
}

// QueryError reports a query-side failure (store unavailable, malformed
// filter). Query entry points return it instead of an empty result set so
// a backend outage is never mistaken for "no matches".
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s failed: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// ErrDocumentNotFound is returned by store lookups for unknown documents.
var ErrDocumentNotFound = errors.New("document not found")

// ErrEntityNotFound is returned by graph lookups for unknown entity names.
var ErrEntityNotFound = errors.New("entity not found")

// IsTransient reports whether err is a provider failure worth retrying.
func IsTransient(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Transient
}
