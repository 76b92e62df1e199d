package domain

import (
	"errors"
	"strconv"
)

// Domain errors.
var (
	// ErrEntryNotFound is returned when no cache row exists for a
	// (content key, variant key) pair.
	ErrEntryNotFound = errors.New("cache entry not found")

	// ErrCacheUnavailable is returned when the cache store cannot be
	// opened or written. The service fails loudly rather than running
	// without its dedup guarantee.
	ErrCacheUnavailable = errors.New("cache store unavailable")

	// ErrJobNotFound is returned when a resolve job cannot be found.
	ErrJobNotFound = errors.New("resolve job not found")

	// ErrNoJobs is returned when there are no jobs to process.
	ErrNoJobs = errors.New("no jobs available")

	// ErrInvalidURL is returned when the submitted URL is empty or
	// unparseable.
	ErrInvalidURL = errors.New("invalid media URL")

	// ErrManualPickRequired signals that auto-detection could not
	// classify the source and both default profiles failed; the caller
	// should offer an explicit format choice instead of an error.
	ErrManualPickRequired = errors.New("manual format selection required")

	// ErrCascadeExhausted is returned when every step of an acquisition
	// cascade failed.
	ErrCascadeExhausted = errors.New("acquisition cascade exhausted")
)

// FetchError is a failed invocation of the external fetch tool. Stderr
// captures the tool's diagnostic output for logging; it is never parsed.
type FetchError struct {
	Selector string
	Stderr   string
	Err      error
}

func (e *FetchError) Error() string {
	if e.Selector != "" {
		return "fetch [" + e.Selector + "]: " + e.Err.Error()
	}
	return "fetch: " + e.Err.Error()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError creates a new FetchError.
func NewFetchError(selector, stderr string, err error) *FetchError {
	return &FetchError{Selector: selector, Stderr: stderr, Err: err}
}

// MetadataError is a failed metadata probe. Callers treat it as absence
// of metadata, never as fatal.
type MetadataError struct {
	URL string
	Err error
}

func (e *MetadataError) Error() string {
	return "metadata probe: " + e.Err.Error()
}

func (e *MetadataError) Unwrap() error {
	return e.Err
}

// RelayError is a failure at any step of the large-file relay. There is
// no partial-success state: the delivery attempt is abandoned and no
// cache row is written.
type RelayError struct {
	Step int // 1-based relay step that failed
	Err  error
}

func (e *RelayError) Error() string {
	return "relay step " + strconv.Itoa(e.Step) + ": " + e.Err.Error()
}

func (e *RelayError) Unwrap() error {
	return e.Err
}

// NewRelayError creates a new RelayError.
func NewRelayError(step int, err error) *RelayError {
	return &RelayError{Step: step, Err: err}
}
