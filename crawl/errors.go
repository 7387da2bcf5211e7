package crawl

import (
	"context"
	"errors"
	"fmt"

	"github.com/onnwee/flvwatch/bilibili"
)

var (
	// ErrMalformedPage aborts discovery in strict mode when a page carries no room list.
	ErrMalformedPage = errors.New("malformed discovery page")
	// ErrRunInProgress is returned when a trigger arrives while another run holds the lock.
	ErrRunInProgress = errors.New("crawl run already in progress")
)

// ErrorClass says whether a failure ends the run or only the current room.
type ErrorClass int

const (
	// ErrorClassRecoverable failures drop a single room's sample; the run continues.
	ErrorClassRecoverable ErrorClass = iota
	// ErrorClassFatal failures abort the run before the store is written.
	ErrorClassFatal
	// ErrorClassUnknown is returned for a nil error.
	ErrorClassUnknown
)

// String returns a human-readable name for the error class.
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorClassRecoverable:
		return "recoverable"
	case ErrorClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ClassifyError sorts an error returned by a pipeline stage.
//
// Fatal:
//   - platform-reported errors (nonzero response code)
//   - any failure to fetch a ranking page, including timeouts and HTTP status errors
//   - malformed pages under the strict policy
//   - cancellation of the run context
//   - store read/write failures
//
// Recoverable:
//   - HTTP status errors, timeouts and other transport failures while probing a room
//   - anything else, so a single bad room never ends a run
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassUnknown
	}
	var apiErr *bilibili.APIError
	if errors.As(err, &apiErr) {
		return ErrorClassFatal
	}
	if errors.Is(err, ErrMalformedPage) || errors.Is(err, context.Canceled) {
		return ErrorClassFatal
	}
	if errors.Is(err, errStore) || errors.Is(err, errDiscovery) {
		return ErrorClassFatal
	}
	// Outside discovery, status errors, timeouts and transport failures are scoped to the room that produced them.
	return ErrorClassRecoverable
}

// IsFatalError reports whether err must abort the run.
func IsFatalError(err error) bool {
	return ClassifyError(err) == ErrorClassFatal
}

// errStore tags store persistence failures.
var errStore = errors.New("store")

type storeError struct {
	op  string
	err error
}

func (e *storeError) Error() string { return e.op + " store: " + e.err.Error() }
func (e *storeError) Unwrap() []error { return []error{errStore, e.err} }

// errDiscovery tags failures while walking a ranking; the sample set is incomplete without the page.
var errDiscovery = errors.New("discovery")

type discoveryError struct {
	sort        string
	page, pages int
	err         error
}

func (e *discoveryError) Error() string {
	return fmt.Sprintf("discovery %s page %d/%d: %v", e.sort, e.page, e.pages, e.err)
}

func (e *discoveryError) Unwrap() []error { return []error{errDiscovery, e.err} }
