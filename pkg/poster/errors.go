package poster

import (
	"errors"
	"strings"
)

// Sentinel errors for capture operations.
var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrBrowserNotFound = errors.New("browser binary not found")
	ErrLaunch          = errors.New("failed to launch browser")
	ErrNavigation      = errors.New("failed to load render page")
	ErrCapture         = errors.New("failed to capture screenshot")
	ErrTimeout         = errors.New("capture timed out")
	ErrInvalidImage    = errors.New("invalid screenshot image")
)

// ErrorKind classifies a failed capture.
type ErrorKind int

const (
	KindInput ErrorKind = iota + 1
	KindLaunch
	KindNavigation
	KindCapture
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindLaunch:
		return "launch"
	case KindNavigation:
		return "navigation"
	case KindCapture:
		return "capture"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Message is safe to show to callers.
func (k ErrorKind) Message() string {
	switch k {
	case KindInput:
		return "text is not acceptable"
	case KindLaunch:
		return "browser could not be started"
	case KindNavigation:
		return "poster page did not load"
	case KindCapture:
		return "screenshot could not be taken"
	case KindTimeout:
		return "poster generation timed out"
	default:
		return "unknown error"
	}
}

// CaptureError carries the failure kind alongside the wrapped cause.
type CaptureError struct {
	Kind ErrorKind
	Err  error
}

func (e *CaptureError) Error() string {
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a capture error, or 0 if err is not one.
func KindOf(err error) ErrorKind {
	var ce *CaptureError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return 0
}

// classify maps a pipeline error to its kind. Timeout wins over the
// step-specific sentinel.
func classify(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrInvalidInput):
		return KindInput
	case errors.Is(err, ErrBrowserNotFound), errors.Is(err, ErrLaunch):
		return KindLaunch
	case errors.Is(err, ErrNavigation):
		return KindNavigation
	default:
		return KindCapture
	}
}

// FullErrorMessage flattens an error chain into one line for logs.
func FullErrorMessage(err error) string {
	var sb strings.Builder
	for err != nil {
		sb.WriteString(err.Error())
		err = errors.Unwrap(err)
		if err != nil {
			sb.WriteString(" | ")
		}
	}
	return sb.String()
}
