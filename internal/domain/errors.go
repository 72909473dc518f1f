package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups error codes by who is at fault.
type Kind string

const (
	// KindInput means the caller sent something we cannot work with.
	KindInput Kind = "input"
	// KindStorage means a cached artifact is missing or unreadable.
	KindStorage Kind = "storage"
	// KindInternal means the service itself failed.
	KindInternal Kind = "internal"
)

// AppError is a typed failure with a stable code that survives wrapping.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Kind       Kind   `json:"kind"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same code, so callers can compare
// against the sentinels below after WithError has attached a cause.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// WithError returns a copy of e wrapping err.
func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    e.Message,
		Kind:       e.Kind,
		StatusCode: e.StatusCode,
		Err:        err,
	}
}

// WithMessage returns a copy of e wrapping a formatted cause.
func (e *AppError) WithMessage(format string, args ...any) *AppError {
	return e.WithError(fmt.Errorf(format, args...))
}

var (
	ErrNoFaceDetected = &AppError{
		Code:       "NO_FACE_DETECTED",
		Message:    "No face detected in the image",
		Kind:       KindInput,
		StatusCode: http.StatusUnprocessableEntity,
	}

	ErrInvalidThreshold = &AppError{
		Code:       "INVALID_THRESHOLD",
		Message:    "Threshold must be a non-negative number",
		Kind:       KindInput,
		StatusCode: http.StatusBadRequest,
	}

	ErrUnsupportedScoreType = &AppError{
		Code:       "UNSUPPORTED_SCORE_TYPE",
		Message:    "Unsupported score type",
		Kind:       KindInput,
		StatusCode: http.StatusBadRequest,
	}

	ErrInvalidImage = &AppError{
		Code:       "INVALID_IMAGE",
		Message:    "Invalid image format or corrupted file",
		Kind:       KindInput,
		StatusCode: http.StatusUnprocessableEntity,
	}

	ErrDimensionMismatch = &AppError{
		Code:       "DIMENSION_MISMATCH",
		Message:    "Embedding dimensions do not match",
		Kind:       KindInput,
		StatusCode: http.StatusUnprocessableEntity,
	}

	ErrInvalidEntryName = &AppError{
		Code:       "INVALID_ENTRY_NAME",
		Message:    "Invalid cache entry name",
		Kind:       KindInput,
		StatusCode: http.StatusBadRequest,
	}

	ErrCorruptArtifact = &AppError{
		Code:       "CORRUPT_ARTIFACT",
		Message:    "Cached embedding could not be decoded",
		Kind:       KindStorage,
		StatusCode: http.StatusUnprocessableEntity,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		Kind:       KindStorage,
		StatusCode: http.StatusNotFound,
	}

	ErrInternal = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		Kind:       KindInternal,
		StatusCode: http.StatusInternalServerError,
	}
)

// AsAppError extracts the AppError carried by err, or ErrInternal wrapping
// err when there is none.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrInternal.WithError(err)
}
