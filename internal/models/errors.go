package models

import "errors"

// Validation and lookup errors
var (
	ErrInvalidReportType = errors.New("invalid report type")
	ErrUnknownReportType = errors.New("unknown report type")
	ErrInvalidFormat     = errors.New("invalid export format")
	ErrInvalidDate       = errors.New("invalid date")
	ErrInvalidDateRange  = errors.New("start date is after end date")
	ErrInvalidStatus     = errors.New("invalid status filter")
	ErrTaskNotFound      = errors.New("report task not found")
	ErrInvalidTransition = errors.New("invalid task status transition")
)

// IsValidationError reports whether err is a caller-side input error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidReportType) ||
		errors.Is(err, ErrUnknownReportType) ||
		errors.Is(err, ErrInvalidFormat) ||
		errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrInvalidDateRange) ||
		errors.Is(err, ErrInvalidStatus)
}

// GenerationError wraps a failure while fetching or projecting rows
type GenerationError struct{ Err error }

func (e *GenerationError) Error() string { return "generation failed: " + e.Err.Error() }
func (e *GenerationError) Unwrap() error { return e.Err }

// EncodingError wraps a failure while serializing rows
type EncodingError struct{ Err error }

func (e *EncodingError) Error() string { return "encoding failed: " + e.Err.Error() }
func (e *EncodingError) Unwrap() error { return e.Err }

// UploadError wraps a blob store write failure
type UploadError struct{ Err error }

func (e *UploadError) Error() string { return "upload failed: " + e.Err.Error() }
func (e *UploadError) Unwrap() error { return e.Err }

// SignedURLError wraps a failure to mint a download link
type SignedURLError struct{ Err error }

func (e *SignedURLError) Error() string { return "signed url failed: " + e.Err.Error() }
func (e *SignedURLError) Unwrap() error { return e.Err }
