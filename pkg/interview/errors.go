package interview

import (
	"errors"
	"fmt"
)

// Errors returned by the pipeline. ErrGeneration leaves the session in
// created so generation can be retried.
var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("not found")
	ErrGeneration    = errors.New("question generation failed")
	ErrTranscription = errors.New("transcription failed")
	ErrAnalysis      = errors.New("response analysis failed")
	ErrTimeout       = errors.New("external call timed out")

	ErrSessionClosed     = fmt.Errorf("%w: session is closed", ErrValidation)
	ErrQuestionsNotReady = fmt.Errorf("%w: questions have not been generated", ErrValidation)
)

// ValidationError reports bad caller input on a specific field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
