package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrExerciseNotFound indicates the exercise does not exist.
	ErrExerciseNotFound = errors.New("exercise not found")
	// ErrSubmissionNotFound indicates the submission does not exist.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrInvalidAsyncToken indicates a grader presented a token that does not match.
	ErrInvalidAsyncToken = errors.New("invalid async token")
	// ErrSubmissionDenied indicates the students may not submit to the exercise.
	ErrSubmissionDenied = errors.New("submission not allowed")
	// ErrAttachmentRequired indicates an attachment exercise was created without its file.
	ErrAttachmentRequired = errors.New("attachment exercise requires an attachment file")
)

// ConfigurationError reports an exercise whose own settings are inconsistent.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// DomainMismatchError reports an exercise linked to objects of another course.
type DomainMismatchError struct {
	Field   string
	Message string
}

func (e *DomainMismatchError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// DeniedError carries the warnings that made an eligibility check fail.
type DeniedError struct {
	Warnings []string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrSubmissionDenied, strings.Join(e.Warnings, " "))
}

func (e *DeniedError) Is(target error) bool {
	return target == ErrSubmissionDenied
}
