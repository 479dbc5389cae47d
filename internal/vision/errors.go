package vision

import (
	"errors"
	"fmt"
)

// Class tags a recognition failure for the caller's retry and display policy.
type Class string

const (
	ClassInvalidCredentials Class = "invalid_credentials"
	ClassUpstream           Class = "upstream_error"
	ClassUnknown            Class = "unknown"
)

// RecognitionError wraps any failure from a recognizer with a class tag.
type RecognitionError struct {
	Class Class
	Msg   string
	Err   error
}

func (e *RecognitionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Class, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Class, e.Msg)
}

func (e *RecognitionError) Unwrap() error { return e.Err }

func credentialError(msg string) *RecognitionError {
	return &RecognitionError{Class: ClassInvalidCredentials, Msg: msg}
}

func upstreamError(msg string, err error) *RecognitionError {
	return &RecognitionError{Class: ClassUpstream, Msg: msg, Err: err}
}

// Classify returns the class of err, mapping anything that is not a
// *RecognitionError to ClassUnknown so no unclassified failure escapes.
func Classify(err error) Class {
	var re *RecognitionError
	if errors.As(err, &re) {
		return re.Class
	}
	return ClassUnknown
}
