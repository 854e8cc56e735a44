package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTransientNetwork means the retry budget ran out on a retryable failure.
	ErrTransientNetwork = errors.New("transient network error")
	// ErrSourceProtocol means the source answered with something we cannot use.
	ErrSourceProtocol = errors.New("source protocol error")
	// ErrExtraction marks a single field that could not be read from an item.
	ErrExtraction = errors.New("extraction error")
	// ErrSourceExhausted means every source failed or returned nothing.
	ErrSourceExhausted = errors.New("source exhausted")
	// ErrCredentialAbsent means no publishing credential is available.
	ErrCredentialAbsent = errors.New("credential absent")
	// ErrPublishFailure means the publisher reported an unsuccessful submit.
	ErrPublishFailure = errors.New("publish failure")
)

// SourceError tags an error with the adapter that produced it.
type SourceError struct {
	Source string
	Kind   error
	Err    error
}

func (e *SourceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Source, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Source, e.Kind, e.Err)
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is.
func (e *SourceError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// NewSourceError builds a SourceError of the given kind.
func NewSourceError(source string, kind, err error) *SourceError {
	return &SourceError{Source: source, Kind: kind, Err: err}
}
