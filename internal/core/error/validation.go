package errx

import (
	"errors"
	"fmt"
)

// Kind classifies why a generated artifact was rejected. The kind decides
// whether a correction loop may retry or must give up immediately.
type Kind string

const (
	// KindParse means the model response did not conform to the structured
	// output contract. Retryable; consumes an attempt.
	KindParse Kind = "parse"

	// KindStructural means the artifact is malformed against its own grammar
	// (unknown identifier, type mismatch, invalid mark or encoding).
	// Retryable; the detail carries the authoritative diagnostic verbatim.
	KindStructural Kind = "structural"

	// KindJudgment means the artifact is structurally valid but was rejected
	// by a quality judge. Retryable on the outer drafting thread.
	KindJudgment Kind = "judgment"

	// KindFatal means no amount of retrying can help: empty catalog, missing
	// dataset, backend unreachable after its own retry. Escalates immediately.
	KindFatal Kind = "fatal"
)

// ValidationError is the failure half of a validation result. The Detail is
// always the literal diagnostic produced by the authoritative checker; it is
// fed back to the model unmodified.
type ValidationError struct {
	Kind   Kind
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s failure: %s", e.Kind, e.Detail)
}

// Retryable reports whether a correction loop may spend another attempt on
// this failure.
func (e *ValidationError) Retryable() bool {
	return e.Kind != KindFatal
}

// Parse builds a retryable parse failure.
func Parse(detail string) *ValidationError {
	return &ValidationError{Kind: KindParse, Detail: detail}
}

// Structural builds a retryable structural failure carrying the checker's
// literal diagnostic.
func Structural(detail string) *ValidationError {
	return &ValidationError{Kind: KindStructural, Detail: detail}
}

// Judgment builds a retryable judgment failure carrying the judge's rationale.
func Judgment(detail string) *ValidationError {
	return &ValidationError{Kind: KindJudgment, Detail: detail}
}

// Fatal builds a non-retryable failure.
func Fatal(detail string) *ValidationError {
	return &ValidationError{Kind: KindFatal, Detail: detail}
}

// AsValidation extracts a ValidationError from an error chain.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
