package types

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when an operation requires an authorized external account
	ErrNotConnected = errors.New("no connected accounts")

	// ErrInvalidAccount is returned when an address is not part of the current account pairings
	ErrInvalidAccount = errors.New("invalid account")

	// ErrUnsupportedOperation is returned for operations a predicate account cannot perform
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrInvalidSignatureEncoding is returned for signatures that are not 65 byte r||s||v
	ErrInvalidSignatureEncoding = errors.New("invalid signature encoding")

	// ErrMalformedProgram is returned when bytecode and its ABI configurable layout disagree
	ErrMalformedProgram = errors.New("malformed program")

	// ErrInvalidParameter is returned for invalid hashing parameters such as a zero chunk size
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrDependencyEstimationFailed is returned when the target chain cannot resolve
	// the dependencies or predicate gas of a transaction
	ErrDependencyEstimationFailed = errors.New("dependency estimation failed")

	// ErrSubmissionRejected matches any *SubmissionRejectedError via errors.Is
	ErrSubmissionRejected = errors.New("submission rejected")
)

// SubmissionRejectedError carries the target chain's rejection payload verbatim
type SubmissionRejectedError struct {
	Reason string
	Err    error
}

func (e *SubmissionRejectedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrSubmissionRejected.Error(), e.Reason)
}

func (e *SubmissionRejectedError) Unwrap() error {
	return e.Err
}

func (e *SubmissionRejectedError) Is(target error) bool {
	return target == ErrSubmissionRejected
}
