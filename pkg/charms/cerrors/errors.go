// Package cerrors defines the closed set of verification failure kinds
// surfaced by the spell verifier. Every internal failure is wrapped into one
// of these codes before it crosses the public boundary, so callers always see
// a stable reason tag instead of a raw decoding or crypto error.
package cerrors

import (
	"errors"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// Code identifies a verification failure kind.
type Code struct {
	Code       uint16
	Name       string
	HTTPStatus int
}

var (
	// MalformedTransaction means the input transaction does not parse.
	MalformedTransaction = Code{1, "MalformedTransaction", http.StatusBadRequest}
	// NoSpell means the transaction carries no spell envelope at all.
	NoSpell = Code{2, "NoSpell", http.StatusNotFound}
	// DecodeError means an envelope is present but its payload is invalid.
	DecodeError = Code{3, "DecodeError", http.StatusUnprocessableEntity}
	// UnresolvedReference means the spell references transaction data that
	// does not exist (e.g. an out-of-range output index).
	UnresolvedReference = Code{4, "UnresolvedReference", http.StatusUnprocessableEntity}
	// CommitmentMismatch means a declared digest disagrees with the digest
	// derived from the actual transaction data.
	CommitmentMismatch = Code{5, "CommitmentMismatch", http.StatusUnprocessableEntity}
	// MissingProof means the spell declares app state but carries no proof
	// covering it.
	MissingProof = Code{6, "MissingProof", http.StatusUnprocessableEntity}
	// UnsupportedProofKind means a proof carries an unrecognized kind tag.
	UnsupportedProofKind = Code{7, "UnsupportedProofKind", http.StatusUnprocessableEntity}
	// ProofVerificationFailed means a proof was recognized but did not verify.
	ProofVerificationFailed = Code{8, "ProofVerificationFailed", http.StatusUnprocessableEntity}
	// MissingProvenance means chained verification needs the spell of a prior
	// transaction that was not supplied by the caller.
	MissingProvenance = Code{9, "MissingProvenance", http.StatusFailedDependency}
)

// New creates a new error with the given code and message.
func (c Code) New(msg string, args ...any) *Error {
	return &Error{code: c, cause: fmt.Errorf(msg, args...)}
}

// Wrap creates a new error with the given code and the cause error.
func (c Code) Wrap(cause error) *Error {
	return &Error{code: c, cause: cause}
}

func (c Code) String() string {
	return fmt.Sprintf("%s (%d)", c.Name, c.Code)
}

// Is reports whether err carries this code.
func (c Code) Is(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.code.Code == c.Code
}

// Error pairs a failure code with its cause.
type Error struct {
	code  Code
	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.code.String(), e.cause.Error())
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Reason returns the stable reason tag of the failure kind.
func (e *Error) Reason() string {
	return e.code.Name
}

// Detail returns the human-readable cause of the failure.
func (e *Error) Detail() string {
	return e.cause.Error()
}

// HTTPStatus returns the status the web interface maps this code to.
func (e *Error) HTTPStatus() int {
	return e.code.HTTPStatus
}

func (e *Error) Log() *log.Entry {
	return log.WithField("name", e.code.Name).WithField("code", e.code.Code)
}

// From extracts the coded error from err's chain. Errors that were never
// classified come back as DecodeError: nothing leaves the verifier unmapped.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return DecodeError.Wrap(err)
}

// StatusOf maps a rejection reason name back to its HTTP status. Unknown
// names fall back to 422, same as unclassified errors.
func StatusOf(name string) int {
	for _, c := range []Code{
		MalformedTransaction, NoSpell, DecodeError, UnresolvedReference,
		CommitmentMismatch, MissingProof, UnsupportedProofKind,
		ProofVerificationFailed, MissingProvenance,
	} {
		if c.Name == name {
			return c.HTTPStatus
		}
	}
	return http.StatusUnprocessableEntity
}
