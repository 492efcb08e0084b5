package stream

import (
	"errors"
	"fmt"
	"time"

	"github.com/ipfs/go-cid"
)

// ErrorCode categorizes stream engine failures.
type ErrorCode string

const (
	// ErrCodeInvalidConfiguration indicates a construction-time misconfiguration.
	ErrCodeInvalidConfiguration ErrorCode = "INVALID_CONFIGURATION"

	// ErrCodeNotFound indicates an unknown stream, model, or content reference.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeEmptyStream indicates a commit log with zero commits.
	ErrCodeEmptyStream ErrorCode = "EMPTY_STREAM"

	// ErrCodeBrokenChain indicates a prev link that does not resolve within
	// the fetched commit set, a fork, or a cycle.
	ErrCodeBrokenChain ErrorCode = "BROKEN_CHAIN"

	// ErrCodeUnsupportedStreamType indicates a stream type outside the closed
	// enumeration, detected at state construction.
	ErrCodeUnsupportedStreamType ErrorCode = "UNSUPPORTED_STREAM_TYPE"

	// ErrCodeUnknownStream rejects a non-genesis commit for a stream with no
	// persisted record.
	ErrCodeUnknownStream ErrorCode = "UNKNOWN_STREAM"

	// ErrCodeMissingPredecessor rejects a commit whose prev is not in the
	// loaded chain.
	ErrCodeMissingPredecessor ErrorCode = "MISSING_PREDECESSOR"

	// ErrCodeSignatureInvalid rejects a commit failing signature or
	// capability-resource policy.
	ErrCodeSignatureInvalid ErrorCode = "SIGNATURE_INVALID"

	// ErrCodeCommitExpired rejects a commit whose capability has expired.
	ErrCodeCommitExpired ErrorCode = "COMMIT_EXPIRED"

	// ErrCodeAnchorNotSupported rejects anchor commits on the client
	// submission path; anchor proofs arrive via a separate ingestion path.
	ErrCodeAnchorNotSupported ErrorCode = "ANCHOR_NOT_SUPPORTED"
)

// Error is a categorized stream engine failure. Commit-acceptance rejections
// carry the affected stream and commit address where known.
type Error struct {
	Code    ErrorCode
	Message string

	// Stream identifies the affected stream, when known.
	Stream string

	// Cid identifies the relevant commit or block address, when known.
	Cid string
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Stream != "" && e.Cid != "":
		return fmt.Sprintf("%s: %s (stream=%s, cid=%s)", e.Code, e.Message, e.Stream, e.Cid)
	case e.Stream != "":
		return fmt.Sprintf("%s: %s (stream=%s)", e.Code, e.Message, e.Stream)
	case e.Cid != "":
		return fmt.Sprintf("%s: %s (cid=%s)", e.Code, e.Message, e.Cid)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CodeOf extracts the ErrorCode from err, unwrapping as needed.
// Returns "" for errors outside this taxonomy.
func CodeOf(err error) ErrorCode {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsCode reports whether err carries the given code, unwrapping as needed.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// IsNotFound reports whether err is a NOT_FOUND error.
func IsNotFound(err error) bool { return IsCode(err, ErrCodeNotFound) }

// IsBrokenChain reports whether err is a BROKEN_CHAIN error.
func IsBrokenChain(err error) bool { return IsCode(err, ErrCodeBrokenChain) }

// NewInvalidConfigurationError reports a construction-time misconfiguration.
func NewInvalidConfigurationError(message string) *Error {
	return &Error{Code: ErrCodeInvalidConfiguration, Message: message}
}

// NewNotFoundError reports an unknown entity, e.g. "stream record" or "model".
func NewNotFoundError(what, ref string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s not found: %s", what, ref)}
}

// NewEmptyStreamError reports a commit log with zero commits.
func NewEmptyStreamError(id ID) *Error {
	return &Error{
		Code:    ErrCodeEmptyStream,
		Message: "stream has no commits",
		Stream:  id.String(),
	}
}

// NewBrokenChainError reports a chain that cannot be ordered genesis to tip.
func NewBrokenChainError(id ID, message string) *Error {
	return &Error{Code: ErrCodeBrokenChain, Message: message, Stream: id.String()}
}

// NewUnsupportedStreamTypeError reports a stream type outside the closed set.
func NewUnsupportedStreamTypeError(t Type) *Error {
	return &Error{
		Code:    ErrCodeUnsupportedStreamType,
		Message: fmt.Sprintf("unsupported stream type %d", uint64(t)),
	}
}

// NewUnknownStreamError rejects a non-genesis commit for an unrecorded stream.
func NewUnknownStreamError(id ID) *Error {
	return &Error{
		Code:    ErrCodeUnknownStream,
		Message: "no record for stream and commit is not a signed genesis commit",
		Stream:  id.String(),
	}
}

// NewMissingPredecessorError rejects a commit whose prev is outside the chain.
func NewMissingPredecessorError(id ID, prev cid.Cid) *Error {
	return &Error{
		Code:    ErrCodeMissingPredecessor,
		Message: "commit prev does not appear in the loaded chain",
		Stream:  id.String(),
		Cid:     prev.String(),
	}
}

// NewSignatureInvalidError rejects a commit failing signature policy.
func NewSignatureInvalidError(message string) *Error {
	return &Error{Code: ErrCodeSignatureInvalid, Message: message}
}

// NewCommitExpiredError rejects a commit whose capability expired at the
// given instant.
func NewCommitExpiredError(expiredAt time.Time) *Error {
	return &Error{
		Code:    ErrCodeCommitExpired,
		Message: fmt.Sprintf("capability expired at %s", expiredAt.UTC().Format(time.RFC3339)),
	}
}

// NewAnchorNotSupportedError rejects an anchor commit on the submission path.
func NewAnchorNotSupportedError(c cid.Cid) *Error {
	return &Error{
		Code:    ErrCodeAnchorNotSupported,
		Message: "anchor commits are not accepted via client submission",
		Cid:     c.String(),
	}
}
