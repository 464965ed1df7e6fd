// Package aterrors defines the tagged error kinds shared by every component
// in this module, generalizing a consensus.TxError-style ErrorCode/TxError
// pattern across the AT engine and the cross-chain swap subsystems.
package aterrors

import "fmt"

// Kind identifies which error category an error belongs to. Callers that
// need to branch on error category (e.g. the swap CLI's exit code
// selection) should use errors.As against *Error and switch on Kind, not
// string-match Error().
type Kind string

const (
	// KindInvalidInput covers malformed keys, bad addresses, wrong-length
	// hashes — user-facing, local, never retried.
	KindInvalidInput Kind = "INVALID_INPUT"

	// KindSafetyViolation covers a derived P2SH not matching the
	// advertised one, a too-soon refund, or multiple UTXOs where exactly
	// one was expected. Surfaces to the CLI with exit code 2.
	KindSafetyViolation Kind = "SAFETY_VIOLATION"

	// KindForeignBlockchainError covers transport/availability failures
	// against the external chain's node.
	KindForeignBlockchainError Kind = "FOREIGN_BLOCKCHAIN_ERROR"

	// KindRepositoryError covers failure to read the ledger; fatal for the
	// current block application.
	KindRepositoryError Kind = "REPOSITORY_ERROR"

	// KindATFatalError covers step overrun, an A1/A2..A4 signature
	// fingerprint mismatch, or an illegal opcode. Flags the AT round as
	// failed; emissions are discarded.
	KindATFatalError Kind = "AT_FATAL_ERROR"

	// KindInsufficientFunds is returned by wallet spend construction when
	// the available UTXOs cannot cover amount+fee.
	KindInsufficientFunds Kind = "INSUFFICIENT_FUNDS"
)

// Error is the single error type used across this module. Every component
// wraps failures in one of these rather than returning ad-hoc error
// strings, so callers can branch on Kind.
type Error struct {
	Kind Kind
	Msg  string
	Err  error // optional wrapped cause
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	if e.Msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error of the given kind with a message.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds an *Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, msg string, cause error) error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if as, ok := err.(*Error); ok {
		e = as
	} else {
		return false
	}
	return e.Kind == kind
}

// ExitCode maps an error to the standalone CLI's exit-code convention:
// 0 success (no error), 1 usage/invalid-input error, 2 runtime/safety
// failure.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	e, ok := err.(*Error)
	if !ok {
		return 1
	}
	switch e.Kind {
	case KindInvalidInput:
		return 1
	case KindSafetyViolation, KindForeignBlockchainError, KindInsufficientFunds:
		return 2
	default:
		return 2
	}
}
