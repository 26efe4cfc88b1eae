// Package errs defines the tagged error kinds of §7. Handlers and the
// executor match on the Kind, never on Error()'s string, the same
// discipline the teacher applies to its own sentinel errors.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is a tagged error variant.
type Kind string

const (
	KindUnknownRepository       Kind = "unknown_repository"
	KindUnknownRepositoryID     Kind = "unknown_repository_id"
	KindUnknownPullRequest      Kind = "unknown_pull_request"
	KindUnknownMergeRule        Kind = "unknown_merge_rule"
	KindUnknownExternalAccount  Kind = "unknown_external_account"
	KindUnknownCommand          Kind = "unknown_command"
	KindArgumentParsingError    Kind = "argument_parsing_error"
	KindIncompleteCommand       Kind = "incomplete_command"
	KindInvalidUsage            Kind = "invalid_usage"
	KindForgeError              Kind = "forge_error"
	KindMergeRefused            Kind = "merge_refused"
	KindLockBusy                Kind = "lock_busy"
	KindLockTimeout             Kind = "lock_timeout"
	KindStoreError              Kind = "store_error"
	KindDomainError             Kind = "domain_error"
)

// Error is the concrete type every core error is built from.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a bare Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a kind and cause to an underlying error. The cause is
// run through github.com/pkg/errors.Wrap so Cause() recovers it (and
// its stack trace) the way the teacher's plugins wrap forge failures.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	msg := fmt.Sprintf(format, args...)
	var wrapped error
	if cause != nil {
		wrapped = errors.Wrap(cause, msg)
	}
	return &Error{Kind: kind, Message: msg, Cause: wrapped}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}

func UnknownRepository(owner, name string) *Error {
	return New(KindUnknownRepository, fmt.Sprintf("unknown repository %s/%s", owner, name))
}

func UnknownRepositoryID(id int64) *Error {
	return New(KindUnknownRepositoryID, fmt.Sprintf("unknown repository id %d", id))
}

func UnknownPullRequest(owner, name string, number int) *Error {
	return New(KindUnknownPullRequest, fmt.Sprintf("unknown pull request %s/%s#%d", owner, name, number))
}

func UnknownMergeRule(repositoryID int64, base, head string) *Error {
	return New(KindUnknownMergeRule, fmt.Sprintf("unknown merge rule %d/%s/%s", repositoryID, base, head))
}

func UnknownExternalAccount(username string) *Error {
	return New(KindUnknownExternalAccount, fmt.Sprintf("unknown external account %q", username))
}

// UnknownCommand is the parser error for an unrecognized verb (§4.1).
type UnknownCommand struct{ Verb string }

func (e *UnknownCommand) Error() string { return fmt.Sprintf("unknown command %q", e.Verb) }

// InvalidUsage carries the usage string shown back to the user (§4.1).
type InvalidUsage struct{ Usage string }

func (e *InvalidUsage) Error() string { return fmt.Sprintf("invalid usage, expected: %s", e.Usage) }

// ArgumentParsingError is a malformed-argument parser failure (§4.1).
type ArgumentParsingError struct{ Detail string }

func (e *ArgumentParsingError) Error() string { return fmt.Sprintf("argument parsing error: %s", e.Detail) }

// IncompleteCommand is a parser failure for a verb missing required args (§4.1).
type IncompleteCommand struct{ Verb string }

func (e *IncompleteCommand) Error() string { return fmt.Sprintf("incomplete command %q", e.Verb) }

// MergeRefused is an expected, non-error outcome of an attempted merge (§4.7, §7).
type MergeRefused struct{ Reason string }

func (e *MergeRefused) Error() string { return e.Reason }
