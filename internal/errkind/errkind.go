// Package errkind classifies failures so the entry point can report them
// uniformly and the retry runner can decide whether another attempt is
// worthwhile.
//
// Kinds are attached with Mark and tested with errors.Is; wrapping an
// error with additional context keeps its kinds.
package errkind

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrUsage reports invalid command-line input.
	ErrUsage = errors.New("usage error")
	// ErrConfiguration reports missing or malformed settings.
	ErrConfiguration = errors.New("configuration error")
	// ErrFileAccess reports a required local file that could not be read.
	ErrFileAccess = errors.New("file access error")
	// ErrRemoteCall reports a failure returned by the remote service.
	ErrRemoteCall = errors.New("remote call error")
	// ErrRecoverable marks remote failures that may succeed on another attempt.
	ErrRecoverable = errors.New("recoverable")
	// ErrResponseFormat reports a missing or unusable remote response.
	ErrResponseFormat = errors.New("response format error")
	// ErrWrite reports an output file that could not be written.
	ErrWrite = errors.New("write error")
)

const internalKindName = "internal"

var kindNames = []struct {
	kind error
	name string
}{
	{kind: ErrUsage, name: "usage"},
	{kind: ErrConfiguration, name: "configuration"},
	{kind: ErrFileAccess, name: "file_access"},
	{kind: ErrWrite, name: "write"},
	{kind: ErrResponseFormat, name: "response_format"},
	{kind: ErrRemoteCall, name: "remote_call"},
}

// Mark attaches kind to err. A nil err stays nil.
func Mark(err error, kind error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, kind)
}

// Recoverable marks err as a remote failure eligible for retry.
func Recoverable(err error) error {
	return Mark(Mark(err, ErrRemoteCall), ErrRecoverable)
}

// IsRecoverable reports whether err carries the recoverable mark.
func IsRecoverable(err error) bool {
	return err != nil && errors.Is(err, ErrRecoverable)
}

// Name returns a short label for the first kind found on err.
func Name(err error) string {
	for _, candidate := range kindNames {
		if errors.Is(err, candidate.kind) {
			return candidate.name
		}
	}
	return internalKindName
}

// Hints returns the user-facing hints attached anywhere in the chain.
func Hints(err error) []string {
	return errors.GetAllHints(err)
}
