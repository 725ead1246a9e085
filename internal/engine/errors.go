package engine

import (
	"errors"

	"github.com/QuiteYellow/Listie.md-sub001/internal/remote"
)

// The engine's error surface. Every failed operation resolves to one of
// these kinds (or *codec.DecodeError), so callers can tell "empty list"
// from "failed to load" and pick a retry policy.
var (
	// ErrNotFound: no file at the expected path. Fatal to the operation,
	// not retried automatically.
	ErrNotFound = errors.New("document not found")

	// ErrPermissionDenied: a save was attempted against a read-only
	// target. Checked before any write is attempted.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrRemoteUnavailable: content could not be materialized within the
	// bound. The caller may retry manually.
	ErrRemoteUnavailable = remote.ErrUnavailable
)
