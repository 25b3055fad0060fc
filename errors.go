package main

import (
	"github.com/juju/errors"
)

const (
	// ErrInvalidAmount is returned for malformed, negative or non-finite amounts.
	ErrInvalidAmount = errors.ConstError("invalid amount")

	// ErrPermissionDenied is returned when a non-privileged caller invokes a
	// privileged command.
	ErrPermissionDenied = errors.ConstError("permission denied")

	// ErrCollaboratorUnavailable is returned when a chat platform call fails.
	ErrCollaboratorUnavailable = errors.ConstError("collaborator unavailable")

	// ErrArtifactMissing is returned when a channel or message no longer
	// resolves on the chat platform.
	ErrArtifactMissing = errors.ConstError("artifact missing")

	// ErrStateCorruption is returned when a persisted snapshot exists but
	// cannot be decoded.
	ErrStateCorruption = errors.ConstError("state corruption")

	// ErrNotATicket is returned when close_ticket is used outside a ticket channel.
	ErrNotATicket = errors.ConstError("not a ticket channel")
)

// userMessageFor maps an error kind to the ephemeral reply shown to the
// invoking user.
func userMessageFor(err error) string {
	switch {
	case errors.Is(err, ErrInvalidAmount):
		return "❌ Invalid amount (use 1K, 1M, 1Qa...)"
	case errors.Is(err, ErrPermissionDenied):
		return "❌ No permission"
	case errors.Is(err, ErrNotATicket):
		return "❌ Not a ticket."
	default:
		return "❌ Something went wrong, try again later."
	}
}
