package domain

import "errors"

// Expected outcomes are sentinel errors so callers can branch on them with
// errors.Is instead of string matching. Anything not listed here propagates
// as an infrastructure failure.
var (
	// ErrAlreadyConnected indicates the athlete's ownership lock is held by a
	// different user.
	ErrAlreadyConnected = errors.New("athlete already connected to another user")

	// ErrVersionConflict indicates a milestone commit lost the optimistic
	// concurrency race; the caller must reload and retry.
	ErrVersionConflict = errors.New("milestone version conflict")

	// ErrMilestoneNotFound is returned when a milestone cannot be located for
	// the session user.
	ErrMilestoneNotFound = errors.New("milestone not found")

	// ErrModelNotFound is returned when the referenced milestone model has no
	// META item.
	ErrModelNotFound = errors.New("milestone model not found")

	// ErrModelNotActive is returned when the referenced model exists but is
	// disabled for new milestones.
	ErrModelNotActive = errors.New("milestone model not active")

	// ErrModelPartMissing indicates required part metadata is absent. This is
	// a configuration error: the recompute aborts rather than minting an
	// incomplete award.
	ErrModelPartMissing = errors.New("milestone model part metadata missing")

	// ErrRecomputeTooLarge indicates the workout scan exceeded the synchronous
	// recompute ceiling.
	ErrRecomputeTooLarge = errors.New("too many workouts for synchronous recompute")

	// ErrNoConnection is returned when an operation requires a provider
	// connection the user does not have.
	ErrNoConnection = errors.New("no provider connection")

	// ErrProfileNotFound is returned when a user profile item is absent.
	ErrProfileNotFound = errors.New("user profile not found")
)
