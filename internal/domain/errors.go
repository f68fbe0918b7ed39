package domain

import "errors"

var (
	// ErrRulesNotApplicable means the free-parking policy is not in effect
	// right now (weekend, holiday, or past closing time).
	ErrRulesNotApplicable = errors.New("parking rules not applicable")

	// ErrNoActiveSession means the user has no active session today.
	ErrNoActiveSession = errors.New("no active parking session")

	// ErrWindowExpired means the grace window has already lapsed;
	// the caller must start a new session.
	ErrWindowExpired = errors.New("parking window expired")

	// ErrNotFound is returned by the store for missing users or sessions.
	ErrNotFound = errors.New("not found")

	// ErrConflict means a conditional update observed a concurrent change.
	ErrConflict = errors.New("concurrent modification")
)
