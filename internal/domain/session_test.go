package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionStatusIsValid(t *testing.T) {
	for _, s := range []SessionStatus{
		StatusPending, StatusWarmup, StatusActive, StatusPaused,
		StatusCooldown, StatusCompleted, StatusCancelled,
	} {
		assert.True(t, s.IsValid(), "expected %q to be valid", s)
	}
	assert.False(t, SessionStatus("running").IsValid())
	assert.False(t, SessionStatus("").IsValid())
}

func TestSessionStatusIsTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	for _, s := range NonTerminalStatuses() {
		assert.False(t, s.IsTerminal(), "expected %q to be non-terminal", s)
	}
}

func TestCanTransitionTo(t *testing.T) {
	cases := []struct {
		from    SessionStatus
		to      SessionStatus
		allowed bool
	}{
		{StatusPending, StatusWarmup, true},
		{StatusPending, StatusActive, true},
		{StatusPending, StatusCompleted, false}, // no skipping straight to completed
		{StatusPending, StatusCancelled, true},
		{StatusWarmup, StatusActive, true},
		{StatusWarmup, StatusPaused, true},
		{StatusWarmup, StatusCooldown, false},
		{StatusActive, StatusCooldown, true},
		{StatusActive, StatusPaused, true},
		{StatusActive, StatusCompleted, false},
		{StatusPaused, StatusWarmup, true},
		{StatusPaused, StatusActive, true},
		{StatusPaused, StatusCooldown, true},
		{StatusPaused, StatusCompleted, false},
		{StatusCooldown, StatusCompleted, true},
		{StatusCooldown, StatusPaused, true},
		{StatusCooldown, StatusActive, false},
		{StatusCompleted, StatusActive, false}, // terminal states have no exits
		{StatusCancelled, StatusPending, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to),
			"%s -> %s", tc.from, tc.to)
	}

	// Every non-terminal state can be cancelled.
	for _, s := range NonTerminalStatuses() {
		assert.True(t, s.CanTransitionTo(StatusCancelled), "%s -> cancelled", s)
	}

	// Restating the current status is legal while the session is live;
	// terminal states stay closed even to themselves.
	for _, s := range NonTerminalStatuses() {
		assert.True(t, s.CanTransitionTo(s), "%s -> %s", s, s)
	}
	assert.False(t, StatusCompleted.CanTransitionTo(StatusCompleted))
	assert.False(t, StatusCancelled.CanTransitionTo(StatusCancelled))
}
