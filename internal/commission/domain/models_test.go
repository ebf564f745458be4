package domain

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from Status
		to   Status
		ok   bool
	}{
		{StatusPending, StatusApproved, true},
		{StatusPending, StatusReversed, true},
		{StatusPending, StatusPaid, false},
		{StatusApproved, StatusPaid, true},
		{StatusApproved, StatusReversed, true},
		{StatusApproved, StatusPending, false},
		{StatusPaid, StatusReversed, false},
		{StatusPaid, StatusApproved, false},
		{StatusReversed, StatusApproved, false},
		{StatusReversed, StatusPending, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTerminalEventsRejectEveryTransition(t *testing.T) {
	now := time.Now().UTC()
	for _, status := range []Status{StatusPaid, StatusReversed} {
		event := CommissionEvent{Status: status}
		assert.ErrorIs(t, event.Approve("reviewer", now), ErrTerminalState)
		assert.ErrorIs(t, event.Reverse("fraud", now), ErrTerminalState)
		assert.Equal(t, status, event.Status)
	}
}

func TestApproveSetsAuditFields(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	event := CommissionEvent{Status: StatusPending}

	require.NoError(t, event.Approve("user:7", now))
	assert.Equal(t, StatusApproved, event.Status)
	assert.Equal(t, "user:7", event.ApprovedBy)
	require.NotNil(t, event.ApprovedAt)
	assert.Equal(t, now, *event.ApprovedAt)

	assert.ErrorIs(t, event.Approve("user:7", now), ErrInvalidTransition)
}

func TestReverseRejectsClaimedEvent(t *testing.T) {
	payoutID := snowflake.ID(99)
	event := CommissionEvent{Status: StatusApproved, PayoutID: &payoutID}

	assert.ErrorIs(t, event.Reverse("fraud", time.Now()), ErrEventClaimed)
	assert.Equal(t, StatusApproved, event.Status)
	assert.Nil(t, event.ReversedAt)
}

func TestReverseUnclaimedApprovedEvent(t *testing.T) {
	now := time.Now().UTC()
	event := CommissionEvent{Status: StatusApproved}

	require.NoError(t, event.Reverse("chargeback", now))
	assert.Equal(t, StatusReversed, event.Status)
	assert.Equal(t, "chargeback", event.ReversalReason)
}

func TestParseStatus(t *testing.T) {
	status, ok := ParseStatus(" APPROVED ")
	require.True(t, ok)
	assert.Equal(t, StatusApproved, status)

	_, ok = ParseStatus("settled")
	assert.False(t, ok)
}
