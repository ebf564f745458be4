package locking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilLockerGrantsLock(t *testing.T) {
	locker := NewLocker(nil)
	require.Nil(t, locker)

	token, ok, err := locker.TryLock(context.Background(), "k", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, token)
	assert.NoError(t, locker.Release(context.Background(), "k", token))
}

func TestPayoutKey(t *testing.T) {
	assert.Equal(t, "commissionrail:payout-lock:1:2", PayoutKey("1", "2"))
}
