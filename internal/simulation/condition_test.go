package simulation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCondition_ZeroIsPassThrough(t *testing.T) {
	var cond Condition

	start := time.Now()
	err := cond.Apply(context.Background(), NewSequenceSource(0))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 10*time.Millisecond, "zero condition must not delay")
}

func TestCondition_AppliesLatency(t *testing.T) {
	cond := Condition{
		Name:       "slow",
		MinLatency: 30 * time.Millisecond,
		MaxLatency: 30 * time.Millisecond,
	}

	start := time.Now()
	err := cond.Apply(context.Background(), NewSequenceSource(0))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestCondition_PacketLossFails(t *testing.T) {
	cond := Condition{Name: "lossy", PacketLossRate: 50}

	// First draw decides packet loss: 0.0*100 < 50 fires.
	err := cond.Apply(context.Background(), NewSequenceSource(0))
	require.Error(t, err)

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Retryable())
	assert.Contains(t, netErr.Error(), "packet loss")
}

func TestCondition_ConnectionDropCheckedIndependently(t *testing.T) {
	cond := Condition{Name: "droppy", PacketLossRate: 50, ConnectionDropRate: 50}

	// Survive the loss draw (0.9), fail the drop draw (0.1).
	err := cond.Apply(context.Background(), NewSequenceSource(0.9, 0.1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection dropped")
}

func TestCondition_SurvivesBothDraws(t *testing.T) {
	cond := Condition{Name: "ok", PacketLossRate: 10, ConnectionDropRate: 10}

	err := cond.Apply(context.Background(), NewSequenceSource(0.9, 0.9))
	assert.NoError(t, err)
}

func TestCondition_ContextCancelDuringLatency(t *testing.T) {
	cond := Condition{MinLatency: time.Second, MaxLatency: time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := cond.Apply(ctx, NewSequenceSource(0))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPresets_HaveNames(t *testing.T) {
	for _, cond := range []Condition{PerfectNetwork, Broadband, Mobile3G, Flaky, Satellite} {
		assert.NotEmpty(t, cond.Name)
	}
	assert.True(t, PerfectNetwork.IsZero())
	assert.False(t, Flaky.IsZero())
}
