package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBudgetPerProvider(t *testing.T) {
	b := NewBudget(map[string]int{"groq": 2, "gemini": 1}, 0)

	require.NoError(t, b.Use("groq"))
	require.NoError(t, b.Use("groq"))
	assert.False(t, b.CanUse("groq"))
	assert.Error(t, b.Use("groq"))

	assert.True(t, b.CanUse("gemini"))
	require.NoError(t, b.Use("gemini"))
	assert.False(t, b.CanUse("gemini"))
}

func TestBudgetTotal(t *testing.T) {
	b := NewBudget(map[string]int{"groq": 0, "gemini": 0}, 2)
	require.NoError(t, b.Use("groq"))
	require.NoError(t, b.Use("gemini"))
	assert.False(t, b.CanUse("groq"))
	assert.False(t, b.CanUse("gemini"))

	stats := b.GetStats()
	assert.Equal(t, 2, stats["total_used"])
	assert.Equal(t, 1, stats["groq_used"])
}

func TestBudgetDailyReset(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBudget(map[string]int{"groq": 1}, 0)
	b.now = func() time.Time { return now }
	b.resetTime = now.Add(24 * time.Hour)

	require.NoError(t, b.Use("groq"))
	assert.False(t, b.CanUse("groq"))

	now = now.Add(25 * time.Hour)
	assert.True(t, b.CanUse("groq"))
}

func TestHostLimiterUnlimited(t *testing.T) {
	h := NewHostLimiter(0, 1)
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		require.NoError(t, h.Wait(ctx, "example.com"))
	}
}

func TestHostLimiterCancelled(t *testing.T) {
	h := NewHostLimiter(0.001, 1)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, h.Wait(ctx, "slow.example"))
	cancel()
	assert.Error(t, h.Wait(ctx, "slow.example"))

	// other hosts have their own bucket
	assert.NoError(t, h.Wait(context.Background(), "fast.example"))
}

func TestNilHostLimiter(t *testing.T) {
	var h *HostLimiter
	assert.NoError(t, h.Wait(context.Background(), "x"))
}
