package pacing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacer_DelayStaysInRange(t *testing.T) {
	var slept []time.Duration
	p := NewPacer(15*time.Second, 30*time.Second, func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	})

	for i := 0; i < 200; i++ {
		d, err := p.Wait(context.Background())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, d, 15*time.Second)
		assert.Less(t, d, 30*time.Second)
	}
	assert.Len(t, slept, 200)
}

func TestPacer_FixedWhenRangeEmpty(t *testing.T) {
	p := NewPacer(time.Second, time.Second, nil)
	assert.Equal(t, time.Second, p.Next())
}

func TestSleep_ReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHostLimiter_SpacesSameHost(t *testing.T) {
	h := NewHostLimiter(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, h.Wait(ctx, "https://example.com/a"))
	require.NoError(t, h.Wait(ctx, "https://EXAMPLE.com/b"))
	require.NoError(t, h.Wait(ctx, "https://example.com/c"))
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestHostLimiter_OtherHostNotDelayed(t *testing.T) {
	h := NewHostLimiter(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, h.Wait(ctx, "https://a.example/x"))
	require.NoError(t, h.Wait(ctx, "https://b.example/x"))
}

func TestHostLimiter_NilAndZeroAreNoops(t *testing.T) {
	var h *HostLimiter
	assert.NoError(t, h.Wait(context.Background(), "https://a.example"))
	assert.NoError(t, NewHostLimiter(0).Wait(context.Background(), "https://a.example"))
}
