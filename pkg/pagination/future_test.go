package pagination

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFuture_FirstSettlementWins(t *testing.T) {
	f := NewFuture[int]()
	require.False(t, f.Settled())
	require.NoError(t, f.Err())

	require.True(t, f.Resolve(1))
	require.False(t, f.Resolve(2))
	require.False(t, f.Reject(errors.New("late")))

	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, v)
	require.NoError(t, f.Err())
}

func TestFuture_Reject(t *testing.T) {
	boom := errors.New("boom")
	f := NewFuture[string]()

	require.True(t, f.Reject(boom))
	<-f.Done()

	_, err := f.Wait(context.Background())
	require.Equal(t, boom, err)
	require.Equal(t, boom, f.Err())
}

func TestFuture_WaitHonoursContext(t *testing.T) {
	f := NewFuture[string]()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, f.Settled())
}

func TestStreamHelpers(t *testing.T) {
	ctx := context.Background()

	records, err := Collect(ctx, FromSlice([]string{"a", "b"}))
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, records)

	boom := errors.New("boom")
	records, err = Collect(ctx, Failed[string](boom))
	require.Equal(t, boom, err)
	require.Empty(t, records)

	s := FromSlice([]int{1, 2, 3})
	s.Stop()
	_, err = s.Next(ctx)
	require.True(t, IsDone(err))
}
