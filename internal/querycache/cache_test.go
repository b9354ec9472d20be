package querycache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchCachesUntilExpiry(t *testing.T) {
	c := New(time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	loads := 0
	load := func(context.Context) ([]string, error) {
		loads++
		return []string{"a", "b"}, nil
	}

	for i := 0; i < 3; i++ {
		v, err := Fetch(context.Background(), c, []string{"opportunities"}, load)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, v)
	}
	assert.Equal(t, 1, loads)

	now = now.Add(2 * time.Minute)
	_, err := Fetch(context.Background(), c, []string{"opportunities"}, load)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
}

func TestFetchDoesNotCacheErrors(t *testing.T) {
	c := New(time.Minute)
	calls := 0
	load := func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("unavailable")
		}
		return 42, nil
	}

	_, err := Fetch(context.Background(), c, []string{"k"}, load)
	require.Error(t, err)
	assert.Zero(t, c.Len())

	v, err := Fetch(context.Background(), c, []string{"k"}, load)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestInvalidateByPrefix(t *testing.T) {
	c := New(time.Minute)
	ok := func(v string) func(context.Context) (string, error) {
		return func(context.Context) (string, error) { return v, nil }
	}
	ctx := context.Background()

	_, _ = Fetch(ctx, c, []string{"opportunities"}, ok("all"))
	_, _ = Fetch(ctx, c, []string{"opportunities", "coding"}, ok("coding"))
	_, _ = Fetch(ctx, c, []string{"donations"}, ok("d"))
	require.Equal(t, 3, c.Len())

	var seen [][]string
	unsubscribe := c.OnInvalidate(func(key []string) { seen = append(seen, key) })

	c.Invalidate("opportunities")
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, [][]string{{"opportunities"}}, seen)

	unsubscribe()
	c.Invalidate("donations")
	assert.Zero(t, c.Len())
	assert.Len(t, seen, 1)
}

func TestInvalidateDuringLoadDiscardsResult(t *testing.T) {
	c := New(time.Minute)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan string)
	go func() {
		v, _ := Fetch(ctx, c, []string{"opportunities"}, func(context.Context) (string, error) {
			close(started)
			<-release
			return "before create", nil
		})
		done <- v
	}()

	<-started
	c.Invalidate("opportunities")
	close(release)
	assert.Equal(t, "before create", <-done)
	assert.Zero(t, c.Len())

	v, err := Fetch(ctx, c, []string{"opportunities"}, func(context.Context) (string, error) {
		return "after create", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "after create", v)
	assert.Equal(t, 1, c.Len())
}
