package loadercache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/lapsync/pkg/utils/cache"
)

type counter struct {
	calls map[string]int
}

func (c *counter) load(ctx context.Context, key string) (*string, error) {
	c.calls[key]++
	if key == "broken" {
		return nil, errors.New("broken entry")
	}
	v := "value-" + key
	return &v, nil
}

func TestGetLoadsOnce(t *testing.T) {
	cnt := &counter{calls: map[string]int{}}
	c := New(WithLoader[string, string](cnt.load))

	for range 3 {
		v, err := c.Get(context.Background(), "a")
		require.NoError(t, err)
		assert.Equal(t, "value-a", *v)
	}
	assert.Equal(t, 1, cnt.calls["a"])
	assert.Equal(t, 1, c.Len())
}

func TestErrorsAreNotCached(t *testing.T) {
	cnt := &counter{calls: map[string]int{}}
	c := New(WithLoader[string, string](cnt.load))

	_, err := c.Get(context.Background(), "broken")
	assert.Error(t, err)
	_, err = c.Get(context.Background(), "broken")
	assert.Error(t, err)
	assert.Equal(t, 2, cnt.calls["broken"])
	assert.Equal(t, 0, c.Len())
}

func TestExpiration(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cnt := &counter{calls: map[string]int{}}
	c := New(
		WithLoader[string, string](cnt.load),
		WithExpiration[string, string](time.Minute),
		WithClock[string, string](func() time.Time { return now }),
	)

	_, err := c.Get(context.Background(), "a")
	require.NoError(t, err)
	now = now.Add(30 * time.Second)
	_, err = c.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 1, cnt.calls["a"])

	now = now.Add(time.Minute)
	_, err = c.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 2, cnt.calls["a"])
}

func TestInvalidate(t *testing.T) {
	cnt := &counter{calls: map[string]int{}}
	c := New(WithLoader[string, string](cnt.load))
	ctx := context.Background()

	_, _ = c.Get(ctx, "a")
	_, _ = c.Get(ctx, "b")
	c.Invalidate(ctx, "a")
	assert.Equal(t, 1, c.Len())
	_, _ = c.Get(ctx, "a")
	assert.Equal(t, 2, cnt.calls["a"])

	c.InvalidateAll(ctx)
	assert.Equal(t, 0, c.Len())
}

func TestNoLoader(t *testing.T) {
	c := New[string, string]()
	_, err := c.Get(context.Background(), "a")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}
