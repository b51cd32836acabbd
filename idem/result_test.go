package idem

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/idemkit/xerrors"
)

func TestResultCacheNoneIsDistinguishable(t *testing.T) {
	for _, name := range []string{SerializerJSON, SerializerMsgpack} {
		t.Run(name, func(t *testing.T) {
			codec, err := NewCodec(name)
			require.NoError(t, err)
			cache := NewResultCache(newCountingBackend(t), "idempotency.response", codec)
			ctx := context.Background()

			// 缓存不存在
			_, found, err := cache.Lookup(ctx, NewKey("s", "absent"))
			require.NoError(t, err)
			assert.False(t, found)

			// None
			none, err := cache.Encode(None())
			require.NoError(t, err)
			stored, err := cache.Store(ctx, NewKey("s", "none"), none, time.Minute)
			require.NoError(t, err)
			assert.True(t, stored)

			res, found, err := cache.Lookup(ctx, NewKey("s", "none"))
			require.NoError(t, err)
			require.True(t, found)
			assert.True(t, res.IsNone())
			assert.True(t, res.Replayed())
			var dest string
			assert.True(t, xerrors.Is(res.Decode(&dest), ErrNoValue))

			// Some("")
			empty, err := cache.Encode(Some(""))
			require.NoError(t, err)
			_, err = cache.Store(ctx, NewKey("s", "empty"), empty, time.Minute)
			require.NoError(t, err)

			res, found, err = cache.Lookup(ctx, NewKey("s", "empty"))
			require.NoError(t, err)
			require.True(t, found)
			assert.False(t, res.IsNone())
			dest = "not empty"
			require.NoError(t, res.Decode(&dest))
			assert.Equal(t, "", dest)
		})
	}
}

func TestResultCacheFirstWriterWins(t *testing.T) {
	cache := NewResultCache(newCountingBackend(t), "idempotency.response", nil)
	ctx := context.Background()
	key := NewKey("s", "k")

	first, err := cache.Encode(Some("first"))
	require.NoError(t, err)
	second, err := cache.Encode(Some("second"))
	require.NoError(t, err)

	stored, err := cache.Store(ctx, key, first, time.Minute)
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = cache.Store(ctx, key, second, time.Minute)
	require.NoError(t, err)
	assert.False(t, stored)

	res, found, err := cache.Lookup(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	var v string
	require.NoError(t, res.Decode(&v))
	assert.Equal(t, "first", v)
}

func TestResultCacheStoreKey(t *testing.T) {
	cache := NewResultCache(newCountingBackend(t), "tenant:idempotency.response", nil)
	assert.Equal(t, "tenant:idempotency.response::POST /posts::abc", cache.StoreKey(NewKey("POST /posts", "abc")))
}

func TestResultCacheRejectsCorruptEntry(t *testing.T) {
	backend := newCountingBackend(t)
	cache := NewResultCache(backend, "ns", nil)
	ctx := context.Background()
	key := NewKey("s", "corrupt")

	_, err := backend.SetNX(ctx, cache.StoreKey(key), []byte(`{"kind":"maybe"}`), time.Minute)
	require.NoError(t, err)

	_, _, err = cache.Lookup(ctx, key)
	require.Error(t, err)
	assert.False(t, isTaxonomyError(err))
}

func TestNewCodec(t *testing.T) {
	c, err := NewCodec("")
	require.NoError(t, err)
	assert.Equal(t, SerializerJSON, c.Name())

	_, err = NewCodec("gob")
	assert.True(t, xerrors.Is(err, ErrUnsupportedSerializer))
}

func TestRequestTracker(t *testing.T) {
	tracker := NewRequestTracker(newCountingBackend(t), "idempotency.request", time.Second)
	ctx := context.Background()
	key := NewKey("s", "k").WithFingerprint("abc")

	assert.Equal(t, "idempotency.request::s::k", tracker.StoreKey(key))

	_, found, err := tracker.Peek(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)

	ok, err := tracker.TryAcquire(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = tracker.TryAcquire(ctx, key.WithFingerprint("other"))
	require.NoError(t, err)
	assert.False(t, ok)

	marker, found, err := tracker.Peek(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "abc", marker.Fingerprint)

	require.NoError(t, tracker.Release(ctx, key))
	require.NoError(t, tracker.Release(ctx, key))

	ok, err = tracker.TryAcquire(ctx, NewKey("s", "k"))
	require.NoError(t, err)
	assert.True(t, ok)

	marker, found, err = tracker.Peek(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Empty(t, marker.Fingerprint)
}

func TestRequestTrackerMarkerExpires(t *testing.T) {
	tracker := NewRequestTracker(newCountingBackend(t), "ns", 50*time.Millisecond)
	ctx := context.Background()
	key := NewKey("s", "crashed")

	ok, err := tracker.TryAcquire(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(100 * time.Millisecond)

	ok, err = tracker.TryAcquire(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPayloadValidator(t *testing.T) {
	tracker := NewRequestTracker(newCountingBackend(t), "ns", time.Second)
	validator := NewPayloadValidator(tracker)
	ctx := context.Background()

	t.Run("no marker", func(t *testing.T) {
		assert.NoError(t, validator.Validate(ctx, NewKey("s", "fresh"), "fp1"))
	})

	t.Run("recorded fingerprint", func(t *testing.T) {
		key := NewKey("s", "recorded").WithFingerprint("fp1")
		ok, err := tracker.TryAcquire(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)

		assert.NoError(t, validator.Validate(ctx, key, "fp1"))

		err = validator.Validate(ctx, key, "fp2")
		require.Error(t, err)
		assert.True(t, xerrors.Is(err, ErrPayloadMismatch))
		assert.Equal(t, 422, StatusCode(err))
	})

	t.Run("sentinel marker", func(t *testing.T) {
		key := NewKey("s", "sentinel")
		ok, err := tracker.TryAcquire(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)

		assert.NoError(t, validator.Validate(ctx, key, "anything"))
	})
}
