package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/focusroom/internal/model"
)

func TestFresh(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	e := Entry{StoredAt: t0}
	assert.True(t, Fresh(e, t0.Add(59*time.Minute), 0))
	assert.False(t, Fresh(e, t0.Add(time.Hour), 0))
	assert.False(t, Fresh(e, t0.Add(2*time.Hour), time.Hour))
	assert.True(t, Fresh(e, t0.Add(2*time.Hour), 3*time.Hour))
}

func TestKey(t *testing.T) {
	p := model.DomainParams{Domain: "language", TargetLanguage: "en", Level: "A2"}
	k1 := Key("room-1", 3, p)
	assert.Equal(t, k1, Key("room-1", 3, p))
	assert.Contains(t, k1, "day:room-1:3:")

	p.Level = "B1"
	assert.NotEqual(t, k1, Key("room-1", 3, p))
	assert.NotEqual(t, k1, Key("room-1", 4, model.DomainParams{Domain: "language", TargetLanguage: "en", Level: "A2"}))
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	val := []byte(`{"a":1}`)
	at := time.Now()
	require.NoError(t, m.Put(ctx, "k", val, at))
	val[0] = 'X'

	e, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(e.Value))
	assert.True(t, e.StoredAt.Equal(at))
}

func TestEntryEnvelope(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	raw, err := encodeEntry(Entry{Value: []byte("payload"), StoredAt: at})
	require.NoError(t, err)

	e, err := decodeEntry(raw)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(e.Value))
	assert.True(t, e.StoredAt.Equal(at))

	_, err = decodeEntry([]byte("not json"))
	assert.Error(t, err)
}

func TestRedis(t *testing.T) {
	addr := os.Getenv("FOCUSROOM_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("FOCUSROOM_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	r, err := NewRedis(ctx, addr, time.Minute)
	require.NoError(t, err)
	defer r.Close()

	key := "test:" + time.Now().Format(time.RFC3339Nano)
	_, ok, err := r.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.Put(ctx, key, []byte("v"), time.Now()))
	e, ok, err := r.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", string(e.Value))
}
