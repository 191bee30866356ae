package metacache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/specialistvlad/convergo/internal/metadata"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() metadata.Map {
	return metadata.Map{
		"nginx": metadata.Map{"workers": int64(4), "listen": "0.0.0.0:80"},
		"apt":   metadata.Map{"packages": metadata.NewSet("curl", "nginx")},
		"users": metadata.Map{"admins": []any{"alice", "bob"}},
	}
}

func TestKey(t *testing.T) {
	k1, err := Key("rev1", "snap1", "web1", sample(), []string{"hosts"})
	require.NoError(t, err)
	k2, err := Key("rev1", "snap1", "web1", sample(), []string{"hosts"})
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	testCases := []struct {
		name     string
		revision string
		snapshot string
		node     string
		static   metadata.Map
		reactors []string
	}{
		{"revision", "rev2", "snap1", "web1", sample(), []string{"hosts"}},
		{"snapshot", "rev1", "snap2", "web1", sample(), []string{"hosts"}},
		{"node", "rev1", "snap1", "web2", sample(), []string{"hosts"}},
		{"static", "rev1", "snap1", "web1", metadata.Map{"x": int64(1)}, []string{"hosts"}},
		{"reactors", "rev1", "snap1", "web1", sample(), []string{"hosts", "peers"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			k, err := Key(tc.revision, tc.snapshot, tc.node, tc.static, tc.reactors)
			require.NoError(t, err)
			assert.NotEqual(t, k1, k)
		})
	}
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", sample()))
	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, metadata.Equal(sample(), got))

	now = now.Add(2 * time.Minute)
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", sample()))
	c.Clear()
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	c := NewRedis(client, "test:", time.Hour)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "abc", sample()))
	assert.True(t, mr.Exists("test:metadata:abc"))
	assert.Equal(t, time.Hour, mr.TTL("test:metadata:abc"))

	got, ok, err := c.Get(ctx, "abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, metadata.Equal(sample(), got), metadata.Diff(sample(), got))

	mr.FastForward(2 * time.Hour)
	_, ok, err = c.Get(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNop(t *testing.T) {
	var c Cache = Nop{}
	require.NoError(t, c.Set(context.Background(), "k", sample()))
	_, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
