package kv

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/gtm-copilot/internal/types"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, "test:")
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestStores(t *testing.T) {
	redisStore, _ := newRedisStore(t)
	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  redisStore,
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok, err := store.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.Set(ctx, "k", "v1"))
			require.NoError(t, store.Set(ctx, "k", "v2"))
			v, ok, err := store.Get(ctx, "k")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "v2", v)

			require.NoError(t, store.Set(ctx, "empty", ""))
			v, ok, err = store.Get(ctx, "empty")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Empty(t, v)
		})
	}
}

func TestRedisStore_Prefix(t *testing.T) {
	store, mr := newRedisStore(t)
	require.NoError(t, store.Set(context.Background(), APIKeyKey, "abc"))

	got, err := mr.Get("test:" + APIKeyKey)
	require.NoError(t, err)
	assert.Equal(t, "abc", got)
}

func TestRedisStore_ServerDown(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.Close()

	_, _, err := store.Get(context.Background(), "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis get k")
}

func TestOpenRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	store, err := OpenRedis(context.Background(), "redis://"+mr.Addr()+"/0", "")
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Set(context.Background(), "k", "v"))
	mr.CheckGet(t, "k", "v")

	_, err = OpenRedis(context.Background(), "not a url", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid redis url")
}

func TestCredentials_APIKey(t *testing.T) {
	tests := []struct {
		name    string
		stored  *string
		env     string
		want    string
		wantErr error
	}{
		{name: "stored key wins", stored: strPtr("stored"), env: "env", want: "stored"},
		{name: "blank stored key falls back to env", stored: strPtr("  "), env: "env", want: "env"},
		{name: "env only", env: " env ", want: "env"},
		{name: "nothing configured", wantErr: ErrNoAPIKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := NewMemoryStore()
			if tt.stored != nil {
				require.NoError(t, store.Set(ctx, APIKeyKey, *tt.stored))
			}
			creds := NewCredentials(store)
			creds.getenv = func(key string) string {
				if key == APIKeyEnv {
					return tt.env
				}
				return ""
			}

			got, err := creds.APIKey(ctx)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCredentials_SaveAPIKey(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	creds := NewCredentials(store)
	creds.getenv = func(string) string { return "" }

	require.NoError(t, creds.SaveAPIKey(ctx, " secret "))
	got, err := creds.APIKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, "secret", got)

	require.NoError(t, creds.SaveAPIKey(ctx, ""))
	_, err = creds.APIKey(ctx)
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestDrafts(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)
	drafts := NewDrafts(store)

	_, ok, err := drafts.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, drafts.Save(ctx, types.ProductContext{
		ProductName:   " Churn Buster AI ",
		TicketVal:     "1000",
		RiskCustomers: "12",
	}))

	pc, ok, err := drafts.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Churn Buster AI", string(pc.ProductName))
	assert.InDelta(t, 12000, pc.TamRisk, 1e-9)

	require.NoError(t, drafts.Clear(ctx))
	_, ok, err = drafts.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// Drafts written by older clients carry numbers.
	mr.Set("test:"+DraftKey, `{"productName":"X","churnRate":20}`)
	pc, ok, err = drafts.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "20", pc.ChurnRate.String())

	mr.Set("test:"+DraftKey, `{not json`)
	_, _, err = drafts.Load(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse saved draft")
}

func strPtr(s string) *string { return &s }
