package implementation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	interfaces "gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.Repository/Interfaces"
)

func TestRedisIdentityStore_RoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	prefix := "attendance-test:" + time.Now().Format("150405.000000") + ":"
	store, err := NewRedisIdentityStore(ctx, "localhost:6379", "", 15, prefix)
	if err != nil {
		t.Skip("Redis not available")
	}
	defer store.Close()
	defer store.client.Del(context.Background(), prefix+"telefono_id")

	_, err = store.Get(ctx, "telefono_id")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	require.NoError(t, store.Set(ctx, "telefono_id", "device_abc123xyz"))
	v, err := store.Get(ctx, "telefono_id")
	require.NoError(t, err)
	assert.Equal(t, "device_abc123xyz", v)

	require.NoError(t, store.Set(ctx, "telefono_id", "device_zzz999aaa"))
	v, err = store.Get(ctx, "telefono_id")
	require.NoError(t, err)
	assert.Equal(t, "device_zzz999aaa", v)
	assert.NoError(t, store.Ping(ctx))
}
