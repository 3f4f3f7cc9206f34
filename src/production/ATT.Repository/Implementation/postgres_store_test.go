package implementation

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	interfaces "gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.Repository/Interfaces"
)

func TestPostgresIdentityStore_RoundTrip(t *testing.T) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}
	store, err := NewPostgresIdentityStore(dsn, 2*time.Second)
	if err != nil {
		t.Skip("PostgreSQL not available")
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := "telefono_id:" + time.Now().Format("150405.000000")
	defer store.db.ExecContext(context.Background(), `DELETE FROM device_kv WHERE key = $1`, key)

	require.NoError(t, store.Ping(ctx))

	_, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	require.NoError(t, store.Set(ctx, key, "device_abc123xyz"))
	v, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "device_abc123xyz", v)

	require.NoError(t, store.Set(ctx, key, "device_zzz999aaa"))
	v, err = store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "device_zzz999aaa", v)

	var rows int
	require.NoError(t, store.db.QueryRowContext(ctx, `SELECT count(*) FROM device_kv WHERE key = $1`, key).Scan(&rows))
	assert.Equal(t, 1, rows)
}
