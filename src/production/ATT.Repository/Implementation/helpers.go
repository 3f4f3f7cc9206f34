package implementation

import (
	"context"
	"errors"
	"fmt"

	config "gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.Config"
	interfaces "gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.Repository/Interfaces"
)

// ErrUnsupportedBackend is returned for an unknown STORAGE_BACKEND
var ErrUnsupportedBackend = errors.New("unsupported storage backend")

// NewIdentityStore builds the store selected by cfg.Backend
func NewIdentityStore(cfg config.StorageConfig) (interfaces.IdentityStore, error) {
	switch cfg.Backend {
	case config.BackendFile:
		return NewFileIdentityStore(cfg.FilePath)
	case config.BackendRedis:
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
		defer cancel()
		return NewRedisIdentityStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
	case config.BackendMongo:
		return NewMongoIdentityStore(cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, cfg.ConnectTimeout)
	case config.BackendPostgres:
		return NewPostgresIdentityStore(cfg.PostgresDSN, cfg.ConnectTimeout)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, cfg.Backend)
	}
}

// Identity store backends
// ├── file     - JSON object on local disk (default)
// ├── redis    - prefixed keys, no expiry
// ├── mongo    - one document per key, _id = key
// └── postgres - device_kv table, upsert on write
