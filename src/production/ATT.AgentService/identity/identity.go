package identity

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"

	logger "gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.Logger"
	attmodels "gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.Models"
	interfaces "gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.Repository/Interfaces"
)

// DeviceIDPrefix starts every generated identifier
const DeviceIDPrefix = "device_"

const (
	suffixLen      = 9
	suffixAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// GenerateDeviceID returns DeviceIDPrefix followed by 9 random base-36 characters
func GenerateDeviceID() (string, error) {
	buf := make([]byte, suffixLen)
	max := big.NewInt(int64(len(suffixAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to read random source: %w", err)
		}
		buf[i] = suffixAlphabet[n.Int64()]
	}
	return DeviceIDPrefix + string(buf), nil
}

// Manager owns the device identifier stored under attmodels.StorageKeyDeviceID
type Manager struct {
	store    interfaces.IdentityStore
	logger   *logger.Logger
	generate func() (string, error)

	// serializes the read-then-write in Ensure
	mu sync.Mutex
}

func NewManager(store interfaces.IdentityStore, log *logger.Logger) *Manager {
	return &Manager{
		store:    store,
		logger:   log.WithComponent("identity"),
		generate: GenerateDeviceID,
	}
}

// Ensure returns the stored identifier, creating and persisting one if none exists.
// An existing identifier is never overwritten.
func (m *Manager) Ensure(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.store.Get(ctx, attmodels.StorageKeyDeviceID)
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && !errors.Is(err, interfaces.ErrNotFound) {
		return "", fmt.Errorf("failed to read device id: %w", err)
	}

	id, err = m.generate()
	if err != nil {
		return "", err
	}
	if err := m.store.Set(ctx, attmodels.StorageKeyDeviceID, id); err != nil {
		return "", fmt.Errorf("failed to persist device id: %w", err)
	}

	m.logger.Logger.Info().Str("telefono_id", id).Msg("Generated new device identifier")
	return id, nil
}

// DeviceID returns the identifier used on attendance submissions
func (m *Manager) DeviceID(ctx context.Context) (string, error) {
	return m.Ensure(ctx)
}
