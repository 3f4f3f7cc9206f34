package identity

import (
	"context"
	"sync"
	"time"
)

// Navigator moves the user to a destination after login
type Navigator interface {
	Navigate(ctx context.Context, destination string) error
}

// SessionView records where the last successful login sent the user
type SessionView struct {
	mu          sync.RWMutex
	destination string
	at          time.Time
}

func NewSessionView() *SessionView {
	return &SessionView{}
}

func (v *SessionView) Navigate(ctx context.Context, destination string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.destination = destination
	v.at = time.Now().UTC()
	return nil
}

// Current returns the last destination and when it was set; empty when no login succeeded
func (v *SessionView) Current() (string, time.Time) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.destination, v.at
}
