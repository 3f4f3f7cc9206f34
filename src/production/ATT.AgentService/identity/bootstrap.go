package identity

import (
	"context"
	"fmt"
	"time"

	logger "gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.Logger"
	attmodels "gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.Models"
)

// LoginClient is the part of the API client the bootstrap needs
type LoginClient interface {
	Login(ctx context.Context, telefonoID string) (*attmodels.LoginResponse, error)
}

// Result describes one bootstrap run
type Result struct {
	DeviceID    string
	Login       *attmodels.LoginResponse
	Destination string // empty when the login was not accepted
}

// Bootstrap ensures a device identifier and attempts a silent login with it
type Bootstrap struct {
	identity  *Manager
	client    LoginClient
	navigator Navigator
	logger    *logger.Logger

	loginTimeout time.Duration
}

func NewBootstrap(identity *Manager, client LoginClient, navigator Navigator, log *logger.Logger) *Bootstrap {
	return &Bootstrap{
		identity:  identity,
		client:    client,
		navigator: navigator,
		logger:    log.WithComponent("bootstrap"),
	}
}

// SetLoginTimeout bounds the login call; zero disables the timeout
func (b *Bootstrap) SetLoginTimeout(d time.Duration) {
	b.loginTimeout = d
}

// Run navigates only on status "success". Errors leave the user where they are.
func (b *Bootstrap) Run(ctx context.Context) (*Result, error) {
	id, err := b.identity.Ensure(ctx)
	if err != nil {
		b.logger.ErrorWithError(err, "Device identity bootstrap failed")
		return nil, err
	}

	result := &Result{DeviceID: id}
	log := b.logger.WithDevice(id)

	resp, err := b.login(ctx, id)
	if err != nil {
		log.ErrorWithError(err, "Automatic login failed")
		return result, err
	}
	result.Login = resp

	if !resp.Succeeded() {
		log.Logger.Info().Str("status", resp.Status).Msg("Automatic login not accepted, staying on current page")
		return result, nil
	}

	destination := resp.Destination()
	if err := b.navigator.Navigate(ctx, destination); err != nil {
		log.ErrorWithError(err, "Navigation after login failed")
		return result, fmt.Errorf("failed to navigate to %s: %w", destination, err)
	}
	result.Destination = destination

	log.Logger.Info().Str("rol", resp.Rol).Str("destination", destination).Msg("Automatic login succeeded")
	return result, nil
}

func (b *Bootstrap) login(ctx context.Context, id string) (*attmodels.LoginResponse, error) {
	if b.loginTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.loginTimeout)
		defer cancel()
	}
	return b.client.Login(ctx, id)
}
