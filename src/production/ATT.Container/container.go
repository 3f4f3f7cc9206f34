package container

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	config "gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.Config"
	logger "gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.Logger"
	implementation "gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.Repository/Implementation"
	interfaces "gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.Repository/Interfaces"
)

// ErrMQTTDisabled is returned by GetMQTTClient when MQTT_ENABLED is false
var ErrMQTTDisabled = errors.New("mqtt is disabled")

// AgentContainer manages dependencies of the attendance agent and their lifecycle
type AgentContainer struct {
	config *config.AgentConfig
	logger *logger.Logger

	store      interfaces.IdentityStore
	mqttClient mqtt.Client

	// run on every (re)connect, after the initial one
	hmu             sync.Mutex
	connectHandlers []func()

	// Mutex for thread-safe access
	mu sync.Mutex

	// Cleanup functions
	cleanupFuncs []func() error
}

// NewAgentContainer loads configuration and builds the logger
func NewAgentContainer() (*AgentContainer, error) {
	cfg, err := config.LoadAgentConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load agent configuration: %w", err)
	}

	return NewAgentContainerWithConfig(cfg, logger.NewLogger(&cfg.Logging)), nil
}

// NewAgentContainerWithConfig wraps an already loaded configuration
func NewAgentContainerWithConfig(cfg *config.AgentConfig, log *logger.Logger) *AgentContainer {
	return &AgentContainer{
		config: cfg,
		logger: log,
	}
}

// GetConfig returns the configuration
func (c *AgentContainer) GetConfig() *config.AgentConfig {
	return c.config
}

// GetLogger returns the logger
func (c *AgentContainer) GetLogger() *logger.Logger {
	return c.logger
}

// GetIdentityStore returns the device identity store, connecting on first use
func (c *AgentContainer) GetIdentityStore() (interfaces.IdentityStore, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store == nil {
		store, err := implementation.NewIdentityStore(c.config.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s identity store: %w", c.config.Storage.Backend, err)
		}
		c.store = store
		c.cleanupFuncs = append(c.cleanupFuncs, store.Close)
		c.logger.Logger.Info().Str("backend", c.config.Storage.Backend).Msg("Identity store ready")
	}

	return c.store, nil
}

// GetMQTTClient returns a connected MQTT client, connecting on first use
func (c *AgentContainer) GetMQTTClient() (mqtt.Client, error) {
	if !c.config.MQTT.Enabled {
		return nil, ErrMQTTDisabled
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mqttClient != nil {
		return c.mqttClient, nil
	}

	opts, err := c.mqttOptions()
	if err != nil {
		return nil, err
	}

	client := mqtt.NewClient(opts)
	if tk := client.Connect(); tk.Wait() && tk.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", tk.Error())
	}

	c.mqttClient = client
	c.cleanupFuncs = append(c.cleanupFuncs, func() error {
		if client.IsConnected() {
			client.Disconnect(500)
		}
		return nil
	})
	return client, nil
}

// OnMQTTReconnect registers fn to run after every reconnect, e.g. to restore subscriptions
func (c *AgentContainer) OnMQTTReconnect(fn func()) {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	c.connectHandlers = append(c.connectHandlers, fn)
}

// MQTTConnected reports the broker connection state
func (c *AgentContainer) MQTTConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mqttClient != nil && c.mqttClient.IsConnected()
}

func (c *AgentContainer) mqttOptions() (*mqtt.ClientOptions, error) {
	cfg := c.config.MQTT

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("attendance-agent-%d", time.Now().UnixNano())
	}

	opts := mqtt.NewClientOptions().
		AddBroker(c.config.GetMQTTBrokerURL()).
		SetClientID(clientID).
		SetOrderMatters(false).
		SetKeepAlive(cfg.KeepAlive).
		SetPingTimeout(cfg.PingTimeout).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetCleanSession(true)

	if cfg.BrokerUser != "" {
		opts.SetUsername(cfg.BrokerUser)
		opts.SetPassword(cfg.BrokerPass)
	}

	if cfg.UseTLS {
		tlsCfg, err := tlsConfig(cfg.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("failed to build MQTT TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsCfg)
	}

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		c.logger.Logger.Error().Err(err).Msg("MQTT connection lost")
	}
	opts.OnReconnecting = func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		c.logger.Warn("MQTT reconnecting")
	}
	opts.OnConnect = func(_ mqtt.Client) {
		c.logger.Logger.Info().Str("broker", c.config.GetMQTTBrokerURL()).Msg("MQTT connected")

		c.hmu.Lock()
		handlers := append([]func(){}, c.connectHandlers...)
		c.hmu.Unlock()
		for _, fn := range handlers {
			fn()
		}
	}

	return opts, nil
}

func tlsConfig(caFile string) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if caFile == "" {
		return cfg, nil
	}
	ca, err := os.ReadFile(caFile)
	if err != nil {
		return nil, err
	}
	cp := x509.NewCertPool()
	if !cp.AppendCertsFromPEM(ca) {
		return nil, fmt.Errorf("bad CA file")
	}
	cfg.RootCAs = cp
	return cfg, nil
}

// AddCleanupFunc adds a cleanup function
func (c *AgentContainer) AddCleanupFunc(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}

// Shutdown gracefully shuts down the container and all its dependencies
func (c *AgentContainer) Shutdown(ctx context.Context) error {
	c.logger.Info("Shutting down agent container...")

	c.mu.Lock()
	funcs := c.cleanupFuncs
	c.cleanupFuncs = nil
	c.mu.Unlock()

	// Execute cleanup functions in reverse order
	var errs []error
	for i := len(funcs) - 1; i >= 0; i-- {
		if err := funcs[i](); err != nil {
			c.logger.ErrorWithError(err, "Error during cleanup")
			errs = append(errs, err)
		}
	}

	c.logger.Info("Agent container shutdown complete")
	return errors.Join(errs...)
}
