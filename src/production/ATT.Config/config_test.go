package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAgentConfig_Defaults(t *testing.T) {
	os.Clearenv()
	os.Setenv("STORAGE_FILE", "/tmp/agent-storage.json")

	cfg, err := LoadAgentConfig()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:5000", cfg.API.BaseURL)
	assert.Equal(t, "http://localhost:5000/login", cfg.LoginURL())
	assert.Equal(t, "http://localhost:5000/registrar_asistencia", cfg.AttendanceURL())
	assert.Equal(t, 15*time.Second, cfg.API.Timeout)
	assert.Equal(t, BackendFile, cfg.Storage.Backend)
	assert.Equal(t, 10, cfg.Scanner.FPS)
	assert.Equal(t, 250, cfg.Scanner.QRBoxWidth)
	assert.Equal(t, 250, cfg.Scanner.QRBoxHeight)
	assert.False(t, cfg.Scanner.Enabled)
	assert.Equal(t, GeoProviderStatic, cfg.Geolocation.Provider)
	assert.Equal(t, "tcp://localhost:1883", cfg.GetMQTTBrokerURL())
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadAgentConfig_EnvOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("API_BASE_URL", "https://asistencia.example.edu/")
	os.Setenv("ATTENDANCE_PATH", "/api/registrar-asistencia")
	os.Setenv("STORAGE_BACKEND", "REDIS")
	os.Setenv("REDIS_ADDR", "cache:6379")
	os.Setenv("GEO_LATITUDE", "19.4326")
	os.Setenv("GEO_LONGITUDE", "-99.1332")
	os.Setenv("CORS_ALLOWED_ORIGINS", "http://kiosk.local, http://localhost:8080 ,")
	os.Setenv("BROKER_TLS", "true")

	cfg, err := LoadAgentConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://asistencia.example.edu/api/registrar-asistencia", cfg.AttendanceURL())
	assert.Equal(t, BackendRedis, cfg.Storage.Backend)
	assert.Equal(t, "cache:6379", cfg.Storage.RedisAddr)
	assert.InDelta(t, 19.4326, cfg.Geolocation.Latitude, 1e-9)
	assert.InDelta(t, -99.1332, cfg.Geolocation.Longitude, 1e-9)
	assert.Equal(t, []string{"http://kiosk.local", "http://localhost:8080"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, "tcps://localhost:1883", cfg.GetMQTTBrokerURL())
}

func TestValidate(t *testing.T) {
	valid := func() *AgentConfig {
		return &AgentConfig{
			API: APIConfig{BaseURL: "http://api", LoginPath: "/login", AttendancePath: "/registrar_asistencia"},
			Storage: StorageConfig{
				Backend:  BackendFile,
				FilePath: "/tmp/x.json",
			},
			Scanner:     ScannerConfig{FPS: 10, QRBoxWidth: 250, QRBoxHeight: 250},
			Geolocation: GeolocationConfig{Provider: GeoProviderStatic},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *AgentConfig)
		wantErr bool
	}{
		{"valid", func(c *AgentConfig) {}, false},
		{"unknown backend", func(c *AgentConfig) { c.Storage.Backend = "etcd" }, true},
		{"mongo without uri", func(c *AgentConfig) { c.Storage.Backend = BackendMongo }, true},
		{"postgres with dsn", func(c *AgentConfig) {
			c.Storage.Backend = BackendPostgres
			c.Storage.PostgresDSN = "postgres://localhost/att"
		}, false},
		{"scanner without spool dir", func(c *AgentConfig) { c.Scanner.Enabled = true }, true},
		{"scanner zero fps", func(c *AgentConfig) {
			c.Scanner.Enabled = true
			c.Scanner.SpoolDir = "/tmp/frames"
			c.Scanner.FPS = 0
		}, true},
		{"scanner fps above cap", func(c *AgentConfig) {
			c.Scanner.Enabled = true
			c.Scanner.SpoolDir = "/tmp/frames"
			c.Scanner.FPS = MaxScannerFPS + 1
		}, true},
		{"scanner fps overflowing ticker", func(c *AgentConfig) {
			c.Scanner.Enabled = true
			c.Scanner.SpoolDir = "/tmp/frames"
			c.Scanner.FPS = 2_000_000_000
		}, true},
		{"scanner fps at cap", func(c *AgentConfig) {
			c.Scanner.Enabled = true
			c.Scanner.SpoolDir = "/tmp/frames"
			c.Scanner.FPS = MaxScannerFPS
		}, false},
		{"mqtt geo without mqtt", func(c *AgentConfig) { c.Geolocation.Provider = GeoProviderMQTT }, true},
		{"latitude out of range", func(c *AgentConfig) { c.Geolocation.Latitude = 91 }, true},
		{"relative login path", func(c *AgentConfig) { c.API.LoginPath = "login" }, true},
		{"unknown geo provider", func(c *AgentConfig) { c.Geolocation.Provider = "wifi" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
