package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends understood by the identity store factory.
const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
)

// Geolocation providers.
const (
	GeoProviderStatic = "static"
	GeoProviderMQTT   = "mqtt"
)

// MaxScannerFPS caps the frame loop rate
const MaxScannerFPS = 60

// AgentConfig holds all configuration of the attendance agent
type AgentConfig struct {
	Server      ServerConfig      `json:"server"`
	API         APIConfig         `json:"api"`
	Storage     StorageConfig     `json:"storage"`
	Scanner     ScannerConfig     `json:"scanner"`
	Geolocation GeolocationConfig `json:"geolocation"`
	MQTT        MQTTConfig        `json:"mqtt"`
	Logging     LoggingConfig     `json:"logging"`
	CORS        CORSConfig        `json:"cors"`
}

// ServerConfig holds the local control API configuration
type ServerConfig struct {
	Enabled      bool          `json:"enabled"`
	Port         string        `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// APIConfig holds the attendance server endpoints
type APIConfig struct {
	BaseURL        string        `json:"base_url"`
	LoginPath      string        `json:"login_path"`
	AttendancePath string        `json:"attendance_path"`
	Timeout        time.Duration `json:"timeout"`
	UserAgent      string        `json:"user_agent"`
}

// StorageConfig selects and configures the device identity store
type StorageConfig struct {
	Backend string `json:"backend"`

	FilePath string `json:"file_path"`

	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`
	RedisPrefix   string `json:"redis_prefix"`

	MongoURI        string `json:"mongo_uri"`
	MongoDatabase   string `json:"mongo_database"`
	MongoCollection string `json:"mongo_collection"`

	PostgresDSN string `json:"postgres_dsn"`

	ConnectTimeout time.Duration `json:"connect_timeout"`
}

// ScannerConfig holds the QR frame loop settings
type ScannerConfig struct {
	Enabled     bool   `json:"enabled"`
	FPS         int    `json:"fps"`
	QRBoxWidth  int    `json:"qrbox_width"`
	QRBoxHeight int    `json:"qrbox_height"`
	SpoolDir    string `json:"spool_dir"`
}

// GeolocationConfig selects the position provider
type GeolocationConfig struct {
	Provider  string        `json:"provider"`
	Latitude  float64       `json:"latitude"`
	Longitude float64       `json:"longitude"`
	Accuracy  float64       `json:"accuracy"`
	Timeout   time.Duration `json:"timeout"`
	MQTTTopic string        `json:"mqtt_topic"`
}

// MQTTConfig holds broker settings shared by the GPS locator and the notice publisher
type MQTTConfig struct {
	Enabled     bool          `json:"enabled"`
	BrokerHost  string        `json:"broker_host"`
	BrokerPort  int           `json:"broker_port"`
	BrokerUser  string        `json:"broker_user"`
	BrokerPass  string        `json:"broker_pass"`
	UseTLS      bool          `json:"use_tls"`
	CACertPath  string        `json:"ca_cert_path"`
	ClientID    string        `json:"client_id"`
	NoticeTopic string        `json:"notice_topic"`
	KeepAlive   time.Duration `json:"keep_alive"`
	PingTimeout time.Duration `json:"ping_timeout"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level        string `json:"level"`
	Format       string `json:"format"` // json or text
	Output       string `json:"output"` // stdout, stderr, or file path
	EnableCaller bool   `json:"enable_caller"`
}

// CORSConfig holds CORS settings for the control API
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age"`
}

// LoadAgentConfig loads configuration from environment variables with fallback defaults
func LoadAgentConfig() (*AgentConfig, error) {
	// A missing .env is fine; variables may be set directly.
	_ = godotenv.Load()

	config := &AgentConfig{
		Server: ServerConfig{
			Enabled:      getBool("AGENT_HTTP_ENABLED", true),
			Port:         getEnv("AGENT_PORT", "9010"),
			ReadTimeout:  getDuration("READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getDuration("WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getDuration("IDLE_TIMEOUT", 120*time.Second),
		},
		API: APIConfig{
			BaseURL:        strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:5000"), "/"),
			LoginPath:      getEnv("LOGIN_PATH", "/login"),
			AttendancePath: getEnv("ATTENDANCE_PATH", "/registrar_asistencia"),
			Timeout:        getDuration("API_TIMEOUT", 15*time.Second),
			UserAgent:      getEnv("API_USER_AGENT", "attendance-agent"),
		},
		Storage: StorageConfig{
			Backend:         strings.ToLower(getEnv("STORAGE_BACKEND", BackendFile)),
			FilePath:        getEnv("STORAGE_FILE", defaultStorageFile()),
			RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword:   getEnv("REDIS_PASSWORD", ""),
			RedisDB:         getInt("REDIS_DB", 0),
			RedisPrefix:     getEnv("REDIS_PREFIX", "attendance:"),
			MongoURI:        getEnv("MONGODB_URI", ""),
			MongoDatabase:   getEnv("MONGODB_DB", "attendance"),
			MongoCollection: getEnv("MONGODB_COLLECTION", "device_kv"),
			PostgresDSN:     getEnv("POSTGRES_DSN", ""),
			ConnectTimeout:  getDuration("STORAGE_CONNECT_TIMEOUT", 10*time.Second),
		},
		Scanner: ScannerConfig{
			Enabled:     getBool("SCANNER_ENABLED", false),
			FPS:         getInt("SCANNER_FPS", 10),
			QRBoxWidth:  getInt("SCANNER_QRBOX_WIDTH", 250),
			QRBoxHeight: getInt("SCANNER_QRBOX_HEIGHT", 250),
			SpoolDir:    getEnv("SCANNER_SPOOL_DIR", ""),
		},
		Geolocation: GeolocationConfig{
			Provider:  strings.ToLower(getEnv("GEO_PROVIDER", GeoProviderStatic)),
			Latitude:  getFloat("GEO_LATITUDE", 0),
			Longitude: getFloat("GEO_LONGITUDE", 0),
			Accuracy:  getFloat("GEO_ACCURACY", 0),
			Timeout:   getDuration("GEO_TIMEOUT", 30*time.Second),
			MQTTTopic: getEnv("GEO_MQTT_TOPIC", "gps/fix"),
		},
		MQTT: MQTTConfig{
			Enabled:     getBool("MQTT_ENABLED", false),
			BrokerHost:  getEnv("BROKER_HOST", "localhost"),
			BrokerPort:  getInt("BROKER_PORT", 1883),
			BrokerUser:  getEnv("BROKER_USER", ""),
			BrokerPass:  getEnv("BROKER_PASS", ""),
			UseTLS:      getBool("BROKER_TLS", false),
			CACertPath:  getEnv("BROKER_CA_FILE", ""),
			ClientID:    getEnv("MQTT_CLIENT_ID", "attendance-agent"),
			NoticeTopic: getEnv("MQTT_NOTICE_TOPIC", "attendance/notices"),
			KeepAlive:   getDuration("MQTT_KEEP_ALIVE", 30*time.Second),
			PingTimeout: getDuration("MQTT_PING_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level:        getEnv("LOG_LEVEL", "info"),
			Format:       getEnv("LOG_FORMAT", "text"),
			Output:       getEnv("LOG_OUTPUT", "stdout"),
			EnableCaller: getBool("LOG_ENABLE_CALLER", false),
		},
		CORS: CORSConfig{
			AllowedOrigins:   getStringSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			AllowedMethods:   getStringSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
			AllowedHeaders:   getStringSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept"}),
			AllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           getInt("CORS_MAX_AGE", 43200), // 12 hours
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *AgentConfig) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	if !strings.HasPrefix(c.API.LoginPath, "/") || !strings.HasPrefix(c.API.AttendancePath, "/") {
		return fmt.Errorf("LOGIN_PATH and ATTENDANCE_PATH must start with /")
	}

	switch c.Storage.Backend {
	case BackendFile:
		if c.Storage.FilePath == "" {
			return fmt.Errorf("STORAGE_FILE is required for the file backend")
		}
	case BackendRedis:
		if c.Storage.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis backend")
		}
	case BackendMongo:
		if c.Storage.MongoURI == "" {
			return fmt.Errorf("MONGODB_URI is required for the mongo backend")
		}
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}

	if c.Scanner.Enabled {
		if c.Scanner.FPS <= 0 || c.Scanner.FPS > MaxScannerFPS {
			return fmt.Errorf("SCANNER_FPS must be between 1 and %d", MaxScannerFPS)
		}
		if c.Scanner.QRBoxWidth <= 0 || c.Scanner.QRBoxHeight <= 0 {
			return fmt.Errorf("scanner qrbox dimensions must be positive")
		}
		if c.Scanner.SpoolDir == "" {
			return fmt.Errorf("SCANNER_SPOOL_DIR is required when the scanner is enabled")
		}
	}

	switch c.Geolocation.Provider {
	case GeoProviderStatic:
		if c.Geolocation.Latitude < -90 || c.Geolocation.Latitude > 90 ||
			c.Geolocation.Longitude < -180 || c.Geolocation.Longitude > 180 {
			return fmt.Errorf("GEO_LATITUDE/GEO_LONGITUDE out of range")
		}
	case GeoProviderMQTT:
		if !c.MQTT.Enabled {
			return fmt.Errorf("GEO_PROVIDER=mqtt requires MQTT_ENABLED")
		}
		if c.Geolocation.MQTTTopic == "" {
			return fmt.Errorf("GEO_MQTT_TOPIC is required for the mqtt provider")
		}
	default:
		return fmt.Errorf("unknown GEO_PROVIDER %q", c.Geolocation.Provider)
	}

	if c.MQTT.Enabled && c.MQTT.BrokerHost == "" {
		return fmt.Errorf("BROKER_HOST is required when MQTT is enabled")
	}

	return nil
}

// LoginURL returns the absolute login endpoint
func (c *AgentConfig) LoginURL() string {
	return c.API.BaseURL + c.API.LoginPath
}

// AttendanceURL returns the absolute attendance endpoint
func (c *AgentConfig) AttendanceURL() string {
	return c.API.BaseURL + c.API.AttendancePath
}

// GetMQTTBrokerURL returns the MQTT broker URL
func (c *AgentConfig) GetMQTTBrokerURL() string {
	scheme := "tcp"
	if c.MQTT.UseTLS {
		scheme = "tcps"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.MQTT.BrokerHost, c.MQTT.BrokerPort)
}

func defaultStorageFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "attendance-agent.json"
	}
	return home + string(os.PathSeparator) + ".attendance-agent" + string(os.PathSeparator) + "storage.json"
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return intValue
}

func getFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return f
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if value == "1" || value == "true" || value == "TRUE" {
		return true
	}
	if value == "0" || value == "false" || value == "FALSE" {
		return false
	}
	log.Fatalf("invalid %s: %q (expected true/false or 1/0)", key, value)
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return duration
}

func getStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
