package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix               = "CAMPAIGNBOARD"
	defaultHTTPAddress      = "0.0.0.0:8080"
	defaultLogLevel         = "info"
	defaultLogEncoding      = "json"
	defaultStoreBackend     = StoreBackendMemory
	defaultActivityCapacity = 50
	defaultHeartbeatSeconds = 15
	defaultAMQPQueue        = "campaign_activity"
	defaultAMQPBufferSize   = 256
	StoreBackendMemory      = "memory"
	StoreBackendSQLite      = "sqlite"
	logEncodingJSON         = "json"
	logEncodingConsole      = "console"
	keyHTTPAddress          = "http.address"
	keyLogLevel             = "log.level"
	keyLogEncoding          = "log.encoding"
	keyStoreBackend         = "store.backend"
	keyActivityCapacity     = "store.activity_capacity"
	keyStrictReferences     = "store.strict_references"
	keySeed                 = "store.seed"
	keySeedFile             = "store.seed_file"
	keyHeartbeatSeconds     = "realtime.heartbeat_seconds"
	keyAMQPURL              = "amqp.url"
	keyAMQPQueue            = "amqp.queue"
	keyAMQPBufferSize       = "amqp.buffer_size"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress       string
	LogLevel          string
	LogEncoding       string
	StoreBackend      string
	ActivityCapacity  int
	StrictReferences  bool
	SeedEnabled       bool
	SeedFile          string
	HeartbeatInterval time.Duration
	AMQPURL           string
	AMQPQueue         string
	AMQPBufferSize    int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault(keyHTTPAddress, defaultHTTPAddress)
	configViper.SetDefault(keyLogLevel, defaultLogLevel)
	configViper.SetDefault(keyLogEncoding, defaultLogEncoding)
	configViper.SetDefault(keyStoreBackend, defaultStoreBackend)
	configViper.SetDefault(keyActivityCapacity, defaultActivityCapacity)
	configViper.SetDefault(keyStrictReferences, false)
	configViper.SetDefault(keySeed, true)
	configViper.SetDefault(keySeedFile, "")
	configViper.SetDefault(keyHeartbeatSeconds, defaultHeartbeatSeconds)
	configViper.SetDefault(keyAMQPURL, "")
	configViper.SetDefault(keyAMQPQueue, defaultAMQPQueue)
	configViper.SetDefault(keyAMQPBufferSize, defaultAMQPBufferSize)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:       configViper.GetString(keyHTTPAddress),
		LogLevel:          configViper.GetString(keyLogLevel),
		LogEncoding:       strings.ToLower(strings.TrimSpace(configViper.GetString(keyLogEncoding))),
		StoreBackend:      strings.ToLower(strings.TrimSpace(configViper.GetString(keyStoreBackend))),
		ActivityCapacity:  configViper.GetInt(keyActivityCapacity),
		StrictReferences:  configViper.GetBool(keyStrictReferences),
		SeedEnabled:       configViper.GetBool(keySeed),
		SeedFile:          strings.TrimSpace(configViper.GetString(keySeedFile)),
		HeartbeatInterval: time.Duration(configViper.GetInt(keyHeartbeatSeconds)) * time.Second,
		AMQPURL:           strings.TrimSpace(configViper.GetString(keyAMQPURL)),
		AMQPQueue:         strings.TrimSpace(configViper.GetString(keyAMQPQueue)),
		AMQPBufferSize:    configViper.GetInt(keyAMQPBufferSize),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("%s is required", keyHTTPAddress)
	}
	switch c.StoreBackend {
	case StoreBackendMemory, StoreBackendSQLite:
	default:
		return fmt.Errorf("%s must be %q or %q, got %q", keyStoreBackend, StoreBackendMemory, StoreBackendSQLite, c.StoreBackend)
	}
	switch c.LogEncoding {
	case logEncodingJSON, logEncodingConsole:
	default:
		return fmt.Errorf("%s must be %q or %q, got %q", keyLogEncoding, logEncodingJSON, logEncodingConsole, c.LogEncoding)
	}
	if c.ActivityCapacity <= 0 {
		return fmt.Errorf("%s must be positive", keyActivityCapacity)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("%s must be positive", keyHeartbeatSeconds)
	}
	if c.AMQPURL != "" {
		if c.AMQPQueue == "" {
			return fmt.Errorf("%s is required when %s is set", keyAMQPQueue, keyAMQPURL)
		}
		if c.AMQPBufferSize <= 0 {
			return fmt.Errorf("%s must be positive", keyAMQPBufferSize)
		}
	}
	return nil
}
