package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/msim-telephony/internal/phone"
)

// EnvPrefix prefixes every environment override, e.g. MSIM_MQTT_BROKER.
const EnvPrefix = "MSIM_"

type Config struct {
	Platform      PlatformConfig      `yaml:"platform" envPrefix:"PLATFORM_"`
	Subscriptions SubscriptionsConfig `yaml:"subscriptions" envPrefix:"SUBSCRIPTIONS_"`
	Calls         CallsConfig         `yaml:"calls" envPrefix:"CALLS_"`
	Voicemail     VoicemailConfig     `yaml:"voicemail" envPrefix:"VOICEMAIL_"`
	MQTT          MQTTConfig          `yaml:"mqtt" envPrefix:"MQTT_"`
	Store         StoreConfig         `yaml:"store" envPrefix:"STORE_"`
	HTTP          HTTPConfig          `yaml:"http" envPrefix:"HTTP_"`
	Log           LogConfig           `yaml:"log" envPrefix:"LOG_"`
}

type PlatformConfig struct {
	Host              string        `yaml:"host" env:"HOST"`
	Port              int           `yaml:"port" env:"PORT"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval" env:"RECONNECT_INTERVAL"`
	EmergencyNumbers  []string      `yaml:"emergency_numbers" env:"EMERGENCY_NUMBERS" envSeparator:","`
}

type SubscriptionsConfig struct {
	Count      int      `yaml:"count" env:"COUNT"`
	Default    int      `yaml:"default" env:"DEFAULT"`
	PhoneTypes []string `yaml:"phone_types" env:"PHONE_TYPES" envSeparator:","`
}

type CallsConfig struct {
	AutoRetry          bool          `yaml:"auto_retry" env:"AUTO_RETRY"`
	EmergencyTone      string        `yaml:"emergency_tone" env:"EMERGENCY_TONE"`
	TTYMode            string        `yaml:"tty_mode" env:"TTY_MODE"`
	HAC                bool          `yaml:"hac" env:"HAC"`
	CallerInfoTimeout  time.Duration `yaml:"caller_info_timeout" env:"CALLER_INFO_TIMEOUT"`
	CallEndedDelay     time.Duration `yaml:"call_ended_delay" env:"CALL_ENDED_DELAY"`
	CallWaitingDisplay time.Duration `yaml:"call_waiting_display" env:"CALL_WAITING_DISPLAY"`
}

type VoicemailConfig struct {
	RetryLimit int           `yaml:"retry_limit" env:"RETRY_LIMIT"`
	RetryDelay time.Duration `yaml:"retry_delay" env:"RETRY_DELAY"`
}

type MQTTConfig struct {
	Broker      string `yaml:"broker" env:"BROKER"`
	ClientID    string `yaml:"client_id" env:"CLIENT_ID"`
	TopicPrefix string `yaml:"topic_prefix" env:"TOPIC_PREFIX"`
	Username    string `yaml:"username" env:"USERNAME"`
	Password    string `yaml:"password" env:"PASSWORD"`
}

type StoreConfig struct {
	Driver        string `yaml:"driver" env:"DRIVER"`
	Path          string `yaml:"path" env:"PATH"`
	RedisAddr     string `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"REDIS_DB"`
	KeyPrefix     string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

type HTTPConfig struct {
	Listen string `yaml:"listen" env:"LISTEN"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

func (c *PlatformConfig) Addr() string {
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", c.Port))
}

// Default returns the configuration used for anything a file or the
// environment does not set.
func Default() *Config {
	return &Config{
		Platform: PlatformConfig{
			Host:              "127.0.0.1",
			Port:              5039,
			ReconnectInterval: 5 * time.Second,
			EmergencyNumbers:  []string{"911", "112"},
		},
		Subscriptions: SubscriptionsConfig{
			Count:   2,
			Default: 0,
		},
		Calls: CallsConfig{
			EmergencyTone:      string(phone.EmergencyToneOff),
			TTYMode:            "off",
			CallerInfoTimeout:  500 * time.Millisecond,
			CallEndedDelay:     2 * time.Second,
			CallWaitingDisplay: 20 * time.Second,
		},
		Voicemail: VoicemailConfig{
			RetryLimit: 6,
			RetryDelay: 10 * time.Second,
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			ClientID:    "msimd",
			TopicPrefix: "phone",
		},
		Store: StoreConfig{
			Driver:    "sqlite",
			Path:      "/var/lib/msimd/state.db",
			RedisAddr: "localhost:6379",
			KeyPrefix: "msim:",
		},
		HTTP: HTTPConfig{Listen: "127.0.0.1:8089"},
		Log:  LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the YAML file at path (skipped when path is empty) over the
// defaults, then applies MSIM_* environment overrides.
func Load(path string) (*Config, error) {
	return load(path, nil)
}

// LoadEnv is Load with an explicit environment instead of the process one.
func LoadEnv(path string, environ map[string]string) (*Config, error) {
	if environ == nil {
		environ = map[string]string{}
	}
	return load(path, environ)
}

func load(path string, environ map[string]string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix, Environment: environ}); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Platform.Host == "" {
		return fmt.Errorf("platform.host is required")
	}
	if c.Platform.Port < 1 || c.Platform.Port > 65535 {
		return fmt.Errorf("platform.port must be between 1 and 65535, got %d", c.Platform.Port)
	}
	if c.Platform.ReconnectInterval <= 0 {
		return fmt.Errorf("platform.reconnect_interval must be positive")
	}

	if c.Subscriptions.Count < 1 || c.Subscriptions.Count > phone.MaxSubscriptions {
		return fmt.Errorf("subscriptions.count must be between 1 and %d, got %d",
			phone.MaxSubscriptions, c.Subscriptions.Count)
	}
	if c.Subscriptions.Default < 0 || c.Subscriptions.Default >= c.Subscriptions.Count {
		return fmt.Errorf("subscriptions.default must be below subscriptions.count, got %d", c.Subscriptions.Default)
	}
	if n := len(c.Subscriptions.PhoneTypes); n != 0 && n != c.Subscriptions.Count {
		return fmt.Errorf("subscriptions.phone_types has %d entries for %d subscriptions", n, c.Subscriptions.Count)
	}
	for _, pt := range c.Subscriptions.PhoneTypes {
		if _, err := phone.ParsePhoneType(pt); err != nil {
			return fmt.Errorf("subscriptions.phone_types: %w", err)
		}
	}

	if _, err := phone.ParseEmergencyTonePolicy(c.Calls.EmergencyTone); err != nil {
		return fmt.Errorf("calls.emergency_tone: %w", err)
	}
	switch strings.ToLower(c.Calls.TTYMode) {
	case "", "off", "full", "hco", "vco":
	default:
		return fmt.Errorf("calls.tty_mode must be off, full, hco or vco, got %q", c.Calls.TTYMode)
	}
	if c.Calls.CallerInfoTimeout <= 0 || c.Calls.CallEndedDelay <= 0 || c.Calls.CallWaitingDisplay <= 0 {
		return fmt.Errorf("calls timeouts must be positive")
	}

	if c.Voicemail.RetryLimit < 0 {
		return fmt.Errorf("voicemail.retry_limit must not be negative")
	}
	if c.Voicemail.RetryDelay <= 0 {
		return fmt.Errorf("voicemail.retry_delay must be positive")
	}

	if c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	if c.MQTT.ClientID == "" {
		return fmt.Errorf("mqtt.client_id is required")
	}
	if c.MQTT.TopicPrefix == "" {
		return fmt.Errorf("mqtt.topic_prefix is required")
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for sqlite")
		}
	case "redis":
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("store.redis_addr is required for redis")
		}
	default:
		return fmt.Errorf("store.driver must be sqlite or redis, got %q", c.Store.Driver)
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// PhoneTypes returns the radio type of every slot, GSM when unset.
func (c *Config) PhoneTypes() []phone.PhoneType {
	types := make([]phone.PhoneType, c.Subscriptions.Count)
	for i := range types {
		types[i] = phone.PhoneTypeGSM
		if i < len(c.Subscriptions.PhoneTypes) {
			if pt, err := phone.ParsePhoneType(c.Subscriptions.PhoneTypes[i]); err == nil {
				types[i] = pt
			}
		}
	}
	return types
}

// EmergencyTonePolicy returns the parsed calls.emergency_tone.
func (c *Config) EmergencyTonePolicy() phone.EmergencyTonePolicy {
	p, _ := phone.ParseEmergencyTonePolicy(c.Calls.EmergencyTone)
	return p
}

// SlogLevel parses log.level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}
