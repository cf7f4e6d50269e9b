package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. ESPRESSO_DEVICE_HOST.
const EnvPrefix = "ESPRESSO"

// MinRefreshInterval keeps a zero or negative refresh rate from busy-looping the coordinator.
const MinRefreshInterval = 100 * time.Millisecond

// Config is the full application configuration.
type Config struct {
	RefreshRateMs int              `mapstructure:"refresh_rate_ms"`
	LogLevel      string           `mapstructure:"log_level"`
	Device        DeviceConfig     `mapstructure:"device"`
	Shot          ShotConfig       `mapstructure:"shot"`
	LaMarzocco    LaMarzoccoConfig `mapstructure:"la_marzocco"`
	HTTP          HTTPConfig       `mapstructure:"http"`
	Auth          AuthConfig       `mapstructure:"auth"`
	DB            DBConfig         `mapstructure:"db"`
	MQTT          MQTTConfig       `mapstructure:"mqtt"`
}

// DeviceConfig addresses the paddle controller.
type DeviceConfig struct {
	Scheme          string `mapstructure:"scheme"`
	Host            string `mapstructure:"host"`
	TimeoutMs       int    `mapstructure:"timeout_ms"`
	BreakerFailures int    `mapstructure:"breaker_failures"` // 0 disables the breaker
	BreakerOpenMs   int    `mapstructure:"breaker_open_ms"`
}

// ShotConfig tunes the simulated telemetry.
type ShotConfig struct {
	TargetWeightG float64 `mapstructure:"target_weight_g"`
	Seed          uint64  `mapstructure:"seed"` // 0 seeds from the clock
	Speed         float64 `mapstructure:"speed"`
}

// LaMarzoccoConfig holds the cloud credentials and polling knobs.
type LaMarzoccoConfig struct {
	EnableCloud               bool   `mapstructure:"enable_cloud"`
	BaseURL                   string `mapstructure:"base_url"`
	SerialNumber              string `mapstructure:"serial_number"`
	Username                  string `mapstructure:"username"`
	Password                  string `mapstructure:"password"`
	InstallationID            string `mapstructure:"installation_id"`
	InstallationSecretB64     string `mapstructure:"installation_secret_b64"`
	InstallationPrivateKeyB64 string `mapstructure:"installation_private_key_b64"`
	PollIntervalMs            int    `mapstructure:"poll_interval_ms"`
	SetupRetries              int    `mapstructure:"setup_retries"`
	RequestTimeoutMs          int    `mapstructure:"request_timeout_ms"`
}

// HTTPConfig configures the display-facing API.
type HTTPConfig struct {
	Port               string  `mapstructure:"port"`
	WSIntervalMs       int     `mapstructure:"ws_interval_ms"`
	OverrideRatePerSec float64 `mapstructure:"override_rate_per_sec"`
	OverrideBurst      int     `mapstructure:"override_burst"`
}

// AuthConfig holds the single operator allowed to send overrides.
type AuthConfig struct {
	Username        string `mapstructure:"username"`
	PasswordHash    string `mapstructure:"password_hash"` // bcrypt
	SigningKey      string `mapstructure:"signing_key"`
	TokenTTLMinutes int    `mapstructure:"token_ttl_minutes"`
}

// DBConfig locates the checkpoint database.
type DBConfig struct {
	Path                 string `mapstructure:"path"`
	CheckpointIntervalMs int    `mapstructure:"checkpoint_interval_ms"`
}

// MQTTConfig configures the optional state mirror.
type MQTTConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	Host              string `mapstructure:"host"`
	Port              int    `mapstructure:"port"`
	User              string `mapstructure:"user"`
	Password          string `mapstructure:"password"`
	ClientID          string `mapstructure:"client_id"`
	Topic             string `mapstructure:"topic"`
	PublishIntervalMs int    `mapstructure:"publish_interval_ms"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("refresh_rate_ms", 200)
	v.SetDefault("log_level", "info")

	v.SetDefault("device.scheme", "http")
	v.SetDefault("device.host", "192.168.0.177")
	v.SetDefault("device.timeout_ms", 600)
	v.SetDefault("device.breaker_failures", 5)
	v.SetDefault("device.breaker_open_ms", 3000)

	v.SetDefault("shot.target_weight_g", 36.0)
	v.SetDefault("shot.seed", 0)
	v.SetDefault("shot.speed", 1.0)

	v.SetDefault("la_marzocco.enable_cloud", false)
	v.SetDefault("la_marzocco.base_url", "https://lion.lamarzocco.io/api/customer-app")
	v.SetDefault("la_marzocco.serial_number", "")
	v.SetDefault("la_marzocco.username", "")
	v.SetDefault("la_marzocco.password", "")
	v.SetDefault("la_marzocco.installation_id", "")
	v.SetDefault("la_marzocco.installation_secret_b64", "")
	v.SetDefault("la_marzocco.installation_private_key_b64", "")
	v.SetDefault("la_marzocco.poll_interval_ms", 1000)
	v.SetDefault("la_marzocco.setup_retries", 3)
	v.SetDefault("la_marzocco.request_timeout_ms", 10000)

	v.SetDefault("http.port", "8080")
	v.SetDefault("http.ws_interval_ms", 200)
	v.SetDefault("http.override_rate_per_sec", 2.0)
	v.SetDefault("http.override_burst", 3)

	v.SetDefault("auth.username", "barista")
	v.SetDefault("auth.password_hash", "")
	v.SetDefault("auth.signing_key", "")
	v.SetDefault("auth.token_ttl_minutes", 60)

	v.SetDefault("db.path", "espresso.db")
	v.SetDefault("db.checkpoint_interval_ms", 5000)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.host", "127.0.0.1")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.user", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.client_id", "espressod")
	v.SetDefault("mqtt.topic", "lm/dashboard/state")
	v.SetDefault("mqtt.publish_interval_ms", 1000)
}

// Load reads the YAML file at path (optional) and applies defaults and ESPRESSO_* overrides.
// An empty path searches ./configs/config.yml.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("configs")
		v.SetConfigName("config")
		v.SetConfigType("yml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// RefreshInterval is the coordinator cadence, floored at MinRefreshInterval.
func (c *Config) RefreshInterval() time.Duration {
	d := time.Duration(c.RefreshRateMs) * time.Millisecond
	if d < MinRefreshInterval {
		return MinRefreshInterval
	}
	return d
}

// BaseURL is the controller root, e.g. http://192.168.0.177.
func (d DeviceConfig) BaseURL() string {
	scheme := d.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return scheme + "://" + strings.TrimRight(d.Host, "/")
}

// Timeout bounds one controller request.
func (d DeviceConfig) Timeout() time.Duration {
	if d.TimeoutMs <= 0 {
		return 600 * time.Millisecond
	}
	return time.Duration(d.TimeoutMs) * time.Millisecond
}

// HasCredentials reports whether every field the cloud source needs is set.
func (l LaMarzoccoConfig) HasCredentials() bool {
	for _, v := range []string{
		l.Username,
		l.Password,
		l.SerialNumber,
		l.InstallationID,
		l.InstallationSecretB64,
		l.InstallationPrivateKeyB64,
	} {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

// PollInterval is the delay between dashboard fetches.
func (l LaMarzoccoConfig) PollInterval() time.Duration {
	if l.PollIntervalMs <= 0 {
		return time.Second
	}
	return time.Duration(l.PollIntervalMs) * time.Millisecond
}

// millis converts a positive millisecond setting, falling back to def.
func millis(ms int, def time.Duration) time.Duration {
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

// RequestTimeout bounds a single cloud API call.
func (l LaMarzoccoConfig) RequestTimeout() time.Duration {
	return millis(l.RequestTimeoutMs, 10*time.Second)
}

// CheckpointInterval is how often the latest state is written to the database.
func (d DBConfig) CheckpointInterval() time.Duration {
	return millis(d.CheckpointIntervalMs, 5*time.Second)
}

// PublishInterval is how often the MQTT mirror checks for a new state.
func (m MQTTConfig) PublishInterval() time.Duration {
	return millis(m.PublishIntervalMs, time.Second)
}

// WSInterval is the default push cadence of the /ws stream.
func (h HTTPConfig) WSInterval() time.Duration {
	return millis(h.WSIntervalMs, 200*time.Millisecond)
}

// TokenTTL is the lifetime of operator tokens.
func (a AuthConfig) TokenTTL() time.Duration {
	if a.TokenTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(a.TokenTTLMinutes) * time.Minute
}
