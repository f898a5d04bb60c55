package app

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"cipherline/internal/crypto"
	"cipherline/internal/domain"
	"cipherline/internal/util/retry"
)

// DefaultHome is used when no home directory is configured.
const DefaultHome = "~/.cipherline"

// Config holds runtime wiring options for building the app.
type Config struct {
	Home        string         `mapstructure:"home"`   // config directory, e.g. ~/.cipherline
	Server      string         `mapstructure:"server"` // relay base URL, e.g. http://127.0.0.1:8080
	Token       string         `mapstructure:"token"`
	UserID      int64          `mapstructure:"user_id"`
	LogLevel    string         `mapstructure:"log_level"`
	KDF         string         `mapstructure:"kdf"`
	GroupKey    GroupKeyConfig `mapstructure:"group_key"`
	Channel     ChannelConfig  `mapstructure:"channel"`
	RateLimit   float64        `mapstructure:"rate_limit"`
	RateBurst   int            `mapstructure:"rate_burst"`
	MetricsAddr string         `mapstructure:"metrics_addr"`

	HTTP *http.Client `mapstructure:"-"` // optional; defaults to a client with a timeout
}

type GroupKeyConfig struct {
	Retries    int           `mapstructure:"retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	FanOut     int           `mapstructure:"fan_out"`
}

type ChannelConfig struct {
	AckTimeout     time.Duration `mapstructure:"ack_timeout"`
	ResyncInterval time.Duration `mapstructure:"resync_interval"`
}

var (
	errNoServer = errors.New("no server configured (use --server or CIPHERLINE_SERVER)")
	errNoUser   = errors.New("no user id configured (use --user or CIPHERLINE_USER_ID)")
)

// SetDefaults installs default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("home", DefaultHome)
	v.SetDefault("server", "")
	v.SetDefault("token", "")
	v.SetDefault("user_id", 0)
	v.SetDefault("metrics_addr", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("kdf", domain.KDFArgon2id)
	v.SetDefault("group_key.retries", 2)
	v.SetDefault("group_key.retry_delay", "1200ms")
	v.SetDefault("group_key.fan_out", 8)
	v.SetDefault("channel.ack_timeout", "250ms")
	v.SetDefault("channel.resync_interval", "30s")
	v.SetDefault("rate_limit", 20.0)
	v.SetDefault("rate_burst", 10)
}

// LoadConfig reads the config file (if any) and the environment into a
// Config. Flags must already be bound to v.
func LoadConfig(v *viper.Viper) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix("CIPHERLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	home, err := homedir.Expand(v.GetString("home"))
	if err != nil {
		return Config{}, fmt.Errorf("expand home: %w", err)
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(home)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Home = home
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if _, err := c.KDFParams(); err != nil {
		return err
	}
	if c.GroupKey.Retries < 0 {
		return fmt.Errorf("group_key.retries must be >= 0, got %d", c.GroupKey.Retries)
	}
	return nil
}

// KDFParams maps the configured KDF name to its parameters.
func (c Config) KDFParams() (domain.KDFParams, error) {
	switch c.KDF {
	case "", domain.KDFArgon2id:
		return crypto.DefaultKDFParams(), nil
	case domain.KDFScrypt:
		return crypto.ScryptKDFParams(), nil
	default:
		return domain.KDFParams{}, fmt.Errorf("unknown kdf %q", c.KDF)
	}
}

// RetryPolicy is the group key fetch policy.
func (c Config) RetryPolicy() retry.Policy {
	return retry.Policy{Retries: c.GroupKey.Retries, Delay: c.GroupKey.RetryDelay}
}

// RequireServer reports whether networked commands can run.
func (c Config) RequireServer() error {
	if c.Server == "" {
		return errNoServer
	}
	if c.UserID == 0 {
		return errNoUser
	}
	return nil
}
