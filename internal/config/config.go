package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type TurnConfig struct {
	URL    string        `mapstructure:"url"`
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
	// Force mints fresh credentials on every wannaRecord/wannaPlay probe. The
	// default reuses a client's credential until half of TTL has passed.
	Force bool `mapstructure:"force"`
}

type WebRTCConfig struct {
	MinPort  uint16   `mapstructure:"min_port"`
	MaxPort  uint16   `mapstructure:"max_port"`
	NATIPs   []string `mapstructure:"nat_ips"`
	LogLevel string   `mapstructure:"log_level"`
}

type RecordConfig struct {
	MaxDuration time.Duration `mapstructure:"max_duration"`
	MaxPackets  int           `mapstructure:"max_packets"`
}

type RateConfig struct {
	Limit    int           `mapstructure:"limit"`
	Interval time.Duration `mapstructure:"interval"`
}

type CORSConfig struct {
	Origins []string `mapstructure:"origins"`
}

type TelemetryConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`
	// Backpressure is "drop" or "disconnect" for replies that cannot be queued.
	Backpressure string `mapstructure:"backpressure"`
	// Kuid identifies this media engine instance in pipeline tags.
	Kuid       string          `mapstructure:"kuid"`
	ICEServers []ICEServer     `mapstructure:"ice_servers"`
	Turn       TurnConfig      `mapstructure:"turn"`
	WebRTC     WebRTCConfig    `mapstructure:"webrtc"`
	Record     RecordConfig    `mapstructure:"record"`
	Rate       RateConfig      `mapstructure:"rate"`
	CORS       CORSConfig      `mapstructure:"cors"`
	Telemetry  TelemetryConfig `mapstructure:"telemetry"`
}

// PionICEServers converts the configured list for pion.
func (c *Config) PionICEServers() []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(c.ICEServers))
	for _, s := range c.ICEServers {
		if len(s.URLs) == 0 {
			continue
		}
		out = append(out, webrtc.ICEServer{URLs: s.URLs, Username: s.Username, Credential: s.Credential})
	}
	return out
}

// Load reads .env, then config/config.<CONFIG_ENV>.yaml. ECHOTEST_* variables
// override both, with "." in keys written as "_".
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Str("module", "config").Msg("no .env file, reading environment only")
	}

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile reads fileName on top of the defaults. A missing file is not an error.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("ECHOTEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("config loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Kuid == "" {
		cfg.Kuid = uuid.NewString()
	}
	if cfg.Secret == "" {
		log.Warn().Str("module", "config").Msg("secret not set, client cookies will not survive a restart")
		cfg.Secret = uuid.NewString()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("kuid", cfg.Kuid).
		Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("backpressure", "drop")
	v.SetDefault("kuid", "")
	v.SetDefault("ice_servers", []map[string]any{
		{"urls": []string{"stun:stun.l.google.com:19302"}},
	})
	v.SetDefault("turn.url", "")
	v.SetDefault("turn.secret", "")
	v.SetDefault("turn.ttl", "24h")
	v.SetDefault("turn.force", false)
	v.SetDefault("webrtc.min_port", 0)
	v.SetDefault("webrtc.max_port", 0)
	v.SetDefault("webrtc.nat_ips", []string{})
	v.SetDefault("webrtc.log_level", "error")
	v.SetDefault("record.max_duration", "30s")
	v.SetDefault("record.max_packets", 20000)
	v.SetDefault("rate.limit", 50)
	v.SetDefault("rate.interval", "1s")
	v.SetDefault("cors.origins", []string{"*"})
	v.SetDefault("telemetry.endpoint", "")
}

func (c *Config) validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if (c.WebRTC.MinPort == 0) != (c.WebRTC.MaxPort == 0) || c.WebRTC.MinPort > c.WebRTC.MaxPort {
		errs = append(errs, fmt.Errorf("webrtc port range %d-%d is invalid", c.WebRTC.MinPort, c.WebRTC.MaxPort))
	}
	switch c.Backpressure {
	case "drop", "disconnect":
	default:
		errs = append(errs, fmt.Errorf("backpressure %q must be drop or disconnect", c.Backpressure))
	}
	if c.Turn.URL != "" && c.Turn.Secret == "" {
		errs = append(errs, errors.New("turn.url needs turn.secret"))
	}
	return errors.Join(errs...)
}
