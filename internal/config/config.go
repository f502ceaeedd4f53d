package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogJSON           bool          `mapstructure:"log_json" yaml:"log_json"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`

	SFU     SFUConfig     `mapstructure:"sfu" yaml:"sfu"`
	Calls   CallsConfig   `mapstructure:"calls" yaml:"calls"`
	LiveKit LiveKitConfig `mapstructure:"livekit" yaml:"livekit"`
}

// SFUConfig points at the calling service used for peeks and call links.
type SFUConfig struct {
	URL         string        `mapstructure:"url" yaml:"url"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout" yaml:"http_timeout"`
	AuthSecret  string        `mapstructure:"auth_secret" yaml:"auth_secret"`
}

// CallsConfig tunes orchestrator policy.
type CallsConfig struct {
	// MaxOfferAge marks received offers older than this as stale.
	// Zero disables the flagging.
	MaxOfferAge time.Duration `mapstructure:"max_offer_age" yaml:"max_offer_age"`
	// AudioLevelsInterval is the default sampling interval applied when a
	// client does not pick one. Zero or negative disables sampling.
	AudioLevelsInterval time.Duration `mapstructure:"audio_levels_interval" yaml:"audio_levels_interval"`
}

// LiveKitConfig enables minting SFU join tokens on group connect.
type LiveKitConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	APIKey    string `mapstructure:"api_key" yaml:"api_key"`
	APISecret string `mapstructure:"api_secret" yaml:"api_secret"`
	WSURL     string `mapstructure:"ws_url" yaml:"ws_url"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		DatabasePath:      "ringline.db",
		JWTIssuer:         "ringline",
		JWTAudience:       "ringline-clients",
		SFU: SFUConfig{
			URL:         "https://sfu.example.org",
			HTTPTimeout: 10 * time.Second,
		},
		Calls: CallsConfig{
			MaxOfferAge:         2 * time.Minute,
			AudioLevelsInterval: 200 * time.Millisecond,
		},
	}
}
