// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Discord       DiscordConfig           `yaml:"discord"`
	Voice         VoiceConfig             `yaml:"voice"`
	Idle          IdleConfig              `yaml:"idle"`
	Resolver      ResolverConfig          `yaml:"resolver"`
	Audio         AudioConfig             `yaml:"audio"`
	Admin         AdminConfig             `yaml:"admin"`
	Spotify       SpotifyConfig           `yaml:"spotify"`
	Filters       map[string]FilterConfig `yaml:"filters"`
	Notifications NotificationsConfig     `yaml:"notifications"`
}

// DiscordConfig represents bot account configuration.
type DiscordConfig struct {
	Token             string `yaml:"token" validate:"required"`
	GuildID           string `yaml:"guild_id"`            // Register commands to one guild only (faster propagation)
	CommandsChannelID string `yaml:"commands_channel_id"` // Receives idle-disconnect notices
	Status            string `yaml:"status" default:"/play"`
}

// VoiceConfig represents voice connection timing.
type VoiceConfig struct {
	AttemptTimeoutMs int `yaml:"attempt_timeout_ms" default:"10000" validate:"gt=0"`
	OverallTimeoutMs int `yaml:"overall_timeout_ms" default:"15000" validate:"gt=0,gtefield=AttemptTimeoutMs"`
	MaxAttempts      int `yaml:"max_attempts" default:"3" validate:"gte=1,lte=10"`
	BackoffMs        int `yaml:"backoff_ms" default:"1000" validate:"gte=0"`
	SwitchSettleMs   int `yaml:"switch_settle_ms" default:"500" validate:"gte=0"`
	ReadySettleMs    int `yaml:"ready_settle_ms" default:"1000" validate:"gte=0"`
}

// IdleConfig represents idle monitor timing.
type IdleConfig struct {
	IntervalSec int `yaml:"interval_sec" default:"10" validate:"gt=0"`
	WindowSec   int `yaml:"window_sec" default:"60" validate:"gte=0"`
}

// ResolverConfig represents media resolution configuration.
type ResolverConfig struct {
	Format        string `yaml:"format" default:"bestaudio/best"`
	SearchResults int    `yaml:"search_results" default:"5" validate:"gte=1,lte=25"`
	TimeoutSec    int    `yaml:"timeout_sec" default:"30" validate:"gt=0"`
}

// AudioConfig represents audio pipeline configuration.
type AudioConfig struct {
	FFmpegPath  string  `yaml:"ffmpeg_path" default:"ffmpeg"`
	Volume      float64 `yaml:"volume" default:"0.5" validate:"gte=0,lte=2"`
	BitrateKbps int     `yaml:"bitrate_kbps" default:"128" validate:"gte=8,lte=512"`
}

// AdminConfig represents the admin RPC endpoint. Disabled when Addr is empty.
type AdminConfig struct {
	Addr  string `yaml:"addr"`
	Token string `yaml:"token" validate:"required_with=Addr"`
}

// SpotifyConfig represents Spotify API configuration.
// Spotify track links are only rewritten when both credentials are set.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id" validate:"required_with=ClientSecret"`
	ClientSecret string `yaml:"client_secret" validate:"required_with=ClientID"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"JP"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// NotificationsConfig represents outbound message throttling.
type NotificationsConfig struct {
	RatePerSecond float64 `yaml:"rate_per_second" default:"1" validate:"gt=0"`
	Burst         int     `yaml:"burst" default:"3" validate:"gte=1"`
	SendTimeoutMs int     `yaml:"send_timeout_ms" default:"5000" validate:"gt=0"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse builds a configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("DISCORD_TOKEN"); v != "" {
		c.Discord.Token = v
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		c.Admin.Token = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// SpotifyEnabled reports whether Spotify credentials are configured.
func (c *Config) SpotifyEnabled() bool {
	return c.Spotify.ClientID != "" && c.Spotify.ClientSecret != ""
}

// AdminEnabled reports whether the admin endpoint should be served.
func (c *Config) AdminEnabled() bool {
	return c.Admin.Addr != ""
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// EnabledFilters returns the settings of every enabled filter keyed by name.
func (c *Config) EnabledFilters() map[string]map[string]any {
	enabled := make(map[string]map[string]any)
	for name, f := range c.Filters {
		if f.Enabled {
			enabled[name] = f.Settings
		}
	}
	return enabled
}

// AttemptTimeout returns the per-attempt voice join timeout.
func (v VoiceConfig) AttemptTimeout() time.Duration {
	return time.Duration(v.AttemptTimeoutMs) * time.Millisecond
}

// OverallTimeout returns the timeout for one full connection attempt.
func (v VoiceConfig) OverallTimeout() time.Duration {
	return time.Duration(v.OverallTimeoutMs) * time.Millisecond
}

// Backoff returns the base retry backoff.
func (v VoiceConfig) Backoff() time.Duration {
	return time.Duration(v.BackoffMs) * time.Millisecond
}

// SwitchSettle returns the pause between leaving one channel and joining another.
func (v VoiceConfig) SwitchSettle() time.Duration {
	return time.Duration(v.SwitchSettleMs) * time.Millisecond
}

// ReadySettle returns the pause after joining before audio is sent.
func (v VoiceConfig) ReadySettle() time.Duration {
	return time.Duration(v.ReadySettleMs) * time.Millisecond
}

// Interval returns the time between idle sweeps.
func (i IdleConfig) Interval() time.Duration {
	return time.Duration(i.IntervalSec) * time.Second
}

// Window returns the idle observation window.
func (i IdleConfig) Window() time.Duration {
	return time.Duration(i.WindowSec) * time.Second
}

// Timeout returns the resolve timeout.
func (r ResolverConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSec) * time.Second
}

// SendTimeout returns the per-message send timeout.
func (n NotificationsConfig) SendTimeout() time.Duration {
	return time.Duration(n.SendTimeoutMs) * time.Millisecond
}
