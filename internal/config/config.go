package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Search        SearchConfig        `mapstructure:"search"`
	Network       NetworkConfig       `mapstructure:"network"`
	Download      DownloadConfig      `mapstructure:"download"`
	FFmpeg        FFmpegConfig        `mapstructure:"ffmpeg"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Subscriptions SubscriptionsConfig `mapstructure:"subscriptions"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// SearchConfig holds MediathekViewWeb API configuration.
type SearchConfig struct {
	BaseURL          string `mapstructure:"base_url"`
	Timeout          int    `mapstructure:"timeout"` // seconds
	PageSize         int    `mapstructure:"page_size"`
	FutureBroadcasts bool   `mapstructure:"future_broadcasts"`
	FetchStreamSizes bool   `mapstructure:"fetch_stream_sizes"`
}

// NetworkConfig holds the URL policy applied to remote sources.
type NetworkConfig struct {
	AllowHTTP           bool     `mapstructure:"allow_http"`
	AllowUnknownDomains bool     `mapstructure:"allow_unknown_domains"`
	AllowedDomains      []string `mapstructure:"allowed_domains"`
}

// DownloadConfig holds download behaviour settings.
type DownloadConfig struct {
	DefaultPath           string `mapstructure:"default_path"`
	TempPath              string `mapstructure:"temp_path"`
	DefaultLanguage       string `mapstructure:"default_language"`
	DirectAudioExtraction bool   `mapstructure:"direct_audio_extraction"`
	DownloadSubtitles     bool   `mapstructure:"download_subtitles"`
	MaxBandwidthMBits     int    `mapstructure:"max_bandwidth_mbits"`
	MinFreeDiskSpaceBytes int64  `mapstructure:"min_free_disk_space_bytes"`
	MaxConcurrent         int    `mapstructure:"max_concurrent"`
}

// FFmpegConfig holds paths to the external encoder and prober.
type FFmpegConfig struct {
	FFmpegPath  string `mapstructure:"ffmpeg_path"`
	FFprobePath string `mapstructure:"ffprobe_path"`
}

// SchedulerConfig holds cron expressions for periodic tasks.
type SchedulerConfig struct {
	SubscriptionCron    string `mapstructure:"subscription_cron"`
	RunOnStart          bool   `mapstructure:"run_on_start"`
	CleanupCron         string `mapstructure:"cleanup_cron"`
	PruneCron           string `mapstructure:"prune_cron"`
	PruneAfterMinutes   int    `mapstructure:"prune_after_minutes"`
	TempFileMaxAgeHours int    `mapstructure:"temp_file_max_age_hours"`
}

// SubscriptionsConfig points at the subscription definitions file.
type SubscriptionsConfig struct {
	Path string `mapstructure:"path"`
}

// DefaultAllowedDomains are the broadcaster CDNs media is normally served from.
var DefaultAllowedDomains = []string{
	"ard.de",
	"ardmediathek.de",
	"akamaihd.net",
	"akamaized.net",
	"arte.tv",
	"br.de",
	"daserste.de",
	"dw.com",
	"hr.de",
	"kika.de",
	"mdr.de",
	"ndr.de",
	"orf.at",
	"phoenix.de",
	"rbb-online.de",
	"sr-online.de",
	"srf.ch",
	"swr.de",
	"tagesschau.de",
	"wdr.de",
	"zdf.de",
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8090,
		},
		Database: DatabaseConfig{
			Path: "./data/mediathekdl.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Search: SearchConfig{
			BaseURL:  "https://mediathekviewweb.de/api",
			Timeout:  30,
			PageSize: 50,
		},
		Network: NetworkConfig{
			AllowedDomains: DefaultAllowedDomains,
		},
		Download: DownloadConfig{
			DefaultPath:           "./downloads",
			DefaultLanguage:       "deu",
			DirectAudioExtraction: true,
			DownloadSubtitles:     true,
			MinFreeDiskSpaceBytes: 1536 * 1024 * 1024,
			MaxConcurrent:         1,
		},
		Scheduler: SchedulerConfig{
			SubscriptionCron:    "0 */6 * * *",
			CleanupCron:         "30 3 * * *",
			PruneCron:           "*/15 * * * *",
			PruneAfterMinutes:   60,
			TempFileMaxAgeHours: 24,
		},
		Subscriptions: SubscriptionsConfig{
			Path: "./subscriptions.yaml",
		},
	}
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.mediathekdl")
	}

	v.SetEnvPrefix("MEDIATHEKDL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values in viper
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)

	v.SetDefault("database.path", d.Database.Path)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)

	v.SetDefault("search.base_url", d.Search.BaseURL)
	v.SetDefault("search.timeout", d.Search.Timeout)
	v.SetDefault("search.page_size", d.Search.PageSize)
	v.SetDefault("search.future_broadcasts", false)
	v.SetDefault("search.fetch_stream_sizes", false)

	v.SetDefault("network.allow_http", false)
	v.SetDefault("network.allow_unknown_domains", false)
	v.SetDefault("network.allowed_domains", d.Network.AllowedDomains)

	v.SetDefault("download.default_path", d.Download.DefaultPath)
	v.SetDefault("download.temp_path", "")
	v.SetDefault("download.default_language", d.Download.DefaultLanguage)
	v.SetDefault("download.direct_audio_extraction", d.Download.DirectAudioExtraction)
	v.SetDefault("download.download_subtitles", d.Download.DownloadSubtitles)
	v.SetDefault("download.max_bandwidth_mbits", 0)
	v.SetDefault("download.min_free_disk_space_bytes", d.Download.MinFreeDiskSpaceBytes)
	v.SetDefault("download.max_concurrent", d.Download.MaxConcurrent)

	v.SetDefault("ffmpeg.ffmpeg_path", "")
	v.SetDefault("ffmpeg.ffprobe_path", "")

	v.SetDefault("scheduler.subscription_cron", d.Scheduler.SubscriptionCron)
	v.SetDefault("scheduler.run_on_start", false)
	v.SetDefault("scheduler.cleanup_cron", d.Scheduler.CleanupCron)
	v.SetDefault("scheduler.prune_cron", d.Scheduler.PruneCron)
	v.SetDefault("scheduler.prune_after_minutes", d.Scheduler.PruneAfterMinutes)
	v.SetDefault("scheduler.temp_file_max_age_hours", d.Scheduler.TempFileMaxAgeHours)

	v.SetDefault("subscriptions.path", d.Subscriptions.Path)
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RequestTimeout returns the search timeout as a duration.
func (c *SearchConfig) RequestTimeout() time.Duration {
	if c.Timeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}

// BandwidthBytesPerSecond converts the configured Mbit/s limit to bytes per second.
// Zero means unlimited.
func (c *DownloadConfig) BandwidthBytesPerSecond() int64 {
	if c.MaxBandwidthMBits <= 0 {
		return 0
	}
	return int64(c.MaxBandwidthMBits) * 1000 * 1000 / 8
}

// PruneAfter returns how long finished downloads stay listed.
func (c *SchedulerConfig) PruneAfter() time.Duration {
	if c.PruneAfterMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.PruneAfterMinutes) * time.Minute
}

// TempFileMaxAge returns the age after which temp files count as stale.
func (c *SchedulerConfig) TempFileMaxAge() time.Duration {
	if c.TempFileMaxAgeHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.TempFileMaxAgeHours) * time.Hour
}
