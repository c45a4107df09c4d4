package config

import (
	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`

	DBPath      string `mapstructure:"DB_PATH"`
	DownloadDir string `mapstructure:"DOWNLOAD_DIR"`
	ThumbDir    string `mapstructure:"THUMB_DIR"`

	Profiles  []string `mapstructure:"PROFILES"`
	StartURLs []string `mapstructure:"START_URLS"`
	MaxDepth  int      `mapstructure:"MAX_DEPTH"`
	BatchSize int      `mapstructure:"BATCH_SIZE"`
	Resume    bool     `mapstructure:"RESUME"`

	Headless           bool `mapstructure:"HEADLESS"`
	PageTimeoutSec     int  `mapstructure:"PAGE_TIMEOUT"`
	SettleWaitSec      int  `mapstructure:"SETTLE_WAIT"`
	PageDelaySec       int  `mapstructure:"PAGE_DELAY"`
	ChallengeWaitSec   int  `mapstructure:"CHALLENGE_WAIT"`
	ScrollSteps        int  `mapstructure:"SCROLL_STEPS"`
	ScopeToAssetID     bool `mapstructure:"SCOPE_TO_ASSET_ID"`
	AcceptUnattributed bool `mapstructure:"ACCEPT_UNATTRIBUTED"`

	DownloadWorkers  int    `mapstructure:"DOWNLOAD_WORKERS"`
	MaxRetries       int    `mapstructure:"MAX_RETRIES"`
	MinFreeDiskMB    int64  `mapstructure:"MIN_FREE_DISK_MB"`
	FFmpegPath       string `mapstructure:"FFMPEG_PATH"`
	StallTimeoutSec  int    `mapstructure:"STALL_TIMEOUT"`
	FilenameTemplate string `mapstructure:"FILENAME_TEMPLATE"`
	WriteSidecars    bool   `mapstructure:"WRITE_SIDECARS"`
	MakeThumbnails   bool   `mapstructure:"MAKE_THUMBNAILS"`

	CheckpointSec int `mapstructure:"CHECKPOINT_INTERVAL"`
}

// Load reads configuration from the .env file or environment variables.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	// Missing .env is fine; production configures via environment.
	_ = viper.ReadInConfig()

	viper.SetDefault("SERVER_PORT", "8090")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("DB_PATH", "collector.db")
	viper.SetDefault("DOWNLOAD_DIR", "downloads")
	viper.SetDefault("THUMB_DIR", "thumbs")
	viper.SetDefault("PROFILES", []string{"generic"})
	viper.SetDefault("MAX_DEPTH", 2)
	viper.SetDefault("BATCH_SIZE", 5)
	viper.SetDefault("RESUME", true)
	viper.SetDefault("HEADLESS", true)
	viper.SetDefault("PAGE_TIMEOUT", 60)
	viper.SetDefault("SETTLE_WAIT", 3)
	viper.SetDefault("PAGE_DELAY", 2)
	viper.SetDefault("CHALLENGE_WAIT", 30)
	viper.SetDefault("SCROLL_STEPS", 6)
	viper.SetDefault("SCOPE_TO_ASSET_ID", true)
	viper.SetDefault("ACCEPT_UNATTRIBUTED", true)
	viper.SetDefault("DOWNLOAD_WORKERS", 2)
	viper.SetDefault("MAX_RETRIES", 3)
	viper.SetDefault("MIN_FREE_DISK_MB", 500)
	viper.SetDefault("FFMPEG_PATH", "ffmpeg")
	viper.SetDefault("STALL_TIMEOUT", 60)
	viper.SetDefault("FILENAME_TEMPLATE", "{title}")
	viper.SetDefault("WRITE_SIDECARS", true)
	viper.SetDefault("MAKE_THUMBNAILS", true)
	viper.SetDefault("CHECKPOINT_INTERVAL", 300)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
