package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	YTDLPBin         string        `mapstructure:"YTDLP_BIN"`
	YTDLPExtraArgs   string        `mapstructure:"YTDLP_EXTRA_ARGS"`
	WhisperBin       string        `mapstructure:"WHISPER_BIN"`
	DefaultModel     string        `mapstructure:"DEFAULT_MODEL"`
	DownloadDir      string        `mapstructure:"DOWNLOAD_DIR"`
	TaskTimeout      time.Duration `mapstructure:"TASK_TIMEOUT"`
	ArtifactTTL      time.Duration `mapstructure:"ARTIFACT_TTL"`
	MaxDownloadSize  int64         `mapstructure:"MAX_DOWNLOAD_SIZE"`
	MaxConcurrency   int           `mapstructure:"MAX_CONCURRENCY"`
	ThrottleCPU      float64       `mapstructure:"THROTTLE_CPU"`
	ThrottleFreeMem  int64         `mapstructure:"THROTTLE_FREEMEM"`
	ThrottleFreeDisk int64         `mapstructure:"THROTTLE_FREEDISK"`
	MinComments      int           `mapstructure:"MIN_COMMENTS"`
	MaxComments      int           `mapstructure:"MAX_COMMENTS"`
	DefaultComments  int           `mapstructure:"DEFAULT_COMMENTS"`
	CommentCacheTTL  time.Duration `mapstructure:"COMMENT_CACHE_TTL"`
	DBPath           string        `mapstructure:"DB_PATH"`
	AuthEnable       bool          `mapstructure:"AUTH_ENABLE"`
	AuthKey          string        `mapstructure:"AUTH_KEY"`
	Port             string        `mapstructure:"PORT"`
	BaseURL          string        `mapstructure:"BASE"`
	LogLevel         string        `mapstructure:"LOG_LEVEL"`
}

// stringToDurationHookFunc is a custom Viper hook for parsing Go's duration strings.
func stringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		return time.ParseDuration(data.(string))
	}
}

// stringToByteSizeHookFunc is a custom Viper hook for parsing human-readable size strings.
func stringToByteSizeHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Int64 {
			return data, nil
		}

		var size datasize.ByteSize
		err := size.UnmarshalText([]byte(data.(string)))
		if err != nil {
			// Not a valid size string, let other parsers handle it.
			return data, nil
		}

		return int64(size.Bytes()), nil
	}
}

func Load() (*Config, error) {
	vp := viper.New()

	// Set default values as strings, the hooks will handle them.
	vp.SetDefault("YTDLP_BIN", "yt-dlp")
	vp.SetDefault("YTDLP_EXTRA_ARGS", "")
	vp.SetDefault("WHISPER_BIN", "whisper")
	vp.SetDefault("DEFAULT_MODEL", "base")
	vp.SetDefault("DOWNLOAD_DIR", "downloads")
	vp.SetDefault("TASK_TIMEOUT", "30m")
	vp.SetDefault("ARTIFACT_TTL", "2h")
	vp.SetDefault("MAX_DOWNLOAD_SIZE", "500MB")
	vp.SetDefault("MAX_CONCURRENCY", 2)
	vp.SetDefault("THROTTLE_CPU", 50.0)
	vp.SetDefault("THROTTLE_FREEMEM", "200MB")
	vp.SetDefault("THROTTLE_FREEDISK", "500MB")
	vp.SetDefault("MIN_COMMENTS", 50)
	vp.SetDefault("MAX_COMMENTS", 500)
	vp.SetDefault("DEFAULT_COMMENTS", 200)
	vp.SetDefault("COMMENT_CACHE_TTL", "15m")
	vp.SetDefault("DB_PATH", "reelscope.db")
	vp.SetDefault("AUTH_ENABLE", false)
	vp.SetDefault("AUTH_KEY", "123456")
	vp.SetDefault("PORT", "8080")
	vp.SetDefault("BASE", "")
	vp.SetDefault("LOG_LEVEL", "info")

	// Load from config file
	vp.SetConfigName("reelscope_config")
	vp.SetConfigType("yaml")
	vp.AddConfigPath(".")
	vp.AddConfigPath("/etc/reelscope/")

	if err := vp.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	// Load from environment variables
	vp.SetEnvPrefix("REELSCOPE")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	var cfg Config
	// Unmarshal the config, providing our custom composed hooks.
	// The order matters: the first hook that succeeds is used.
	err := vp.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			stringToDurationHookFunc(),
			stringToByteSizeHookFunc(),
		),
	))
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ClampComments bounds a requested comment count to the configured range.
// A zero or negative request falls back to the configured default.
func (c *Config) ClampComments(n int) int {
	if n <= 0 {
		n = c.DefaultComments
	}
	if n < c.MinComments {
		return c.MinComments
	}
	if n > c.MaxComments {
		return c.MaxComments
	}
	return n
}
