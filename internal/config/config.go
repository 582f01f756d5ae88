package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bstardust/exif-geotag/pkg/common"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides
const EnvPrefix = "EXIFGEOTAG"

// Config represents the application configuration
type Config struct {
	LogLevel  string          `mapstructure:"log_level"`
	BaseDir   string          `mapstructure:"base_dir"`
	Strict    bool            `mapstructure:"strict"`
	Input     InputConfig     `mapstructure:"input"`
	Encode    EncodeConfig    `mapstructure:"encode"`
	Overrides OverridesConfig `mapstructure:"overrides"`
	S3        S3Config        `mapstructure:"s3"`
	Upload    UploadConfig    `mapstructure:"upload"`
}

// InputConfig names the files of one run
type InputConfig struct {
	Image  string `mapstructure:"image"`
	CSV    string `mapstructure:"csv"`
	Output string `mapstructure:"output"`
}

// EncodeConfig controls how metadata is turned into EXIF
type EncodeConfig struct {
	NumericPolicy   string `mapstructure:"numeric_policy"`
	CoordinateCheck string `mapstructure:"coordinate_check"`
	CameraSettings  bool   `mapstructure:"camera_settings"`
	JPEGQuality     int    `mapstructure:"jpeg_quality"`
}

// OverridesConfig holds explicit scalars that win over CSV values.
// Latitude and Longitude are nil unless set by flag, env or config file.
type OverridesConfig struct {
	Model     string   `mapstructure:"model"`
	DateTime  string   `mapstructure:"datetime"`
	Latitude  *float64 `mapstructure:"-"`
	Longitude *float64 `mapstructure:"-"`
}

// S3Config represents S3 connection configuration
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Prefix    string `mapstructure:"prefix"`
}

// UploadConfig represents publishing of the tagged image
type UploadConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	DryRun       bool          `mapstructure:"dry_run"`
	SkipExisting bool          `mapstructure:"skip_existing"`
	MaxRetries   int           `mapstructure:"max_retries"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// New creates a new configuration with default values
func New() *Config {
	return &Config{
		LogLevel: "info",
		Encode: EncodeConfig{
			NumericPolicy:   "default-zero",
			CoordinateCheck: "off",
			JPEGQuality:     92,
		},
		S3: S3Config{
			Region: "us-east-1",
			UseSSL: true,
		},
		Upload: UploadConfig{
			SkipExisting: true,
			MaxRetries:   5,
			Timeout:      5 * time.Minute,
		},
	}
}

// SetDefaults registers the values of New with v so that file, env and
// flag sources layer on top of them
func SetDefaults(v *viper.Viper) {
	d := New()
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("base_dir", d.BaseDir)
	v.SetDefault("strict", d.Strict)
	v.SetDefault("input.image", "")
	v.SetDefault("input.csv", "")
	v.SetDefault("input.output", "")
	v.SetDefault("encode.numeric_policy", d.Encode.NumericPolicy)
	v.SetDefault("encode.coordinate_check", d.Encode.CoordinateCheck)
	v.SetDefault("encode.camera_settings", d.Encode.CameraSettings)
	v.SetDefault("encode.jpeg_quality", d.Encode.JPEGQuality)
	v.SetDefault("overrides.model", "")
	v.SetDefault("overrides.datetime", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.region", d.S3.Region)
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.use_ssl", d.S3.UseSSL)
	v.SetDefault("s3.prefix", "")
	v.SetDefault("upload.enabled", d.Upload.Enabled)
	v.SetDefault("upload.dry_run", d.Upload.DryRun)
	v.SetDefault("upload.skip_existing", d.Upload.SkipExisting)
	v.SetDefault("upload.max_retries", d.Upload.MaxRetries)
	v.SetDefault("upload.timeout", d.Upload.Timeout)
}

// Load reads the configuration from v. configFile may be empty, in which
// case an optional exif-geotag.{yaml,json,toml} in the working directory is
// used. A .env file, when present, is loaded into the environment first.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("exif-geotag")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := New()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if v.IsSet("overrides.latitude") {
		lat := v.GetFloat64("overrides.latitude")
		cfg.Overrides.Latitude = &lat
	}
	if v.IsSet("overrides.longitude") {
		lon := v.GetFloat64("overrides.longitude")
		cfg.Overrides.Longitude = &lon
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated options and ranges
func (c *Config) Validate() error {
	switch c.Encode.NumericPolicy {
	case "default-zero", "fail":
	default:
		return common.NewConfigError(fmt.Sprintf("numeric policy must be default-zero or fail, got %q", c.Encode.NumericPolicy))
	}
	switch c.Encode.CoordinateCheck {
	case "off", "strict":
	default:
		return common.NewConfigError(fmt.Sprintf("coordinate check must be off or strict, got %q", c.Encode.CoordinateCheck))
	}
	if c.Encode.JPEGQuality < 1 || c.Encode.JPEGQuality > 100 {
		return common.NewConfigError(fmt.Sprintf("jpeg quality must be within 1..100, got %d", c.Encode.JPEGQuality))
	}
	if c.Upload.Enabled {
		if c.S3.Endpoint == "" || c.S3.Bucket == "" {
			return common.NewConfigError("upload requires s3 endpoint and bucket")
		}
		if c.Upload.MaxRetries < 0 {
			return common.NewConfigError("upload max retries cannot be negative")
		}
	}
	return nil
}
