package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bytepulseflow/pulsewave/pkg/adaptive"
	"github.com/bytepulseflow/pulsewave/pkg/client"
	"github.com/bytepulseflow/pulsewave/pkg/ratelimit"
	"github.com/bytepulseflow/pulsewave/pkg/telemetry"
	"github.com/bytepulseflow/pulsewave/pkg/webrtcext"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config of the PulseWave agent. Durations are expressed in milliseconds so
// the YAML stays plain integers.
type Config struct {
	// URL of the signaling endpoint, e.g. wss://sfu.example.com/ws.
	SignalingURL string `yaml:"signalingUrl"`
	// Auto-subscribe to existing and newly published tracks.
	AutoSubscribe *bool `yaml:"autoSubscribe"`
	// Adaptive bitrate configuration.
	Adaptive Adaptive `yaml:"adaptiveBitrate"`
	// WebRTC API configuration.
	WebRTC webrtcext.Config `yaml:"webrtc"`
	// Admission limiter configuration.
	RateLimit RateLimit `yaml:"rateLimit"`
	// Tracing configuration.
	Telemetry telemetry.Config `yaml:"telemetry"`
	// Starting from which level to log stuff.
	LogLevel string `yaml:"log"`
}

// Adaptive is the YAML shape of the adaptive bitrate options.
type Adaptive struct {
	SampleIntervalMs int `yaml:"sampleIntervalMs"`
	Thresholds       struct {
		Excellent Band `yaml:"excellent"`
		Good      Band `yaml:"good"`
		Poor      Band `yaml:"poor"`
	} `yaml:"qualityThresholds"`
}

// Band is one quality grade's RTT/loss bound.
type Band struct {
	MaxRTTMs int     `yaml:"maxRttMs"`
	MaxLoss  float64 `yaml:"maxLoss"`
}

// RateLimit is the YAML shape of the admission limiter parameters.
type RateLimit struct {
	Limit         int `yaml:"limit"`
	WindowMs      int `yaml:"windowMs"`
	BanThreshold  int `yaml:"banThreshold"`
	BanDurationMs int `yaml:"banDurationMs"`
}

// ClientConfig renders the per-connection client configuration.
func (c *Config) ClientConfig() client.Config {
	config := client.DefaultConfig()

	if c.AutoSubscribe != nil {
		config.AutoSubscribe = *c.AutoSubscribe
	}
	if c.Adaptive.SampleIntervalMs > 0 {
		config.Adaptive.Interval = time.Duration(c.Adaptive.SampleIntervalMs) * time.Millisecond
	}
	if band := c.Adaptive.Thresholds; band.Excellent.MaxRTTMs > 0 {
		config.Adaptive.Thresholds = adaptive.Thresholds{
			Excellent: band.Excellent.toBand(),
			Good:      band.Good.toBand(),
			Poor:      band.Poor.toBand(),
		}
	}

	return config
}

func (b Band) toBand() adaptive.ThresholdBand {
	return adaptive.ThresholdBand{
		MaxRTT:  time.Duration(b.MaxRTTMs) * time.Millisecond,
		MaxLoss: b.MaxLoss,
	}
}

// RateLimitConfig renders the limiter configuration.
func (c *Config) RateLimitConfig() ratelimit.Config {
	config := ratelimit.DefaultConfig()

	if c.RateLimit.Limit > 0 {
		config.Limit = c.RateLimit.Limit
	}
	if c.RateLimit.WindowMs > 0 {
		config.Window = time.Duration(c.RateLimit.WindowMs) * time.Millisecond
	}
	if c.RateLimit.BanThreshold > 0 {
		config.BanThreshold = c.RateLimit.BanThreshold
	}
	if c.RateLimit.BanDurationMs > 0 {
		config.BanDuration = time.Duration(c.RateLimit.BanDurationMs) * time.Millisecond
	}

	return config
}

// ErrNoConfigEnvVar is returned when the CONFIG environment variable is not set.
var ErrNoConfigEnvVar = errors.New("environment variable not set or invalid")

// LoadConfig tries the `CONFIG` environment variable first and falls back to
// the provided path to a YAML file.
func LoadConfig(path string) (*Config, error) {
	config, err := LoadConfigFromEnv()
	if err != nil {
		if !errors.Is(err, ErrNoConfigEnvVar) {
			return nil, err
		}

		return LoadConfigFromPath(path)
	}

	return config, nil
}

// LoadConfigFromEnv loads the config from the `CONFIG` environment variable.
func LoadConfigFromEnv() (*Config, error) {
	configEnv := os.Getenv("CONFIG")
	if configEnv == "" {
		return nil, ErrNoConfigEnvVar
	}

	return LoadConfigFromString(configEnv)
}

// LoadConfigFromPath loads the config from the provided path.
func LoadConfigFromPath(path string) (*Config, error) {
	logrus.WithField("path", path).Info("loading config")

	file, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return LoadConfigFromString(string(file))
}

// LoadConfigFromString parses and validates a YAML config.
func LoadConfigFromString(configString string) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal([]byte(configString), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML file: %w", err)
	}

	if config.SignalingURL == "" {
		return nil, errors.New("signalingUrl must be set")
	}
	if config.RateLimit.Limit < 0 || config.RateLimit.WindowMs < 0 {
		return nil, errors.New("invalid rate limit values")
	}

	return &config, nil
}
