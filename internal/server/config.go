package server

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/iwvelando/premium-forecast/internal/config"
	"github.com/iwvelando/premium-forecast/pkg/constants"
	"gopkg.in/yaml.v3"
)

// Config defines runtime parameters for the HTTP server.
type Config struct {
	Address       string               `yaml:"address"`
	MaxUploadSize string               `yaml:"maxUploadSize"`
	Logging       config.LoggingConfig `yaml:"logging"`
	// ForecastConfig optionally points at a premium-forecast configuration
	// whose forecast, budget and phase sections seed every request.
	ForecastConfig string `yaml:"forecastConfig"`
	// RequestTimeout bounds a single forecast or budget computation.
	RequestTimeout string `yaml:"requestTimeout"`

	uploadSizeBytes int64
	requestTimeout  time.Duration
}

// DefaultRequestTimeout bounds a computation when requestTimeout is unset.
const DefaultRequestTimeout = 2 * time.Minute

// LoadConfig loads the server configuration from YAML. If the file does not exist,
// defaults are returned without error.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Address:         constants.DefaultServerAddress,
		MaxUploadSize:   fmt.Sprintf("%d", constants.DefaultMaxUploadSizeBytes),
		Logging:         config.LoggingConfig{},
		uploadSizeBytes: constants.DefaultMaxUploadSizeBytes,
		requestTimeout:  DefaultRequestTimeout,
	}

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read server config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse server config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UploadSizeBytes returns the configured upload size in bytes.
func (c *Config) UploadSizeBytes() int64 {
	return c.uploadSizeBytes
}

// SetUploadSizeBytes overrides the configured upload size.
func (c *Config) SetUploadSizeBytes(size int64) {
	if size > 0 {
		c.uploadSizeBytes = size
		c.MaxUploadSize = fmt.Sprintf("%d", size)
	}
}

// Timeout returns the per-request computation timeout.
func (c *Config) Timeout() time.Duration {
	if c.requestTimeout <= 0 {
		return DefaultRequestTimeout
	}
	return c.requestTimeout
}

// BaseConfiguration loads the forecast configuration that seeds every
// request. Without a forecastConfig path the built-in defaults are used. The
// result is checked but left unnormalized so each request derives its own
// reference and budget years from its cutoff.
func (c *Config) BaseConfiguration() (*config.Configuration, error) {
	var (
		base *config.Configuration
		err  error
	)
	if c.ForecastConfig == "" {
		base, err = config.LoadConfigurationFromReader(strings.NewReader(""))
	} else {
		base, err = config.LoadConfiguration(c.ForecastConfig)
	}
	if err != nil {
		return nil, err
	}
	probe := base.Clone()
	if err := probe.Normalize(); err != nil {
		return nil, err
	}
	if _, err := probe.Calendar(); err != nil {
		return nil, fmt.Errorf("invalid phase configuration in %s: %w", c.ForecastConfig, err)
	}
	return base, nil
}

func (c *Config) normalize() error {
	if c.Address == "" {
		c.Address = constants.DefaultServerAddress
	}

	c.requestTimeout = DefaultRequestTimeout
	if timeout := strings.TrimSpace(c.RequestTimeout); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("invalid requestTimeout %q: %w", c.RequestTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("requestTimeout must be positive, got %s", d)
		}
		c.requestTimeout = d
	}

	sizeStr := strings.TrimSpace(c.MaxUploadSize)
	if sizeStr == "" {
		c.uploadSizeBytes = constants.DefaultMaxUploadSizeBytes
		c.MaxUploadSize = fmt.Sprintf("%d", constants.DefaultMaxUploadSizeBytes)
		return nil
	}

	bytes, err := ParseSize(sizeStr)
	if err != nil {
		return err
	}
	if bytes <= 0 {
		bytes = constants.DefaultMaxUploadSizeBytes
	}
	c.uploadSizeBytes = bytes
	return nil
}

// ParseSize converts a human-friendly byte string (e.g., "256K", "10M") into bytes.
func ParseSize(value string) (int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return constants.DefaultMaxUploadSizeBytes, nil
	}

	upper := strings.ToUpper(trimmed)
	idx := len(upper)
	for idx > 0 && !unicode.IsDigit(rune(upper[idx-1])) {
		idx--
	}
	if idx == 0 {
		return 0, fmt.Errorf("invalid size: %s", value)
	}
	numPart := strings.TrimSpace(upper[:idx])
	unitPart := strings.TrimSpace(upper[idx:])

	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value %q: %w", value, err)
	}

	var multiplier int64
	switch unitPart {
	case "", "B":
		multiplier = 1
	case "K", "KB":
		multiplier = 1024
	case "M", "MB":
		multiplier = 1024 * 1024
	case "G", "GB":
		multiplier = 1024 * 1024 * 1024
	default:
		return 0, fmt.Errorf("unsupported size unit %q", unitPart)
	}

	result := n * multiplier
	if result < 0 {
		return 0, fmt.Errorf("size overflow for value %s", value)
	}
	return result, nil
}
