package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Pablu23/rdtrelay/internal/common"
)

var ErrInvalid = errors.New("invalid config")

// Config holds the rdtchat configuration.
type Config struct {
	Server     string        `yaml:"server"`
	Port       int           `yaml:"port"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	BufferSize int           `yaml:"buffer_size"`
	Checksum   string        `yaml:"checksum"`

	Name         string        `yaml:"name"`
	Peer         string        `yaml:"peer"`
	ListInterval time.Duration `yaml:"list_interval"`
	Linger       time.Duration `yaml:"linger"`

	Relay Relay `yaml:"relay"`
}

type Relay struct {
	Listen      string        `yaml:"listen"`
	Port        int           `yaml:"port"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

func Default() *Config {
	return &Config{
		Server:       "date.cs.umass.edu",
		Port:         8888,
		Timeout:      time.Second,
		BufferSize:   common.DefaultBufferSize,
		Checksum:     common.MD5.String(),
		ListInterval: 5 * time.Second,
		Relay: Relay{
			Listen:      "0.0.0.0",
			Port:        8888,
			IdleTimeout: 5 * time.Minute,
		},
	}
}

// DefaultPath returns the default config file path: ~/.rdtchat/config.yaml
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".rdtchat", "config.yaml")
	}
	return filepath.Join(home, ".rdtchat", "config.yaml")
}

// Load reads the configuration from the given YAML file path.
// If the file does not exist, it returns the defaults with no error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalid, c.Port)
	}
	if c.Relay.Port < 0 || c.Relay.Port > 65535 {
		return fmt.Errorf("%w: relay port %d", ErrInvalid, c.Relay.Port)
	}
	if c.BufferSize <= common.HeaderSize {
		return fmt.Errorf("%w: buffer_size %d leaves no room for a payload", ErrInvalid, c.BufferSize)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries %d", ErrInvalid, c.MaxRetries)
	}
	if _, err := common.ParseChecksum(c.Checksum); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// ChunkSize is the largest payload that still fits a datagram of BufferSize.
func (c *Config) ChunkSize() int {
	return c.BufferSize - common.HeaderSize
}
