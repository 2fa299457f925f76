// Package config holds server configuration with YAML loading and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30m".
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML accepts either a duration string or an integer nanosecond count.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}
	var ns int64
	if err := value.Decode(&ns); err != nil {
		return fmt.Errorf("invalid duration value")
	}
	*d = Duration(ns)
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (any, error) { return d.String(), nil }

// Config represents the complete server configuration.
type Config struct {
	// ListenAddr is the TCP address the shop protocol listens on.
	ListenAddr string `yaml:"listenAddr"`
	// AdminAddr is the read-only ops HTTP address. Empty disables it.
	AdminAddr string `yaml:"adminAddr"`

	// DataDir holds the flat data files; created at startup if missing.
	DataDir          string `yaml:"dataDir"`
	ProductsFile     string `yaml:"productsFile"`
	DescriptionsFile string `yaml:"descriptionsFile"`
	UsersFile        string `yaml:"usersFile"`
	OrdersFile       string `yaml:"ordersFile"`

	// SessionTTL is the sliding idle expiry for auth sessions.
	SessionTTL    Duration `yaml:"sessionTTL"`
	SweepInterval Duration `yaml:"sweepInterval"`

	// LoginWindow, LoginMaxFails and LoginBlock tune the login rate limiter:
	// LoginMaxFails failures inside LoginWindow block the (user, ip) pair
	// for LoginBlock.
	LoginWindow   Duration `yaml:"loginWindow"`
	LoginMaxFails int      `yaml:"loginMaxFails"`
	LoginBlock    Duration `yaml:"loginBlock"`

	// ChunkSize is the number of products per INVENTORY_CHUNK message;
	// ChunkPause is the delay between chunks.
	ChunkSize  int      `yaml:"chunkSize"`
	ChunkPause Duration `yaml:"chunkPause"`

	// ShutdownGrace bounds how long Stop waits for handlers to drain.
	ShutdownGrace Duration `yaml:"shutdownGrace"`

	// RestockThreshold marks products as low-stock in admin stats.
	RestockThreshold int `yaml:"restockThreshold"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		ListenAddr:       ":8888",
		AdminAddr:        "",
		DataDir:          "data",
		ProductsFile:     "products.txt",
		DescriptionsFile: "descriptions.txt",
		UsersFile:        "users.txt",
		OrdersFile:       "orders.txt",
		SessionTTL:       Duration(30 * time.Minute),
		SweepInterval:    Duration(5 * time.Minute),
		LoginWindow:      Duration(15 * time.Minute),
		LoginMaxFails:    5,
		LoginBlock:       Duration(15 * time.Minute),
		ChunkSize:        20,
		ChunkPause:       Duration(10 * time.Millisecond),
		ShutdownGrace:    Duration(5 * time.Second),
		RestockThreshold: 5,
	}
}

// LoadFile overlays configuration from a YAML file onto c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing YAML config: %w", err)
	}
	return c.Validate()
}

// Validate checks invariants the rest of the server relies on.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listenAddr must not be empty")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunkSize must be positive, got %d", c.ChunkSize)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("sessionTTL must be positive, got %s", c.SessionTTL)
	}
	if c.LoginMaxFails <= 0 {
		return fmt.Errorf("loginMaxFails must be positive, got %d", c.LoginMaxFails)
	}
	return nil
}

// ProductsPath returns the product file path under DataDir.
func (c *Config) ProductsPath() string { return filepath.Join(c.DataDir, c.ProductsFile) }

// DescriptionsPath returns the description file path under DataDir.
func (c *Config) DescriptionsPath() string { return filepath.Join(c.DataDir, c.DescriptionsFile) }

// UsersPath returns the user file path under DataDir.
func (c *Config) UsersPath() string { return filepath.Join(c.DataDir, c.UsersFile) }

// OrdersPath returns the order log path under DataDir.
func (c *Config) OrdersPath() string { return filepath.Join(c.DataDir, c.OrdersFile) }
