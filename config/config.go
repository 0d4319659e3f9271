package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dropshop/crypto"
	"dropshop/native/catalog"

	"github.com/BurntSushi/toml"
)

// Config is the dropshopd service configuration.
type Config struct {
	ListenAddress       string `toml:"ListenAddress"`
	DataDir             string `toml:"DataDir"`
	Env                 string `toml:"Env"`
	FeeBps              uint32 `toml:"FeeBps"`
	FeeWallet           string `toml:"FeeWallet"`
	AdminAddress        string `toml:"AdminAddress,omitempty"`
	HeartbeatSeconds    uint64 `toml:"HeartbeatSeconds"`
	ManagerKeystorePath string `toml:"ManagerKeystorePath"`
	RateLimitPerSecond  int    `toml:"RateLimitPerSecond"`

	Networks []Network `toml:"network"`
}

// Network names a price feed binding for one deployment environment. A
// ChainlinkFeed of "manual" selects the in-memory feed and needs no RPCURL.
type Network struct {
	Name             string `toml:"Name"`
	ChainlinkFeed    string `toml:"ChainlinkFeed"`
	RPCURL           string `toml:"RPCURL,omitempty"`
	HeartbeatSeconds uint64 `toml:"HeartbeatSeconds,omitempty"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields the settlement engine consumes directly.
func (c *Config) Validate() error {
	if c.FeeBps > catalog.BasisPoints {
		return fmt.Errorf("config: FeeBps %d exceeds %d", c.FeeBps, catalog.BasisPoints)
	}
	if c.FeeBps > 0 {
		if _, err := c.FeeWalletAddress(); err != nil {
			return err
		}
	}
	if c.HeartbeatSeconds == 0 {
		return fmt.Errorf("config: HeartbeatSeconds must be positive")
	}
	if _, err := c.PlatformAdmin(); err != nil {
		return err
	}
	for _, n := range c.Networks {
		if strings.TrimSpace(n.Name) == "" {
			return fmt.Errorf("config: network entry missing Name")
		}
		if strings.TrimSpace(n.ChainlinkFeed) == "" {
			return fmt.Errorf("config: network %s missing ChainlinkFeed", n.Name)
		}
		if n.ChainlinkFeed != "manual" && strings.TrimSpace(n.RPCURL) == "" {
			return fmt.Errorf("config: network %s missing RPCURL", n.Name)
		}
	}
	return nil
}

// FeeWalletAddress decodes the configured fee wallet.
func (c *Config) FeeWalletAddress() ([20]byte, error) {
	var out [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(c.FeeWallet), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil || len(decoded) != 20 {
		return out, fmt.Errorf("config: invalid FeeWallet %q", c.FeeWallet)
	}
	copy(out[:], decoded)
	return out, nil
}

// PlatformParams converts the fee configuration into settlement parameters.
func (c *Config) PlatformParams() (catalog.Params, error) {
	params := catalog.Params{FeeBps: c.FeeBps}
	if c.FeeBps > 0 {
		wallet, err := c.FeeWalletAddress()
		if err != nil {
			return catalog.Params{}, err
		}
		params.FeeWallet = wallet
	}
	return catalog.SanitizeParams(params)
}

// PlatformAdmin decodes the configured admin address (bech32 drop1...). An
// empty config yields the zero address, which disables the runtime params
// endpoint on the gateway.
func (c *Config) PlatformAdmin() ([20]byte, error) {
	var out [20]byte
	trimmed := strings.TrimSpace(c.AdminAddress)
	if trimmed == "" {
		return out, nil
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return out, fmt.Errorf("config: invalid AdminAddress %q: %w", c.AdminAddress, err)
	}
	copy(out[:], addr.Bytes())
	return out, nil
}

// FindNetwork returns the named feed binding.
func (c *Config) FindNetwork(name string) (Network, bool) {
	for _, n := range c.Networks {
		if n.Name == name {
			return n, true
		}
	}
	return Network{}, false
}

// NetworkHeartbeat returns the heartbeat for the named network, falling back
// to the global HeartbeatSeconds when the entry carries no override.
func (c *Config) NetworkHeartbeat(name string) uint64 {
	for _, n := range c.Networks {
		if n.Name == name && n.HeartbeatSeconds > 0 {
			return n.HeartbeatSeconds
		}
	}
	return c.HeartbeatSeconds
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8650"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./dropshop-data"
	}
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "development"
	}
	if cfg.HeartbeatSeconds == 0 {
		cfg.HeartbeatSeconds = 3600
	}
	if cfg.RateLimitPerSecond <= 0 {
		cfg.RateLimitPerSecond = 50
	}
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.ManagerKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.ManagerKeystorePath != keystorePath {
		cfg.ManagerKeystorePath = keystorePath
		return persist(configPath, cfg)
	}
	return nil
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	return filepath.Join(dir, "manager.keystore")
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Networks = []Network{{
		Name:          "local",
		ChainlinkFeed: "manual",
	}}
	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
