package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"dropshop/crypto"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dropshop.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dropshop.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":8650" {
		t.Fatalf("unexpected listen address %q", cfg.ListenAddress)
	}
	if cfg.HeartbeatSeconds != 3600 {
		t.Fatalf("unexpected heartbeat %d", cfg.HeartbeatSeconds)
	}
	if cfg.ManagerKeystorePath == "" {
		t.Fatal("expected keystore path to be provisioned")
	}
	if _, err := os.Stat(cfg.ManagerKeystorePath); err != nil {
		t.Fatalf("expected keystore file: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file to be written: %v", err)
	}
}

func TestLoadValidatesFee(t *testing.T) {
	path := writeConfig(t, `
ListenAddress = ":8650"
FeeBps = 10001
FeeWallet = "0102030405060708090a0b0c0d0e0f1011121314"
HeartbeatSeconds = 3600
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected fee bps above denominator to be rejected")
	}
}

func TestLoadRejectsMalformedFeeWallet(t *testing.T) {
	path := writeConfig(t, `
FeeBps = 100
FeeWallet = "not-an-address"
HeartbeatSeconds = 3600
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected malformed fee wallet to be rejected")
	}
}

func TestPlatformParams(t *testing.T) {
	path := writeConfig(t, `
FeeBps = 100
FeeWallet = "0x0102030405060708090a0b0c0d0e0f1011121314"
HeartbeatSeconds = 3600
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	params, err := cfg.PlatformParams()
	if err != nil {
		t.Fatalf("platform params: %v", err)
	}
	if params.FeeBps != 100 {
		t.Fatalf("unexpected fee bps %d", params.FeeBps)
	}
	if params.FeeWallet[0] != 0x01 || params.FeeWallet[19] != 0x14 {
		t.Fatalf("unexpected fee wallet %x", params.FeeWallet)
	}
}

func TestPlatformAdmin(t *testing.T) {
	raw := make([]byte, 20)
	raw[19] = 0x0a
	admin := crypto.NewAddress(crypto.DropPrefix, raw).String()
	path := writeConfig(t, fmt.Sprintf(`
HeartbeatSeconds = 3600
AdminAddress = %q
`, admin))
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	decoded, err := cfg.PlatformAdmin()
	if err != nil {
		t.Fatalf("platform admin: %v", err)
	}
	if decoded[19] != 0x0a {
		t.Fatalf("unexpected admin %x", decoded)
	}

	bad := writeConfig(t, `
HeartbeatSeconds = 3600
AdminAddress = "not-an-address"
`)
	if _, err := Load(bad); err == nil {
		t.Fatal("expected malformed admin address to be rejected")
	}
}

func TestNetworkHeartbeatOverride(t *testing.T) {
	path := writeConfig(t, `
HeartbeatSeconds = 3600

[[network]]
Name = "mainnet"
ChainlinkFeed = "0x5f4ec3df9cbd43714fe2740f5e3616155c5b8419"
RPCURL = "https://rpc.example/mainnet"
HeartbeatSeconds = 1200

[[network]]
Name = "testnet"
ChainlinkFeed = "0x694aa1769357215de4fac081bf1f309adc325306"
RPCURL = "https://rpc.example/testnet"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.NetworkHeartbeat("mainnet"); got != 1200 {
		t.Fatalf("expected override 1200, got %d", got)
	}
	if got := cfg.NetworkHeartbeat("testnet"); got != 3600 {
		t.Fatalf("expected fallback 3600, got %d", got)
	}
}
