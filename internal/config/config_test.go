package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ssowallet.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"wallet": {"account": "0x1111111111111111111111111111111111111111"},
		"chain": {"rpc_url": "http://localhost:8545", "chain_id": 300}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected server address: %s", cfg.Server.Address)
	}
	if cfg.Wallet.PrivateKeyEnv != "SSOWALLET_PRIVATE_KEY" {
		t.Fatalf("unexpected key env: %s", cfg.Wallet.PrivateKeyEnv)
	}
	if cfg.Storage.JobStore.Driver != "memory" || cfg.Storage.JobStore.Retries != 3 {
		t.Fatalf("unexpected job store defaults: %+v", cfg.Storage.JobStore)
	}
	if cfg.JobQueue.Driver != "memory" || cfg.JobQueue.Worker != 4 {
		t.Fatalf("unexpected queue defaults: %+v", cfg.JobQueue)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"missing account": `{
			"chain": {"rpc_url": "http://localhost:8545"}
		}`,
		"missing chain endpoint": `{
			"wallet": {"account": "0x1111111111111111111111111111111111111111"}
		}`,
		"unknown store driver": `{
			"wallet": {"account": "0x1111111111111111111111111111111111111111"},
			"chain": {"rpc_url": "http://localhost:8545"},
			"storage": {"job_store": {"driver": "sqlite"}}
		}`,
		"mysql without dsn": `{
			"wallet": {"account": "0x1111111111111111111111111111111111111111"},
			"chain": {"rpc_url": "http://localhost:8545"},
			"storage": {"job_store": {"driver": "mysql"}}
		}`,
		"unknown queue driver": `{
			"wallet": {"account": "0x1111111111111111111111111111111111111111"},
			"chain": {"rpc_url": "http://localhost:8545"},
			"job_queue": {"driver": "kafka"}
		}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, content)); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestPrivateKeyFromEnv(t *testing.T) {
	w := WalletConfig{PrivateKeyEnv: "SSOWALLET_TEST_KEY"}
	if _, err := w.PrivateKey(); err == nil {
		t.Fatal("expected error when env is unset")
	}
	t.Setenv("SSOWALLET_TEST_KEY", "abcd")
	key, err := w.PrivateKey()
	if err != nil {
		t.Fatalf("private key: %v", err)
	}
	if key != "abcd" {
		t.Fatalf("unexpected key: %s", key)
	}
}
