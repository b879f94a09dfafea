package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Operator.PrivateKey = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	return cfg
}

func TestValidateDefaultsWithOperatorKey(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidateFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "unknown_mode",
			mutate:  func(c *Config) { c.Mode = "turbo" },
			wantSub: "unknown mode",
		},
		{
			name:    "missing_operator_key",
			mutate:  func(c *Config) { c.Operator.PrivateKey = "" },
			wantSub: "operator",
		},
		{
			name: "encrypted_key_without_password",
			mutate: func(c *Config) {
				c.Operator.PrivateKey = ""
				c.Operator.EncryptedKeyPath = "/keys/operator.json"
			},
			wantSub: "key_password",
		},
		{
			name:    "bad_settlement_mode",
			mutate:  func(c *Config) { c.Settlement.Mode = "dry-run" },
			wantSub: "settlement",
		},
		{
			name: "ledger_mode_needs_delegation_manager",
			mutate: func(c *Config) {
				c.Settlement.Mode = "ledger"
				c.Chain.DelegationManager = ""
			},
			wantSub: "delegation_manager",
		},
		{
			name:    "bad_server_port",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantSub: "port must be 1-65535",
		},
		{
			name: "pool_min_exceeds_max",
			mutate: func(c *Config) {
				c.Postgres.PoolMinConns = 20
				c.Postgres.PoolMaxConns = 10
			},
			wantSub: "pool_min_conns",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Fatalf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}
