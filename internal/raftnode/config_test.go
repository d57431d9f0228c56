package raftnode

import (
	"strings"
	"testing"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.NodeID = 1
	cfg.DataDir = "data"
	cfg.PeerAddresses = map[uint64]string{1: "localhost:63001"}
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing data dir", func(c *Config) { c.DataDir = "" }, "data_dir"},
		{"own address missing", func(c *Config) { c.NodeID = 9 }, "peer_addresses"},
		{"zero heartbeat", func(c *Config) { c.HeartbeatIntervalMs = 0 }, "heartbeat_interval_ms"},
		{"election min not above heartbeat", func(c *Config) { c.ElectionTimeoutMinMs = c.HeartbeatIntervalMs }, "election_timeout_min_ms"},
		{"election max not above min", func(c *Config) { c.ElectionTimeoutMaxMs = c.ElectionTimeoutMinMs }, "election_timeout_max_ms"},
		{"zero snapshot threshold", func(c *Config) { c.SnapshotThreshold = 0 }, "snapshot_threshold"},
		{"zero max request bytes", func(c *Config) { c.MaxRequestBytes = 0 }, "max_request_bytes"},
		{"zero rate limit", func(c *Config) { c.RateLimitPerSec = 0 }, "rate_limit_per_sec"},
		{"zero in-flight cap", func(c *Config) { c.MaxInFlightRequests = 0 }, "max_in_flight_requests"},
		{"zero forward attempts", func(c *Config) { c.ForwardRetryAttempts = 0 }, "forward_retry_attempts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}
