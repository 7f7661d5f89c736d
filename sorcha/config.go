// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package sorcha

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config carries every recognised node option. Zero values are replaced by
// defaults at load time, so a partial yaml file is fine.
type Config struct {
	HeartbeatIntervalSec        int  `yaml:"heartbeat_interval_s"`
	MaxMissedHeartbeats         int  `yaml:"max_missed_heartbeats"`
	ConnectionTimeoutSec        int  `yaml:"connection_timeout_s"`
	PeerRefreshMinutes          int  `yaml:"peer_refresh_minutes"`
	MaxPeers                    int  `yaml:"max_peers"`
	MinHealthyPeers             int  `yaml:"min_healthy_peers"`
	FanoutFactor                int  `yaml:"fanout_factor"`
	GossipRounds                int  `yaml:"gossip_rounds"`
	TxCacheTTLSec               int  `yaml:"tx_cache_ttl_s"`
	StreamingThresholdBytes     int  `yaml:"streaming_threshold_bytes"`
	MaxTransactionSizeBytes     int  `yaml:"max_transaction_size_bytes"`
	EnableCompression           bool `yaml:"enable_compression"`
	DocketPullBatchSize         int  `yaml:"docket_pull_batch_size"`
	MaxConcurrentDocketPulls    int  `yaml:"max_concurrent_docket_pulls"`
	PeriodicSyncIntervalMin     int  `yaml:"periodic_sync_interval_minutes"`
	MaxQueueSize                int  `yaml:"max_queue_size"`
	MaxRegistersPerTenant       int  `yaml:"max_registers_per_tenant"`
	MaxAttestationsPerRegister  int  `yaml:"max_attestations_per_register"`
	AutoApproveWhenNoValidators bool `yaml:"auto_approve_when_no_validators"`
}

// DefaultConfig returns the config with all documented defaults applied.
func DefaultConfig() Config {
	return Config{
		HeartbeatIntervalSec:       30,
		MaxMissedHeartbeats:        2,
		ConnectionTimeoutSec:       30,
		PeerRefreshMinutes:         15,
		MaxPeers:                   1000,
		MinHealthyPeers:            5,
		FanoutFactor:               3,
		GossipRounds:               3,
		TxCacheTTLSec:              3600,
		StreamingThresholdBytes:    1024 * 1024,
		MaxTransactionSizeBytes:    10 * 1024 * 1024,
		EnableCompression:          false,
		DocketPullBatchSize:        100,
		MaxConcurrentDocketPulls:   3,
		PeriodicSyncIntervalMin:    5,
		MaxQueueSize:               10000,
		MaxRegistersPerTenant:      25,
		MaxAttestationsPerRegister: MaxAttestationsPerRegister,
	}
}

// LoadConfig reads a yaml config file and fills unset fields with defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}
	cfg := Config{}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.HeartbeatIntervalSec == 0 {
		c.HeartbeatIntervalSec = def.HeartbeatIntervalSec
	}
	if c.MaxMissedHeartbeats == 0 {
		c.MaxMissedHeartbeats = def.MaxMissedHeartbeats
	}
	if c.ConnectionTimeoutSec == 0 {
		c.ConnectionTimeoutSec = def.ConnectionTimeoutSec
	}
	if c.PeerRefreshMinutes == 0 {
		c.PeerRefreshMinutes = def.PeerRefreshMinutes
	}
	if c.MaxPeers == 0 {
		c.MaxPeers = def.MaxPeers
	}
	if c.MinHealthyPeers == 0 {
		c.MinHealthyPeers = def.MinHealthyPeers
	}
	if c.FanoutFactor == 0 {
		c.FanoutFactor = def.FanoutFactor
	}
	if c.GossipRounds == 0 {
		c.GossipRounds = def.GossipRounds
	}
	if c.TxCacheTTLSec == 0 {
		c.TxCacheTTLSec = def.TxCacheTTLSec
	}
	if c.StreamingThresholdBytes == 0 {
		c.StreamingThresholdBytes = def.StreamingThresholdBytes
	}
	if c.MaxTransactionSizeBytes == 0 {
		c.MaxTransactionSizeBytes = def.MaxTransactionSizeBytes
	}
	if c.DocketPullBatchSize == 0 {
		c.DocketPullBatchSize = def.DocketPullBatchSize
	}
	if c.MaxConcurrentDocketPulls == 0 {
		c.MaxConcurrentDocketPulls = def.MaxConcurrentDocketPulls
	}
	if c.PeriodicSyncIntervalMin == 0 {
		c.PeriodicSyncIntervalMin = def.PeriodicSyncIntervalMin
	}
	if c.MaxQueueSize == 0 {
		c.MaxQueueSize = def.MaxQueueSize
	}
	if c.MaxRegistersPerTenant == 0 {
		c.MaxRegistersPerTenant = def.MaxRegistersPerTenant
	}
	if c.MaxAttestationsPerRegister == 0 {
		c.MaxAttestationsPerRegister = def.MaxAttestationsPerRegister
	}
}

// Validate rejects values outside sane bounds.
func (c *Config) Validate() error {
	if c.MaxAttestationsPerRegister > MaxAttestationsPerRegister {
		return errors.Errorf("config: max_attestations_per_register exceeds hard cap %d", MaxAttestationsPerRegister)
	}
	if c.HeartbeatIntervalSec < 1 {
		return errors.New("config: heartbeat_interval_s must be positive")
	}
	if c.FanoutFactor < 1 || c.GossipRounds < 1 {
		return errors.New("config: gossip fanout and rounds must be positive")
	}
	if c.DocketPullBatchSize < 1 || c.MaxConcurrentDocketPulls < 1 {
		return errors.New("config: docket pull settings must be positive")
	}
	return nil
}

// HeartbeatInterval returns the heartbeat gap as a duration.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSec) * time.Second
}

// ConnectionTimeout returns the connect/read deadline as a duration.
func (c *Config) ConnectionTimeout() time.Duration {
	return time.Duration(c.ConnectionTimeoutSec) * time.Second
}

// PeerRefreshInterval returns the peer exchange interval as a duration.
func (c *Config) PeerRefreshInterval() time.Duration {
	return time.Duration(c.PeerRefreshMinutes) * time.Minute
}

// TxCacheTTL returns the gossip dedup TTL as a duration.
func (c *Config) TxCacheTTL() time.Duration {
	return time.Duration(c.TxCacheTTLSec) * time.Second
}

// PeriodicSyncInterval returns the checkpoint sweep interval as a duration.
func (c *Config) PeriodicSyncInterval() time.Duration {
	return time.Duration(c.PeriodicSyncIntervalMin) * time.Minute
}
