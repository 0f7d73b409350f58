// Package config loads the demonstration node's configuration: an
// out-of-scope ambient concern carried here the way the corpus carries
// it, via viper-bound flags and RHEAKV_-prefixed environment variables.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// NodeConfig is the settings a single rheakv-node instance needs to join
// a cluster and expose its engine.
type NodeConfig struct {
	ReplicaID      uint64
	Peers          map[uint64]string
	DataDir        string
	KeysPerSegment int
	Endpoint       string
	MetricsAddr    string
}

// Load reads the bound flags and environment into a NodeConfig.
func Load() (NodeConfig, error) {
	cfg := NodeConfig{
		ReplicaID:      viper.GetUint64("replica-id"),
		DataDir:        viper.GetString("data-dir"),
		KeysPerSegment: viper.GetInt("keys-per-segment"),
		Endpoint:       viper.GetString("endpoint"),
		MetricsAddr:    viper.GetString("metrics-addr"),
	}

	if cfg.ReplicaID == 0 {
		return NodeConfig{}, fmt.Errorf("config: replica-id is required")
	}
	if cfg.KeysPerSegment <= 0 {
		return NodeConfig{}, fmt.Errorf("config: keys-per-segment must be positive")
	}

	peersFlag := viper.GetString("peers")
	if peersFlag != "" {
		cfg.Peers = make(map[uint64]string)
		for _, entry := range strings.Split(peersFlag, ",") {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				return NodeConfig{}, fmt.Errorf("config: invalid peer entry %q (expected ID=addr)", entry)
			}
			id, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
			if err != nil {
				return NodeConfig{}, fmt.Errorf("config: invalid peer id %q: %w", parts[0], err)
			}
			cfg.Peers[id] = strings.TrimSpace(parts[1])
		}
	}

	return cfg, nil
}
