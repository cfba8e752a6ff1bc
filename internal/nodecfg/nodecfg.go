// Package nodecfg defines the node's typed configuration surface and the
// NodeContext carried by reference through every component, replacing the
// module-level singletons (logger, environment detection) that a simpler
// program would reach for.
package nodecfg

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config is the typed record of recognized options. Unknown keys in a
// loaded YAML file are rejected at load time (see LoadYAML).
type Config struct {
	DigHome          string        `yaml:"dig_home"`
	Port             int           `yaml:"port"` // 0 = OS-assigned
	BootstrapServers []string      `yaml:"bootstrap_servers"`
	EnableMDNS       bool          `yaml:"enable_mdns"`
	EnableDHT        bool          `yaml:"enable_dht"`
	ConnectToPeers   []string      `yaml:"connect_to_peers"`
	NetworkID        string        `yaml:"network_id"`

	SyncInterval    time.Duration `yaml:"sync_interval"`
	PeerTTL         time.Duration `yaml:"peer_ttl"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
	MaxParallelDial int           `yaml:"max_parallel_dials"`
	MaxReqPerMinute int           `yaml:"max_req_per_minute"`
	ControlPort     int           `yaml:"control_port"`
}

// Default returns the spec-mandated defaults, mirroring the shape of the
// teacher's defaultConfig() constructor.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DigHome:         filepath.Join(home, ".dig"),
		Port:            0,
		NetworkID:       "mainnet",
		EnableMDNS:      true,
		EnableDHT:       true,
		SyncInterval:    30 * time.Second,
		PeerTTL:         10 * time.Minute,
		DialTimeout:     60 * time.Second,
		MaxParallelDial: 10,
		MaxReqPerMinute: 100,
		ControlPort:     8585,
	}
}

// ApplyEnv layers environment variables DIG_HOME, DIG_PORT, DIG_NETWORK_ID,
// and DIG_BOOTSTRAP_NODES over cfg, mirroring the teacher's envPort helper
// in node.go.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv("DIG_HOME")); v != "" {
		c.DigHome = v
	}
	if v := strings.TrimSpace(os.Getenv("DIG_PORT")); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p >= 0 && p < 65536 {
			c.Port = p
		}
	}
	if v := strings.TrimSpace(os.Getenv("DIG_NETWORK_ID")); v != "" {
		c.NetworkID = v
	}
	if v := strings.TrimSpace(os.Getenv("DIG_BOOTSTRAP_NODES")); v != "" {
		c.BootstrapServers = splitNonEmpty(v, ",")
	}
}

// Validate rejects configurations the node cannot start with.
func (c *Config) Validate() error {
	if c.DigHome == "" {
		return fmt.Errorf("nodecfg: dig_home must not be empty")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("nodecfg: port %d out of range", c.Port)
	}
	if c.NetworkID == "" {
		return fmt.Errorf("nodecfg: network_id must not be empty")
	}
	return nil
}

func splitNonEmpty(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
