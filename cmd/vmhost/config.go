package main

import (
	"os"

	"gopkg.in/yaml.v3"
)

// hostConfig is vmhost's on-disk configuration, loaded with yaml.v3 as a
// single flat document (lowercased field names via the yaml tag).
type hostConfig struct {
	ChainID      string `yaml:"chain_id"`
	BlockGas     uint64 `yaml:"block_gas_limit"`
	VPGas        uint64 `yaml:"vp_gas_limit"`
	ListenAddr   string `yaml:"listen_addr"`
	RateLimitRPS int    `yaml:"rate_limit_rps"`
	RateBurst    int    `yaml:"rate_limit_burst"`
}

func defaultHostConfig() hostConfig {
	return hostConfig{
		ChainID:      "vmhost-devnet",
		BlockGas:     8_000_000,
		VPGas:        10_000_000,
		ListenAddr:   ":9191",
		RateLimitRPS: 200,
		RateBurst:    100,
	}
}

// loadHostConfig reads path if non-empty, overlaying it onto the defaults;
// a missing path is not an error, matching cmd/config.Load's "defaults plus
// optional overrides" behavior.
func loadHostConfig(path string) (hostConfig, error) {
	cfg := defaultHostConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
