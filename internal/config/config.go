// Package config loads the YAML file describing the static key sets and
// connection defaults a gpcard invocation should use.
package config

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/denisoancea/GlobalPlatformPro/gp"
)

// KeySetConfig is the YAML shape of one key set entry.
type KeySetConfig struct {
	Version         int    `yaml:"version"`
	ID              int    `yaml:"id"`
	ENC             string `yaml:"enc"`
	MAC             string `yaml:"mac"`
	KEK             string `yaml:"kek"`
	Diversification string `yaml:"diversification"`
}

// RuntimeConfig is the `runtime` section (reader, variant). It is decoded
// with the rest of the file; the gpcard commands take the reader and variant
// from their own flags and do not read it.
type RuntimeConfig struct {
	Reader  string `yaml:"reader"`
	Variant string `yaml:"variant"`
}

// Config is the top-level config.yaml shape.
type Config struct {
	Keys    KeySetConfig  `yaml:"keyset"`
	Runtime RuntimeConfig `yaml:"runtime"`
}

// Load reads and validates path, decoding strictly (unknown fields reject).
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that key hex strings are well-formed and within range.
func (c *Config) Validate() error {
	if c.Keys.Version < 0 || c.Keys.Version > 255 {
		return fmt.Errorf("config.keyset.version must be 0..255")
	}
	if c.Keys.ID < 0 || c.Keys.ID > 127 {
		return fmt.Errorf("config.keyset.id must be 0..127")
	}
	for field, value := range map[string]string{
		"enc": c.Keys.ENC, "mac": c.Keys.MAC, "kek": c.Keys.KEK,
	} {
		if value == "" {
			continue
		}
		if _, err := decodeKey16(value); err != nil {
			return fmt.Errorf("config.keyset.%s: %w", field, err)
		}
	}
	switch c.Keys.Diversification {
	case "", "none", "emv", "visa2", "kdf3":
	default:
		return fmt.Errorf("config.keyset.diversification must be one of none|emv|visa2|kdf3")
	}
	return nil
}

// KeySet builds a *gp.KeySet from the decoded configuration. Missing ENC,
// MAC, or KEK fall back to gp.DefaultTestKey.
func (c *Config) KeySet() (*gp.KeySet, error) {
	enc, err := keyOrDefault(c.Keys.ENC)
	if err != nil {
		return nil, fmt.Errorf("keyset.enc: %w", err)
	}
	mac, err := keyOrDefault(c.Keys.MAC)
	if err != nil {
		return nil, fmt.Errorf("keyset.mac: %w", err)
	}
	kek, err := keyOrDefault(c.Keys.KEK)
	if err != nil {
		return nil, fmt.Errorf("keyset.kek: %w", err)
	}

	div, err := parseDiversification(c.Keys.Diversification)
	if err != nil {
		return nil, err
	}

	return gp.NewKeySet(byte(c.Keys.Version), byte(c.Keys.ID), enc, mac, kek, div), nil
}

func parseDiversification(s string) (gp.Diversification, error) {
	switch s {
	case "", "none":
		return gp.DiversifyNone, nil
	case "emv":
		return gp.DiversifyEMV, nil
	case "visa2":
		return gp.DiversifyVISA2, nil
	case "kdf3":
		return gp.DiversifyKDF3, nil
	default:
		return gp.DiversifyNone, fmt.Errorf("unknown diversification scheme %q", s)
	}
}

func keyOrDefault(hexStr string) ([16]byte, error) {
	if hexStr == "" {
		return gp.DefaultTestKey, nil
	}
	return decodeKey16(hexStr)
}

func decodeKey16(hexStr string) ([16]byte, error) {
	var out [16]byte
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return out, fmt.Errorf("invalid hex: %w", err)
	}
	if len(raw) != 16 {
		return out, fmt.Errorf("key must decode to 16 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}
