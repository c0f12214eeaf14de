// Package integration assembles a running chain controller from operator
// configuration. Presets bundle common runtime settings into named
// profiles so operators can spin up nodes for different workloads without
// tweaking individual knobs.
package integration

import (
	"fmt"
)

// PresetConfig captures the tunable runtime parameters that vary across
// preset profiles.
type PresetConfig struct {
	Name           string
	CacheMB        int
	EnableMetrics  bool
	EnableTracing  bool
	PruneForkDepth uint32 // how many reversible block numbers to retain
}

// DefaultPreset returns the balanced profile.
func DefaultPreset() PresetConfig {
	return PresetConfig{
		Name:           "default",
		CacheMB:        1024,
		EnableMetrics:  false,
		EnableTracing:  false,
		PruneForkDepth: 1024,
	}
}

// LitePreset is tuned for development and CI: small caches, metrics on.
func LitePreset() PresetConfig {
	cfg := DefaultPreset()
	cfg.Name = "lite"
	cfg.CacheMB = 256
	cfg.EnableMetrics = true
	cfg.PruneForkDepth = 256
	return cfg
}

// FullPreset is tuned for production validator nodes.
func FullPreset() PresetConfig {
	cfg := DefaultPreset()
	cfg.Name = "full"
	cfg.CacheMB = 4096
	cfg.EnableMetrics = true
	cfg.EnableTracing = true
	return cfg
}

// ArchivePreset is tuned for explorers and analytics backends that keep
// deep reversible history around.
func ArchivePreset() PresetConfig {
	cfg := DefaultPreset()
	cfg.Name = "archive"
	cfg.CacheMB = 8192
	cfg.EnableMetrics = true
	cfg.EnableTracing = true
	cfg.PruneForkDepth = 65536
	return cfg
}

// GetPresetByName looks up a preset by its identifier.
func GetPresetByName(name string) (PresetConfig, error) {
	switch name {
	case "lite":
		return LitePreset(), nil
	case "full":
		return FullPreset(), nil
	case "archive":
		return ArchivePreset(), nil
	case "default":
		return DefaultPreset(), nil
	default:
		return PresetConfig{}, fmt.Errorf("unknown preset: %q (valid: lite, full, archive, default)", name)
	}
}
