// Package config loads relay's runtime configuration.
//
// Precedence, lowest to highest: Default(), a YAML or JSON file via Load,
// RELAY_* environment variables via FromEnv, then CLI flags applied by the
// caller. Validate reports every bad setting in one error.
//
//	cfg, err := config.Load("/etc/relay.yaml")
//	if err != nil { ... }
//	if err := config.FromEnv(&cfg); err != nil { ... }
//	if err := cfg.Validate(); err != nil { ... }
package config
