// Package config loads, validates, and normalizes the TOML configuration for
// the dealpipe daemon and CLI.
package config
