// Package config loads and validates the daemon's global TOML
// configuration. Project definitions live in their own files under the
// config directory and are handled by the project package.
package config
