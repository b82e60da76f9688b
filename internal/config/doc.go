// Package config loads and validates filescope settings.
//
// Settings come from three layers, later layers winning: built-in defaults,
// an optional TOML file, and FILESCOPE_* environment variables.
//
//	cfg, err := config.Load("~/.filescope/config.toml")
//	if err != nil {
//	    var cfgErr *config.ConfigError
//	    if errors.As(err, &cfgErr) { ... }
//	}
//
// Sizes accept human strings ("5MB", "512 KiB") and durations accept Go
// duration strings ("60s"). A Config is treated as read-only once handed to
// the scanner, classifier gateway and pipeline.
package config
