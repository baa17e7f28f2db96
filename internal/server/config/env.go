package config

import "github.com/caarlos0/env/v11"

// parseEnv overlays TORS_* environment variables onto config. Unset variables
// leave the current values untouched. Malformed values panic, like a broken
// JSON file does.
func parseEnv(config *Config) {
	if err := env.Parse(config); err != nil {
		panic(err)
	}
}
