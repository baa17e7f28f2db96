// Package config handles configuration for the tors server, including
// defaults, JSON overlay, environment variables, and command-line flags.
package config

import "time"

// Config holds runtime settings for the tors server.
//
// Fields:
//   - EndpointAddrHTTP: bind address for the HTTP API.
//   - DatabasePath: SQLite database file.
//   - AccessTokenValidityDuration: lifetime of issued auth tokens.
//   - TokenIssuer: "iss" claim written into and required from tokens.
//   - KeyEncryptionSecret: when set, the signing private key is sealed at rest.
//   - HashMemoryKiB / HashIterations / HashParallelism: argon2id work factor.
//   - LogLevel: debug, info, warn or error.
type Config struct {
	EndpointAddrHTTP            string        `env:"TORS_HTTP_ADDR"`
	DatabasePath                string        `env:"TORS_DATABASE_PATH"`
	AccessTokenValidityDuration time.Duration `env:"TORS_TOKEN_TTL"`
	TokenIssuer                 string        `env:"TORS_TOKEN_ISSUER"`
	KeyEncryptionSecret         string        `env:"TORS_KEY_ENCRYPTION_SECRET"`
	HashMemoryKiB               uint32        `env:"TORS_HASH_MEMORY_KIB"`
	HashIterations              uint32        `env:"TORS_HASH_ITERATIONS"`
	HashParallelism             uint8         `env:"TORS_HASH_PARALLELISM"`
	LogLevel                    string        `env:"TORS_LOG_LEVEL"`
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.EndpointAddrHTTP = ":8080"
	c.DatabasePath = "./db.sqlite"
	c.AccessTokenValidityDuration = 15 * time.Minute
	c.TokenIssuer = "tors"
	c.KeyEncryptionSecret = ""
	c.HashMemoryKiB = 64 * 1024
	c.HashIterations = 1
	c.HashParallelism = 4
	c.LogLevel = "info"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file, the environment and finally command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
