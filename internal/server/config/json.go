package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/tors/internal/flagx"
	"github.com/dmitrijs2005/tors/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations accept
// either strings such as "15m" or integer nanoseconds.
type JsonConfig struct {
	EndpointAddrHTTP            string         `json:"endpoint_addr_http"`
	DatabasePath                string         `json:"database_path"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration"`
	TokenIssuer                 string         `json:"token_issuer"`
	KeyEncryptionSecret         string         `json:"key_encryption_secret"`
	HashMemoryKiB               uint32         `json:"hash_memory_kib"`
	HashIterations              uint32         `json:"hash_iterations"`
	HashParallelism             uint8          `json:"hash_parallelism"`
	LogLevel                    string         `json:"log_level"`
}

// parseJson loads the file named by -c/-config, if any, and copies every
// field present in it into config. A missing or malformed file panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabasePath, c.DatabasePath)
	setString(&config.TokenIssuer, c.TokenIssuer)
	setString(&config.KeyEncryptionSecret, c.KeyEncryptionSecret)
	setString(&config.LogLevel, c.LogLevel)

	if c.AccessTokenValidityDuration.Duration > 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.HashMemoryKiB > 0 {
		config.HashMemoryKiB = c.HashMemoryKiB
	}
	if c.HashIterations > 0 {
		config.HashIterations = c.HashIterations
	}
	if c.HashParallelism > 0 {
		config.HashParallelism = c.HashParallelism
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
