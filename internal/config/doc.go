// Package config loads the tokenguard server configuration.
//
// This package manages:
//   - Loading configuration from a YAML file
//   - Loading a .env file into the process environment when one exists
//   - Overriding with TOKENGUARD_* environment variables
//   - Validation and mapping into the engine configuration
//
// Secrets (JWT key material, database and Redis passwords) should come from
// the environment, not from the YAML file.
//
// Usage:
//
//	cfg, err := config.Load("config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	engineCfg, err := cfg.EngineConfig()
package config
