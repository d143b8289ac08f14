// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for chatkeep.
//
// Configuration is TOML with defaults for every key, environment variable and
// flag overrides through viper, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - ServerConfig: HTTP listen address, CORS and limits
//   - StorageConfig: conversation filename strategy
//   - ValidateErrors: every problem found by Validate
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Command line flags bound to viper
//   - Environment variables (CHATKEEP_*)
//   - --config file or <user config dir>/chatkeep/config.toml
//   - Built-in defaults
//
// # Usage
//
//	v := config.NewViper()
//	v.BindPFlag(config.KeyServerPort, cmd.Flags().Lookup("port"))
//	cfg, err := config.Load("", v)
//	if err != nil {
//	    return err
//	}
//	namer, _ := cfg.Namer()
package config
