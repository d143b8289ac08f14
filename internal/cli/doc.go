// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the chatkeep command line.
//
// The command tree is built with cobra. Persistent flags are bound to the
// configuration keys through viper, so a flag, a CHATKEEP_* environment
// variable, or the config file can set the same value. A .env file in the
// working directory is loaded first without overriding the environment.
//
// # Key Types
//
//   - HealthCheck: result of one doctor check
//   - JSONResponse: envelope printed in --json mode
//   - ChatCLI: line editing and history for the chat prompt
//
// # Usage
//
//	func main() {
//	    os.Exit(cli.Execute())
//	}
//
// # Commands Overview
//
//   - serve: run the HTTP storage service
//   - conversations list|show|delete|clear: manage stored conversations
//   - search: full-text search, local or against a running service
//   - chat: record conversations through the conversation cache
//   - doctor [--fix]: check and repair the data directory
//   - config init|show|path: manage the configuration file
//   - version: print build information
//
// All commands support --json.
package cli
