// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package settings stores the model list, appearance, and saved prompts.
//
// Each setting lives in its own JSON document next to the conversation
// directory and is written with defaults on first start.
package settings
