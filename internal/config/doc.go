// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

// Package config loads and validates Ergosync configuration.
//
// Configuration is layered with Koanf v2, highest priority last:
//
//  1. Built-in defaults
//  2. Optional YAML config file (config.yaml, /etc/ergosync/config.yaml,
//     or the path in CONFIG_PATH)
//  3. Environment variables (PELOTON_USERNAME, SYNC_INTERVAL, ...)
package config
