// SPDX-License-Identifier: MPL-2.0

// Package config loads the user configuration of the ncc command: logging,
// compression and component encoding defaults, and the install root used to
// resolve the install path constants.
//
// Values come from, in increasing precedence: DefaultConfig, the config file
// (YAML or TOML) and NCC_* environment variables.
package config
