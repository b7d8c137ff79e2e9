// SPDX-License-Identifier: BSD-3-Clause

package config

import "errors"

var (
	// ErrUnknownKey indicates a get/set targeted a key outside the known key set.
	ErrUnknownKey = errors.New("unknown config key")
	// ErrInvalidValue indicates a set's value failed the key's range/type check.
	ErrInvalidValue = errors.New("invalid config value")
	// ErrSaveFailed indicates the config file could not be written.
	ErrSaveFailed = errors.New("config save failed")
)
