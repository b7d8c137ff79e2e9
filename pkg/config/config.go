// SPDX-License-Identifier: BSD-3-Clause

// Package config holds the daemon's flat, runtime-settable key/value
// store (spec §6 config keys), layered defaults < file < environment <
// explicit overrides via github.com/spf13/viper, and exposed to the RPC
// server's config.get/set/save handlers.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/spf13/viper"
)

// Kind is the value type a config key is validated against.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindPath
	KindEnum
)

// keySpec describes one known config key: its default, its kind, and
// (for ints/floats) its inclusive valid range, or (for enums) its
// allowed values.
type keySpec struct {
	kind    Kind
	def     any
	min     float64
	max     float64
	choices []string
}

// keys is the full set of keys the daemon understands; config.get/set
// reject anything outside it with ErrUnknownKey.
var keys = map[string]keySpec{
	"host":                {kind: KindString, def: "127.0.0.1"},
	"port":                {kind: KindInt, def: 8732, min: 1, max: 65535},
	"tickMs":              {kind: KindInt, def: 200, min: 5, max: 1000},
	"forceTickMs":         {kind: KindInt, def: 5000, min: 100, max: 10000},
	"deltaC":              {kind: KindFloat, def: 0.5, min: 0, max: 10},
	"pidfile":             {kind: KindPath, def: "/run/lfcd.pid"},
	"logfile":             {kind: KindPath, def: ""},
	"shmPath":             {kind: KindString, def: "/lfc.telemetry"},
	"profilesPath":        {kind: KindPath, def: "/etc/lfcd/profiles"},
	"profileName":         {kind: KindString, def: ""},
	"debug":               {kind: KindBool, def: false},
	"vendorMapPath":       {kind: KindPath, def: ""},
	"vendorMapWatchMode":  {kind: KindEnum, def: "none", choices: []string{"none", "mtime"}},
	"vendorMapThrottleMs": {kind: KindInt, def: 1000, min: 0, max: 60000},
}

// Store is a flat config key/value store with layered resolution:
// built-in defaults, overlaid by an optional file, overlaid by
// LFCD_-prefixed environment variables, overlaid by explicit Set calls.
type Store struct {
	v    *viper.Viper
	path string
}

// New builds a Store with all keys at their defaults and environment
// binding enabled; call Load to additionally overlay a config file.
func New() *Store {
	v := viper.New()
	v.SetEnvPrefix("lfcd")
	v.AutomaticEnv()
	for k, spec := range keys {
		v.SetDefault(k, spec.def)
	}
	return &Store{v: v}
}

// Load overlays a config file (any format viper supports: json, yaml,
// toml) onto the defaults/environment layers. A missing file is not an
// error; keys simply keep their default/env values.
func (s *Store) Load(path string) error {
	if path == "" {
		return nil
	}
	s.path = path
	s.v.SetConfigFile(path)
	if err := s.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	return nil
}

// Keys returns the known config keys in sorted order, for the
// commands/help RPC surfaces.
func Keys() []string {
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Get returns the current value of key in its native Go type
// (string, int64, float64, or bool).
func (s *Store) Get(key string) (any, error) {
	spec, ok := keys[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	switch spec.kind {
	case KindInt:
		return int64(s.v.GetInt(key)), nil
	case KindFloat:
		return s.v.GetFloat64(key), nil
	case KindBool:
		return s.v.GetBool(key), nil
	default:
		return s.v.GetString(key), nil
	}
}

// GetAll returns every known key mapped to its current value, for the
// config.get RPC call with no key argument.
func (s *Store) GetAll() map[string]any {
	out := make(map[string]any, len(keys))
	for _, k := range Keys() {
		v, _ := s.Get(k)
		out[k] = v
	}
	return out
}

// Set validates and applies a new value for key. The value may arrive
// as any JSON-decoded type (string, float64, bool) since RPC params
// decode that way; Set coerces it to the key's declared kind.
func (s *Store) Set(key string, value any) error {
	spec, ok := keys[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	switch spec.kind {
	case KindInt:
		n, ok := asFloat(value)
		if !ok || n != float64(int64(n)) {
			return fmt.Errorf("%w: %s must be an integer", ErrInvalidValue, key)
		}
		if n < spec.min || n > spec.max {
			return fmt.Errorf("%w: %s must be in [%g,%g]", ErrInvalidValue, key, spec.min, spec.max)
		}
		s.v.Set(key, int64(n))
	case KindFloat:
		n, ok := asFloat(value)
		if !ok {
			return fmt.Errorf("%w: %s must be a number", ErrInvalidValue, key)
		}
		if n < spec.min || n > spec.max {
			return fmt.Errorf("%w: %s must be in [%g,%g]", ErrInvalidValue, key, spec.min, spec.max)
		}
		s.v.Set(key, n)
	case KindBool:
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("%w: %s must be a boolean", ErrInvalidValue, key)
		}
		s.v.Set(key, b)
	case KindEnum:
		str, ok := value.(string)
		if !ok || !contains(spec.choices, str) {
			return fmt.Errorf("%w: %s must be one of %v", ErrInvalidValue, key, spec.choices)
		}
		s.v.Set(key, str)
	default:
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: %s must be a string", ErrInvalidValue, key)
		}
		s.v.Set(key, str)
	}

	return nil
}

// Save writes every known key's current value to the store's config
// file (the path last passed to Load, or path if non-empty).
func (s *Store) Save(path string) error {
	if path == "" {
		path = s.path
	}
	if path == "" {
		return fmt.Errorf("%w: no config path configured", ErrSaveFailed)
	}
	if err := s.v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	s.path = path
	return nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func contains(choices []string, v string) bool {
	for _, c := range choices {
		if c == v {
			return true
		}
	}
	return false
}
