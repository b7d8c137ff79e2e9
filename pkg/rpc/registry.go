// SPDX-License-Identifier: BSD-3-Clause

package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Handler executes one RPC method. params is the raw JSON params
// member (possibly empty); the returned value is marshaled into the
// response's "result" field.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// CommandInfo is the {name, help} shape returned by the commands/help
// built-ins.
type CommandInfo struct {
	Name string `json:"name"`
	Help string `json:"help"`
}

// Registry is a thread-safe name -> Handler table. No lock is held
// while a handler executes.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	help     map[string]string
}

// NewRegistry returns an empty Registry with the commands/help/ping
// built-ins installed.
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[string]Handler), help: make(map[string]string)}
	r.installBuiltins()
	return r
}

// Add registers or replaces the handler for name.
func (r *Registry) Add(name, help string, fn Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = fn
	r.help[name] = help
}

// Remove deletes name if present.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, name)
	delete(r.help, name)
}

// Exists reports whether name is registered.
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

// Call invokes the handler registered for name. It returns
// ErrMethodNotFound if none is registered.
func (r *Registry) Call(ctx context.Context, name string, params json.RawMessage) (any, error) {
	r.mu.RLock()
	fn, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrMethodNotFound
	}
	return fn(ctx, params)
}

// List returns every registered command, sorted by name.
func (r *Registry) List() []CommandInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]CommandInfo, 0, len(r.handlers))
	for name, help := range r.help {
		out = append(out, CommandInfo{Name: name, Help: help})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Help returns the one-line help text for name, and whether it exists.
func (r *Registry) Help(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.help[name]
	return h, ok
}

func (r *Registry) installBuiltins() {
	r.Add("ping", "Liveness check.", func(ctx context.Context, params json.RawMessage) (any, error) {
		return map[string]any{"pong": true}, nil
	})
	r.Add("commands", "List every registered command.", func(ctx context.Context, params json.RawMessage) (any, error) {
		return r.List(), nil
	})
	r.Add("help", "Return the help text for a named command.", func(ctx context.Context, params json.RawMessage) (any, error) {
		var req struct {
			Name string `json:"name"`
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &req); err != nil {
				return nil, wrapInvalidParams(err)
			}
		}
		help, ok := r.Help(req.Name)
		if !ok {
			return nil, ErrMethodNotFound
		}
		return map[string]any{"name": req.Name, "help": help}, nil
	})
}

func wrapInvalidParams(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidParams, err)
}
