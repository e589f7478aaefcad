// Package registry maps action names to the handlers `action` steps invoke.
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"plugin"
	"slices"
	"sync"

	"github.com/dukex/flowline/pkg/protocol"
)

// pluginSymbol is the exported variable a plugin must provide.
const pluginSymbol = "Action"

var ErrActionNotRegistered = errors.New("action not registered")

type Registry struct {
	logger  *slog.Logger
	mu      sync.RWMutex
	actions map[string]protocol.Action
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:  log,
		actions: make(map[string]protocol.Action),
	}
}

// Register adds or replaces the handler for action.ID().
func (r *Registry) Register(action protocol.Action) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.actions[action.ID()]; exists {
		r.logger.Warn("Replacing registered action", "action", action.ID())
	}

	r.actions[action.ID()] = action
}

func (r *Registry) Get(name string) (protocol.Action, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	action, ok := r.actions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrActionNotRegistered, name)
	}

	return action, nil
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.actions[name]

	return ok
}

// Names returns the registered action names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// LoadPlugins registers every action exported by the .so files under
// pluginsPath/actions. A missing directory is not an error.
func (r *Registry) LoadPlugins(pluginsPath string) error {
	rootPath := filepath.Join(pluginsPath, "actions")

	if _, err := os.Stat(rootPath); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	pluginPathList, err := fs.Glob(os.DirFS(rootPath), "*.so")
	if err != nil {
		return err
	}

	l := r.logger.With(slog.String("path", rootPath))
	l.Info("Loading action plugins", "count", len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(filepath.Join(rootPath, p))
		if err != nil {
			return fmt.Errorf("failed to open plugin %s: %w", p, err)
		}

		symbol, err := plg.Lookup(pluginSymbol)
		if err != nil {
			return fmt.Errorf("plugin %s: %w", p, err)
		}

		action, ok := symbol.(protocol.Action)
		if !ok {
			// Lookup returns a pointer to exported variables.
			ptr, isPtr := symbol.(*protocol.Action)
			if !isPtr {
				return fmt.Errorf("plugin %s: symbol %s does not implement protocol.Action", p, pluginSymbol)
			}

			action = *ptr
		}

		r.Register(action)

		l.Info("Loaded action plugin", slog.String("plugin", p), slog.String("action", action.ID()))
	}

	return nil
}
