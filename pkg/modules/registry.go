package modules

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"plugin"
	"sort"
	"sync"
	"time"

	"github.com/dukex/integra/pkg/models"
	"github.com/dukex/integra/pkg/protocol"
)

// Registry maps module/processor names and script ids to code. It is safe for concurrent use;
// processors can be swapped while integrations run.
type Registry struct {
	logger        *slog.Logger
	scriptTimeout time.Duration

	mu         sync.RWMutex
	processors map[string]map[string]Processor
	scripts    map[string]Script
}

var _ protocol.Modules = (*Registry)(nil)

// DefaultScriptTimeout bounds the wait for an asynchronous script to call complete.
const DefaultScriptTimeout = 5 * time.Minute

type Option func(*Registry)

// WithScriptTimeout sets how long RunScript waits for an asynchronous script. Zero or less
// waits as long as the caller's context allows.
func WithScriptTimeout(d time.Duration) Option {
	return func(r *Registry) { r.scriptTimeout = d }
}

func NewRegistry(logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		logger:        logger.With("module", "modules"),
		scriptTimeout: DefaultScriptTimeout,
		processors:    make(map[string]map[string]Processor),
		scripts:       make(map[string]Script),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Load registers every processor of m. Nothing is registered when one of them clashes.
func (r *Registry) Load(m Module) error {
	if m == nil || m.ID() == "" {
		return ErrInvalidModule
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing := r.processors[m.ID()]
	for name := range m.Processors() {
		if _, ok := existing[name]; ok {
			return fmt.Errorf("%w: %s/%s", ErrProcessorExists, m.ID(), name)
		}
	}

	for name, p := range m.Processors() {
		r.registerLocked(m.ID(), name, p)
	}

	r.logger.Info("Module loaded", "module_id", m.ID(), "processors", len(m.Processors()))

	return nil
}

func (r *Registry) RegisterProcessor(moduleID, name string, p Processor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.processors[moduleID][name]; ok {
		return fmt.Errorf("%w: %s/%s", ErrProcessorExists, moduleID, name)
	}

	r.registerLocked(moduleID, name, p)

	return nil
}

// SwapProcessor replaces a registered processor. Runs already inside the old processor finish
// with it; later lookups get the new one.
func (r *Registry) SwapProcessor(moduleID, name string, p Processor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.processors[moduleID][name]; !ok {
		return fmt.Errorf("%w: %s/%s", ErrProcessorNotFound, moduleID, name)
	}

	r.processors[moduleID][name] = p
	r.logger.Info("Processor swapped", "module_id", moduleID, "processor", name)

	return nil
}

// Unload removes a module and all its processors. Unknown modules are ignored.
func (r *Registry) Unload(moduleID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.processors[moduleID]; !ok {
		return
	}

	delete(r.processors, moduleID)
	r.logger.Info("Module unloaded", "module_id", moduleID)
}

func (r *Registry) RegisterScript(id string, s Script) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.scripts[id]; ok {
		return fmt.Errorf("%w: %s", ErrScriptExists, id)
	}

	r.scripts[id] = s

	return nil
}

func (r *Registry) RemoveScript(id string) {
	r.mu.Lock()
	delete(r.scripts, id)
	r.mu.Unlock()
}

// Modules lists the loaded module ids, sorted.
func (r *Registry) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.processors))
	for id := range r.processors {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

func (r *Registry) RunProcessor(ctx context.Context, moduleID, name string, tx *models.Transaction) error {
	r.mu.RLock()
	p, ok := r.processors[moduleID][name]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: processor %s/%s", protocol.ErrModuleNotFound, moduleID, name)
	}

	return p.Process(ctx, tx)
}

type scriptResult struct {
	tx  *models.Transaction
	err error
}

func (r *Registry) RunScript(ctx context.Context, id string, tx *models.Transaction, async bool) (*models.Transaction, error) {
	r.mu.RLock()
	s, ok := r.scripts[id]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: script %s", protocol.ErrModuleNotFound, id)
	}

	if async && r.scriptTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeoutCause(ctx, r.scriptTimeout, ErrScriptTimeout)
		defer cancel()
	}

	done := make(chan scriptResult, 1)

	var once sync.Once

	complete := func(result *models.Transaction, err error) {
		once.Do(func() { done <- scriptResult{tx: result, err: err} })
	}

	result, err := s.Run(ctx, tx, complete)
	if err != nil {
		return nil, err
	}

	if !async {
		return result, nil
	}

	select {
	case res := <-done:
		return res.tx, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("script %s did not complete: %w", id, context.Cause(ctx))
	}
}

func (r *Registry) registerLocked(moduleID, name string, p Processor) {
	if r.processors[moduleID] == nil {
		r.processors[moduleID] = make(map[string]Processor)
	}

	r.processors[moduleID][name] = p
}

// LoadPlugins opens every .so file under dir and loads the Module it exports.
func (r *Registry) LoadPlugins(dir string) error {
	paths, err := fs.Glob(os.DirFS(dir), "*.so")
	if err != nil {
		return err
	}

	l := r.logger.With("path", dir)
	l.Info("Loading plugins", "count", len(paths))

	for _, p := range paths {
		plg, err := plugin.Open(filepath.Join(dir, p))
		if err != nil {
			return fmt.Errorf("failed to open plugin %s: %w", p, err)
		}

		symbol, err := plg.Lookup("Module")
		if err != nil {
			return fmt.Errorf("plugin %s: %w", p, err)
		}

		m, ok := symbol.(Module)
		if !ok {
			if ptr, isPtr := symbol.(*Module); isPtr {
				m = *ptr
			} else {
				return fmt.Errorf("%w: plugin %s does not export a Module", ErrInvalidModule, p)
			}
		}

		if err := r.Load(m); err != nil {
			return err
		}
	}

	return nil
}
