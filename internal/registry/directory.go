package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/burnwatch/burnwatch/internal/slo"
)

// DirectoryRegistry loads definitions from a directory of YAML files. Files
// are schema-validated on load; definitions that fail validation are
// rejected so they never reach the evaluation engine. Reload picks up edits
// between ticks.
type DirectoryRegistry struct {
	dir       string
	validator *slo.Validator
	logger    *zap.Logger

	mu   sync.RWMutex
	defs map[string]*slo.Definition
}

// NewDirectoryRegistry creates a registry over a definitions directory and
// performs the initial load.
func NewDirectoryRegistry(dir string, logger *zap.Logger) (*DirectoryRegistry, error) {
	validator, err := slo.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	r := &DirectoryRegistry{
		dir:       dir,
		validator: validator,
		logger:    logger,
		defs:      make(map[string]*slo.Definition),
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the directory. The previous set stays in place if the
// directory cannot be read at all; individually invalid files are skipped
// with a logged error.
func (r *DirectoryRegistry) Reload() error {
	defsWithFiles, loadErrors := slo.LoadFromDirectory(r.dir)
	if len(defsWithFiles) == 0 && len(loadErrors) > 0 {
		return fmt.Errorf("failed to load definitions from %s: %v", r.dir, loadErrors[0])
	}
	for _, le := range loadErrors {
		r.logger.Error("skipping unreadable definition file", zap.String("file", le.File), zap.String("error", le.Message))
	}

	next := make(map[string]*slo.Definition, len(defsWithFiles))
	for _, dwf := range defsWithFiles {
		if verrs := r.validator.ValidateDefinition(dwf.File, dwf.Definition); len(verrs) > 0 {
			for _, ve := range verrs {
				r.logger.Error("rejecting invalid definition", zap.String("file", ve.File), zap.String("error", ve.Message))
			}
			continue
		}

		def := dwf.Definition
		def.ApplyDefaults()
		if _, dup := next[def.ID]; dup {
			r.logger.Error("rejecting duplicate definition id", zap.String("id", def.ID), zap.String("file", dwf.File))
			continue
		}
		next[def.ID] = def
	}

	r.mu.Lock()
	r.defs = next
	r.mu.Unlock()

	r.logger.Info("loaded slo definitions", zap.Int("count", len(next)), zap.String("dir", r.dir))
	return nil
}

// Get implements Registry
func (r *DirectoryRegistry) Get(_ context.Context, id string) (*slo.Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return def, nil
}

// ListActive implements Registry. Results are ordered by id so scheduling is
// deterministic across ticks.
func (r *DirectoryRegistry) ListActive(_ context.Context) ([]*slo.Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	active := make([]*slo.Definition, 0, len(r.defs))
	for _, def := range r.defs {
		if !def.Disabled {
			active = append(active, def)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	return active, nil
}
