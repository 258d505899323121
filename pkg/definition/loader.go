package definition

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/entitykit/entitykit/pkg/entity"
	"github.com/entitykit/entitykit/pkg/schema"
)

// Loader parses class definitions from YAML and CUE files and builds entity
// descriptors from them. Parsed definitions are cached by path until the
// watcher invalidates them.
type Loader struct {
	cue      *cue.Context
	validate *validator.Validate
	engine   *ScriptEngine
	logger   zerolog.Logger

	mu    sync.RWMutex
	cache map[string]*ClassDefinition
}

// NewLoader creates a definition loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		cue:      cuecontext.New(),
		validate: validator.New(),
		engine:   NewScriptEngine(30 * time.Second),
		logger:   logger.With().Str("component", "definition-loader").Logger(),
		cache:    make(map[string]*ClassDefinition),
	}
}

// Engine returns the loader's script engine.
func (l *Loader) Engine() *ScriptEngine {
	return l.engine
}

// LoadFile parses one definition file, YAML or CUE by extension.
func (l *Loader) LoadFile(path string) (*ClassDefinition, error) {
	l.mu.RLock()
	if cached, ok := l.cache[path]; ok {
		l.mu.RUnlock()
		return cached, nil
	}
	l.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var def *ClassDefinition
	switch {
	case strings.HasSuffix(path, ".cue"):
		def, err = l.parseCUE(path, data)
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		def, err = l.parseYAML(path, data)
	default:
		return nil, fmt.Errorf("unsupported definition file type: %s", path)
	}
	if err != nil {
		return nil, err
	}

	if err := l.validate.Struct(def); err != nil {
		return nil, fmt.Errorf("definition %s is invalid: %w", path, err)
	}

	l.mu.Lock()
	l.cache[path] = def
	l.mu.Unlock()

	l.logger.Debug().
		Str("path", path).
		Str("class", def.Class).
		Int("fields", len(def.Fields)).
		Int("actions", len(def.Actions)).
		Msg("Definition loaded")

	return def, nil
}

// LoadDir parses every definition file in a directory tree.
func (l *Loader) LoadDir(dir string) ([]*ClassDefinition, error) {
	var defs []*ClassDefinition

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".cue") &&
			!strings.HasSuffix(path, ".yaml") &&
			!strings.HasSuffix(path, ".yml") {
			return nil
		}

		def, err := l.LoadFile(path)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Failed to load definition file")
			return nil
		}
		defs = append(defs, def)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	return defs, nil
}

// Build turns a definition into a runnable descriptor. The definition's
// strategy, when set, overrides the configured one.
func (l *Loader) Build(def *ClassDefinition, cfg *entity.Config) (*entity.Descriptor, error) {
	if def.Strategy != "" {
		override := *entity.DefaultConfig()
		if cfg != nil {
			override = *cfg
		}
		override.Strategy = entity.Strategy(def.Strategy)
		cfg = &override
	}

	b := entity.NewBuilder(def.Class)
	for _, f := range def.Fields {
		b.Field(entity.FieldSpec{
			Name:        f.Name,
			Constraints: f.constraints(),
			Default:     f.Default,
		})
	}
	for _, a := range def.Actions {
		spec := entity.ActionSpec{
			Name:           a.Name,
			Roles:          append([]string(nil), a.Roles...),
			Profile:        entity.Profile(a.Profile),
			Description:    a.Description,
			RequiredParams: append([]string(nil), a.RequiredParams...),
			Body:           l.engine.Body(a.Script),
		}
		if len(a.Params) > 0 {
			spec.InputConstraints = make(map[string]*schema.ConstraintSet, len(a.Params))
			for name, p := range a.Params {
				spec.InputConstraints[name] = p.constraints()
			}
		}
		b.Action(spec)
	}
	return b.Build(cfg)
}

// BuildFile loads and builds one definition file in a single step.
func (l *Loader) BuildFile(path string, cfg *entity.Config) (*entity.Descriptor, error) {
	def, err := l.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return l.Build(def, cfg)
}

// BuildDir loads a directory of definitions and builds one descriptor per
// class, keyed by type label.
func (l *Loader) BuildDir(dir string, cfg *entity.Config) (map[string]*entity.Descriptor, error) {
	defs, err := l.LoadDir(dir)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*entity.Descriptor, len(defs))
	for _, def := range defs {
		if _, dup := out[def.Class]; dup {
			return nil, fmt.Errorf("duplicate class %q in %s", def.Class, dir)
		}
		desc, err := l.Build(def, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to build class %q: %w", def.Class, err)
		}
		out[def.Class] = desc
	}
	return out, nil
}

// Invalidate drops a cached definition so the next load re-reads the file.
func (l *Loader) Invalidate(path string) {
	l.mu.Lock()
	delete(l.cache, path)
	l.mu.Unlock()
}

// ClearCache drops every cached definition.
func (l *Loader) ClearCache() {
	l.mu.Lock()
	l.cache = make(map[string]*ClassDefinition)
	l.mu.Unlock()
}

func (l *Loader) parseYAML(path string, data []byte) (*ClassDefinition, error) {
	var def ClassDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &def, nil
}

func (l *Loader) parseCUE(path string, data []byte) (*ClassDefinition, error) {
	val := l.cue.CompileString(string(data), cue.Filename(path))
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile %s: %s", path, cueerrors.Details(err, nil))
	}

	var def ClassDefinition
	if err := val.Decode(&def); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return &def, nil
}
