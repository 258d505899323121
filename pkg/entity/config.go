package entity

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/entitykit/entitykit/pkg/policy"
	"github.com/entitykit/entitykit/pkg/schema"
)

// Strategy selects how synthesized accessors store field values.
type Strategy string

const (
	// StrategyDirect holds every field in a private slot on the instance.
	StrategyDirect Strategy = "direct"

	// StrategyDelegated holds every field in the instance's field store.
	StrategyDelegated Strategy = "delegated"

	// StrategyMixed keeps identity-like hot fields direct and delegates the
	// rest.
	StrategyMixed Strategy = "mixed"

	// StrategyAuto resolves to direct or delegated once per class, driven by
	// the class's field count (and optionally a cross-class instance budget).
	StrategyAuto Strategy = "auto"
)

// Config controls strategy resolution, validation, locking, and cache bounds.
// A nil Config means DefaultConfig(); there is no required global state.
type Config struct {
	// Strategy is the accessor storage policy for classes built with this
	// config.
	Strategy Strategy `json:"strategy"`

	// Validation enables constraint checking on every field write. When
	// disabled, writes bypass the evaluator entirely.
	Validation bool `json:"validation"`

	// ThreadSafe serializes mutations with a per-entity mutex. Disable only
	// for single-goroutine workloads.
	ThreadSafe bool `json:"thread_safe"`

	// AutoFieldThreshold is the field count above which an auto class
	// delegates its storage.
	AutoFieldThreshold int `json:"auto_field_threshold"`

	// AutoInstanceThreshold is the cumulative auto-class instance count above
	// which new auto classes delegate. Only consulted when CountInstances is
	// set; strategy resolution is otherwise a pure function of the class.
	AutoInstanceThreshold int `json:"auto_instance_threshold"`

	// CountInstances enables the cross-class instance budget for auto
	// resolution.
	CountInstances bool `json:"count_instances"`

	// EntityCacheSize bounds the runtime's entity cache.
	EntityCacheSize int `json:"entity_cache_size"`

	// SchemaCacheSize bounds the runtime's derived-schema cache.
	SchemaCacheSize int `json:"schema_cache_size"`

	// Evaluator checks field and parameter values. Defaults to a fresh
	// evaluator.
	Evaluator *schema.Evaluator `json:"-"`

	// Authorizer decides action dispatch. Defaults to the role-intersection
	// authorizer.
	Authorizer policy.Authorizer `json:"-"`

	// TaskRunner, when set, receives task-profile action bodies for deferred
	// execution. When nil, tasks run inline.
	TaskRunner func(task func()) `json:"-"`

	// Logger receives debug events for mutations, transitions, and dispatch.
	Logger zerolog.Logger `json:"-"`
}

// Defaults for strategy resolution and cache bounds.
const (
	DefaultAutoFieldThreshold    = 10
	DefaultAutoInstanceThreshold = 1000
	DefaultEntityCacheSize       = 1024
	DefaultSchemaCacheSize       = 100
)

// DefaultConfig returns the stock configuration: auto strategy, validation
// and per-entity locking on, default thresholds and cache bounds, silent
// logger.
func DefaultConfig() *Config {
	return &Config{
		Strategy:              StrategyAuto,
		Validation:            true,
		ThreadSafe:            true,
		AutoFieldThreshold:    DefaultAutoFieldThreshold,
		AutoInstanceThreshold: DefaultAutoInstanceThreshold,
		EntityCacheSize:       DefaultEntityCacheSize,
		SchemaCacheSize:       DefaultSchemaCacheSize,
		Evaluator:             schema.NewEvaluator(),
		Authorizer:            policy.NewRoleAuthorizer(),
		Logger:                zerolog.Nop(),
	}
}

// ConfigFromEnv builds a configuration from ENTITYKIT_* environment
// variables, starting from the defaults. Unset or malformed variables keep
// their default.
//
//	ENTITYKIT_STRATEGY                 direct|delegated|mixed|auto
//	ENTITYKIT_VALIDATION               true|false
//	ENTITYKIT_THREAD_SAFE              true|false
//	ENTITYKIT_AUTO_FIELD_THRESHOLD     integer
//	ENTITYKIT_AUTO_INSTANCE_THRESHOLD  integer
//	ENTITYKIT_ENTITY_CACHE_SIZE        integer
//	ENTITYKIT_SCHEMA_CACHE_SIZE        integer
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()

	if v := os.Getenv("ENTITYKIT_STRATEGY"); v != "" {
		cfg.Strategy = Strategy(strings.ToLower(v))
	}
	if v := os.Getenv("ENTITYKIT_VALIDATION"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Validation = b
		}
	}
	if v := os.Getenv("ENTITYKIT_THREAD_SAFE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.ThreadSafe = b
		}
	}
	if v, err := strconv.Atoi(os.Getenv("ENTITYKIT_AUTO_FIELD_THRESHOLD")); err == nil && v > 0 {
		cfg.AutoFieldThreshold = v
	}
	if v, err := strconv.Atoi(os.Getenv("ENTITYKIT_AUTO_INSTANCE_THRESHOLD")); err == nil && v > 0 {
		cfg.AutoInstanceThreshold = v
	}
	if v, err := strconv.Atoi(os.Getenv("ENTITYKIT_ENTITY_CACHE_SIZE")); err == nil && v > 0 {
		cfg.EntityCacheSize = v
	}
	if v, err := strconv.Atoi(os.Getenv("ENTITYKIT_SCHEMA_CACHE_SIZE")); err == nil && v > 0 {
		cfg.SchemaCacheSize = v
	}

	return cfg
}

// Validate checks the configuration for values that would misbehave at
// runtime.
func (c *Config) Validate() error {
	switch c.Strategy {
	case StrategyDirect, StrategyDelegated, StrategyMixed, StrategyAuto:
	default:
		return fmt.Errorf("unknown strategy %q", c.Strategy)
	}
	if c.AutoFieldThreshold < 1 {
		return fmt.Errorf("auto field threshold must be positive, got %d", c.AutoFieldThreshold)
	}
	if c.AutoInstanceThreshold < 1 {
		return fmt.Errorf("auto instance threshold must be positive, got %d", c.AutoInstanceThreshold)
	}
	if c.EntityCacheSize < 1 {
		return fmt.Errorf("entity cache size must be positive, got %d", c.EntityCacheSize)
	}
	if c.SchemaCacheSize < 1 {
		return fmt.Errorf("schema cache size must be positive, got %d", c.SchemaCacheSize)
	}
	return nil
}

// normalized returns a config safe to use internally: nil becomes the
// default, and missing collaborators are filled in.
func (c *Config) normalized() *Config {
	if c == nil {
		return DefaultConfig()
	}
	out := *c
	if out.Strategy == "" {
		out.Strategy = StrategyAuto
	}
	if out.AutoFieldThreshold == 0 {
		out.AutoFieldThreshold = DefaultAutoFieldThreshold
	}
	if out.AutoInstanceThreshold == 0 {
		out.AutoInstanceThreshold = DefaultAutoInstanceThreshold
	}
	if out.EntityCacheSize == 0 {
		out.EntityCacheSize = DefaultEntityCacheSize
	}
	if out.SchemaCacheSize == 0 {
		out.SchemaCacheSize = DefaultSchemaCacheSize
	}
	if out.Evaluator == nil {
		out.Evaluator = schema.NewEvaluator()
	}
	if out.Authorizer == nil {
		out.Authorizer = policy.NewRoleAuthorizer()
	}
	return &out
}
