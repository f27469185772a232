// Package config loads and hot-reloads the identity core's operational
// configuration. It mirrors the teacher's internal/config package: viper
// owns the authoritative merged view (env > file > defaults), a direct
// YAML read covers values needed before viper is wired up, and fsnotify
// watches the file for live reload of knobs that must not require a
// restart (backlog thresholds, idempotency TTL).
package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable named in spec section 6.
type Config struct {
	DryRunDefault bool `mapstructure:"dry_run_default" yaml:"dry_run_default"`

	AdvisoryLockTimeoutMS int `mapstructure:"advisory_lock_timeout_ms" yaml:"advisory_lock_timeout_ms"`

	SyncBatchSize      int `mapstructure:"sync_batch_size" yaml:"sync_batch_size"`
	SyncRetryBaseMS    int `mapstructure:"sync_retry_base_ms" yaml:"sync_retry_base_ms"`
	SyncRetryFactor    int `mapstructure:"sync_retry_factor" yaml:"sync_retry_factor"`
	SyncRetryCapMS     int `mapstructure:"sync_retry_cap_ms" yaml:"sync_retry_cap_ms"`
	SyncRetryMaxAttempt int `mapstructure:"sync_retry_max_attempts" yaml:"sync_retry_max_attempts"`
	// SyncIntervalMS is how often the background projection worker pool
	// (cmd/ontod) scans every project for unsynced rows, spec section
	// 5's "worker pool processes background jobs (projection, ...)".
	SyncIntervalMS int `mapstructure:"sync_interval_ms" yaml:"sync_interval_ms"`

	// VectorDim is the embedding dimensionality the vector store's
	// sqlite-vec virtual table is created with.
	VectorDim int `mapstructure:"vector_dim" yaml:"vector_dim"`

	ReadinessMaxHops int `mapstructure:"readiness_max_hops" yaml:"readiness_max_hops"`

	BacklogThresholdCount int `mapstructure:"backlog_threshold_count" yaml:"backlog_threshold_count"`
	BacklogThresholdDays  int `mapstructure:"backlog_threshold_days" yaml:"backlog_threshold_days"`

	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl" yaml:"idempotency_ttl"`

	// AllowCatalogPairMerge gates the open-question decision recorded in
	// SPEC_FULL.md section 7: merge_pairs may rewrite catalog rows
	// directly only when this flag is set, freeze is not active, and the
	// call is audited.
	AllowCatalogPairMerge bool `mapstructure:"allow_catalog_pair_merge" yaml:"allow_catalog_pair_merge"`
}

// Defaults returns the configuration defaults named in spec section 6.
func Defaults() Config {
	return Config{
		DryRunDefault:         true,
		AdvisoryLockTimeoutMS: 5_000,
		SyncBatchSize:         200,
		SyncRetryBaseMS:       1_000,
		SyncRetryFactor:       2,
		SyncRetryCapMS:        30_000,
		SyncRetryMaxAttempt:   3,
		SyncIntervalMS:        30_000,
		VectorDim:             768,
		ReadinessMaxHops:      10,
		BacklogThresholdCount: 50,
		BacklogThresholdDays:  3,
		IdempotencyTTL:        24 * time.Hour,
		AllowCatalogPairMerge: false,
	}
}

// Store holds a live, hot-reloadable Config. All reads go through
// Current(), which is cheap and lock-protected; writes only happen from
// the fsnotify watch loop or explicit Reload calls.
type Store struct {
	mu      sync.RWMutex
	cur     Config
	v       *viper.Viper
	path    string
	watcher *fsnotify.Watcher
}

// Load builds a Store from the given YAML config file path (may not
// exist, in which case defaults apply) plus environment variable
// overrides prefixed ONTOCORE_.
func Load(path string) (*Store, error) {
	v := viper.New()
	v.SetEnvPrefix("ONTOCORE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	def := Defaults()
	v.SetDefault("dry_run_default", def.DryRunDefault)
	v.SetDefault("advisory_lock_timeout_ms", def.AdvisoryLockTimeoutMS)
	v.SetDefault("sync_batch_size", def.SyncBatchSize)
	v.SetDefault("sync_retry_base_ms", def.SyncRetryBaseMS)
	v.SetDefault("sync_retry_factor", def.SyncRetryFactor)
	v.SetDefault("sync_retry_cap_ms", def.SyncRetryCapMS)
	v.SetDefault("sync_retry_max_attempts", def.SyncRetryMaxAttempt)
	v.SetDefault("sync_interval_ms", def.SyncIntervalMS)
	v.SetDefault("vector_dim", def.VectorDim)
	v.SetDefault("readiness_max_hops", def.ReadinessMaxHops)
	v.SetDefault("backlog_threshold_count", def.BacklogThresholdCount)
	v.SetDefault("backlog_threshold_days", def.BacklogThresholdDays)
	v.SetDefault("idempotency_ttl", def.IdempotencyTTL)
	v.SetDefault("allow_catalog_pair_merge", def.AllowCatalogPairMerge)

	s := &Store{v: v, path: path, cur: def}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		}
	}

	if err := s.reloadLocked(); err != nil {
		return nil, err
	}

	// DRY_RUN_DEFAULT cannot be disabled globally (spec section 6): force
	// it back to true regardless of what the file or environment said.
	s.mu.Lock()
	s.cur.DryRunDefault = true
	s.mu.Unlock()

	return s, nil
}

func (s *Store) reloadLocked() error {
	var c Config
	if err := s.v.Unmarshal(&c); err != nil {
		return fmt.Errorf("config: unmarshal: %w", err)
	}
	c.DryRunDefault = true
	s.mu.Lock()
	s.cur = c
	s.mu.Unlock()
	return nil
}

// Current returns a snapshot of the live configuration.
func (s *Store) Current() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Watch starts an fsnotify watch on the backing file so that edits are
// picked up without a restart. It mirrors the debounced watch loop the
// teacher uses for live issue list updates (cmd/bd/list.go), applied
// here to configuration instead of data.
func (s *Store) Watch() error {
	if s.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}
	if err := w.Add(s.path); err != nil {
		_ = w.Close()
		return fmt.Errorf("config: watch %s: %w", s.path, err)
	}
	s.watcher = w

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					if err := s.v.ReadInConfig(); err == nil {
						_ = s.reloadLocked()
					}
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}

// Close stops the fsnotify watch, if running.
func (s *Store) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// BootstrapYAML is the minimal set of fields read directly off disk
// before the Store/viper machinery exists at all, mirroring the
// teacher's LoadLocalConfig. Used by cmd/ontod to find the ledger DSN
// before the rest of configuration loading can run.
type BootstrapYAML struct {
	LedgerDSN  string `yaml:"ledger_dsn"`
	ConfigPath string `yaml:"config_path"`
}

// LoadBootstrap reads a tiny YAML file directly, bypassing viper, the
// way the teacher's LoadLocalConfig reads config.yaml before viper is
// initialized.
func LoadBootstrap(path string) (*BootstrapYAML, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path supplied by operator via flag/env
	if err != nil {
		if os.IsNotExist(err) {
			return &BootstrapYAML{}, nil
		}
		return nil, fmt.Errorf("config: read bootstrap %s: %w", path, err)
	}
	var b BootstrapYAML
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("config: parse bootstrap %s: %w", path, err)
	}
	return &b, nil
}

// LocalOverride is a developer-only TOML file (e.g. .ontocore.local.toml)
// that overrides a handful of knobs without touching the shared YAML
// config, mirroring the teacher's optional local_config.go escape hatch
// for per-developer settings that should never be checked in.
type LocalOverride struct {
	LedgerDSN   string `toml:"ledger_dsn"`
	OTLPEndpoint string `toml:"otlp_endpoint"`
}

// ApplyLocalOverride reads a TOML file at path, if present, and hands
// the decoded override to apply. A missing file is not an error.
func ApplyLocalOverride(path string, apply func(LocalOverride)) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: stat local override %s: %w", path, err)
	}
	var lo LocalOverride
	if _, err := toml.DecodeFile(path, &lo); err != nil {
		return fmt.Errorf("config: parse local override %s: %w", path, err)
	}
	apply(lo)
	return nil
}
