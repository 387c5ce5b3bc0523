package config

import (
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Store shares one Config snapshot between many concurrent readers and the
// single reload/save writer. Snapshots are immutable; reload builds the new
// Config before taking the write lock, so writers hold it only for the
// pointer swap.
type Store struct {
	path   string
	logger *zap.Logger
	rng    func() float64

	mu  sync.RWMutex
	cfg *Config
}

// NewStore loads the config at path. A failed initial load is fatal to the
// caller: the bot cannot serve without a valid configuration.
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Store{
		path:   path,
		logger: logger,
		rng:    rand.Float64,
		cfg:    cfg,
	}, nil
}

// Snapshot returns the current configuration generation. The returned Config
// stays valid (and keeps its gating state) even after a later reload swaps
// in a new one.
func (s *Store) Snapshot() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Path returns the config file path the store loads from and saves to.
func (s *Store) Path() string { return s.path }

// Reload re-reads the config file and swaps in the new snapshot. A failed
// load keeps the previous snapshot: a transient bad write to the file must
// not take the responder offline. Per-response last-triggered state starts
// fresh in the new snapshot.
func (s *Store) Reload() {
	cfg, err := Load(s.path)
	if err != nil {
		s.logger.Warn("config reload failed, keeping previous config",
			zap.String("path", s.path),
			zap.Error(err))
		return
	}

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	s.logger.Info("config reloaded",
		zap.String("path", s.path),
		zap.Int("responses", len(cfg.Responses)))
}

// Save writes the current snapshot back to the config file. Unlike Reload,
// failures are surfaced to the caller.
func (s *Store) Save() error {
	return Save(s.Snapshot(), s.path)
}

// FindResponse evaluates text against the current snapshot. See
// Config.FindResponse.
func (s *Store) FindResponse(text, ref string, now time.Time) *ResponseKind {
	return s.Snapshot().FindResponse(text, ref, now, s.rng, s.logger)
}
