// Package botconfig holds the auto-responder settings shared by the relay.
package botconfig

import (
	"errors"
	"fmt"
	"sync"

	"github.com/soyeahso/wadesk/internal/domain"
	"github.com/soyeahso/wadesk/internal/logging"
)

var (
	// ErrPersist is returned when a replacement could not be written to disk.
	// The in-memory config is left unchanged.
	ErrPersist = errors.New("botconfig: persist failed")

	// ErrInvalidStatus is returned for a status other than active or paused.
	ErrInvalidStatus = errors.New("botconfig: invalid status")
)

// Persistence loads and saves the bot config.
type Persistence interface {
	// Load returns the saved config. found is false when nothing was saved.
	Load() (cfg domain.BotConfig, found bool, err error)
	Save(cfg domain.BotConfig) error
}

// Store is the process-wide bot config. Readers always get a copy.
type Store struct {
	mu      sync.RWMutex
	cfg     domain.BotConfig
	persist Persistence
	log     *logging.Logger
}

// NewStore creates a store that starts from the default config.
func NewStore(p Persistence, log *logging.Logger) *Store {
	return &Store{
		cfg:     domain.DefaultBotConfig(),
		persist: p,
		log:     log.Sub("botconfig"),
	}
}

// Load reads the saved config. A missing or unreadable file keeps the
// defaults; the read error is still returned so callers can report it.
func (s *Store) Load() error {
	cfg, found, err := s.persist.Load()
	if err != nil {
		s.log.Warn().Err(err).Msg("saved bot config unreadable, using defaults")
		return err
	}
	if !found {
		s.log.Info().Msg("no saved bot config, using defaults")
		return nil
	}

	s.mu.Lock()
	s.cfg = normalize(cfg)
	s.mu.Unlock()

	s.log.Info().Int("rules", len(cfg.AutoReplies)).Str("status", string(cfg.Status)).Msg("bot config loaded")
	return nil
}

// Get returns a copy of the current config.
func (s *Store) Get() domain.BotConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// Replace persists cfg and then makes it current. The lock is held across
// both steps, so the file always matches the last applied value.
func (s *Store) Replace(cfg domain.BotConfig) (domain.BotConfig, error) {
	return s.ReplaceFunc(cfg, nil)
}

// ReplaceFunc is Replace with a callback run under the store lock once the
// new value is persisted and current. Callbacks of concurrent replacements
// therefore run in the order the values were applied.
func (s *Store) ReplaceFunc(cfg domain.BotConfig, applied func(domain.BotConfig)) (domain.BotConfig, error) {
	if cfg.Status != domain.BotActive && cfg.Status != domain.BotPaused {
		return domain.BotConfig{}, fmt.Errorf("%w: %q", ErrInvalidStatus, cfg.Status)
	}
	next := normalize(cfg)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persist.Save(next); err != nil {
		s.log.Error().Err(err).Msg("failed to persist bot config")
		return domain.BotConfig{}, fmt.Errorf("%w: %v", ErrPersist, err)
	}
	s.cfg = next

	s.log.Info().Int("rules", len(next.AutoReplies)).Str("status", string(next.Status)).Msg("bot config updated")
	if applied != nil {
		applied(next.Clone())
	}
	return next.Clone(), nil
}

// Reset replaces the config with the defaults.
func (s *Store) Reset() (domain.BotConfig, error) {
	return s.Replace(domain.DefaultBotConfig())
}

func normalize(cfg domain.BotConfig) domain.BotConfig {
	out := cfg.Clone()
	if out.AutoReplies == nil {
		out.AutoReplies = []domain.AutoReplyRule{}
	}
	return out
}
