package botconfig

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/wadesk/internal/domain"
	"github.com/soyeahso/wadesk/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLog() *logging.Logger {
	return logging.New(nil, "silent")
}

type memPersistence struct {
	mu      sync.Mutex
	saved   *domain.BotConfig
	loadErr error
	saveErr error
	delay   time.Duration
	saves   int
}

func (m *memPersistence) Load() (domain.BotConfig, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return domain.BotConfig{}, false, m.loadErr
	}
	if m.saved == nil {
		return domain.BotConfig{}, false, nil
	}
	return *m.saved, true, nil
}

func (m *memPersistence) Save(cfg domain.BotConfig) error {
	time.Sleep(m.delay)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	c := cfg.Clone()
	m.saved = &c
	return nil
}

func pausedConfig() domain.BotConfig {
	return domain.BotConfig{
		Status:      domain.BotPaused,
		Greeting:    "oi",
		AutoReplies: []domain.AutoReplyRule{{Trigger: "pix", Content: "chave: 123"}},
	}
}

func TestStoreStartsWithDefaults(t *testing.T) {
	s := NewStore(&memPersistence{}, testLog())
	assert.Equal(t, domain.DefaultBotConfig(), s.Get())
}

func TestStoreLoadMissingKeepsDefaults(t *testing.T) {
	s := NewStore(&memPersistence{}, testLog())
	require.NoError(t, s.Load())
	assert.Equal(t, domain.DefaultBotConfig(), s.Get())
}

func TestStoreLoadErrorKeepsDefaults(t *testing.T) {
	s := NewStore(&memPersistence{loadErr: errors.New("corrupt")}, testLog())
	assert.Error(t, s.Load())
	assert.Equal(t, domain.DefaultBotConfig(), s.Get())
}

func TestStoreLoadSaved(t *testing.T) {
	cfg := pausedConfig()
	s := NewStore(&memPersistence{saved: &cfg}, testLog())
	require.NoError(t, s.Load())
	assert.Equal(t, cfg, s.Get())
}

func TestStoreGetReturnsCopy(t *testing.T) {
	s := NewStore(&memPersistence{}, testLog())
	got := s.Get()
	got.AutoReplies[0].Trigger = "mutated"
	assert.Equal(t, "preço", s.Get().AutoReplies[0].Trigger)
}

func TestStoreReplacePersistsFirst(t *testing.T) {
	p := &memPersistence{delay: 30 * time.Millisecond}
	s := NewStore(p, testLog())

	applied, err := s.Replace(pausedConfig())
	require.NoError(t, err)
	assert.Equal(t, pausedConfig(), applied)

	// Replace only returns once the slow save has completed.
	stored, found, err := p.Load()
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, applied, stored)
	assert.Equal(t, applied, s.Get())
}

func TestStoreReplaceFailureKeepsOldValue(t *testing.T) {
	p := &memPersistence{saveErr: errors.New("disk full")}
	s := NewStore(p, testLog())

	_, err := s.Replace(pausedConfig())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersist)
	assert.Equal(t, domain.DefaultBotConfig(), s.Get())
}

func TestStoreReplaceRejectsUnknownStatus(t *testing.T) {
	p := &memPersistence{}
	s := NewStore(p, testLog())

	cfg := pausedConfig()
	cfg.Status = "sleeping"
	_, err := s.Replace(cfg)
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.Equal(t, 0, p.saves)
}

func TestStoreReplaceNormalizesNilRules(t *testing.T) {
	s := NewStore(&memPersistence{}, testLog())
	applied, err := s.Replace(domain.BotConfig{Status: domain.BotActive})
	require.NoError(t, err)
	assert.NotNil(t, applied.AutoReplies)
	assert.Empty(t, applied.AutoReplies)
}

func TestStoreReset(t *testing.T) {
	p := &memPersistence{}
	s := NewStore(p, testLog())
	_, err := s.Replace(pausedConfig())
	require.NoError(t, err)

	cfg, err := s.Reset()
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultBotConfig(), cfg)
	assert.Equal(t, 2, p.saves)
}

func TestStoreConcurrentReplace(t *testing.T) {
	s := NewStore(&memPersistence{}, testLog())

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cfg := pausedConfig()
			if i%2 == 0 {
				cfg.Status = domain.BotActive
			}
			_, err := s.Replace(cfg)
			assert.NoError(t, err)
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Get()
		}()
	}
	wg.Wait()

	assert.Len(t, s.Get().AutoReplies, 1)
}

func TestStoreReplaceFuncOrdersCallbacks(t *testing.T) {
	p := &memPersistence{}
	s := NewStore(p, testLog())

	var (
		mu   sync.Mutex
		seen []domain.BotStatus
	)
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cfg := pausedConfig()
			if i%2 == 0 {
				cfg.Status = domain.BotActive
			}
			_, err := s.ReplaceFunc(cfg, func(applied domain.BotConfig) {
				mu.Lock()
				seen = append(seen, applied.Status)
				mu.Unlock()
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, seen, 20)
	assert.Equal(t, s.Get().Status, seen[len(seen)-1])
	assert.Equal(t, 20, p.saves)
}

func TestStoreReplaceFuncSkippedOnFailure(t *testing.T) {
	s := NewStore(&memPersistence{saveErr: errors.New("read-only fs")}, testLog())

	called := false
	_, err := s.ReplaceFunc(pausedConfig(), func(domain.BotConfig) { called = true })
	require.ErrorIs(t, err, ErrPersist)
	assert.False(t, called)
}

// --- FilePersistence ---

func TestFilePersistenceMissing(t *testing.T) {
	p := NewFilePersistence(filepath.Join(t.TempDir(), "bot-config.json"))
	_, found, err := p.Load()
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFilePersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "bot-config.json")
	p := NewFilePersistence(path)

	require.NoError(t, p.Save(domain.DefaultBotConfig()))

	cfg, found, err := p.Load()
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, domain.DefaultBotConfig(), cfg)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"status\": \"active\"")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file should be renamed away")
}

func TestFilePersistenceCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot-config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, found, err := NewFilePersistence(path).Load()
	assert.Error(t, err)
	assert.False(t, found)
}

func TestStoreWithFilePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot-config.json")

	s := NewStore(NewFilePersistence(path), testLog())
	_, err := s.Replace(pausedConfig())
	require.NoError(t, err)

	reloaded := NewStore(NewFilePersistence(path), testLog())
	require.NoError(t, reloaded.Load())
	assert.Equal(t, pausedConfig(), reloaded.Get())
}
