package botconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/soyeahso/wadesk/internal/domain"
)

// FilePersistence stores the bot config as indented JSON.
type FilePersistence struct {
	Path string
}

// NewFilePersistence returns a persistence backed by the file at path.
func NewFilePersistence(path string) *FilePersistence {
	return &FilePersistence{Path: path}
}

// Load reads and decodes the file. A missing file is not an error.
func (f *FilePersistence) Load() (domain.BotConfig, bool, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.BotConfig{}, false, nil
		}
		return domain.BotConfig{}, false, fmt.Errorf("reading bot config: %w", err)
	}

	var cfg domain.BotConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return domain.BotConfig{}, false, fmt.Errorf("parsing bot config %s: %w", f.Path, err)
	}
	return cfg, true, nil
}

// Save writes cfg through a temp file and rename so readers never observe a
// partial file.
func (f *FilePersistence) Save(cfg domain.BotConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding bot config: %w", err)
	}
	return writeAtomic(f.Path, data, 0o600)
}

func writeAtomic(path string, content []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp for %s: %w", path, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("chmod temp for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp for %s: %w", path, err)
	}

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
