package creds

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/relaydesk/wabridge/pkg/logging"
)

const credsFile = "creds.json"

// Store persists session credentials as files under a state directory. The
// primary credential blob lives in creds.json; the session client may persist
// additional named items (sync keys and similar) alongside it.
type Store struct {
	dir    string
	logger *logging.Logger
}

// NewStore creates the store, ensuring the directory exists.
func NewStore(dir string, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creds: create state dir: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Dir returns the directory backing the store.
func (s *Store) Dir() string {
	return s.dir
}

// Load reads the primary credential blob. A missing file is not an error;
// it returns (nil, nil) so a fresh pairing flow can begin.
func (s *Store) Load() ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, credsFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("creds: load: %w", err)
	}
	return data, nil
}

// Persist writes a named credential item. The primary blob uses name "creds".
func (s *Store) Persist(name string, data []byte) error {
	name = sanitizeName(name)
	if name == "" {
		return fmt.Errorf("creds: empty item name")
	}
	filename := name + ".json"
	if name == "creds" {
		filename = credsFile
	}
	if err := os.WriteFile(filepath.Join(s.dir, filename), data, 0o600); err != nil {
		return fmt.Errorf("creds: persist %s: %w", name, err)
	}
	return nil
}

// Clear wipes all persisted credential material. If removing individual items
// fails, it falls back to removing the whole directory, then recreates it so
// subsequent writes do not fail. A later Load after Clear returns absent.
func (s *Store) Clear() error {
	entries, err := os.ReadDir(s.dir)
	if err == nil {
		var failed bool
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if rmErr := os.Remove(filepath.Join(s.dir, entry.Name())); rmErr != nil {
				s.logger.Warn("failed to remove credential item", "name", entry.Name(), "error", rmErr)
				failed = true
			}
		}
		if !failed {
			return nil
		}
	}

	// Wholesale fallback: nuke the directory and start over.
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("creds: clear: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("creds: recreate state dir: %w", err)
	}
	return nil
}

// sanitizeName keeps credential item names filesystem-safe.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_", ":", "_")
	return replacer.Replace(name)
}
