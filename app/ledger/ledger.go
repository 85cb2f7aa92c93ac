package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Ledger tracks which Drive file IDs have already been handled, either
// synced to the sheet or confirmed to contain no food. Entries are only
// ever added. The file is read once at construction; every mark rewrites
// the whole file, which is O(total processed count) per call and fine for
// the small per-run volumes this tool handles.
type Ledger struct {
	path string
	mu   sync.RWMutex
	ids  map[string]struct{}
}

// NewLedger loads the ledger from path. A missing file starts an empty
// ledger. An empty path keeps the ledger in memory only, which is useful
// in tests.
func NewLedger(path string) (*Ledger, error) {
	l := &Ledger{
		path: path,
		ids:  make(map[string]struct{}),
	}

	if path == "" {
		return l, nil
	}

	if err := l.load(); err != nil {
		return nil, fmt.Errorf("failed to load ledger %s: %w", path, err)
	}

	slog.Debug("Ledger loaded", "path", path, "entries", len(l.ids))

	return l, nil
}

// Contains reports whether the given file ID has already been handled.
func (l *Ledger) Contains(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, ok := l.ids[id]
	return ok
}

// MarkProcessed records the file ID and immediately persists the full set.
func (l *Ledger) MarkProcessed(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("file ID cannot be empty")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.ids[id] = struct{}{}

	if l.path == "" {
		return nil
	}

	if err := l.save(); err != nil {
		return fmt.Errorf("failed to persist ledger: %w", err)
	}

	return nil
}

// Count returns the number of recorded IDs.
func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.ids)
}

func (l *Ledger) load() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return fmt.Errorf("failed to parse ledger file: %w", err)
	}

	for _, id := range ids {
		l.ids[id] = struct{}{}
	}

	return nil
}

func (l *Ledger) save() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}

	ids := make([]string, 0, len(l.ids))
	for id := range l.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	data, err := json.MarshalIndent(ids, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(l.path, data, 0o644)
}
