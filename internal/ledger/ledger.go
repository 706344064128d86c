// Package ledger persists the identifiers of posts already relayed.
//
// The file is read once per process and rewritten in full after every change.
// Only one process may use a ledger file at a time: nothing guards against a
// second process loading, mutating and saving the same path concurrently.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"reddit_relay/internal/domain"
)

const currentVersion = 1

type fileState struct {
	PostedIDs []string  `json:"postedIds"`
	Version   float64   `json:"version"`
	LastCheck *int64    `json:"lastCheck,omitempty"`
	Metadata  *metadata `json:"metadata,omitempty"`
}

type metadata struct {
	TotalProcessed int64 `json:"totalProcessed"`
	CreatedAt      int64 `json:"createdAt"`
	LastUpdated    int64 `json:"lastUpdated"`
}

// FileLedger is a JSON-file backed set of delivered post ids.
type FileLedger struct {
	path   string
	logger *slog.Logger
	now    func() time.Time
	write  func(path string, data []byte) error

	mu     sync.Mutex
	loaded bool
	ids    []string
	index  map[string]struct{}
	state  fileState
}

func NewFileLedger(path string, logger *slog.Logger) *FileLedger {
	return &FileLedger{
		path:   path,
		logger: logger.With("component", "ledger"),
		now:    time.Now,
		write:  writeFileAtomic,
	}
}

// Load reads the ledger file, creating and persisting an empty ledger when
// none exists. A file that violates the schema is an error, never repaired.
func (l *FileLedger) Load() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

func (l *FileLedger) load() error {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		now := l.now().UnixMilli()
		empty := fileState{Metadata: &metadata{CreatedAt: now}}
		if err := l.save(nil, empty); err != nil {
			return err
		}
		l.ids = nil
		l.index = make(map[string]struct{})
		l.loaded = true
		l.logger.Info("created empty ledger", "path", l.path)
		return nil
	}
	if err != nil {
		return domain.NewError(domain.KindLedger, domain.CodeLedgerIO, "read ledger file", err)
	}

	state, err := decode(data)
	if err != nil {
		return domain.NewError(domain.KindLedger, domain.CodeInvalidFormat, fmt.Sprintf("ledger file %s", l.path), err)
	}

	l.state = *state
	l.ids = make([]string, 0, len(state.PostedIDs))
	l.index = make(map[string]struct{}, len(state.PostedIDs))
	for _, id := range state.PostedIDs {
		if _, ok := l.index[id]; ok {
			continue
		}
		l.index[id] = struct{}{}
		l.ids = append(l.ids, id)
	}
	if l.state.Metadata == nil {
		now := l.now().UnixMilli()
		l.state.Metadata = &metadata{
			TotalProcessed: int64(len(l.ids)),
			CreatedAt:      now,
			LastUpdated:    now,
		}
	}
	l.loaded = true

	l.logger.Info("loaded ledger", "path", l.path, "posted", len(l.ids))
	return nil
}

func decode(data []byte) (*fileState, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}

	postedRaw, ok := raw["postedIds"]
	if !ok {
		return nil, errors.New("postedIds is missing")
	}
	var posted []any
	if err := json.Unmarshal(postedRaw, &posted); err != nil || posted == nil {
		return nil, errors.New("postedIds must be an array")
	}
	for i, v := range posted {
		if _, ok := v.(string); !ok {
			return nil, fmt.Errorf("postedIds[%d] is not a string", i)
		}
	}

	versionRaw, ok := raw["version"]
	if !ok {
		return nil, errors.New("version is missing")
	}
	var version *float64
	if err := json.Unmarshal(versionRaw, &version); err != nil || version == nil {
		return nil, errors.New("version must be a number")
	}

	var state fileState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode ledger: %w", err)
	}
	return &state, nil
}

func (l *FileLedger) ensureLoaded() error {
	if l.loaded {
		return nil
	}
	return l.load()
}

// HasID reports whether id was already delivered.
func (l *FileLedger) HasID(id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureLoaded(); err != nil {
		return false, err
	}
	_, ok := l.index[id]
	return ok, nil
}

func (l *FileLedger) AddID(id string) error {
	return l.AddIDs([]string{id})
}

// AddIDs records ids not yet present and persists once. Nothing is written when
// every id is already known.
func (l *FileLedger) AddIDs(ids []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureLoaded(); err != nil {
		return err
	}

	var fresh []string
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := l.index[id]; ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		fresh = append(fresh, id)
	}
	if len(fresh) == 0 {
		return nil
	}

	next := l.state.clone()
	next.Metadata.TotalProcessed += int64(len(fresh))
	merged := append(slices.Clone(l.ids), fresh...)
	if err := l.save(merged, next); err != nil {
		return err
	}
	l.ids = merged
	for _, id := range fresh {
		l.index[id] = struct{}{}
	}
	return nil
}

// UpdateLastCheck stamps the current time as the last successful check.
func (l *FileLedger) UpdateLastCheck() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureLoaded(); err != nil {
		return err
	}
	now := l.now().UnixMilli()
	next := l.state.clone()
	next.LastCheck = &now
	return l.save(l.ids, next)
}

// Clear forgets every delivered id and resets the processed counter.
func (l *FileLedger) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureLoaded(); err != nil {
		return err
	}
	next := l.state.clone()
	next.Metadata.TotalProcessed = 0
	if err := l.save(nil, next); err != nil {
		return err
	}
	l.ids = nil
	l.index = make(map[string]struct{})
	l.logger.Info("cleared ledger", "path", l.path)
	return nil
}

// Stats returns a snapshot of the in-memory ledger.
func (l *FileLedger) Stats() domain.LedgerStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := domain.LedgerStats{PostedCount: len(l.ids)}
	if l.state.LastCheck != nil {
		stats.LastCheck = time.UnixMilli(*l.state.LastCheck)
	}
	if m := l.state.Metadata; m != nil {
		stats.TotalProcessed = m.TotalProcessed
		stats.CreatedAt = time.UnixMilli(m.CreatedAt)
		stats.LastUpdated = time.UnixMilli(m.LastUpdated)
	}
	return stats
}

// clone copies the state so a pending change can be written before it is
// adopted.
func (s fileState) clone() fileState {
	out := s
	if s.LastCheck != nil {
		lc := *s.LastCheck
		out.LastCheck = &lc
	}
	if s.Metadata != nil {
		m := *s.Metadata
		out.Metadata = &m
	}
	return out
}

// save writes next with ids as the posted list and adopts it as the current
// state only once the file is on disk. Callers update ids and index after a
// nil return.
func (l *FileLedger) save(ids []string, next fileState) error {
	next.PostedIDs = append([]string{}, ids...)
	next.Version = currentVersion
	next.Metadata.LastUpdated = l.now().UnixMilli()

	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return domain.NewError(domain.KindLedger, domain.CodeLedgerIO, "encode ledger", err)
	}
	if err := l.write(l.path, data); err != nil {
		return domain.NewError(domain.KindLedger, domain.CodeLedgerIO, "write ledger file", err)
	}
	l.state = next
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
