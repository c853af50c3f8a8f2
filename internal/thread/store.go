package thread

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

const (
	// defaultMaxItems is the sliding window kept on save. Anything older is
	// irreversibly dropped to bound token cost.
	defaultMaxItems = 40
	// defaultHardCeiling is the load-time item count treated as unrecoverable
	// bloat rather than true corruption.
	defaultHardCeiling = 50
)

// StoreOptions tune a Store. The zero value uses the defaults above.
type StoreOptions struct {
	MaxItems    int
	HardCeiling int
	// RequireReasoning enforces the reasoning-before-action invariant for
	// providers that mandate it.
	RequireReasoning bool
	Now              func() time.Time
}

// Store persists one profile's thread file. A profile's thread has a single
// writer; Store serializes in-process access but relies on the disjoint
// per-profile file convention to avoid cross-process contention.
type Store struct {
	path             string
	maxItems         int
	hardCeiling      int
	requireReasoning bool
	logger           *log.Logger
	now              func() time.Time
	mu               sync.Mutex
}

// NewStore creates a thread store for the given file path.
func NewStore(path string, logger *log.Logger, opts StoreOptions) *Store {
	if opts.MaxItems <= 0 {
		opts.MaxItems = defaultMaxItems
	}
	if opts.HardCeiling <= 0 {
		opts.HardCeiling = defaultHardCeiling
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		path:             path,
		maxItems:         opts.MaxItems,
		hardCeiling:      opts.HardCeiling,
		requireReasoning: opts.RequireReasoning,
		logger:           logger,
		now:              opts.Now,
	}
}

// Load reads the thread from disk. A missing file yields an empty thread.
// Structural corruption and bloat beyond the hard ceiling quarantine the raw
// file to a timestamped sibling and also yield an empty thread; corruption is
// never propagated to the caller.
func (s *Store) Load() ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return []Item{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading thread file: %w", err)
	}

	var items []Item
	if err := json.Unmarshal(raw, &items); err != nil {
		s.logger.Printf("Thread file %s is not valid JSON: %v", s.path, err)
		return s.quarantine(raw, "corrupted")
	}

	if len(items) > s.hardCeiling {
		s.logger.Printf("Thread file %s has %d items (ceiling %d), resetting to bound token cost",
			s.path, len(items), s.hardCeiling)
		return s.quarantine(raw, "oversized")
	}

	if reason, err := validate(items, s.requireReasoning); err != nil {
		s.logger.Printf("Thread file %s failed structural check: %v", s.path, err)
		return s.quarantine(raw, reason)
	}

	return items, nil
}

// Save truncates the thread to the most recent window and writes it
// atomically via a temp file and rename.
func (s *Store) Save(items []Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(items) > s.maxItems {
		start := len(items) - s.maxItems
		// The window must not split a call/result pair or strand a call from
		// its reasoning item, or the next load would see corruption we wrote
		// ourselves. Advance until the retained suffix validates.
		for start < len(items) {
			if _, err := validate(items[start:], s.requireReasoning); err == nil {
				break
			}
			start++
		}
		s.logger.Printf("Thread trimmed to most recent %d items (%d dropped)", len(items)-start, start)
		items = items[start:]
	}

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling thread: %w", err)
	}

	tmpFile := s.path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return fmt.Errorf("writing thread temp file: %w", err)
	}
	if err := os.Rename(tmpFile, s.path); err != nil {
		return fmt.Errorf("replacing thread file: %w", err)
	}
	return nil
}

// quarantine copies the raw bytes to a timestamped sibling for postmortem and
// returns an empty thread. Quarantined copies are never deleted by the bot.
func (s *Store) quarantine(raw []byte, reason string) ([]Item, error) {
	backupPath := fmt.Sprintf("%s.%s-%d", s.path, reason, s.now().UnixMilli())
	if err := os.WriteFile(backupPath, raw, 0o644); err != nil {
		return nil, fmt.Errorf("quarantining thread file: %w", err)
	}
	s.logger.Printf("Quarantined thread file to %s, starting with empty thread", backupPath)
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		s.logger.Printf("Warning: could not remove quarantined original: %v", err)
	}
	return []Item{}, nil
}
