// ABOUTME: File-backed conversation store with atomic save and storage pressure alerting
// ABOUTME: Holds the full conversation mapping in memory, owned by the process lifetime

package convstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

const gib = 1024 * 1024 * 1024

// ErrNotFound is returned when a mutation names a conversation the store does
// not hold.
var ErrNotFound = errors.New("conversation not found")

// Alerter delivers storage pressure warnings to an operator.
type Alerter interface {
	SendOperatorAlert(ctx context.Context, text string) error
}

// Store owns the durable mapping from conversation ID to Conversation.
// It is loaded once at startup and injected into the orchestrator; the
// persisted file is rewritten in full on every Save. All conversation
// mutation goes through the store lock, so Save never marshals an entry
// that another goroutine is writing.
type Store struct {
	mu            sync.Mutex
	path          string
	logPath       string
	capacityBytes int64
	logger        *slog.Logger
	conversations map[string]*Conversation
}

// Open loads the store from path. A missing or corrupt file yields an empty
// mapping rather than an error, so a damaged log never blocks startup.
func Open(path, logPath string, capacityGiB float64, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		path:          path,
		logPath:       logPath,
		capacityBytes: int64(capacityGiB * gib),
		logger:        logger.With("component", "convstore"),
		conversations: make(map[string]*Conversation),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read conversation log, starting empty", "path", path, "error", err)
		}
		return s
	}
	if err := json.Unmarshal(data, &s.conversations); err != nil {
		s.logger.Warn("corrupt conversation log, starting empty", "path", path, "error", err)
		s.conversations = make(map[string]*Conversation)
	}
	return s
}

// Get returns the conversation for id, if any.
func (s *Store) Get(id string) (*Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	return c, ok
}

// Put inserts or replaces the conversation for id.
func (s *Store) Put(id string, c *Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[id] = c
}

// Len returns the number of stored conversations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

// AppendTurn adds a turn to the identified conversation. Unknown IDs are
// ignored; callers resolve the conversation before appending to it.
func (s *Store) AppendTurn(id, role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conversations[id]; ok {
		c.Append(role, content)
	}
}

// AddCost folds one turn's dollar cost into the identified conversation.
func (s *Store) AddCost(id string, input, output, image float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conversations[id]; ok {
		c.Cost.Add(input, output, image)
	}
}

// SetRating records the author's quality score on the identified conversation.
func (s *Store) SetRating(id, author string, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return ErrNotFound
	}
	return c.SetRating(author, value)
}

// SetCorrection records a correction note on the identified conversation.
func (s *Store) SetCorrection(id, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return ErrNotFound
	}
	c.CorrectionNote = note
	return nil
}

// Snapshot returns a shallow copy of the mapping, for reporting.
func (s *Store) Snapshot() map[string]*Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*Conversation, len(s.conversations))
	for k, v := range s.conversations {
		out[k] = v
	}
	return out
}

// Save writes the full mapping to disk. The write goes to a temp file in the
// same directory, is flushed, then renamed over the target, so a crash mid-write
// cannot corrupt previously valid entries.
func (s *Store) Save() error {
	s.mu.Lock()
	data, err := json.MarshalIndent(s.conversations, "", "    ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encoding conversation log: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing conversation log: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("flushing conversation log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing conversation log: %w", err)
	}
	return nil
}

// storagePressureMessage is sent to the operator when the log files approach capacity.
const storagePressureMessage = "Less than 20% of storage space remains! Back up logs and conversations."

// CheckPressure alerts the operator once per call when the persisted log files
// exceed 80% of the configured capacity. Alert failures are logged, not returned.
func (s *Store) CheckPressure(ctx context.Context, alerter Alerter) {
	if s.capacityBytes <= 0 {
		return
	}
	var used int64
	for _, p := range []string{s.path, s.logPath} {
		if p == "" {
			continue
		}
		if info, err := os.Stat(p); err == nil {
			used += info.Size()
		}
	}
	if float64(used) <= 0.8*float64(s.capacityBytes) {
		return
	}
	s.logger.Warn("storage pressure detected", "used_bytes", used, "capacity_bytes", s.capacityBytes)
	if err := alerter.SendOperatorAlert(ctx, storagePressureMessage); err != nil {
		s.logger.Error("failed to send storage alert", "error", err)
	}
}
