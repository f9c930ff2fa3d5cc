package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotFound reports a missing session.
var ErrNotFound = errors.New("session not found")

// AmbiguousPrefixError reports a prefix matching several sessions.
type AmbiguousPrefixError struct {
	Prefix string
	Count  int
}

func (e *AmbiguousPrefixError) Error() string {
	return fmt.Sprintf("session prefix %q is ambiguous (%d matches)", e.Prefix, e.Count)
}

// Store persists sessions one-per-file under a directory; the filename is
// the full UUID.
type Store struct {
	dir string
	log *zap.Logger
}

// NewStore creates a store rooted at <configDir>/sessions.
func NewStore(configDir string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dir := filepath.Join(configDir, "sessions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	return &Store{dir: dir, log: log}, nil
}

// Dir returns the sessions directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes a session atomically: serialize to a temp file in the same
// directory, fsync, then rename over the target. A failure at any step
// leaves the previously committed file intact.
func (s *Store) Save(session *Session) error {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	target := s.path(session.ID)
	temp, err := os.CreateTemp(s.dir, session.ID.String()+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempName := temp.Name()
	defer os.Remove(tempName)

	if _, err := temp.Write(data); err != nil {
		temp.Close()
		return fmt.Errorf("write session: %w", err)
	}
	if err := temp.Sync(); err != nil {
		temp.Close()
		return fmt.Errorf("sync session: %w", err)
	}
	if err := temp.Close(); err != nil {
		return fmt.Errorf("close session temp: %w", err)
	}
	if err := os.Rename(tempName, target); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	return nil
}

// Load reads a session by exact id.
func (s *Store) Load(id uuid.UUID) (*Session, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read session: %w", err)
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("parse session %s: %w", id, err)
	}
	return &session, nil
}

// ResolvePrefix loads the single session whose id starts with prefix.
func (s *Store) ResolvePrefix(prefix string) (*Session, error) {
	lowered := strings.ToLower(prefix)
	var matches []uuid.UUID
	for _, id := range s.ids() {
		if strings.HasPrefix(id.String(), lowered) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return s.Load(matches[0])
	default:
		return nil, &AmbiguousPrefixError{Prefix: prefix, Count: len(matches)}
	}
}

// List returns session summaries, most recently updated first. Unreadable
// files are skipped with a warning.
func (s *Store) List() ([]Summary, error) {
	var summaries []Summary
	for _, id := range s.ids() {
		session, err := s.Load(id)
		if err != nil {
			s.log.Warn("skipping unreadable session", zap.String("id", id.String()), zap.Error(err))
			continue
		}
		summaries = append(summaries, session.summary())
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

// Delete removes a session file.
func (s *Store) Delete(id uuid.UUID) error {
	err := os.Remove(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

// ArchivePath names the pre-compaction archive for a session.
func (s *Store) ArchivePath(id uuid.UUID, unixTimestamp int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s.pre-compact-%d.json", id, unixTimestamp))
}

// ids enumerates the session UUIDs currently on disk.
func (s *Store) ids() []uuid.UUID {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}
	var ids []uuid.UUID
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".json") || strings.Contains(name, ".pre-compact-") {
			continue
		}
		id, err := uuid.Parse(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func (s *Store) path(id uuid.UUID) string {
	return filepath.Join(s.dir, id.String()+".json")
}
