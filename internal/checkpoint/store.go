// ============================================================================
// Checkpoint Store
// ============================================================================
//
// Package: internal/checkpoint
// File: store.go
// Purpose: Atomic persistence of search progress so an interrupted run can
// resume without re-testing confirmed ranks.
//
// Writes go to a temp file followed by os.Rename, so a concurrent reader can
// never observe a half-written checkpoint. Load fails silently: an absent,
// malformed or parameter-mismatched file yields nil and a fresh start from
// rank 0, never a crash into an invalid rank range.
//
// ============================================================================

package checkpoint

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/ChuLiYu/seed-recovery/pkg/types"
)

const schemaVersion = 1

// Store persists checkpoints for one search run.
type Store struct {
	path string
	mu   sync.Mutex // serializes file operations
}

// NewStore creates a store writing to path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the checkpoint file path.
func (s *Store) Path() string { return s.path }

// Exists reports whether a checkpoint file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Save atomically persists cp. A failed write is retried once; a second
// failure is returned to the caller and must be treated as fatal, because
// progress durability can no longer be guaranteed.
func (s *Store) Save(cp types.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp.SchemaVer = schemaVersion
	if cp.SavedAt == 0 {
		cp.SavedAt = time.Now().Unix()
	}

	jsonBytes, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	if err := s.writeAtomic(jsonBytes); err != nil {
		slog.Warn("Checkpoint write failed, retrying once", "path", s.path, "error", err)
		if err := s.writeAtomic(jsonBytes); err != nil {
			return fmt.Errorf("checkpoint write failed twice: %w", err)
		}
	}
	return nil
}

func (s *Store) writeAtomic(data []byte) error {
	tmpPath := s.path + ".tmp"

	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp checkpoint: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename checkpoint: %w", err)
	}
	return nil
}

// Load reads the checkpoint and validates it against the current run's
// parameters. It returns nil when the file is absent, unreadable, malformed,
// from another schema version, or fingerprinted for a different word set;
// each of those cases logs a warning and the run starts from rank 0.
func (s *Store) Load(totalWords, fixedWords int, wordsHash string) *types.Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	jsonBytes, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Checkpoint unreadable, starting fresh", "path", s.path, "error", err)
		}
		return nil
	}

	var cp types.Checkpoint
	if err := json.Unmarshal(jsonBytes, &cp); err != nil {
		slog.Warn("Checkpoint malformed, starting fresh", "path", s.path, "error", err)
		return nil
	}
	if cp.SchemaVer != schemaVersion {
		slog.Warn("Checkpoint schema version mismatch, starting fresh",
			"got", cp.SchemaVer, "want", schemaVersion)
		return nil
	}
	if cp.TotalWords != totalWords || cp.FixedWords != fixedWords || cp.WordsHash != wordsHash {
		slog.Warn("Checkpoint parameters do not match this run, starting fresh",
			"checkpoint_total", cp.TotalWords, "run_total", totalWords,
			"checkpoint_fixed", cp.FixedWords, "run_fixed", fixedWords)
		return nil
	}
	if _, ok := cp.Rank(); !ok {
		slog.Warn("Checkpoint rank unparseable, starting fresh", "last_rank", cp.LastRank)
		return nil
	}
	return &cp
}

// Clear removes the checkpoint file. A successful run ends with Clear so the
// next run never resumes into a finished search.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove checkpoint: %w", err)
	}
	return nil
}
