// Package types defines the core domain model shared across the
// seed-recovery engine.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
)

// ErrFixedExceedsTotal is returned when more words are marked fixed than the
// word set contains.
var ErrFixedExceedsTotal = errors.New("fixed word count exceeds total word count")

// WordSet is the slot model of a candidate mnemonic: the first FixedWords
// slots hold words whose position is known, the remaining slots form the
// permutable pool whose order is searched. Duplicate pool entries are
// allowed; they only produce degenerate permutations that waste work.
type WordSet struct {
	fixed []string
	pool  []string
}

// NewWordSet builds a WordSet from the full slot sequence and the number of
// leading fixed slots.
func NewWordSet(words []string, fixedWords int) (*WordSet, error) {
	if fixedWords > len(words) {
		return nil, ErrFixedExceedsTotal
	}
	if fixedWords < 0 {
		return nil, errors.New("fixed word count must not be negative")
	}
	ws := &WordSet{
		fixed: append([]string(nil), words[:fixedWords]...),
		pool:  append([]string(nil), words[fixedWords:]...),
	}
	return ws, nil
}

// TotalWords returns the number of mnemonic slots.
func (w *WordSet) TotalWords() int { return len(w.fixed) + len(w.pool) }

// FixedWords returns the number of leading slots excluded from permutation.
func (w *WordSet) FixedWords() int { return len(w.fixed) }

// PoolSize returns the number of permutable slots.
func (w *WordSet) PoolSize() int { return len(w.pool) }

// Fixed returns the immutable prefix. The slice must not be modified.
func (w *WordSet) Fixed() []string { return w.fixed }

// Pool returns the permutable words in their reference order, which anchors
// the rank enumeration. The slice must not be modified.
func (w *WordSet) Pool() []string { return w.pool }

// Assemble joins the fixed prefix with a decoded pool ordering into the full
// slot sequence of one candidate mnemonic.
func (w *WordSet) Assemble(ordering []string) []string {
	out := make([]string, 0, w.TotalWords())
	out = append(out, w.fixed...)
	out = append(out, ordering...)
	return out
}

// Fingerprint returns a hex SHA-256 over the full slot sequence. Checkpoints
// carry it so that a resume against a different word list is rejected.
func (w *WordSet) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte(strings.Join(w.fixed, "\n")))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(w.pool, "\n")))
	return hex.EncodeToString(h.Sum(nil))
}

// Checkpoint is the durable record of search progress. LastRank is kept as a
// decimal string because ranks outgrow uint64 beyond 20 permutable words.
type Checkpoint struct {
	SchemaVer  int    `json:"schema_ver"`
	LastRank   string `json:"last_rank"`
	TotalWords int    `json:"total_words"`
	FixedWords int    `json:"fixed_words"`
	WordsHash  string `json:"words_hash"`
	SavedAt    int64  `json:"saved_at"`
}

// Rank parses LastRank into an arbitrary-precision integer. The boolean is
// false when the field does not hold a non-negative decimal number.
func (c Checkpoint) Rank() (*big.Int, bool) {
	r, ok := new(big.Int).SetString(strings.TrimSpace(c.LastRank), 10)
	if !ok || r.Sign() < 0 {
		return nil, false
	}
	return r, true
}

// Outcome is the terminal state of one search run.
type Outcome string

const (
	OutcomeFound     Outcome = "found"
	OutcomeExhausted Outcome = "exhausted"
	OutcomeCancelled Outcome = "cancelled"
)

// MatchResult is produced exactly once per run. Mnemonic and Address are set
// only when Outcome is OutcomeFound.
type MatchResult struct {
	Outcome  Outcome
	Mnemonic string
	Address  string
	Tested   uint64
}
