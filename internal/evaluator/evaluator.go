// ============================================================================
// Candidate Evaluator
// ============================================================================
//
// Package: internal/evaluator
// File: evaluator.go
// Purpose: Turn one decoded pool ordering into a match verdict.
//
// The evaluation ladder is ordered cheap to expensive, which is the key
// performance discipline of the whole engine:
//   1. every word must be in the canonical wordlist     (map lookup)
//   2. the phrase must pass the BIP-39 checksum         (sha256 over entropy)
//   3. seed + BIP-32 derivation yields one address      (the expensive part)
//   4. the address is tested against the target set     (map lookup)
// Invalid candidates at steps 1-2 are the overwhelmingly common case; they
// are skipped silently and never surface as errors.
//
// The backend is pluggable so an accelerator implementation can replace the
// CPU ladder without touching the scheduler.
//
// ============================================================================

package evaluator

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/tyler-smith/go-bip39"

	"github.com/ChuLiYu/seed-recovery/internal/metrics"
	"github.com/ChuLiYu/seed-recovery/internal/wordlist"
	"github.com/ChuLiYu/seed-recovery/pkg/types"
)

// ErrBackendUnavailable is returned by backends that are compiled in as
// stubs only.
var ErrBackendUnavailable = errors.New("evaluator backend is not available in this build")

// Verdict is the outcome of evaluating one candidate.
type Verdict struct {
	Hit      bool
	Mnemonic string
	Address  string
}

// Backend evaluates a fully assembled candidate slot sequence.
type Backend interface {
	Evaluate(words []string) (Verdict, error)
}

// Evaluator assembles candidates from a word set and hands them to a backend.
type Evaluator struct {
	set     *types.WordSet
	backend Backend
}

// New builds an evaluator over set using backend.
func New(set *types.WordSet, backend Backend) *Evaluator {
	return &Evaluator{set: set, backend: backend}
}

// Evaluate assembles the fixed prefix with ordering and evaluates the result.
func (e *Evaluator) Evaluate(ordering []string) (Verdict, error) {
	return e.backend.Evaluate(e.set.Assemble(ordering))
}

// CPUBackend runs the full validation and derivation ladder on the CPU.
type CPUBackend struct {
	wordlist  *wordlist.Wordlist
	deriver   Deriver
	targets   *TargetSet
	collector *metrics.Collector
	debug     bool
}

// NewCPUBackend wires the CPU evaluation ladder. collector may be nil.
func NewCPUBackend(wl *wordlist.Wordlist, deriver Deriver, targets *TargetSet, collector *metrics.Collector, debug bool) *CPUBackend {
	return &CPUBackend{
		wordlist:  wl,
		deriver:   deriver,
		targets:   targets,
		collector: collector,
		debug:     debug,
	}
}

// Evaluate runs the ladder for one candidate. A candidate failing the cheap
// checks yields a miss, not an error.
func (b *CPUBackend) Evaluate(words []string) (Verdict, error) {
	for _, word := range words {
		if !b.wordlist.Contains(word) {
			b.collector.RecordInvalid()
			return Verdict{}, nil
		}
	}

	mnemonic := strings.Join(words, " ")
	if !bip39.IsMnemonicValid(mnemonic) {
		b.collector.RecordInvalid()
		if b.debug {
			slog.Debug("Checksum rejected", "mnemonic", mnemonic)
		}
		return Verdict{}, nil
	}

	address, err := b.deriver.DeriveAddress(mnemonic)
	if err != nil {
		return Verdict{}, err
	}
	b.collector.RecordDerived()
	if b.debug {
		slog.Debug("Derived address", "mnemonic", mnemonic, "address", address)
	}

	if b.targets.Contains(address) {
		return Verdict{Hit: true, Mnemonic: mnemonic, Address: address}, nil
	}
	return Verdict{}, nil
}

// AcceleratorBackend is the pluggable GPU slot. It is a stub in this build;
// selecting it fails fast instead of silently computing nothing.
type AcceleratorBackend struct{}

// Evaluate always reports the backend as unavailable.
func (AcceleratorBackend) Evaluate([]string) (Verdict, error) {
	return Verdict{}, ErrBackendUnavailable
}
