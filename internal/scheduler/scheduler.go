// ============================================================================
// Search Scheduler - parallel rank-space coordinator
// ============================================================================
//
// Package: internal/scheduler
// File: scheduler.go
// Purpose: Own the search space, partition the rank range across workers,
// and decide the single terminal outcome of a run.
//
// Partitioning:
//   The remaining range [resume, total) is split into W contiguous blocks of
//   near-equal size; the last block absorbs the remainder. Each worker owns
//   its block exclusively and walks it in strictly increasing rank order,
//   which makes resume behavior deterministic: resuming from R0 never
//   re-tests a rank below R0. No work-stealing - per-candidate cost is
//   uniform, so pre-sized blocks stay balanced.
//
// Termination, checked at batch granularity to bound synchronization cost:
//   (a) a worker commits a match to the shared result slot (compare-and-set,
//       first report wins, later matches are discarded)
//   (b) the cancellation context fires; workers finish their current
//       candidate and yield
//   (c) every worker exhausts its block
//
// Checkpointing is done by this coordinator alone, never by workers. The
// persisted rank is the minimum in-flight rank across all workers, so every
// rank below it is confirmed tested; ranks above it may be re-tested after a
// resume, which is the safe direction.
//
// ============================================================================

package scheduler

import (
	"context"
	"log/slog"
	"math/big"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ChuLiYu/seed-recovery/internal/checkpoint"
	"github.com/ChuLiYu/seed-recovery/internal/evaluator"
	"github.com/ChuLiYu/seed-recovery/internal/metrics"
	"github.com/ChuLiYu/seed-recovery/internal/permutation"
	"github.com/ChuLiYu/seed-recovery/pkg/types"
)

var one = big.NewInt(1)

// Evaluator is the scheduler's view of the candidate evaluator: one decoded
// pool ordering in, one verdict out.
type Evaluator interface {
	Evaluate(ordering []string) (evaluator.Verdict, error)
}

// ProgressSink receives throughput samples from the coordinator. Implemented
// by the progress reporter; may be left nil.
type ProgressSink interface {
	Begin(total, resume *big.Int)
	Observe(completed uint64)
	Finish()
}

// Config carries the scheduling policy. Zero values select the defaults.
type Config struct {
	// Workers is the worker count; 0 means one per logical CPU.
	Workers int
	// BatchSize is the number of ranks between stop-flag checks and between
	// checkpoint writes.
	BatchSize int
	// ParallelThreshold is the remaining-range size below which the search
	// runs single-threaded; spawning workers for a handful of candidates
	// costs more than the work itself.
	ParallelThreshold int64
	// SampleInterval is the coordinator tick for progress samples and
	// checkpoint cadence checks.
	SampleInterval time.Duration
}

const (
	defaultBatchSize         = 10000
	defaultParallelThreshold = 1000
	defaultSampleInterval    = 500 * time.Millisecond
)

// Scheduler runs one search over a word set's rank space.
type Scheduler struct {
	set       *types.WordSet
	eval      Evaluator
	store     *checkpoint.Store  // nil disables checkpointing
	collector *metrics.Collector // nil disables instrumentation
	progress  ProgressSink       // nil disables reporting
	cfg       Config

	completed atomic.Uint64
	found     atomic.Pointer[foundMatch]
}

type foundMatch struct {
	mnemonic string
	address  string
}

// workerState tracks one worker's block. next is the lowest rank in the
// block not yet confirmed tested; only the owning worker writes it, only the
// coordinator reads it.
type workerState struct {
	mu   sync.Mutex
	next *big.Int
	end  *big.Int
}

func (w *workerState) setNext(r *big.Int) {
	w.mu.Lock()
	w.next.Set(r)
	w.mu.Unlock()
}

func (w *workerState) snapshotNext() *big.Int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return new(big.Int).Set(w.next)
}

// New builds a scheduler. store, collector and progress may each be nil.
func New(set *types.WordSet, eval Evaluator, store *checkpoint.Store, collector *metrics.Collector, progress ProgressSink, cfg Config) *Scheduler {
	return &Scheduler{
		set:       set,
		eval:      eval,
		store:     store,
		collector: collector,
		progress:  progress,
		cfg:       cfg,
	}
}

// TotalCount returns the size of the full rank domain, Factorial(pool size).
func (s *Scheduler) TotalCount() *big.Int {
	return permutation.Factorial(s.set.PoolSize())
}

// Completed returns the monotonically increasing count of ranks tested in
// this run. Safe to call from any goroutine.
func (s *Scheduler) Completed() uint64 {
	return s.completed.Load()
}

// Run executes the search until a match, exhaustion or cancellation. It
// returns exactly one MatchResult; a non-nil error means checkpoint
// durability was lost and the run aborted.
func (s *Scheduler) Run(ctx context.Context) (*types.MatchResult, error) {
	pool := s.set.Pool()
	total := s.TotalCount()
	resume := s.loadResume(total)

	remaining := new(big.Int).Sub(total, resume)
	if remaining.Sign() <= 0 {
		s.clearCheckpoint()
		return &types.MatchResult{Outcome: types.OutcomeExhausted}, nil
	}

	batch := s.cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	workers := s.planWorkers(remaining)

	if s.progress != nil {
		s.progress.Begin(total, resume)
		defer s.progress.Finish()
	}
	slog.Info("Search starting",
		"total", total.String(),
		"resume", resume.String(),
		"workers", workers,
		"batch_size", batch)

	// Workers get a derived context so a checkpoint durability failure can
	// stop them independently of external cancellation.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	states := s.partition(resume, total, remaining, workers)
	var wg sync.WaitGroup
	for _, st := range states {
		wg.Add(1)
		go func(st *workerState) {
			defer wg.Done()
			s.runWorker(runCtx, st, pool, batch)
		}(st)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	if err := s.coordinate(done, states, batch); err != nil {
		cancelRun()
		<-done
		return nil, err
	}

	tested := s.completed.Load()
	if s.progress != nil {
		s.progress.Observe(tested)
	}

	if m := s.found.Load(); m != nil {
		s.collector.SetMatchFound()
		s.clearCheckpoint()
		return &types.MatchResult{
			Outcome:  types.OutcomeFound,
			Mnemonic: m.mnemonic,
			Address:  m.address,
			Tested:   tested,
		}, nil
	}

	if ctx.Err() != nil {
		// Guaranteed persistence before reporting cancellation.
		if err := s.saveCheckpoint(states); err != nil {
			return nil, err
		}
		return &types.MatchResult{Outcome: types.OutcomeCancelled, Tested: tested}, nil
	}

	s.clearCheckpoint()
	return &types.MatchResult{Outcome: types.OutcomeExhausted, Tested: tested}, nil
}

// loadResume reads the checkpoint, if any, and clamps it to the rank domain.
func (s *Scheduler) loadResume(total *big.Int) *big.Int {
	resume := new(big.Int)
	if s.store == nil {
		return resume
	}
	cp := s.store.Load(s.set.TotalWords(), s.set.FixedWords(), s.set.Fingerprint())
	if cp == nil {
		return resume
	}
	rank, _ := cp.Rank() // validated by Load
	if rank.Cmp(total) > 0 {
		slog.Warn("Checkpoint rank beyond rank domain, starting fresh", "rank", rank.String())
		return resume
	}
	slog.Info("Resuming from checkpoint", "rank", rank.String())
	return resume.Set(rank)
}

func (s *Scheduler) planWorkers(remaining *big.Int) int {
	workers := s.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	threshold := s.cfg.ParallelThreshold
	if threshold <= 0 {
		threshold = defaultParallelThreshold
	}
	if remaining.Cmp(big.NewInt(threshold)) < 0 {
		workers = 1
	}
	// Never more workers than ranks.
	if remaining.IsInt64() && int64(workers) > remaining.Int64() {
		workers = int(remaining.Int64())
	}
	return workers
}

// partition splits [resume, total) into contiguous non-overlapping blocks.
func (s *Scheduler) partition(resume, total, remaining *big.Int, workers int) []*workerState {
	base := new(big.Int).Div(remaining, big.NewInt(int64(workers)))
	states := make([]*workerState, workers)
	start := new(big.Int).Set(resume)
	for i := 0; i < workers; i++ {
		end := new(big.Int).Add(start, base)
		if i == workers-1 {
			end.Set(total) // last block absorbs the remainder
		}
		states[i] = &workerState{
			next: new(big.Int).Set(start),
			end:  end,
		}
		start = new(big.Int).Set(end)
	}
	return states
}

// runWorker walks one block in increasing rank order. The shared found slot
// is checked only at batch boundaries; cancellation is observed per
// candidate so a worker finishes its current candidate, not its batch.
func (s *Scheduler) runWorker(ctx context.Context, st *workerState, pool []string, batch int) {
	rank := st.snapshotNext()
	bigBatch := big.NewInt(int64(batch))
	batchEnd := new(big.Int)

	for rank.Cmp(st.end) < 0 {
		if s.found.Load() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		batchEnd.Add(rank, bigBatch)
		if batchEnd.Cmp(st.end) > 0 {
			batchEnd.Set(st.end)
		}

		for rank.Cmp(batchEnd) < 0 {
			select {
			case <-ctx.Done():
				st.setNext(rank)
				return
			default:
			}

			ordering, err := permutation.Decode(rank, pool)
			if err != nil {
				// Unreachable while blocks stay inside [0, k!).
				slog.Error("Rank decode failed", "rank", rank.String(), "error", err)
				st.setNext(rank)
				return
			}

			verdict, err := s.eval.Evaluate(ordering)
			rank.Add(rank, one)
			s.completed.Add(1)
			if err != nil {
				slog.Warn("Candidate evaluation failed", "rank", rank.String(), "error", err)
				continue
			}
			if verdict.Hit {
				s.commit(verdict)
				st.setNext(rank)
				return
			}
		}
		st.setNext(rank)
	}
}

// commit installs the first reported match; later reports lose the
// compare-and-set and are discarded. Discovery order across workers is not
// rank order - accepted nondeterminism of parallel execution.
func (s *Scheduler) commit(v evaluator.Verdict) {
	m := &foundMatch{mnemonic: v.Mnemonic, address: v.Address}
	if s.found.CompareAndSwap(nil, m) {
		slog.Info("Match found", "address", v.Address)
	}
}

// coordinate samples progress and writes checkpoints until all workers are
// done. Checkpoint writes happen here and nowhere else, so workers never
// contend on the file.
func (s *Scheduler) coordinate(done <-chan struct{}, states []*workerState, batch int) error {
	interval := s.cfg.SampleInterval
	if interval <= 0 {
		interval = defaultSampleInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastObserved, lastCheckpointed uint64
	lastTime := time.Now()

	for {
		select {
		case <-done:
			c := s.completed.Load()
			s.collector.RecordTested(c - lastObserved)
			return nil

		case <-ticker.C:
			c := s.completed.Load()
			s.collector.RecordTested(c - lastObserved)
			if s.progress != nil {
				s.progress.Observe(c)
			}
			now := time.Now()
			if dt := now.Sub(lastTime).Seconds(); dt > 0 {
				s.collector.SetSpeed(float64(c-lastObserved) / dt)
			}
			lastObserved = c
			lastTime = now

			if s.store != nil && c-lastCheckpointed >= uint64(batch) {
				if err := s.saveCheckpoint(states); err != nil {
					return err
				}
				lastCheckpointed = c
			}
		}
	}
}

// saveCheckpoint persists the minimum in-flight rank across workers: every
// rank below it is confirmed tested, so a resume can never skip work.
func (s *Scheduler) saveCheckpoint(states []*workerState) error {
	if s.store == nil {
		return nil
	}
	safe := states[0].snapshotNext()
	for _, st := range states[1:] {
		if n := st.snapshotNext(); n.Cmp(safe) < 0 {
			safe = n
		}
	}
	err := s.store.Save(types.Checkpoint{
		LastRank:   safe.String(),
		TotalWords: s.set.TotalWords(),
		FixedWords: s.set.FixedWords(),
		WordsHash:  s.set.Fingerprint(),
	})
	if err != nil {
		return err
	}
	s.collector.RecordCheckpoint()
	return nil
}

func (s *Scheduler) clearCheckpoint() {
	if s.store == nil {
		return
	}
	if err := s.store.Clear(); err != nil {
		slog.Warn("Failed to remove checkpoint", "error", err)
	}
}
