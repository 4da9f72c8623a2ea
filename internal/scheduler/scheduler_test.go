package scheduler

import (
	"context"
	"math/big"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/seed-recovery/internal/checkpoint"
	"github.com/ChuLiYu/seed-recovery/internal/evaluator"
	"github.com/ChuLiYu/seed-recovery/internal/permutation"
	"github.com/ChuLiYu/seed-recovery/pkg/types"
)

// recordingEval counts every ordering it sees and reports a hit when the
// joined ordering equals target (empty target never hits).
type recordingEval struct {
	mu     sync.Mutex
	seen   map[string]int
	target string
	onEval func(ordering []string)
}

func newRecordingEval(target string) *recordingEval {
	return &recordingEval{seen: make(map[string]int), target: target}
}

func (e *recordingEval) Evaluate(ordering []string) (evaluator.Verdict, error) {
	key := strings.Join(ordering, " ")
	e.mu.Lock()
	e.seen[key]++
	e.mu.Unlock()
	if e.onEval != nil {
		e.onEval(ordering)
	}
	if e.target != "" && key == e.target {
		return evaluator.Verdict{Hit: true, Mnemonic: key, Address: "addr"}, nil
	}
	return evaluator.Verdict{}, nil
}

func (e *recordingEval) snapshot() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]int, len(e.seen))
	for k, v := range e.seen {
		out[k] = v
	}
	return out
}

func testWordSet(t *testing.T, pool ...string) *types.WordSet {
	t.Helper()
	set, err := types.NewWordSet(pool, 0)
	require.NoError(t, err)
	return set
}

// allOrderings decodes every rank in [from, k!) into its joined ordering.
func allOrderings(t *testing.T, pool []string, from int64) map[string]bool {
	t.Helper()
	out := make(map[string]bool)
	total := permutation.Factorial(len(pool))
	for r := big.NewInt(from); r.Cmp(total) < 0; r.Add(r, big.NewInt(1)) {
		ordering, err := permutation.Decode(r, pool)
		require.NoError(t, err)
		out[strings.Join(ordering, " ")] = true
	}
	return out
}

func TestRunExhaustsExactly(t *testing.T) {
	for _, workers := range []int{1, 2, 8} {
		pool := []string{"a", "b", "c", "d", "e"} // 5! = 120
		eval := newRecordingEval("")
		s := New(testWordSet(t, pool...), eval, nil, nil, nil, Config{
			Workers:           workers,
			BatchSize:         7,
			ParallelThreshold: 1,
		})

		result, err := s.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, types.OutcomeExhausted, result.Outcome)
		assert.Equal(t, uint64(120), result.Tested, "workers=%d", workers)

		seen := eval.snapshot()
		assert.Len(t, seen, 120, "workers=%d should enumerate every ordering", workers)
		for key, n := range seen {
			assert.Equal(t, 1, n, "workers=%d ordering %q tested more than once", workers, key)
		}
	}
}

func TestRunFindsMatch(t *testing.T) {
	pool := []string{"a", "b", "c", "d"}
	target, err := permutation.Decode(big.NewInt(17), pool)
	require.NoError(t, err)

	eval := newRecordingEval(strings.Join(target, " "))
	s := New(testWordSet(t, pool...), eval, nil, nil, nil, Config{
		Workers:           2,
		BatchSize:         4,
		ParallelThreshold: 1,
	})

	result, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeFound, result.Outcome)
	assert.Equal(t, strings.Join(target, " "), result.Mnemonic)
	assert.Equal(t, "addr", result.Address)
	assert.NotZero(t, result.Tested)
}

// With the winning rank in position 1 of a two-rank domain, the worker must
// test rank 0, miss, then hit rank 1: exactly two candidates.
func TestRunTwoRankScenario(t *testing.T) {
	set, err := types.NewWordSet([]string{"w", "x", "a", "b"}, 2)
	require.NoError(t, err)

	target, err := permutation.Decode(big.NewInt(1), set.Pool())
	require.NoError(t, err)

	eval := newRecordingEval(strings.Join(target, " "))
	s := New(set, eval, nil, nil, nil, Config{Workers: 1, BatchSize: 10})

	result, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeFound, result.Outcome)
	assert.Equal(t, uint64(2), result.Tested)

	// Same domain, no winner: exhausted after the same two candidates.
	eval = newRecordingEval("")
	s = New(set, eval, nil, nil, nil, Config{Workers: 1, BatchSize: 10})
	result, err = s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeExhausted, result.Outcome)
	assert.Equal(t, uint64(2), result.Tested)
}

func TestRunResumesFromCheckpoint(t *testing.T) {
	for _, workers := range []int{1, 2, 8} {
		pool := []string{"a", "b", "c", "d", "e"} // 5! = 120
		set := testWordSet(t, pool...)
		store := checkpoint.NewStore(filepath.Join(t.TempDir(), "cp.json"))
		require.NoError(t, store.Save(types.Checkpoint{
			LastRank:   "40",
			TotalWords: set.TotalWords(),
			FixedWords: set.FixedWords(),
			WordsHash:  set.Fingerprint(),
		}))

		eval := newRecordingEval("")
		s := New(set, eval, store, nil, nil, Config{
			Workers:           workers,
			BatchSize:         7,
			ParallelThreshold: 1,
		})

		result, err := s.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, types.OutcomeExhausted, result.Outcome)
		assert.Equal(t, uint64(80), result.Tested, "workers=%d", workers)

		seen := eval.snapshot()
		expected := allOrderings(t, pool, 40)
		assert.Len(t, seen, len(expected), "workers=%d", workers)
		for key := range expected {
			assert.Equal(t, 1, seen[key], "workers=%d ordering %q", workers, key)
		}

		// Exhaustion removes the checkpoint.
		assert.False(t, store.Exists(), "workers=%d", workers)
	}
}

// A checkpoint written for different search parameters must be ignored; the
// run starts at rank zero instead of resuming into a foreign rank domain.
func TestRunIgnoresMismatchedCheckpoint(t *testing.T) {
	pool := []string{"a", "b", "c", "d"}
	set := testWordSet(t, pool...)
	store := checkpoint.NewStore(filepath.Join(t.TempDir(), "cp.json"))
	require.NoError(t, store.Save(types.Checkpoint{
		LastRank:   "10",
		TotalWords: 12, // different run shape
		FixedWords: 6,
		WordsHash:  "otherhash",
	}))

	eval := newRecordingEval("")
	s := New(set, eval, store, nil, nil, Config{Workers: 1, BatchSize: 5})

	result, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeExhausted, result.Outcome)
	assert.Equal(t, uint64(24), result.Tested, "full domain searched from rank zero")
}

// Every candidate hits: workers race to commit, the compare-and-set keeps
// exactly one winner and the run still terminates cleanly.
func TestRunConcurrentMatchesCommitOnce(t *testing.T) {
	pool := []string{"a", "b", "c", "d", "e", "f"} // 6! = 720
	set := testWordSet(t, pool...)

	eval := &hitEverythingEval{}
	s := New(set, eval, nil, nil, nil, Config{
		Workers:           8,
		BatchSize:         2,
		ParallelThreshold: 1,
	})

	result, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeFound, result.Outcome)
	assert.NotEmpty(t, result.Mnemonic)
	assert.Contains(t, result.Mnemonic, " ")
}

type hitEverythingEval struct{}

func (hitEverythingEval) Evaluate(ordering []string) (evaluator.Verdict, error) {
	key := strings.Join(ordering, " ")
	return evaluator.Verdict{Hit: true, Mnemonic: key, Address: "addr-" + key}, nil
}

// Cancellation mid-run persists a safe rank: resuming from it re-tests at
// most what was in flight and never skips an untested rank. The union of both
// runs must cover the entire domain.
func TestRunCancellationCheckpointIsSafe(t *testing.T) {
	pool := []string{"a", "b", "c", "d", "e"} // 5! = 120
	set := testWordSet(t, pool...)
	store := checkpoint.NewStore(filepath.Join(t.TempDir(), "cp.json"))

	ctx, cancel := context.WithCancel(context.Background())
	eval := newRecordingEval("")
	var evals int64
	var mu sync.Mutex
	eval.onEval = func([]string) {
		mu.Lock()
		evals++
		if evals == 30 {
			cancel()
		}
		mu.Unlock()
	}

	s := New(set, eval, store, nil, nil, Config{
		Workers:           4,
		BatchSize:         1,
		ParallelThreshold: 1,
	})

	result, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeCancelled, result.Outcome)
	require.True(t, store.Exists(), "cancellation must leave a checkpoint")

	firstRun := eval.snapshot()

	cp := store.Load(set.TotalWords(), set.FixedWords(), set.Fingerprint())
	require.NotNil(t, cp)
	rank, ok := cp.Rank()
	require.True(t, ok)

	// Every rank below the persisted rank is confirmed tested.
	for r := big.NewInt(0); r.Cmp(rank) < 0; r.Add(r, big.NewInt(1)) {
		ordering, err := permutation.Decode(r, pool)
		require.NoError(t, err)
		key := strings.Join(ordering, " ")
		assert.GreaterOrEqual(t, firstRun[key], 1, "rank %s below checkpoint was never tested", r)
	}

	// The second run completes the search; together the runs cover everything.
	second := newRecordingEval("")
	s2 := New(set, second, store, nil, nil, Config{
		Workers:           4,
		BatchSize:         1,
		ParallelThreshold: 1,
	})
	result, err = s2.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeExhausted, result.Outcome)

	secondRun := second.snapshot()
	for key := range allOrderings(t, pool, 0) {
		covered := firstRun[key] > 0 || secondRun[key] > 0
		assert.True(t, covered, "ordering %q never tested across both runs", key)
	}
}

func TestRunAlreadyExhaustedDomain(t *testing.T) {
	pool := []string{"a", "b", "c"}
	set := testWordSet(t, pool...)
	store := checkpoint.NewStore(filepath.Join(t.TempDir(), "cp.json"))
	require.NoError(t, store.Save(types.Checkpoint{
		LastRank:   "6", // == 3!
		TotalWords: set.TotalWords(),
		FixedWords: set.FixedWords(),
		WordsHash:  set.Fingerprint(),
	}))

	eval := newRecordingEval("")
	s := New(set, eval, store, nil, nil, Config{Workers: 2})

	result, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeExhausted, result.Outcome)
	assert.Zero(t, result.Tested)
	assert.Empty(t, eval.snapshot())
	assert.False(t, store.Exists())
}

func TestRunSmallRangeFallsBackToSingleWorker(t *testing.T) {
	pool := []string{"a", "b", "c"} // 3! = 6, below threshold
	eval := newRecordingEval("")
	s := New(testWordSet(t, pool...), eval, nil, nil, nil, Config{
		Workers:           8,
		ParallelThreshold: 1000,
	})

	result, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeExhausted, result.Outcome)
	assert.Equal(t, uint64(6), result.Tested)
}

// A checkpoint durability failure aborts the run with an error rather than
// silently continuing without resume protection.
func TestRunAbortsOnCheckpointFailure(t *testing.T) {
	pool := []string{"a", "b", "c", "d", "e", "f"} // 6! = 720
	set := testWordSet(t, pool...)
	store := checkpoint.NewStore(filepath.Join(t.TempDir(), "no", "such", "dir", "cp.json"))

	slow := &slowEval{delay: time.Millisecond}
	s := New(set, slow, store, nil, nil, Config{
		Workers:           2,
		BatchSize:         1,
		ParallelThreshold: 1,
		SampleInterval:    5 * time.Millisecond,
	})

	_, err := s.Run(context.Background())
	assert.Error(t, err)
}

type slowEval struct{ delay time.Duration }

func (e *slowEval) Evaluate([]string) (evaluator.Verdict, error) {
	time.Sleep(e.delay)
	return evaluator.Verdict{}, nil
}

// progressRecorder verifies the reporter contract calls.
type progressRecorder struct {
	mu       sync.Mutex
	began    bool
	total    string
	resume   string
	observed []uint64
	finished bool
}

func (p *progressRecorder) Begin(total, resume *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.began = true
	p.total = total.String()
	p.resume = resume.String()
}

func (p *progressRecorder) Observe(completed uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observed = append(p.observed, completed)
}

func (p *progressRecorder) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finished = true
}

func TestRunDrivesProgressSink(t *testing.T) {
	pool := []string{"a", "b", "c", "d"}
	eval := newRecordingEval("")
	rec := &progressRecorder{}
	s := New(testWordSet(t, pool...), eval, nil, nil, rec, Config{Workers: 1})

	_, err := s.Run(context.Background())
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.True(t, rec.began)
	assert.Equal(t, "24", rec.total)
	assert.Equal(t, "0", rec.resume)
	assert.True(t, rec.finished)
	require.NotEmpty(t, rec.observed)
	assert.Equal(t, uint64(24), rec.observed[len(rec.observed)-1])
}

func TestTotalCount(t *testing.T) {
	s := New(testWordSet(t, "a", "b", "c", "d"), newRecordingEval(""), nil, nil, nil, Config{})
	assert.Equal(t, "24", s.TotalCount().String())
}
