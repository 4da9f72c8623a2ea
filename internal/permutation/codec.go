// ============================================================================
// Rank <-> Permutation Codec
// ============================================================================
//
// Package: internal/permutation
// File: codec.go
// Purpose: Bijection between an integer rank in [0, k!) and one concrete
// ordering of a k-word pool, using the factorial number system (Lehmer code).
//
// The search space for a 24-word mnemonic with a large permutable pool runs
// to 10^21 orderings, so the space can never be materialized. Decode walks
// the factorial digits of the rank and picks from the not-yet-used pool
// entries, O(k^2) per call with no auxiliary permutation storage. Ranks are
// *big.Int throughout: 21! already exceeds uint64.
//
// ============================================================================

package permutation

import (
	"errors"
	"math/big"
)

var (
	// ErrRankOutOfRange is returned when a rank falls outside [0, k!).
	ErrRankOutOfRange = errors.New("rank outside the factorial domain of the pool")
	// ErrLengthMismatch is returned when an ordering and its pool disagree in size.
	ErrLengthMismatch = errors.New("ordering length does not match pool size")
	// ErrNotPermutation is returned when an ordering is not a rearrangement of the pool.
	ErrNotPermutation = errors.New("ordering is not a permutation of the pool")
)

// Factorial returns k! as an arbitrary-precision integer. Factorial(0) is 1,
// matching the single empty ordering of an empty pool.
func Factorial(k int) *big.Int {
	f := big.NewInt(1)
	for i := 2; i <= k; i++ {
		f.Mul(f, big.NewInt(int64(i)))
	}
	return f
}

// Decode maps rank to the ordering it identifies. The reference order of
// pool anchors the enumeration: rank 0 is pool itself, rank k!-1 is pool
// reversed. rank must lie in [0, Factorial(len(pool))).
func Decode(rank *big.Int, pool []string) ([]string, error) {
	k := len(pool)
	if rank.Sign() < 0 || rank.Cmp(Factorial(k)) >= 0 {
		return nil, ErrRankOutOfRange
	}

	remaining := append([]string(nil), pool...)
	ordering := make([]string, 0, k)
	r := new(big.Int).Set(rank)
	q := new(big.Int)

	for i := 0; i < k; i++ {
		// r = q * (k-1-i)! + r'; q indexes into the unused entries.
		q.QuoRem(r, Factorial(k-1-i), r)
		idx := int(q.Int64()) // q < k, always fits
		ordering = append(ordering, remaining[idx])
		remaining = append(remaining[:idx], remaining[idx+1:]...)
	}
	return ordering, nil
}

// Encode is the inverse of Decode: it maps an ordering of pool back to its
// rank. With duplicate pool entries the first unused occurrence is taken, so
// Encode(Decode(r)) may land on a lower equivalent rank; duplicates are
// degenerate rather than an error.
func Encode(ordering, pool []string) (*big.Int, error) {
	k := len(pool)
	if len(ordering) != k {
		return nil, ErrLengthMismatch
	}

	remaining := append([]string(nil), pool...)
	rank := new(big.Int)
	term := new(big.Int)

	for i, word := range ordering {
		idx := -1
		for j, w := range remaining {
			if w == word {
				idx = j
				break
			}
		}
		if idx < 0 {
			return nil, ErrNotPermutation
		}
		term.Mul(big.NewInt(int64(idx)), Factorial(k-1-i))
		rank.Add(rank, term)
		remaining = append(remaining[:idx], remaining[idx+1:]...)
	}
	return rank, nil
}
