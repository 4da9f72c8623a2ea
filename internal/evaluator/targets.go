package evaluator

// Target Set Loader. The set is built once before the run and is read-only
// afterwards, so workers share it without locking.

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrTargetSource is returned unless exactly one target source is given.
var ErrTargetSource = errors.New("specify exactly one of address, address file or address database file")

// TargetSet holds the normalized target addresses.
type TargetSet struct {
	addrs map[string]struct{}
}

// NewTargetSet builds a set from literal addresses. Empty strings are dropped.
func NewTargetSet(addrs ...string) *TargetSet {
	set := &TargetSet{addrs: make(map[string]struct{}, len(addrs))}
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		if a != "" {
			set.addrs[a] = struct{}{}
		}
	}
	return set
}

// LoadTargets resolves the three mutually exclusive target sources: a single
// address literal, a one-address file, or a multi-address database file with
// one address per line.
func LoadTargets(address, addressFile, addressDBFile string) (*TargetSet, error) {
	given := 0
	for _, s := range []string{address, addressFile, addressDBFile} {
		if s != "" {
			given++
		}
	}
	if given != 1 {
		return nil, ErrTargetSource
	}

	switch {
	case address != "":
		return NewTargetSet(address), nil

	case addressFile != "":
		data, err := os.ReadFile(addressFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read address file %s: %w", addressFile, err)
		}
		set := NewTargetSet(string(data))
		if set.Size() == 0 {
			return nil, fmt.Errorf("address file %s contains no address", addressFile)
		}
		return set, nil

	default:
		f, err := os.Open(addressDBFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open address database file %s: %w", addressDBFile, err)
		}
		defer f.Close()

		set := &TargetSet{addrs: make(map[string]struct{})}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			addr := strings.TrimSpace(scanner.Text())
			if addr != "" {
				set.addrs[addr] = struct{}{}
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read address database file %s: %w", addressDBFile, err)
		}
		if set.Size() == 0 {
			return nil, fmt.Errorf("address database file %s contains no addresses", addressDBFile)
		}
		return set, nil
	}
}

// Contains tests membership in O(1) average time.
func (t *TargetSet) Contains(addr string) bool {
	_, ok := t.addrs[addr]
	return ok
}

// Size returns the number of target addresses.
func (t *TargetSet) Size() int { return len(t.addrs) }
