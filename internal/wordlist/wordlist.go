// Package wordlist wraps the canonical 2048-entry BIP-39 word list behind
// the two lookups the evaluator needs: membership and index.
package wordlist

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

// Wordlist is a read-only word table, safe for concurrent lookups.
type Wordlist struct {
	words []string
	index map[string]int
}

// English returns the canonical English BIP-39 list bundled with go-bip39.
func English() *Wordlist {
	return fromWords(bip39.GetWordList())
}

// LoadFile reads one word per line, for alternate language lists.
func LoadFile(path string) (*Wordlist, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wordlist file %s: %w", path, err)
	}
	defer f.Close()

	var words []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		word := strings.TrimSpace(scanner.Text())
		if word != "" {
			words = append(words, word)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read wordlist file %s: %w", path, err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("wordlist file %s contains no words", path)
	}
	return fromWords(words), nil
}

func fromWords(words []string) *Wordlist {
	index := make(map[string]int, len(words))
	for i, w := range words {
		index[w] = i
	}
	return &Wordlist{words: words, index: index}
}

// Contains reports whether word is in the list.
func (w *Wordlist) Contains(word string) bool {
	_, ok := w.index[word]
	return ok
}

// IndexOf returns the position of word in the list.
func (w *Wordlist) IndexOf(word string) (uint16, bool) {
	i, ok := w.index[word]
	if !ok {
		return 0, false
	}
	return uint16(i), true
}

// Size returns the number of words in the list.
func (w *Wordlist) Size() int { return len(w.words) }
