package scoring

import (
	"strings"
	"unicode"
)

// Normalize lowercases s and drops every character outside [a-z0-9]
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizedWords splits s on whitespace and punctuation and normalizes each word
func NormalizedWords(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		if n := Normalize(f); n != "" {
			words = append(words, n)
		}
	}
	return words
}

// Ratio is the Ratcliff/Obershelp similarity 2*M/T of a and b, where M is the number of
// characters in matching blocks. It matches difflib.SequenceMatcher(None, a, b).ratio()
// for inputs shorter than 200 characters. Either side empty yields 0.
func Ratio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	ar, br := []rune(a), []rune(b)
	m := newMatcher(ar, br)
	matched := m.matchedCount(0, len(ar), 0, len(br))
	return 2 * float64(matched) / float64(len(ar)+len(br))
}

type matcher struct {
	a, b []rune
	b2j  map[rune][]int
}

func newMatcher(a, b []rune) *matcher {
	b2j := make(map[rune][]int)
	for j, r := range b {
		b2j[r] = append(b2j[r], j)
	}
	return &matcher{a: a, b: b, b2j: b2j}
}

// longest returns the earliest longest common block in a[alo:ahi], b[blo:bhi]
func (m *matcher) longest(alo, ahi, blo, bhi int) (int, int, int) {
	besti, bestj, bestsize := alo, blo, 0
	j2len := map[int]int{}
	for i := alo; i < ahi; i++ {
		newj2len := map[int]int{}
		for _, j := range m.b2j[m.a[i]] {
			if j < blo {
				continue
			}
			if j >= bhi {
				break
			}
			k := j2len[j-1] + 1
			newj2len[j] = k
			if k > bestsize {
				besti, bestj, bestsize = i-k+1, j-k+1, k
			}
		}
		j2len = newj2len
	}
	return besti, bestj, bestsize
}

func (m *matcher) matchedCount(alo, ahi, blo, bhi int) int {
	i, j, k := m.longest(alo, ahi, blo, bhi)
	if k == 0 {
		return 0
	}
	total := k
	if alo < i && blo < j {
		total += m.matchedCount(alo, i, blo, j)
	}
	if i+k < ahi && j+k < bhi {
		total += m.matchedCount(i+k, ahi, j+k, bhi)
	}
	return total
}
