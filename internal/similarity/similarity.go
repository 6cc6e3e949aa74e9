// Package similarity scores how alike two device names are.
//
// The score is the gestalt pattern-matching ratio (Ratcliff/Obershelp):
// find the longest contiguous common block, recurse on the unmatched text
// to its left and right, and report 2*M / (len(a)+len(b)) where M is the
// total number of matched characters. This is not an edit distance; the
// acceptance threshold used by the mapper is calibrated against this exact
// measure, so a Levenshtein ratio must not be substituted.
package similarity

import (
	"sort"
	"strings"
)

// autojunkMinLen is the length of the second sequence from which
// characters occurring in more than 1% of positions are treated as
// "popular" and are not used to seed matches.
const autojunkMinLen = 200

// Block is a matching block: a[A:A+Size] == b[B:B+Size], in runes.
type Block struct {
	A    int
	B    int
	Size int
}

// Ratio returns the case-insensitive similarity of a and b in [0, 1].
//
// Identical strings score 1.0 (two empty strings included) and strings with
// no character in common score 0.0. The longest-block search breaks ties by
// position, which can make a one-directional ratio depend on argument order;
// Ratio evaluates both directions and returns the larger, so
// Ratio(a, b) == Ratio(b, a) always holds.
func Ratio(a, b string) float64 {
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))

	forward := ratio(ra, rb)
	if backward := ratio(rb, ra); backward > forward {
		return backward
	}
	return forward
}

// MatchingBlocks returns the matching blocks of the lower-cased inputs, in
// increasing order of position, as found when aligning a against b.
func MatchingBlocks(a, b string) []Block {
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))
	return newMatcher(ra, rb).matchingBlocks()
}

func ratio(a, b []rune) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 1.0
	}

	matches := 0
	for _, blk := range newMatcher(a, b).matchingBlocks() {
		matches += blk.Size
	}
	return 2.0 * float64(matches) / float64(total)
}

// matcher holds the index of b used for the longest-match search.
type matcher struct {
	a, b    []rune
	b2j     map[rune][]int
	popular map[rune]bool
}

func newMatcher(a, b []rune) *matcher {
	m := &matcher{
		a:       a,
		b:       b,
		b2j:     make(map[rune][]int),
		popular: make(map[rune]bool),
	}

	for j, r := range b {
		m.b2j[r] = append(m.b2j[r], j)
	}

	if n := len(b); n >= autojunkMinLen {
		limit := n/100 + 1
		for r, idx := range m.b2j {
			if len(idx) > limit {
				m.popular[r] = true
			}
		}
		for r := range m.popular {
			delete(m.b2j, r)
		}
	}

	return m
}

// longestMatch finds the longest block a[i:i+k] == b[j:j+k] inside
// a[alo:ahi] and b[blo:bhi]. Among equally long blocks it returns the one
// that starts earliest in a, and of those the one earliest in b.
func (m *matcher) longestMatch(alo, ahi, blo, bhi int) Block {
	best := Block{A: alo, B: blo}

	j2len := map[int]int{}
	for i := alo; i < ahi; i++ {
		next := map[int]int{}
		for _, j := range m.b2j[m.a[i]] {
			if j < blo {
				continue
			}
			if j >= bhi {
				break
			}
			k := j2len[j-1] + 1
			next[j] = k
			if k > best.Size {
				best = Block{A: i - k + 1, B: j - k + 1, Size: k}
			}
		}
		j2len = next
	}

	// Popular characters never seed a match but may still extend one.
	for best.A > alo && best.B > blo && m.a[best.A-1] == m.b[best.B-1] {
		best.A--
		best.B--
		best.Size++
	}
	for best.A+best.Size < ahi && best.B+best.Size < bhi &&
		m.a[best.A+best.Size] == m.b[best.B+best.Size] {
		best.Size++
	}

	return best
}

// matchingBlocks recursively collects the longest matches and merges
// adjacent blocks.
func (m *matcher) matchingBlocks() []Block {
	type span struct{ alo, ahi, blo, bhi int }

	queue := []span{{0, len(m.a), 0, len(m.b)}}
	var blocks []Block

	for len(queue) > 0 {
		s := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		blk := m.longestMatch(s.alo, s.ahi, s.blo, s.bhi)
		if blk.Size == 0 {
			continue
		}
		blocks = append(blocks, blk)

		if s.alo < blk.A && s.blo < blk.B {
			queue = append(queue, span{s.alo, blk.A, s.blo, blk.B})
		}
		if blk.A+blk.Size < s.ahi && blk.B+blk.Size < s.bhi {
			queue = append(queue, span{blk.A + blk.Size, s.ahi, blk.B + blk.Size, s.bhi})
		}
	}

	sort.Slice(blocks, func(i, j int) bool {
		if blocks[i].A != blocks[j].A {
			return blocks[i].A < blocks[j].A
		}
		return blocks[i].B < blocks[j].B
	})

	merged := make([]Block, 0, len(blocks))
	for _, blk := range blocks {
		if n := len(merged); n > 0 {
			last := &merged[n-1]
			if last.A+last.Size == blk.A && last.B+last.Size == blk.B {
				last.Size += blk.Size
				continue
			}
		}
		merged = append(merged, blk)
	}

	return merged
}
