package lsa

import "sort"

// BehaviorIndex maps behavior codes to dense matrix positions. One index is
// built per run and shared by the observed, expected and z-score matrices.
type BehaviorIndex struct {
	codes []string
	pos   map[string]int
}

// NewBehaviorIndex builds an index over the distinct codes, sorted.
func NewBehaviorIndex(codes []string) *BehaviorIndex {
	seen := make(map[string]struct{}, len(codes))
	uniq := make([]string, 0, len(codes))
	for _, c := range codes {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		uniq = append(uniq, c)
	}
	sort.Strings(uniq)

	pos := make(map[string]int, len(uniq))
	for i, c := range uniq {
		pos[c] = i
	}
	return &BehaviorIndex{codes: uniq, pos: pos}
}

// Len returns the number of behaviors.
func (b *BehaviorIndex) Len() int { return len(b.codes) }

// Code returns the behavior at position i.
func (b *BehaviorIndex) Code(i int) string { return b.codes[i] }

// Codes returns a copy of the ordered behavior codes.
func (b *BehaviorIndex) Codes() []string {
	cp := make([]string, len(b.codes))
	copy(cp, b.codes)
	return cp
}

// Pos returns the position of code.
func (b *BehaviorIndex) Pos(code string) (int, bool) {
	i, ok := b.pos[code]
	return i, ok
}
