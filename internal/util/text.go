package util

import (
	"sort"
	"strings"
	"unicode"
)

// Normalize lower-cases the input, folds ё to е and turns every run of
// non-alphanumeric runes into a single space.
func Normalize(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	space := true
	for _, r := range strings.ToLower(input) {
		if r == 'ё' {
			r = 'е'
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// Fold is the synonym/exact-match key: lower-cased and trimmed, nothing else.
func Fold(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}

func Tokenize(input string) []string {
	norm := Normalize(input)
	if norm == "" {
		return nil
	}
	return strings.Fields(norm)
}

// Similarity is a weighted token-ratio score in [0,1]. Short strings of
// similar length compare whole and token-reordered; strings of very
// different length fall back to best-window partial matching with a penalty.
func Similarity(a, b string) float64 {
	p1, p2 := Normalize(a), Normalize(b)
	if p1 == "" || p2 == "" {
		return 0
	}
	if p1 == p2 {
		return 1
	}

	l1, l2 := len([]rune(p1)), len([]rune(p2))
	lenRatio := float64(max(l1, l2)) / float64(min(l1, l2))

	best := Ratio(p1, p2)
	if lenRatio < 1.5 {
		best = max(best, 0.95*TokenSortRatio(p1, p2), 0.95*TokenSetRatio(p1, p2))
		return best
	}

	scale := 0.9
	if lenRatio >= 8 {
		scale = 0.6
	}
	best = max(best, scale*PartialRatio(p1, p2))
	best = max(best, 0.95*scale*PartialRatio(sortedTokens(p1), sortedTokens(p2)))
	return best
}

// Ratio is the normalized indel similarity 2*LCS/(len(a)+len(b)).
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	return float64(2*lcs(ra, rb)) / float64(total)
}

// PartialRatio scores the shorter string against every equal-length window
// of the longer one and keeps the best.
func PartialRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}
	if len(ra) == 0 {
		return 0
	}
	best := 0.0
	for i := 0; i+len(ra) <= len(rb); i++ {
		window := rb[i : i+len(ra)]
		score := float64(2*lcs(ra, window)) / float64(2*len(ra))
		if score > best {
			best = score
			if best == 1 {
				break
			}
		}
	}
	return best
}

func TokenSortRatio(a, b string) float64 {
	return Ratio(sortedTokens(a), sortedTokens(b))
}

func TokenSetRatio(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)

	var inter, onlyA, onlyB []string
	for t := range setA {
		if _, ok := setB[t]; ok {
			inter = append(inter, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range setB {
		if _, ok := setA[t]; !ok {
			onlyB = append(onlyB, t)
		}
	}
	if len(inter) > 0 && (len(onlyA) == 0 || len(onlyB) == 0) {
		return 1
	}
	sort.Strings(inter)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	t0 := strings.Join(inter, " ")
	t1 := strings.TrimSpace(t0 + " " + strings.Join(onlyA, " "))
	t2 := strings.TrimSpace(t0 + " " + strings.Join(onlyB, " "))

	best := Ratio(t1, t2)
	if t0 != "" {
		best = max(best, Ratio(t0, t1), Ratio(t0, t2))
	}
	return best
}

func sortedTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func tokenSet(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, t := range strings.Fields(s) {
		out[t] = struct{}{}
	}
	return out
}

func lcs(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
