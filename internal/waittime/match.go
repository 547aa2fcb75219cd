package waittime

import "strings"

const matchThreshold = 0.5

// normalizeName lowercases and strips everything but letters, digits and
// spaces, so "St. Mary's Hospital" and "st marys hospital" compare equal.
func normalizeName(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ':
			sb.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// bestMatch finds the wait time for name in table: exact normalized match
// first, otherwise the candidate with the highest word-overlap score among
// those above the threshold.
func bestMatch(name string, table map[string]int) (int, bool) {
	normalized := normalizeName(name)
	if normalized == "" {
		return 0, false
	}

	bestScore := 0.0
	bestMinutes := 0
	found := false
	for candidate, minutes := range table {
		candidateNorm := normalizeName(candidate)
		if candidateNorm == normalized {
			return minutes, true
		}
		score := overlapScore(normalized, candidateNorm)
		if score > matchThreshold && score > bestScore {
			bestScore = score
			bestMinutes = minutes
			found = true
		}
	}
	return bestMinutes, found
}

// overlapScore is the fraction of words shared between two normalized names,
// relative to the longer of the two word sets.
func overlapScore(a, b string) float64 {
	wordsA := strings.Fields(a)
	wordsB := strings.Fields(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	setA := make(map[string]struct{}, len(wordsA))
	for _, w := range wordsA {
		setA[w] = struct{}{}
	}
	shared := 0
	seen := make(map[string]struct{}, len(wordsB))
	for _, w := range wordsB {
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		if _, ok := setA[w]; ok {
			shared++
		}
	}

	longer := len(setA)
	if len(seen) > longer {
		longer = len(seen)
	}
	return float64(shared) / float64(longer)
}
