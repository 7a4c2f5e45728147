package dice

import "cmp"

// Mark selects the amount highest or lowest of values and reports, per
// index, whether it was selected. Among equal values the earlier index is
// preferred. amount must be within [1, len(values)-1].
func Mark[T cmp.Ordered](values []T, amount int, c Condition) []bool {
	marked := make([]bool, len(values))
	if amount <= 0 {
		return marked
	}
	if amount >= len(values) {
		for i := range marked {
			marked[i] = true
		}
		return marked
	}

	// better reports whether a should displace b from the selection.
	better := func(a, b T) bool {
		if c == Lowest {
			return a < b
		}
		return a > b
	}

	frontier := make([]int, amount)
	for i := range frontier {
		frontier[i] = i
	}
	worst := weakest(values, frontier, better)
	for i := amount; i < len(values); i++ {
		if !better(values[i], values[frontier[worst]]) {
			continue
		}
		frontier[worst] = i
		worst = weakest(values, frontier, better)
	}

	for _, idx := range frontier {
		marked[idx] = true
	}
	return marked
}

// weakest returns the position in frontier of the next eviction candidate:
// the worst value, and among equally bad values the latest index.
func weakest[T cmp.Ordered](values []T, frontier []int, better func(a, b T) bool) int {
	w := 0
	for pos := 1; pos < len(frontier); pos++ {
		cur, prev := frontier[pos], frontier[w]
		switch {
		case better(values[prev], values[cur]):
			w = pos
		case values[prev] == values[cur] && cur > prev:
			w = pos
		}
	}
	return w
}
