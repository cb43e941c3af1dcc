package replication

import (
	"github.com/samber/lo"

	"github.com/raniellyferreira/redis-replicator/rdb"
)

// KeyPatternFilter accepts entities whose key matches one of the glob
// patterns, with the same syntax as the Redis KEYS command: '*', '?',
// character classes like [a-z] or [^0-9], and '\' escapes.
func KeyPatternFilter(patterns ...string) Filter {
	return FilterFunc(func(e *rdb.Entity) bool {
		return matchAny(e.Key, patterns)
	})
}

// OperationKeyPatternFilter accepts operations whose first argument matches
// one of the glob patterns. Operations without arguments are rejected.
func OperationKeyPatternFilter(patterns ...string) OperationFilter {
	return OperationFilterFunc(func(op *Operation) bool {
		key := op.Key()
		return key != nil && matchAny(key, patterns)
	})
}

func matchAny(key []byte, patterns []string) bool {
	return lo.SomeBy(patterns, func(p string) bool {
		return matchPattern(key, []byte(p))
	})
}

// matchPattern reports whether key matches the glob pattern
func matchPattern(key, pattern []byte) bool {
	// A lone "*" does not match the empty key
	if len(pattern) == 1 && pattern[0] == '*' {
		return len(key) > 0
	}
	return matchAutomaton(key, pattern, 0, 0, make(map[[2]int]bool))
}

// matchAutomaton matches key[ki:] against pattern[pi:] with memoization
func matchAutomaton(key, pattern []byte, ki, pi int, memo map[[2]int]bool) bool {
	state := [2]int{ki, pi}
	if result, ok := memo[state]; ok {
		return result
	}

	var result bool
	switch {
	case pi == len(pattern):
		result = ki == len(key)

	case pattern[pi] == '*':
		// Zero characters, or one more and stay on the star
		result = matchAutomaton(key, pattern, ki, pi+1, memo) ||
			(ki < len(key) && matchAutomaton(key, pattern, ki+1, pi, memo))

	case ki == len(key):
		result = false

	case pattern[pi] == '?':
		result = matchAutomaton(key, pattern, ki+1, pi+1, memo)

	case pattern[pi] == '[':
		matched, next := matchClass(key[ki], pattern, pi+1)
		result = matched && matchAutomaton(key, pattern, ki+1, next, memo)

	case pattern[pi] == '\\' && pi+1 < len(pattern):
		result = pattern[pi+1] == key[ki] && matchAutomaton(key, pattern, ki+1, pi+2, memo)

	default:
		result = pattern[pi] == key[ki] && matchAutomaton(key, pattern, ki+1, pi+1, memo)
	}

	memo[state] = result
	return result
}

// matchClass matches c against the class starting at pattern[pi], just after
// the '['. It returns the pattern index after the closing ']'; an unclosed
// class runs to the end of the pattern.
func matchClass(c byte, pattern []byte, pi int) (bool, int) {
	negate := pi < len(pattern) && pattern[pi] == '^'
	if negate {
		pi++
	}

	matched := false
	for pi < len(pattern) && pattern[pi] != ']' {
		switch {
		case pattern[pi] == '\\' && pi+1 < len(pattern):
			matched = matched || pattern[pi+1] == c
			pi += 2
		case pi+2 < len(pattern) && pattern[pi+1] == '-':
			from, to := pattern[pi], pattern[pi+2]
			if from > to {
				from, to = to, from
			}
			matched = matched || (c >= from && c <= to)
			pi += 3
		default:
			matched = matched || pattern[pi] == c
			pi++
		}
	}
	if pi < len(pattern) {
		pi++ // ']'
	}
	return matched != negate, pi
}
