package replication

import (
	"testing"

	"github.com/raniellyferreira/redis-replicator/rdb"
)

// Test cases for pattern matching
var matchTestCases = []struct {
	name     string
	str      string
	pattern  string
	expected bool
}{
	// Empty patterns
	{"empty pattern, empty string", "", "", true},
	{"empty pattern, non-empty string", "test", "", false},
	{"non-empty pattern, empty string", "", "test", false},

	// Exact matches
	{"exact match", "hello", "hello", true},
	{"exact match case sensitive", "Hello", "hello", false},
	{"exact match different", "hello", "world", false},

	// Single wildcard pattern "*"
	{"single wildcard, non-empty string", "test", "*", true},
	{"single wildcard, empty string", "", "*", false},

	// Prefix and suffix patterns
	{"prefix match", "hello world", "hello*", true},
	{"prefix no match", "hi world", "hello*", false},
	{"prefix exact", "hello", "hello*", true},
	{"suffix match", "hello world", "*world", true},
	{"suffix no match", "hello universe", "*world", false},
	{"middle wildcard empty middle", "helloworld", "hello*world", true},

	// Single character wildcard (?)
	{"single char wildcard", "hello", "hell?", true},
	{"single char wildcard no match", "hello", "hell??", false},
	{"single char wildcard multiple", "hello", "h?ll?", true},

	// Character classes and escapes
	{"class match", "hallo", "h[ae]llo", true},
	{"class no match", "hillo", "h[ae]llo", false},
	{"negated class", "hillo", "h[^e]llo", true},
	{"negated class no match", "hello", "h[^e]llo", false},
	{"range", "key7", "key[0-9]", true},
	{"range no match", "keyx", "key[0-9]", false},
	{"escaped star", "a*b", `a\*b`, true},
	{"escaped star no match", "axb", `a\*b`, false},

	// Edge cases
	{"only stars", "anything", "***", true},
	{"only question marks no match", "abcd", "???", false},
	{"slash is not special", "a/b/c", "a*c", true},

	// Real-world Redis key patterns
	{"redis key prefix", "user:123:profile", "user:*", true},
	{"redis key middle", "user:123:profile", "user:*:profile", true},
	{"redis key complex", "cache:user:123:data", "cache:*:*:data", true},
}

func TestMatchPattern(t *testing.T) {
	for _, tc := range matchTestCases {
		t.Run(tc.name, func(t *testing.T) {
			result := matchPattern([]byte(tc.str), []byte(tc.pattern))
			if result != tc.expected {
				t.Errorf("matchPattern(%q, %q) = %v, expected %v", tc.str, tc.pattern, result, tc.expected)
			}
		})
	}
}

func TestKeyPatternFilters(t *testing.T) {
	f := KeyPatternFilter("user:*", "session:?")
	if !f.Accept(&rdb.Entity{Key: []byte("user:1")}) {
		t.Error("expected user:1 to be accepted")
	}
	if f.Accept(&rdb.Entity{Key: []byte("session:12")}) {
		t.Error("expected session:12 to be rejected")
	}

	of := OperationKeyPatternFilter("user:*")
	if !of.AcceptOperation(&Operation{Name: "SET", Args: [][]byte{[]byte("user:1"), []byte("v")}}) {
		t.Error("expected SET user:1 to be accepted")
	}
	if of.AcceptOperation(&Operation{Name: "PING"}) {
		t.Error("expected PING to be rejected")
	}
}

func BenchmarkMatchPattern(b *testing.B) {
	key := []byte("cache:user:123456:profile:data")
	pattern := []byte("cache:*:*:profile:*")
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		matchPattern(key, pattern)
	}
}
