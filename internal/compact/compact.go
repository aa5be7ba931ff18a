// Package compact maintains the bounded rolling memory of a conversation.
package compact

import (
	"strings"
	"unicode/utf8"
)

// DefaultCap is the default memory size in characters.
const DefaultCap = 2000

// Append adds one exchange to memory as "\nUser: ...\nEx: ..." and keeps
// only the trailing limit characters (runes). Truncation is positional and may
// cut through a word or an exchange label. limit <= 0 uses DefaultCap.
func Append(memory, userText, assistantText string, limit int) string {
	if limit <= 0 {
		limit = DefaultCap
	}

	var b strings.Builder
	b.Grow(len(memory) + len(userText) + len(assistantText) + 12)
	b.WriteString(memory)
	b.WriteString("\nUser: ")
	b.WriteString(userText)
	b.WriteString("\nEx: ")
	b.WriteString(assistantText)

	return Tail(b.String(), limit)
}

// Tail returns the last n runes of s.
func Tail(s string, n int) string {
	excess := utf8.RuneCountInString(s) - n
	if excess <= 0 {
		return s
	}
	i := 0
	for ; excess > 0; excess-- {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return s[i:]
}
