package inference

import (
	"strings"
	"unicode/utf8"
)

// Truncate bounds text to at most max runes, cutting at the last whitespace
// in the final tenth of the budget when there is one. It reports whether
// anything was removed. max <= 0 disables the bound.
func Truncate(text string, max int) (string, bool) {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text, false
	}

	count, end := 0, len(text)
	for i := range text {
		if count == max {
			end = i
			break
		}
		count++
	}
	head := text[:end]

	if idx := strings.LastIndexAny(head, " \n\t"); idx > 0 && utf8.RuneCountInString(head[idx:]) <= max/10 {
		head = head[:idx]
	}
	return strings.TrimRightFunc(head, isSpace), true
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}
