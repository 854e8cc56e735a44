package brain

import (
	"strings"
	"unicode/utf8"
)

// MaxTweetLength is the display limit of the target platform, in characters.
const MaxTweetLength = 280

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// FitTweet shortens text so that text, a newline and url fit the limit,
// preferring to end on a sentence, then appends url.
func FitTweet(text, url string) string {
	text = strings.TrimSpace(text)
	url = strings.TrimSpace(url)
	budget := MaxTweetLength
	if url != "" {
		budget -= utf8.RuneCountInString(url) + 1
	}
	if budget < 0 {
		budget = 0
	}

	if utf8.RuneCountInString(text) > budget {
		cut := []rune(text)[:max(budget-3, 0)]
		last := lastSentenceEnd(cut)
		if last >= 0 && float64(last) > float64(budget)*0.7 {
			text = string(cut[:last+1])
		} else {
			text = strings.TrimRight(string(cut), " ") + "..."
		}
		text = Truncate(text, budget)
	}

	if url == "" {
		return text
	}
	if text == "" {
		return Truncate(url, MaxTweetLength)
	}
	return text + "\n" + url
}

func lastSentenceEnd(r []rune) int {
	for i := len(r) - 1; i >= 0; i-- {
		switch r[i] {
		case '.', '?', '!':
			return i
		}
	}
	return -1
}

// clip cuts s to n runes and marks the cut.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return Truncate(s, n) + "..."
}

// snippet returns s when short enough, else its first sentence when that
// fits, else a hard cut with an ellipsis.
func snippet(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if first, _, ok := strings.Cut(s, ". "); ok && utf8.RuneCountInString(first) < n {
		return first + "."
	}
	return Truncate(s, n-3) + "..."
}
