package srx

import (
	"log/slog"
	"sort"
)

// Segmenter splits text with an ordered rule list. It is safe for
// concurrent use.
type Segmenter struct {
	language string
	rules    []*Rule
}

// Language returns the language code the segmenter was built for.
func (s *Segmenter) Language() string { return s.language }

// Rules returns the number of rules in effect.
func (s *Segmenter) Rules() int { return len(s.rules) }

// Split divides text into segments. At every position the first rule whose
// before part matches text ending there, and whose after part matches text
// starting there, decides whether to break. Segments are never empty and
// concatenate back to text.
func (s *Segmenter) Split(text string) []string {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	n := len(runes)
	decided := make(map[int]bool)

	for _, rule := range s.rules {
		m, err := rule.re.FindRunesMatchStartingAt(runes, 1)
		for m != nil && err == nil {
			pos := m.Index
			if pos >= n {
				break
			}
			if _, seen := decided[pos]; !seen {
				decided[pos] = rule.Break
			}
			m, err = rule.re.FindNextMatch(m)
		}
		if err != nil {
			slog.Warn("srx_rule_failed",
				slog.String("language", s.language),
				slog.String("beforebreak", rule.Before),
				slog.String("error", err.Error()))
		}
	}

	breaks := make([]int, 0, len(decided))
	for pos, brk := range decided {
		if brk {
			breaks = append(breaks, pos)
		}
	}
	sort.Ints(breaks)

	segments := make([]string, 0, len(breaks)+1)
	start := 0
	for _, pos := range breaks {
		segments = append(segments, string(runes[start:pos]))
		start = pos
	}
	return append(segments, string(runes[start:]))
}
