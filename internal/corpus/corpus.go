// Package corpus turns a directory of XML articles into a plain-text
// sentence corpus and reports word statistics for the peer reviews in it.
package corpus

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/blevesearch/segment"
	"github.com/dlclark/regexp2"

	merrors "github.com/marcinmilkowski/metaindexer/internal/errors"
	"github.com/marcinmilkowski/metaindexer/internal/srx"
)

// DefaultReviewPattern matches eLife peer review and author response files.
const DefaultReviewPattern = `eLife\.\d+\.[ra](sa)?\d+\.xml`

// DefaultFilter keeps sentences that mention understanding.
const DefaultFilter = `.*\bunderstandings?\b.*`

// MatchTimeout bounds a single regular expression evaluation.
const MatchTimeout = 5 * time.Second

var (
	commentRe = mustCompile(`<!--.*?-->`, regexp2.Singleline)
	tagRe     = mustCompile(`<[^>]*>`, regexp2.None)
	charRefRe = mustCompile(`&#(?:(\d+)|[xX]([0-9a-fA-F]+));`, regexp2.None)

	entities = [][2]string{
		{"&lt;", "<"},
		{"&gt;", ">"},
		{"&amp;", "&"},
		{"&quot;", `"`},
		{"&apos;", "'"},
	}
)

func mustCompile(expr string, opts regexp2.RegexOptions) *regexp2.Regexp {
	re := regexp2.MustCompile(expr, opts)
	re.MatchTimeout = MatchTimeout
	return re
}

// CompilePattern compiles expr so that it must match a whole input.
func CompilePattern(expr string) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile(`\A(?:`+expr+`)\z`, regexp2.None)
	if err != nil {
		return nil, merrors.New(merrors.ErrCodePatternInvalid, "invalid regular expression", err).
			WithDetail("pattern", expr)
	}
	re.MatchTimeout = MatchTimeout
	return re, nil
}

// CleanText strips comments and tags from XML and decodes the predefined
// entities and numeric character references.
func CleanText(xml string) string {
	text := replaceAll(commentRe, xml)
	text = replaceAll(tagRe, text)
	for _, e := range entities {
		text = strings.ReplaceAll(text, e[0], e[1])
	}
	return DecodeCharRefs(text)
}

func replaceAll(re *regexp2.Regexp, s string) string {
	out, err := re.Replace(s, "", -1, -1)
	if err != nil {
		slog.Warn("xml_clean_failed", slog.String("pattern", re.String()), slog.String("error", err.Error()))
		return s
	}
	return out
}

// DecodeCharRefs replaces decimal (&#NNN;) and hexadecimal (&#xHH;)
// character references. References to invalid code points are kept.
func DecodeCharRefs(s string) string {
	if !strings.Contains(s, "&#") {
		return s
	}
	out, err := charRefRe.ReplaceFunc(s, func(m regexp2.Match) string {
		var (
			code int64
			err  error
		)
		if dec := m.GroupByNumber(1); dec.Length > 0 {
			code, err = strconv.ParseInt(dec.String(), 10, 32)
		} else {
			code, err = strconv.ParseInt(m.GroupByNumber(2).String(), 16, 32)
		}
		if err != nil || !validRune(code) {
			return m.String()
		}
		return string(rune(code))
	}, -1, -1)
	if err != nil {
		return s
	}
	return out
}

func validRune(code int64) bool {
	if code < 0 || code > 0x10FFFF {
		return false
	}
	return code < 0xD800 || code > 0xDFFF
}

// IsReview reports whether the base name of path fully matches pattern.
// A nil pattern uses DefaultReviewPattern.
func IsReview(path string, pattern *regexp2.Regexp) bool {
	if pattern == nil {
		pattern = defaultReview
	}
	ok, err := pattern.MatchString(filepath.Base(path))
	return err == nil && ok
}

var defaultReview = func() *regexp2.Regexp {
	re, err := CompilePattern(DefaultReviewPattern)
	if err != nil {
		panic(err)
	}
	return re
}()

// WordMode selects how words are counted.
type WordMode string

const (
	// WordsWhitespace counts runs of non-space characters, so "p-value" is
	// one word and a standalone dash is one too.
	WordsWhitespace WordMode = "whitespace"
	// WordsUnicode counts UAX#29 words: letters, numbers, kana and
	// ideographs. Punctuation does not count and text without spaces is
	// still split into words.
	WordsUnicode WordMode = "unicode"
)

// ParseWordMode validates a word mode name. Empty means WordsWhitespace.
func ParseWordMode(s string) (WordMode, error) {
	switch WordMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", WordsWhitespace:
		return WordsWhitespace, nil
	case WordsUnicode:
		return WordsUnicode, nil
	}
	return "", merrors.ValidationError(fmt.Sprintf("unknown word mode %q (whitespace|unicode)", s), nil)
}

// WordCount counts the whitespace-separated tokens of the cleaned XML text.
func WordCount(xml string) int {
	return CountWords(CleanText(xml), WordsWhitespace)
}

// CountWords counts the words of plain text in the given mode.
func CountWords(text string, mode WordMode) int {
	if mode != WordsUnicode {
		return len(strings.Fields(text))
	}
	seg := segment.NewWordSegmenterDirect([]byte(text))
	n := 0
	for seg.Segment() {
		if seg.Type() != segment.None {
			n++
		}
	}
	if err := seg.Err(); err != nil {
		slog.Warn("word_segmentation_failed", slog.String("error", err.Error()))
	}
	return n
}

// FilterSentences splits text with seg and returns the sentences that fully
// match filter, one line each. Surrounding whitespace is not part of the
// match and every returned sentence ends in exactly one "\n".
func FilterSentences(seg *srx.Segmenter, text string, filter *regexp2.Regexp) []string {
	var out []string
	for _, sentence := range seg.Split(text) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		ok, err := filter.MatchString(sentence)
		if err != nil {
			slog.Warn("sentence_filter_failed", slog.String("error", err.Error()))
			continue
		}
		if ok {
			out = append(out, sentence+"\n")
		}
	}
	return out
}
