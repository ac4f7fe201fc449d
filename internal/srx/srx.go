// Package srx parses SRX 2.0 segmentation rules and splits text into
// sentences with them.
package srx

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/marcinmilkowski/metaindexer/configs"
	merrors "github.com/marcinmilkowski/metaindexer/internal/errors"
)

// MatchTimeout bounds a single rule match.
const MatchTimeout = 5 * time.Second

// Rule is one break or no-break rule.
type Rule struct {
	Break  bool
	Before string
	After  string

	re *regexp2.Regexp
}

// LanguageRule is a named, ordered rule list.
type LanguageRule struct {
	Name  string
	Rules []*Rule
}

// LanguageMap selects a language rule for language codes that fully match Pattern.
type LanguageMap struct {
	Pattern  string
	RuleName string

	re *regexp2.Regexp
}

// Document is a parsed SRX file.
type Document struct {
	// Cascade applies the rules of every matching map, not just the first.
	Cascade bool
	Rules   map[string]*LanguageRule
	Maps    []*LanguageMap
}

type srxFile struct {
	XMLName xml.Name `xml:"srx"`
	Version string   `xml:"version,attr"`
	Header  struct {
		Cascade string `xml:"cascade,attr"`
	} `xml:"header"`
	LanguageRules []struct {
		Name  string `xml:"languagerulename,attr"`
		Rules []struct {
			Break  string `xml:"break,attr"`
			Before string `xml:"beforebreak"`
			After  string `xml:"afterbreak"`
		} `xml:"rule"`
	} `xml:"body>languagerules>languagerule"`
	Maps []struct {
		Pattern  string `xml:"languagepattern,attr"`
		RuleName string `xml:"languagerulename,attr"`
	} `xml:"body>maprules>languagemap"`
}

func invalid(msg string, cause error) *merrors.MetaError {
	return merrors.New(merrors.ErrCodeSRXInvalid, msg, cause)
}

// Parse reads an SRX 2.0 document and compiles its rules.
func Parse(r io.Reader) (*Document, error) {
	var f srxFile
	if err := xml.NewDecoder(r).Decode(&f); err != nil {
		return nil, invalid("cannot parse SRX document", err)
	}
	if f.Version != "" && f.Version != "2.0" {
		return nil, invalid(fmt.Sprintf("unsupported SRX version %q", f.Version), nil)
	}

	doc := &Document{
		Cascade: f.Header.Cascade == "yes",
		Rules:   make(map[string]*LanguageRule, len(f.LanguageRules)),
	}

	for _, lr := range f.LanguageRules {
		if _, dup := doc.Rules[lr.Name]; dup {
			return nil, invalid(fmt.Sprintf("duplicate language rule %q", lr.Name), nil)
		}
		compiled := &LanguageRule{Name: lr.Name}
		for i, xr := range lr.Rules {
			rule := &Rule{Break: xr.Break != "no", Before: xr.Before, After: xr.After}
			re, err := compileRule(rule.Before, rule.After)
			if err != nil {
				return nil, invalid(fmt.Sprintf("rule %d of %q does not compile", i+1, lr.Name), err).
					WithDetail("beforebreak", rule.Before).
					WithDetail("afterbreak", rule.After)
			}
			rule.re = re
			compiled.Rules = append(compiled.Rules, rule)
		}
		doc.Rules[lr.Name] = compiled
	}

	for _, xm := range f.Maps {
		if _, ok := doc.Rules[xm.RuleName]; !ok {
			return nil, invalid(fmt.Sprintf("language map refers to unknown rule %q", xm.RuleName), nil)
		}
		re, err := regexp2.Compile(`\A(?:`+xm.Pattern+`)\z`, regexp2.None)
		if err != nil {
			return nil, invalid(fmt.Sprintf("language pattern %q does not compile", xm.Pattern), err)
		}
		re.MatchTimeout = MatchTimeout
		doc.Maps = append(doc.Maps, &LanguageMap{Pattern: xm.Pattern, RuleName: xm.RuleName, re: re})
	}

	return doc, nil
}

// compileRule builds a zero-width pattern that matches exactly at the
// positions where before ends and after begins. Both parts are lookarounds,
// so every candidate position is tested, including several ends reachable
// from the same start.
func compileRule(before, after string) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile("(?<=(?:"+before+"))(?=(?:"+after+"))", regexp2.None)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = MatchTimeout
	return re, nil
}

// Load parses the SRX file at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, merrors.New(merrors.ErrCodeFileNotFound, "cannot read SRX file", err).
			WithDetail("path", path)
	}
	doc, err := Parse(bytes.NewReader(data))
	if err != nil {
		if me, ok := err.(*merrors.MetaError); ok {
			return nil, me.WithDetail("path", path)
		}
		return nil, err
	}
	return doc, nil
}

var defaultDocument = sync.OnceValues(func() (*Document, error) {
	return Parse(bytes.NewReader(configs.DefaultSRX))
})

// Default returns the built-in rules. Language code "EN_one" gives English
// sentence rules plus a break at every line break.
func Default() (*Document, error) {
	return defaultDocument()
}

// Segmenter returns a segmenter for languageCode.
func (d *Document) Segmenter(languageCode string) (*Segmenter, error) {
	var rules []*Rule
	matched := 0
	for _, m := range d.Maps {
		ok, err := m.re.MatchString(languageCode)
		if err != nil {
			return nil, invalid("language pattern match failed", err)
		}
		if !ok {
			continue
		}
		matched++
		rules = append(rules, d.Rules[m.RuleName].Rules...)
		if !d.Cascade {
			break
		}
	}
	if matched == 0 {
		return nil, invalid(fmt.Sprintf("no language map matches %q", languageCode), nil).
			WithSuggestion("Check --language against the languagemap patterns of the SRX file")
	}
	return &Segmenter{language: languageCode, rules: rules}, nil
}
