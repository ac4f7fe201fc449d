package store

import (
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/kljensen/snowball/english"
)

const (
	// SnowballFilterName is the English snowball stemming token filter.
	SnowballFilterName = "metaindexer_snowball_en"

	// ContentAnalyzerName analyzes the content field.
	ContentAnalyzerName = "metaindexer_content"
)

func init() {
	_ = registry.RegisterTokenFilter(SnowballFilterName, snowballFilterConstructor)
}

func addContentAnalyzer(m *mapping.IndexMappingImpl) error {
	return m.AddCustomAnalyzer(ContentAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			lowercase.Name,
			en.StopName,
			SnowballFilterName,
		},
	})
}

func snowballFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return snowballFilter{}, nil
}

// snowballFilter stems lowercase English terms in place.
type snowballFilter struct{}

func (snowballFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	for _, token := range input {
		if s := stem(string(token.Term)); s != "" {
			token.Term = []byte(s)
		}
	}
	return input
}

// stem returns the stem the content analyzer produces for a lowercase word.
func stem(word string) string {
	return english.Stem(word, false)
}
