package srx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	merrors "github.com/marcinmilkowski/metaindexer/internal/errors"
)

func english(t *testing.T) *Segmenter {
	t.Helper()
	doc, err := Default()
	require.NoError(t, err)
	seg, err := doc.Segmenter("EN_one")
	require.NoError(t, err)
	return seg
}

func TestSplit_Sentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "two sentences keep trailing space",
			text: "This is the first sentence. This is the second sentence.",
			want: []string{"This is the first sentence. ", "This is the second sentence."},
		},
		{
			name: "single sentence",
			text: "This is the only sentence.",
			want: []string{"This is the only sentence."},
		},
		{
			name: "final line break stays in the segment",
			text: "This is the only sentence.\n",
			want: []string{"This is the only sentence.\n"},
		},
		{
			name: "line break splits",
			text: "Heading\nBody text here.",
			want: []string{"Heading\n", "Body text here."},
		},
		{
			name: "abbreviation does not split",
			text: "See Fig. 2 for details. Dr. Smith agreed.",
			want: []string{"See Fig. 2 for details. ", "Dr. Smith agreed."},
		},
		{
			name: "lowercase continuation does not split",
			text: "The value was approx. three. and more.",
			want: []string{"The value was approx. three. and more."},
		},
		{
			name: "question and exclamation",
			text: "Why? Because! Fine.",
			want: []string{"Why? ", "Because! ", "Fine."},
		},
		{
			name: "initials",
			text: "We thank J. R. Tolkien. Next one.",
			want: []string{"We thank J. R. Tolkien. ", "Next one."},
		},
		{
			name: "closing quote",
			text: `He said "stop." Then left.`,
			want: []string{`He said "stop." `, "Then left."},
		},
	}

	seg := english(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := seg.Split(tt.text)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.text, strings.Join(got, ""))
		})
	}
}

func TestSplit_Empty(t *testing.T) {
	assert.Empty(t, english(t).Split(""))
}

func TestSplit_NonASCII(t *testing.T) {
	// Rune offsets must not be confused with byte offsets.
	got := english(t).Split("Zażółć gęślą jaźń. Źdźbło rośnie.")
	assert.Equal(t, []string{"Zażółć gęślą jaźń. ", "Źdźbło rośnie."}, got)
}

const twoRules = `<?xml version="1.0" encoding="UTF-8"?>
<srx xmlns="http://www.lisa.org/srx20" version="2.0">
  <header cascade="%s"/>
  <body>
    <languagerules>
      <languagerule languagerulename="Semicolon">
        <rule><beforebreak>;</beforebreak><afterbreak></afterbreak></rule>
      </languagerule>
      <languagerule languagerulename="Stop">
        <rule break="no"><beforebreak>\bvs\.\s</beforebreak><afterbreak></afterbreak></rule>
        <rule><beforebreak>\.\s</beforebreak><afterbreak></afterbreak></rule>
      </languagerule>
    </languagerules>
    <maprules>
      <languagemap languagepattern="xx.*" languagerulename="Semicolon"/>
      <languagemap languagepattern=".*" languagerulename="Stop"/>
    </maprules>
  </body>
</srx>`

func parse(t *testing.T, cascade string) *Document {
	t.Helper()
	doc, err := Parse(strings.NewReader(strings.Replace(twoRules, "%s", cascade, 1)))
	require.NoError(t, err)
	return doc
}

func TestSegmenter_Cascade(t *testing.T) {
	text := "a;b. c vs. d"

	// Given: cascading rules
	seg, err := parse(t, "yes").Segmenter("xx_YY")
	require.NoError(t, err)

	// Then: rules of both matching maps apply, in map order
	assert.Equal(t, 3, seg.Rules())
	assert.Equal(t, []string{"a;", "b. ", "c vs. d"}, seg.Split(text))

	// Given: no cascading
	seg, err = parse(t, "no").Segmenter("xx_YY")
	require.NoError(t, err)

	// Then: only the first matching map applies
	assert.Equal(t, 1, seg.Rules())
	assert.Equal(t, []string{"a;", "b. c vs. d"}, seg.Split(text))
}

func TestSegmenter_PatternMustMatchWholeCode(t *testing.T) {
	doc := parse(t, "no")

	seg, err := doc.Segmenter("EN_xx")
	require.NoError(t, err)
	assert.Equal(t, "EN_xx", seg.Language())
	assert.Equal(t, []string{"a;b. ", "c"}, seg.Split("a;b. c"))
}

func TestSegmenter_EveryPositionIsTried(t *testing.T) {
	// Given: a rule whose before pattern can end at several places
	doc, err := Parse(strings.NewReader(`<srx version="2.0"><header cascade="no"/><body>
<languagerules><languagerule languagerulename="R"><rule><beforebreak>a|ab</beforebreak><afterbreak>b|c</afterbreak></rule></languagerule></languagerules>
<maprules><languagemap languagepattern=".*" languagerulename="R"/></maprules></body></srx>`))
	require.NoError(t, err)
	seg, err := doc.Segmenter("EN")
	require.NoError(t, err)

	// When: splitting text where one break needs the shorter before match
	// Then: both the break after "a" and the break after "ab" are found
	assert.Equal(t, []string{"a", "b", "c"}, seg.Split("abc"))
}

func TestSegmenter_AdjacentBreaks(t *testing.T) {
	// Given: a rule breaking after every semicolon
	doc, err := Parse(strings.NewReader(`<srx version="2.0"><header cascade="no"/><body>
<languagerules><languagerule languagerulename="R"><rule><beforebreak>;</beforebreak></rule></languagerule></languagerules>
<maprules><languagemap languagepattern=".*" languagerulename="R"/></maprules></body></srx>`))
	require.NoError(t, err)
	seg, err := doc.Segmenter("EN")
	require.NoError(t, err)

	// Then: consecutive separators each end a segment
	assert.Equal(t, []string{"a;", ";", "b"}, seg.Split("a;;b"))
}

func TestSegmenter_NoMatchingMap(t *testing.T) {
	doc, err := Parse(strings.NewReader(`<srx version="2.0"><header cascade="no"/><body>
<languagerules><languagerule languagerulename="R"><rule><beforebreak>\.</beforebreak></rule></languagerule></languagerules>
<maprules><languagemap languagepattern="EN" languagerulename="R"/></maprules></body></srx>`))
	require.NoError(t, err)

	_, err = doc.Segmenter("DE")
	assert.True(t, merrors.HasCode(err, merrors.ErrCodeSRXInvalid))
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not xml", "plain text"},
		{"wrong version", `<srx version="1.0"/>`},
		{"bad regex", `<srx version="2.0"><body><languagerules><languagerule languagerulename="R"><rule><beforebreak>(</beforebreak></rule></languagerule></languagerules></body></srx>`},
		{"unknown rule", `<srx version="2.0"><body><maprules><languagemap languagepattern=".*" languagerulename="Nope"/></maprules></body></srx>`},
		{"duplicate rule", `<srx version="2.0"><body><languagerules><languagerule languagerulename="R"/><languagerule languagerulename="R"/></languagerules></body></srx>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.data))
			assert.True(t, merrors.HasCode(err, merrors.ErrCodeSRXInvalid), "got %v", err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/rules.srx")
	assert.True(t, merrors.HasCode(err, merrors.ErrCodeFileNotFound))
}
