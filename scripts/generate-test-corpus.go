//go:build ignore

// Package main generates synthetic metadata records and review articles.
// Usage: go run scripts/generate-test-corpus.go -records 1000 -output testdata/bench
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numRecords = flag.Int("records", 1000, "Number of JSON records to generate")
	reviewRate = flag.Float64("reviews", 0.3, "Fraction of records that also get a review article")
	outputDir  = flag.String("output", "testdata/bench", "Output directory")
	seed       = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var subjects = []string{
	"Cell Biology", "Neuroscience", "Ecology", "Genetics and Genomics",
	"Structural Biology", "Immunology and Inflammation", "Evolutionary Biology",
}

var words = []string{
	"protein", "signal", "membrane", "neuron", "pathway", "mutation", "receptor",
	"population", "cortex", "expression", "binding", "transport", "division",
	"mechanism", "network", "response", "structure", "function", "model", "data",
}

var reviewSentences = []string{
	"Our understanding of this mechanism remains limited.",
	"The authors should clarify how the model was fitted.",
	"This work advances the understanding of synaptic transmission.",
	"The statistics in the second figure are not convincing.",
	"We thank the reviewers for their careful reading.",
	"A better understanding of the controls would help readers.",
}

type record struct {
	DOI      string   `json:"doi"`
	Title    string   `json:"title"`
	Abstract string   `json:"abstract"`
	Subjects []string `json:"subjects"`
	Year     int      `json:"year"`
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	recordsDir := filepath.Join(*outputDir, "records")
	articlesDir := filepath.Join(*outputDir, "articles")
	for _, dir := range []string{recordsDir, articlesDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating %s: %v\n", dir, err)
			os.Exit(1)
		}
	}

	var csv strings.Builder
	csv.WriteString("DOI,Title\n")
	reviews := 0

	for i := 1; i <= *numRecords; i++ {
		id := fmt.Sprintf("%05d", i)
		rec := record{
			DOI:      "10.7554/eLife." + id,
			Title:    phrase(rng, 4+rng.Intn(6)),
			Abstract: phrase(rng, 40+rng.Intn(80)),
			Subjects: []string{subjects[rng.Intn(len(subjects))]},
			Year:     2012 + rng.Intn(13),
		}
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding record %s: %v\n", id, err)
			os.Exit(1)
		}
		path := filepath.Join(recordsDir, fmt.Sprint(rec.Year), id+".json")
		if err := write(path, data); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Fprintf(&csv, "%s,%q\n", rec.DOI, rec.Title)

		if rng.Float64() < *reviewRate {
			path := filepath.Join(articlesDir, fmt.Sprintf("eLife.%s.sa1.xml", id))
			if err := write(path, []byte(article(rng, rec))); err != nil {
				fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", path, err)
				os.Exit(1)
			}
			reviews++
		}
	}

	if err := write(filepath.Join(*outputDir, "export.csv"), []byte(csv.String())); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing export: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Generated %d records and %d review articles in %s\n", *numRecords, reviews, *outputDir)
}

func phrase(rng *rand.Rand, n int) string {
	out := make([]string, n)
	for i := range out {
		out[i] = words[rng.Intn(len(words))]
	}
	return strings.Join(out, " ")
}

func article(rng *rand.Rand, rec record) string {
	var body strings.Builder
	for i := 0; i < 3+rng.Intn(8); i++ {
		body.WriteString("<p>")
		body.WriteString(reviewSentences[rng.Intn(len(reviewSentences))])
		body.WriteString(" ")
		body.WriteString(reviewSentences[rng.Intn(len(reviewSentences))])
		body.WriteString("</p>\n")
	}
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<sub-article article-type="referee-report">
<front-stub><article-id pub-id-type="doi">%s.sa1</article-id><title-group><article-title>Decision letter</article-title></title-group></front-stub>
<body>
%s</body>
</sub-article>
`, rec.DOI, body.String())
}

func write(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
