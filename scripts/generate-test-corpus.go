//go:build ignore

// Generates a synthetic support knowledge base for benchmarking the
// indexing and search pipeline.
// Usage: go run scripts/generate-test-corpus.go -docs 1000 -output testdata/bench
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numDocs   = flag.Int("docs", 1000, "Number of documents to generate")
	outputDir = flag.String("output", "testdata/bench", "Output directory")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var categories = []string{
	"billing", "shipping", "account", "returns", "product", "privacy",
}

var topics = []string{
	"refund processing", "invoice downloads", "password resets",
	"two-factor authentication", "order tracking", "delivery delays",
	"subscription upgrades", "payment method changes", "return labels",
	"warranty claims", "data export requests", "account deletion",
	"promo code redemption", "gift card balances", "address changes",
}

var sentences = []string{
	"Open a support ticket with your order number so the team can locate the transaction.",
	"Processing normally completes within five business days of approval.",
	"This option is available from the account portal under settings.",
	"Premium subscribers can reach the priority queue around the clock.",
	"Make sure the email address on file is current before starting.",
	"The confirmation email includes a reference number for follow-up.",
	"International requests can take up to ten additional business days.",
	"Charges reversed this way appear on the next billing statement.",
	"A government-issued ID may be requested for identity verification.",
	"Partial completions are handled case by case by the support team.",
}

const docTemplate = `# %s

## Overview

This article explains how %s works and what customers should expect
at each step.

## Steps

%s

## Troubleshooting

%s

## Related topics

%s
`

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	for i := 0; i < *numDocs; i++ {
		category := categories[rng.Intn(len(categories))]
		topic := topics[rng.Intn(len(topics))]

		dir := filepath.Join(*outputDir, category)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "mkdir %s: %v\n", dir, err)
			os.Exit(1)
		}

		name := fmt.Sprintf("%s-%04d.md", strings.ReplaceAll(topic, " ", "-"), i)
		body := fmt.Sprintf(docTemplate,
			titleCase(topic),
			topic,
			paragraph(rng, 4),
			paragraph(rng, 3),
			relatedList(rng, 3),
		)

		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write %s: %v\n", name, err)
			os.Exit(1)
		}
	}

	fmt.Printf("Generated %d documents under %s\n", *numDocs, *outputDir)
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func paragraph(rng *rand.Rand, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = sentences[rng.Intn(len(sentences))]
	}
	return strings.Join(parts, " ")
}

func relatedList(rng *rand.Rand, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "- %s\n", topics[rng.Intn(len(topics))])
	}
	return b.String()
}
