//go:build ignore

// Package main generates synthetic mapping files for benchmarking fits over
// large knowledge bases.
// Usage: go run scripts/generate-mappings.go -records 10000 -output testdata/bench
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
)

var (
	numRecords = flag.Int("records", 10000, "Records per entity type")
	numTypes   = flag.Int("types", 3, "Number of entity types")
	outputDir  = flag.String("output", "testdata/bench", "Output mapping directory")
	seed       = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var syllables = []string{
	"al", "bar", "cam", "del", "est", "fen", "gor", "hal", "ith", "jun",
	"kel", "lor", "mar", "nor", "ost", "pel", "quin", "ros", "sel", "tor",
}

func randomName(rng *rand.Rand) string {
	n := 2 + rng.Intn(3)
	name := ""
	for i := 0; i < n; i++ {
		name += syllables[rng.Intn(len(syllables))]
	}
	return name
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	for t := 0; t < *numTypes; t++ {
		entityType := fmt.Sprintf("type%02d", t)
		dir := filepath.Join(*outputDir, entityType)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "mkdir %s: %v\n", dir, err)
			os.Exit(1)
		}

		records := make([]map[string]any, 0, *numRecords)
		for i := 0; i < *numRecords; i++ {
			cname := randomName(rng)
			whitelist := make([]string, rng.Intn(4))
			for j := range whitelist {
				whitelist[j] = randomName(rng)
			}
			records = append(records, map[string]any{
				"id":        fmt.Sprintf("%s-%06d", entityType, i),
				"cname":     cname,
				"whitelist": whitelist,
			})
		}

		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "marshal: %v\n", err)
			os.Exit(1)
		}
		path := filepath.Join(dir, "mapping.json")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write %s: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s (%d records)\n", path, len(records))
	}
}
