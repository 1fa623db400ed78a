package backend

import (
	"bytes"
	"unicode"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// aliasTokenizerName splits surface forms on everything that is not a
	// letter, digit, ampersand, or apostrophe.
	aliasTokenizerName = "alias_tokenizer"

	// wholeTokenizerName emits the entire input as a single token, for
	// exact normalized-keyword matching.
	wholeTokenizerName = "alias_whole"

	// foldFilterName strips combining marks so accented and plain forms
	// match.
	foldFilterName = "alias_fold"

	// edgeNgramFilterName expands tokens into prefix n-grams for
	// substring-style matching.
	edgeNgramFilterName = "alias_edge_ngram"

	// AnalyzerAliasText is the full-text analyzer for alias fields.
	AnalyzerAliasText = "alias_text"

	// AnalyzerAliasExact is the whole-string keyword analyzer.
	AnalyzerAliasExact = "alias_exact"

	// AnalyzerAliasNgram is the prefix n-gram analyzer.
	AnalyzerAliasNgram = "alias_ngram"
)

// Edge n-gram bounds. Three characters is enough to keep short airport-code
// style aliases reachable without flooding the index with bigrams.
const (
	edgeNgramMin = 3
	edgeNgramMax = 20
)

func init() {
	_ = registry.RegisterTokenizer(aliasTokenizerName, aliasTokenizerConstructor)
	_ = registry.RegisterTokenizer(wholeTokenizerName, wholeTokenizerConstructor)
	_ = registry.RegisterTokenFilter(foldFilterName, foldFilterConstructor)
	_ = registry.RegisterTokenFilter(edgeNgramFilterName, edgeNgramFilterConstructor)
}

// createIndexMapping builds the fixed analysis configuration every synonym
// index is created with: cname and whitelist each indexed as full text,
// exact normalized keyword, and edge-n-gram views.
func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()

	analyzers := map[string]map[string]interface{}{
		AnalyzerAliasText: {
			"type":          custom.Name,
			"tokenizer":     aliasTokenizerName,
			"token_filters": []string{lowercase.Name, foldFilterName},
		},
		AnalyzerAliasExact: {
			"type":          custom.Name,
			"tokenizer":     wholeTokenizerName,
			"token_filters": []string{lowercase.Name, foldFilterName},
		},
		AnalyzerAliasNgram: {
			"type":          custom.Name,
			"tokenizer":     aliasTokenizerName,
			"token_filters": []string{lowercase.Name, foldFilterName, edgeNgramFilterName},
		},
	}
	for name, cfg := range analyzers {
		if err := im.AddCustomAnalyzer(name, cfg); err != nil {
			return nil, err
		}
	}

	doc := bleve.NewDocumentMapping()
	addField := func(field, analyzer string, store bool) {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = analyzer
		fm.Store = store
		fm.IncludeInAll = false
		doc.AddFieldMappingsAt(field, fm)
	}

	addField(fieldCname, AnalyzerAliasText, true)
	addField(fieldCnameExact, AnalyzerAliasExact, false)
	addField(fieldCnameNgram, AnalyzerAliasNgram, false)
	addField(fieldWhitelist, AnalyzerAliasText, true)
	addField(fieldWhitelistExact, AnalyzerAliasExact, false)
	addField(fieldWhitelistNgram, AnalyzerAliasNgram, false)
	addField(fieldRecordID, AnalyzerAliasExact, true)

	im.DefaultMapping = doc
	im.DefaultAnalyzer = AnalyzerAliasText
	return im, nil
}

// aliasTokenizerConstructor creates the alias tokenizer for Bleve.
func aliasTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &aliasTokenizer{}, nil
}

// aliasTokenizer implements analysis.Tokenizer. Tokens are maximal runs of
// letters, digits, '&', or '\''.
type aliasTokenizer struct{}

func isAliasRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '&' || r == '\''
}

// Tokenize implements analysis.Tokenizer.
func (t *aliasTokenizer) Tokenize(input []byte) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, 4)
	pos := 1
	start := -1

	flush := func(end int) {
		if start < 0 {
			return
		}
		result = append(result, &analysis.Token{
			Term:     input[start:end],
			Start:    start,
			End:      end,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
		start = -1
	}

	for i := 0; i < len(input); {
		r, size := utf8.DecodeRune(input[i:])
		if isAliasRune(r) {
			if start < 0 {
				start = i
			}
		} else {
			flush(i)
		}
		i += size
	}
	flush(len(input))
	return result
}

// wholeTokenizerConstructor creates the whole-string tokenizer for Bleve.
func wholeTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &wholeTokenizer{}, nil
}

// wholeTokenizer implements analysis.Tokenizer, emitting the trimmed input
// as one token.
type wholeTokenizer struct{}

// Tokenize implements analysis.Tokenizer.
func (t *wholeTokenizer) Tokenize(input []byte) analysis.TokenStream {
	trimmed := bytes.TrimSpace(input)
	if len(trimmed) == 0 {
		return analysis.TokenStream{}
	}
	return analysis.TokenStream{
		&analysis.Token{
			Term:     trimmed,
			Start:    0,
			End:      len(input),
			Position: 1,
			Type:     analysis.AlphaNumeric,
		},
	}
}

// foldFilterConstructor creates the diacritic folding filter for Bleve.
func foldFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &foldFilter{}, nil
}

// foldFilter implements analysis.TokenFilter, removing combining marks from
// each term.
type foldFilter struct{}

// Filter implements analysis.TokenFilter.
func (f *foldFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	for _, token := range input {
		folded, _, err := transform.Bytes(t, token.Term)
		if err != nil {
			continue
		}
		token.Term = folded
	}
	return input
}

// edgeNgramFilterConstructor creates the edge n-gram filter for Bleve.
func edgeNgramFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &edgeNgramFilter{minGram: edgeNgramMin, maxGram: edgeNgramMax}, nil
}

// edgeNgramFilter implements analysis.TokenFilter, expanding each token into
// its prefixes of length minGram..maxGram. Grams keep the source token's
// position so phrase-adjacent scoring still works.
type edgeNgramFilter struct {
	minGram int
	maxGram int
}

// Filter implements analysis.TokenFilter.
func (f *edgeNgramFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		runeTerm := []rune(string(token.Term))
		if len(runeTerm) < f.minGram {
			// Too short to gram; keep the original token so short aliases
			// remain searchable.
			result = append(result, token)
			continue
		}
		max := f.maxGram
		if len(runeTerm) < max {
			max = len(runeTerm)
		}
		for n := f.minGram; n <= max; n++ {
			result = append(result, &analysis.Token{
				Term:     []byte(string(runeTerm[:n])),
				Start:    token.Start,
				End:      token.End,
				Position: token.Position,
				Type:     token.Type,
			})
		}
	}
	return result
}
