package am

import "github.com/teranos/ablation/query"

// Extractor builds the term extractor for the configured vocabulary. Unknown
// type names are rejected by Validate and skipped here.
func (t TermsConfig) Extractor() *query.Extractor {
	fields := make(map[query.CollectionType]map[string][]string, len(t.Vocabulary))
	for name, f := range t.Vocabulary {
		if ct := query.ParseType(name); ct != query.TypeUnknown {
			fields[ct] = f
		}
	}
	indicators := make(map[query.CollectionType][]string, len(t.Indicators))
	for name, words := range t.Indicators {
		if ct := query.ParseType(name); ct != query.TypeUnknown {
			indicators[ct] = append(indicators[ct], words...)
		}
	}
	return query.Extend(fields, indicators)
}
