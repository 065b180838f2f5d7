package query

import (
	"slices"
	"sort"
	"strings"
	"unicode"
)

// FieldVocabulary is the set of values recognised for one document field.
// Values are matched in order; the first hit wins.
type FieldVocabulary struct {
	Field  string
	Values []string
}

// DefaultVocabulary holds the filterable fields per activity type.
var DefaultVocabulary = map[CollectionType][]FieldVocabulary{
	TypeMusic: {
		{Field: "artist", Values: []string{"Taylor Swift", "The Beatles", "Beyoncé", "Ed Sheeran", "Drake"}},
		{Field: "genre", Values: []string{"pop", "rock", "hip hop", "jazz", "classical"}},
	},
	TypeLocation: {
		{Field: "location_name", Values: []string{"Home", "Office", "Coffee Shop", "Library", "Airport"}},
		{Field: "location_type", Values: []string{"work", "home", "leisure", "travel"}},
	},
	TypeTask: {
		{Field: "task_type", Values: []string{"report", "presentation", "email", "project", "document"}},
		{Field: "application", Values: []string{"Word", "Excel", "PowerPoint", "Outlook", "Teams"}},
	},
	TypeCollaboration: {
		{Field: "event_type", Values: []string{"meeting", "call", "chat", "file share", "email", "code review"}},
		{Field: "platform", Values: []string{"Microsoft Teams", "Zoom", "Slack", "Discord", "Outlook", "Google Meet"}},
	},
	TypeStorage: {
		{Field: "file_type", Values: []string{"Document", "Image", "Video", "Audio", "Archive", "Code"}},
		{Field: "operation", Values: []string{"create", "read", "update", "delete", "move", "copy", "rename"}},
	},
	TypeMedia: {
		{Field: "media_type", Values: []string{"video", "audio", "stream", "image", "game"}},
		{Field: "platform", Values: []string{"YouTube", "Netflix", "Spotify", "Twitch", "Disney+", "Hulu", "Prime Video"}},
	},
}

// DefaultIndicators are the words that signal a query refers to another
// activity type.
var DefaultIndicators = map[CollectionType][]string{
	TypeCollaboration: {"meeting", "collaboration"},
	TypeLocation:      {"location", "place", "at"},
	TypeTask:          {"task", "project", "during"},
	TypeMusic:         {"music", "song", "listen"},
	TypeStorage:       {"file", "document"},
	TypeMedia:         {"video", "watch"},
}

// Filter is one field constraint derived from query text.
type Filter struct {
	Field string
	Value string
}

// Terms is what could be extracted from a query for one collection type.
type Terms struct {
	Type    CollectionType
	Filters []Filter
	// References are other activity types the query mentions, in KnownTypes order.
	References []CollectionType
}

// HasCrossReference reports whether the query mentions another activity type.
func (t Terms) HasCrossReference() bool {
	return len(t.References) > 0
}

// Mentions reports whether the query mentions ct.
func (t Terms) Mentions(ct CollectionType) bool {
	for _, r := range t.References {
		if r == ct {
			return true
		}
	}
	return false
}

// Extractor matches query text against vocabularies and indicator words.
type Extractor struct {
	vocabulary map[CollectionType][]FieldVocabulary
	indicators map[CollectionType][]string
}

// NewExtractor creates an extractor. Nil maps fall back to the defaults.
func NewExtractor(vocabulary map[CollectionType][]FieldVocabulary, indicators map[CollectionType][]string) *Extractor {
	if vocabulary == nil {
		vocabulary = DefaultVocabulary
	}
	if indicators == nil {
		indicators = DefaultIndicators
	}
	return &Extractor{vocabulary: vocabulary, indicators: indicators}
}

// Extract derives filters for collection type ct and the cross-collection
// references present in text. Matching is case-insensitive on whole words,
// so "at" does not fire inside "what".
func (e *Extractor) Extract(text string, ct CollectionType) Terms {
	normalized := normalize(text)
	terms := Terms{Type: ct}

	for _, fv := range e.vocabulary[ct] {
		for _, value := range fv.Values {
			if containsPhrase(normalized, value) {
				terms.Filters = append(terms.Filters, Filter{Field: fv.Field, Value: value})
				break
			}
		}
	}

	for _, other := range KnownTypes {
		if other == ct {
			continue
		}
		for _, word := range e.indicators[other] {
			if containsPhrase(normalized, word) {
				terms.References = append(terms.References, other)
				break
			}
		}
	}

	return terms
}

// Extend returns an extractor over the defaults plus extra field values and
// indicator words. Extra values for a default field are tried after the
// default values; new fields follow the default ones in name order.
func Extend(fields map[CollectionType]map[string][]string, indicators map[CollectionType][]string) *Extractor {
	vocabulary := make(map[CollectionType][]FieldVocabulary, len(DefaultVocabulary))
	for ct, fvs := range DefaultVocabulary {
		for _, fv := range fvs {
			vocabulary[ct] = append(vocabulary[ct], FieldVocabulary{Field: fv.Field, Values: slices.Clone(fv.Values)})
		}
	}
	for ct, extra := range fields {
		names := make([]string, 0, len(extra))
		for name := range extra {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			i := slices.IndexFunc(vocabulary[ct], func(fv FieldVocabulary) bool { return fv.Field == name })
			if i < 0 {
				vocabulary[ct] = append(vocabulary[ct], FieldVocabulary{Field: name})
				i = len(vocabulary[ct]) - 1
			}
			vocabulary[ct][i].Values = append(vocabulary[ct][i].Values, extra[name]...)
		}
	}

	words := make(map[CollectionType][]string, len(DefaultIndicators))
	for ct, w := range DefaultIndicators {
		words[ct] = slices.Clone(w)
	}
	for ct, w := range indicators {
		words[ct] = append(words[ct], w...)
	}

	return NewExtractor(vocabulary, words)
}

var defaultExtractor = NewExtractor(nil, nil)

// ExtractTerms runs the default extractor.
func ExtractTerms(text string, ct CollectionType) Terms {
	return defaultExtractor.Extract(text, ct)
}

// normalize lowercases s, turns every non letter/digit rune into a single
// space and pads both ends so phrases can be matched as " phrase ".
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte(' ')
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '+' {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	if !lastSpace {
		b.WriteByte(' ')
	}
	return b.String()
}

func containsPhrase(normalized, phrase string) bool {
	p := normalize(phrase)
	if strings.TrimSpace(p) == "" {
		return false
	}
	return strings.Contains(normalized, p)
}

// ContainsAnyWord reports whether text contains any of words as a whole word
// or phrase, ignoring case.
func ContainsAnyWord(text string, words []string) bool {
	normalized := normalize(text)
	for _, w := range words {
		if containsPhrase(normalized, w) {
			return true
		}
	}
	return false
}

// HasField reports whether field is part of ct's vocabulary.
func (e *Extractor) HasField(ct CollectionType, field string) bool {
	for _, fv := range e.vocabulary[ct] {
		if fv.Field == field {
			return true
		}
	}
	return false
}
