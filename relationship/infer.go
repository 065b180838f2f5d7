package relationship

import (
	"github.com/teranos/ablation/query"
)

// relatedWords lists, per primary type, the words that suggest a query also
// concerns a related type.
var relatedWords = map[query.CollectionType]map[query.CollectionType][]string{
	query.TypeLocation: {
		query.TypeMusic:         {"music", "song", "artist", "listen"},
		query.TypeTask:          {"task", "project", "work"},
		query.TypeCollaboration: {"meeting", "collaboration", "team"},
	},
	query.TypeMusic: {
		query.TypeLocation: {"location", "at", "place", "where"},
		query.TypeTask:     {"task", "project", "work", "during"},
	},
	query.TypeTask: {
		query.TypeMusic:         {"music", "song", "listen", "while"},
		query.TypeLocation:      {"location", "at", "place", "where"},
		query.TypeCollaboration: {"meeting", "collaboration", "team", "discussed"},
	},
	query.TypeCollaboration: {
		query.TypeLocation: {"location", "at", "place", "where", "room"},
		query.TypeTask:     {"task", "project", "work", "assigned", "created"},
		query.TypeStorage:  {"file", "document", "shared", "attachment"},
	},
	query.TypeStorage: {
		query.TypeTask:          {"task", "project", "work"},
		query.TypeCollaboration: {"meeting", "shared", "collaboration", "team"},
		query.TypeLocation:      {"location", "at", "place", "where"},
	},
	query.TypeMedia: {
		query.TypeLocation: {"location", "at", "place", "where"},
		query.TypeTask:     {"task", "project", "work", "during"},
		query.TypeMusic:    {"music", "soundtrack", "song", "audio"},
	},
}

// InferRelated picks the collections from available that text suggests are
// related to primary. Results keep the order of available.
func InferRelated(primary, text string, available []string) []string {
	words := relatedWords[query.TypeOf(primary)]
	if len(words) == 0 {
		return nil
	}

	mentioned := make(map[query.CollectionType]bool, len(words))
	for t, w := range words {
		mentioned[t] = query.ContainsAnyWord(text, w)
	}

	var related []string
	for _, c := range available {
		if c == primary {
			continue
		}
		if mentioned[query.TypeOf(c)] {
			related = append(related, c)
		}
	}
	return related
}
