// Package query derives search terms from natural-language query text and
// renders them into parameterized datastore statements.
//
// Statement text generation lives here; execution belongs to the datastore.
// Every value reaches SQLite as a named bind variable, including JSON paths.
package query

import "strings"

// CollectionType is the activity type of a collection, derived from its name.
type CollectionType string

const (
	TypeTask          CollectionType = "task"
	TypeCollaboration CollectionType = "collaboration"
	TypeLocation      CollectionType = "location"
	TypeMusic         CollectionType = "music"
	TypeStorage       CollectionType = "storage"
	TypeMedia         CollectionType = "media"
	TypeUnknown       CollectionType = "unknown"
)

// KnownTypes lists the recognised activity types in a stable order.
var KnownTypes = []CollectionType{
	TypeTask,
	TypeCollaboration,
	TypeLocation,
	TypeMusic,
	TypeStorage,
	TypeMedia,
}

// TypeOf derives the activity type from a collection name such as
// "AblationMusicActivity". Names without a known "<Type>Activity" part are
// TypeUnknown.
func TypeOf(collection string) CollectionType {
	lower := strings.ToLower(collection)
	for _, t := range KnownTypes {
		if strings.Contains(lower, string(t)+"activity") {
			return t
		}
	}
	return TypeUnknown
}

// ParseType converts a configured type name, returning TypeUnknown for
// anything unrecognised.
func ParseType(s string) CollectionType {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, t := range KnownTypes {
		if string(t) == s {
			return t
		}
	}
	return TypeUnknown
}
