// Package ngram builds the bigram presence maps used for partial-text search.
package ngram

import (
	"time"

	"github.com/Paintersrp/lifelog/internal/grapheme"
	"github.com/Paintersrp/lifelog/internal/textnorm"
)

// Collection is the document collection that stores index entries.
const Collection = "ngram_index"

// Map is a set of 1 or 2 grapheme keys. Every present key maps to true.
type Map map[string]bool

// Keys returns the map keys in no particular order.
func (m Map) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// Equal reports set equality.
func (m Map) Equal(other Map) bool {
	if len(m) != len(other) {
		return false
	}
	for k := range m {
		if !other[k] {
			return false
		}
	}
	return true
}

// Analysis is the result of AnalyzeText.
type Analysis struct {
	NormalizedText string
	Map            Map
}

// CalcMap normalizes text, splits it into graphemes and returns its n-gram
// set. Pictographs are indexed alone; plain graphemes only ever appear as the
// first half of a bigram with the following plain grapheme, so a plain
// grapheme with no plain follower is not indexed at all.
func CalcMap(text string) Map {
	return calc(grapheme.Split(textnorm.Normalize(text)))
}

// AnalyzeText returns the normalized form of text alongside its n-gram set.
func AnalyzeText(text string) Analysis {
	normalized := textnorm.Normalize(text)
	return Analysis{
		NormalizedText: normalized,
		Map:            calc(grapheme.Split(normalized)),
	}
}

func calc(chars []string) Map {
	out := make(Map)
	if len(chars) < 2 {
		return out
	}

	classes := make([]Class, len(chars))
	for i, c := range chars {
		classes[i] = Classify(c)
	}

	for i, c := range chars {
		switch classes[i] {
		case NonPrintable:
			continue
		case Pictographic:
			out[c] = true
			continue
		}
		if i+1 >= len(chars) || classes[i+1] != Plain {
			continue
		}
		out[c+chars[i+1]] = true
	}
	return out
}

// Entry is the persisted search record for one node's text. It is derived
// data and is always rebuilt from scratch when the text changes.
type Entry struct {
	Collection     string    `json:"collection"`
	NodeID         string    `json:"nodeId"`
	Text           string    `json:"text"`
	NormalizedText string    `json:"normalizedText"`
	NgramMap       Map       `json:"ngramMap"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// NewEntry analyzes text and wraps the result for the given node.
func NewEntry(collection, nodeID, text string, updatedAt time.Time) Entry {
	a := AnalyzeText(text)
	return Entry{
		Collection:     collection,
		NodeID:         nodeID,
		Text:           text,
		NormalizedText: a.NormalizedText,
		NgramMap:       a.Map,
		UpdatedAt:      updatedAt,
	}
}

// EntryID is the document id of the index entry for a node.
func EntryID(collection, nodeID string) string {
	return collection + "/" + nodeID
}
