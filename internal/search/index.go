package search

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Paintersrp/lifelog/internal/ngram"
)

// Index holds n-gram postings for every indexed node.
type Index struct {
	entries map[string]ngram.Entry
	// postings maps an n-gram to the keys of the entries containing it.
	postings map[string]map[string]struct{}
}

// NewIndex constructs an empty index.
func NewIndex() *Index {
	return &Index{
		entries:  make(map[string]ngram.Entry),
		postings: make(map[string]map[string]struct{}),
	}
}

// Build replaces the index contents with entries.
func (idx *Index) Build(entries []ngram.Entry) {
	idx.entries = make(map[string]ngram.Entry, len(entries))
	idx.postings = make(map[string]map[string]struct{})
	for _, e := range entries {
		idx.add(e)
	}
}

// Update replaces the indexed representation of e's node.
func (idx *Index) Update(e ngram.Entry) {
	if idx == nil || e.NodeID == "" {
		return
	}
	idx.Remove(ngram.EntryID(e.Collection, e.NodeID))
	idx.add(e)
}

// Remove deletes the entry stored under key if present.
func (idx *Index) Remove(key string) {
	if idx == nil {
		return
	}
	old, ok := idx.entries[key]
	if !ok {
		return
	}
	delete(idx.entries, key)
	for gram := range old.NgramMap {
		keys := idx.postings[gram]
		delete(keys, key)
		if len(keys) == 0 {
			delete(idx.postings, gram)
		}
	}
}

// Len reports the number of indexed entries.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.entries)
}

func (idx *Index) add(e ngram.Entry) {
	key := ngram.EntryID(e.Collection, e.NodeID)
	idx.entries[key] = e
	for gram := range e.NgramMap {
		keys, ok := idx.postings[gram]
		if !ok {
			keys = make(map[string]struct{})
			idx.postings[gram] = keys
		}
		keys[key] = struct{}{}
	}
}

// Search returns entries whose n-gram maps contain every n-gram of the
// query term, newest first. Terms that produce no n-grams match nothing.
func (idx *Index) Search(q Query) []Result {
	if idx.Len() == 0 {
		return nil
	}
	grams := ngram.CalcMap(q.Term).Keys()
	if len(grams) == 0 {
		return nil
	}

	// Walk the rarest posting list and probe the rest.
	sort.Slice(grams, func(i, j int) bool {
		return len(idx.postings[grams[i]]) < len(idx.postings[grams[j]])
	})

	results := make([]Result, 0)
	for key := range idx.postings[grams[0]] {
		e := idx.entries[key]
		if q.Collection != "" && e.Collection != q.Collection {
			continue
		}
		if !q.Since.IsZero() && e.UpdatedAt.Before(q.Since) {
			continue
		}
		if !containsAll(e.NgramMap, grams[1:]) {
			continue
		}
		results = append(results, Result{
			Collection: e.Collection,
			NodeID:     e.NodeID,
			Text:       e.Text,
			Snippet:    snippet(e.Text, q.Term),
			UpdatedAt:  e.UpdatedAt,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		if a.Collection != b.Collection {
			return a.Collection < b.Collection
		}
		return a.NodeID < b.NodeID
	})
	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results
}

// Clone returns a deep copy that can be searched while the original keeps
// receiving updates.
func (idx *Index) Clone() *Index {
	if idx == nil {
		return nil
	}
	out := &Index{
		entries:  make(map[string]ngram.Entry, len(idx.entries)),
		postings: make(map[string]map[string]struct{}, len(idx.postings)),
	}
	for key, e := range idx.entries {
		out.entries[key] = e
	}
	for gram, keys := range idx.postings {
		copied := make(map[string]struct{}, len(keys))
		for k := range keys {
			copied[k] = struct{}{}
		}
		out.postings[gram] = copied
	}
	return out
}

func containsAll(m ngram.Map, grams []string) bool {
	for _, g := range grams {
		if !m[g] {
			return false
		}
	}
	return true
}

// snippet centres a short window of text on the first case-insensitive
// occurrence of term, or on the start of text when the term only matched
// after normalization.
func snippet(text, term string) string {
	term = strings.ToLower(strings.TrimSpace(term))
	index := 0
	termLen := utf8.RuneCountInString(term)
	if at := strings.Index(strings.ToLower(text), term); at >= 0 && term != "" {
		index = utf8.RuneCountInString(strings.ToLower(text)[:at])
	}
	return window(text, index, termLen)
}

func window(body string, index, termLen int) string {
	if termLen <= 0 {
		termLen = 1
	}

	runes := []rune(body)
	start := max(0, index)
	end := min(len(runes), index+termLen)

	const span = 40
	snippetStart := max(0, start-span)
	snippetEnd := min(len(runes), end+span)

	out := strings.TrimSpace(string(runes[snippetStart:snippetEnd]))
	if snippetStart > 0 {
		out = "…" + out
	}
	if snippetEnd < len(runes) {
		out = out + "…"
	}
	return out
}
