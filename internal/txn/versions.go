package txn

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Paintersrp/lifelog/internal/cache"
	"github.com/Paintersrp/lifelog/internal/docstore"
)

const (
	// VersionCollection stores one document per committed batch plus a
	// head document naming the newest token.
	VersionCollection = "_versions"
	headID            = "head"
	tokenWidth        = 13
	ownTokenCapacity  = 256
)

// Token is the version document written with every commit. Tokens from one
// origin sort lexically in commit order.
type Token struct {
	ID        string    `json:"id"`
	Prev      string    `json:"prev"`
	Origin    string    `json:"origin"`
	CreatedAt time.Time `json:"createdAt"`
}

type head struct {
	ID    string `json:"id"`
	Token string `json:"token"`
}

// Versions mints batch tokens and remembers the ones this process wrote so
// subscribers can tell their own echo from a remote change.
type Versions struct {
	origin string

	mu        sync.Mutex
	lastNanos int64
	last      string
	own       *cache.LRUCache[string, struct{}]
}

func newVersions(origin string) *Versions {
	return &Versions{origin: origin, own: cache.NewLRUCache[string, struct{}](ownTokenCapacity)}
}

// Origin identifies this process in tokens.
func (v *Versions) Origin() string { return v.origin }

// Last returns the most recent token committed by this process.
func (v *Versions) Last() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.last
}

// IsOwn reports whether token was committed by this process.
func (v *Versions) IsOwn(token string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.own.Contains(token)
}

func (v *Versions) mint(now time.Time, prev string) Token {
	v.mu.Lock()
	defer v.mu.Unlock()

	nanos := now.UnixNano()
	if nanos <= v.lastNanos {
		nanos = v.lastNanos + 1
	}
	v.lastNanos = nanos

	id := strconv.FormatInt(nanos, 36)
	if len(id) < tokenWidth {
		id = strings.Repeat("0", tokenWidth-len(id)) + id
	}
	return Token{ID: id + "-" + v.origin, Prev: prev, Origin: v.origin, CreatedAt: now}
}

func (v *Versions) committed(t Token) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.last = t.ID
	v.own.Put(t.ID, struct{}{})
}

// stage reads the current head and stages a new token linked to it.
func (v *Versions) stage(ctx context.Context, store docstore.Store, b docstore.Batch, now time.Time) (Token, error) {
	prev, err := Head(ctx, store)
	if err != nil {
		return Token{}, err
	}
	tok := v.mint(now, prev)

	doc, err := docstore.Encode(tok.ID, tok)
	if err != nil {
		return Token{}, err
	}
	b.Set(VersionCollection, doc)

	hdoc, err := docstore.Encode(headID, head{ID: headID, Token: tok.ID})
	if err != nil {
		return Token{}, err
	}
	b.Set(VersionCollection, hdoc)
	return tok, nil
}

// Head returns the newest committed token in store, or "" when none exists.
func Head(ctx context.Context, store docstore.Store) (string, error) {
	doc, ok, err := store.Get(ctx, VersionCollection, headID)
	if err != nil {
		return "", fmt.Errorf("txn: reading version head: %w", err)
	}
	if !ok {
		return "", nil
	}
	var h head
	if err := doc.Decode(&h); err != nil {
		return "", err
	}
	return h.Token, nil
}
