package evloop

import "sync"

// nameTable interns computation names to stable integer tokens and back.
//
// The source this is distilled from leaks the computation's name and
// casts its address to build a token, trading a permanent allocation per
// computation for pointer stability. Per spec §9 ("Names with static
// lifetime"), the requirement is only that a name be convertible to a
// stable id for the lifetime of any outstanding registration; a
// per-runtime interning table satisfies that without leaking, and lets
// names be reclaimed once a computation's result has been delivered.
type nameTable struct {
	mu      sync.Mutex
	byName  map[string]Token
	byToken map[Token]string
	next    Token
}

func newNameTable() *nameTable {
	return &nameTable{
		byName:  make(map[string]Token),
		byToken: make(map[Token]string),
		next:    1, // 0 is TokenNone
	}
}

// intern returns the stable token for name, allocating one on first use.
func (t *nameTable) intern(name string) Token {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tok, ok := t.byName[name]; ok {
		return tok
	}
	tok := t.next
	t.next++
	t.byName[name] = tok
	t.byToken[tok] = name
	return tok
}

// lookup reverses a token back to its computation name.
func (t *nameTable) lookup(tok Token) (string, bool) {
	if tok == TokenNone {
		return "", false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	name, ok := t.byToken[tok]
	return name, ok
}

// release forgets a name once it can no longer be referenced (its
// computation has delivered a result and no join handle race remains
// possible within this process run). Safe to skip; only reclaims memory.
func (t *nameTable) release(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tok, ok := t.byName[name]; ok {
		delete(t.byName, name)
		delete(t.byToken, tok)
	}
}
