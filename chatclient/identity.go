package chatclient

import "sync"

// Identity is the signed-in user as seen by the client. A zero Identity
// means signed out.
type Identity struct {
	Token string
}

func (i Identity) SignedIn() bool {
	return i.Token != ""
}

// IdentityHolder owns the current access token and tells subscribers when
// it changes.
type IdentityHolder struct {
	mu          sync.Mutex
	current     Identity
	subscribers map[int]func(Identity)
	nextID      int
}

func NewIdentityHolder(token string) *IdentityHolder {
	return &IdentityHolder{
		current:     Identity{Token: token},
		subscribers: make(map[int]func(Identity)),
	}
}

func (h *IdentityHolder) Current() Identity {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.current
}

func (h *IdentityHolder) Token() string {
	return h.Current().Token
}

func (h *IdentityHolder) SignIn(token string) {
	h.set(Identity{Token: token})
}

func (h *IdentityHolder) SignOut() {
	h.set(Identity{})
}

// Subscribe registers fn for identity changes and returns the function that
// removes it. fn is called without the holder's lock held.
func (h *IdentityHolder) Subscribe(fn func(Identity)) (unsubscribe func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	h.subscribers[id] = fn

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subscribers, id)
	}
}

func (h *IdentityHolder) set(identity Identity) {
	h.mu.Lock()
	if h.current == identity {
		h.mu.Unlock()
		return
	}
	h.current = identity
	subscribers := make([]func(Identity), 0, len(h.subscribers))
	for _, fn := range h.subscribers {
		subscribers = append(subscribers, fn)
	}
	h.mu.Unlock()

	for _, fn := range subscribers {
		fn(identity)
	}
}
