package upstream

import (
	"errors"
	"sync"

	"golang.org/x/oauth2"
)

var ErrNoToken = errors.New("no bearer token")

// TokenHolder is the bearer token shared by every upstream request. It is
// an oauth2.TokenSource that can be evicted when the backend rejects it.
type TokenHolder struct {
	mu    sync.RWMutex
	token string
}

func NewTokenHolder(token string) *TokenHolder {
	return &TokenHolder{token: token}
}

func (h *TokenHolder) Token() (*oauth2.Token, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.token == "" {
		return nil, ErrNoToken
	}
	return &oauth2.Token{AccessToken: h.token, TokenType: "Bearer"}, nil
}

func (h *TokenHolder) Set(token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.token = token
}

// Evict forgets the token; requests fail with ErrUnauthorized until Set is
// called again.
func (h *TokenHolder) Evict() {
	h.Set("")
}

func (h *TokenHolder) Has() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token != ""
}
