// Package session resolves the signed-in user once per token and shares the
// result across pages for a short time.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"connectkids/internal/backend"
	"connectkids/internal/model"
)

// CookieName holds the data service access token.
const CookieName = "ck_session"

// Resolver is the part of backend.Auth the provider needs.
type Resolver interface {
	Me(ctx context.Context, token string) (model.User, error)
}

type cached struct {
	user    model.User
	expires time.Time
}

// Provider caches successful lookups; failures always go back to the
// data service.
type Provider struct {
	resolver Resolver
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]cached

	subMu   sync.Mutex
	nextSub int
	subs    map[int]func(token string)
}

func NewProvider(resolver Resolver, ttl time.Duration) *Provider {
	return &Provider{
		resolver: resolver,
		ttl:      ttl,
		now:      time.Now,
		entries:  make(map[string]cached),
		subs:     make(map[int]func(string)),
	}
}

// Resolve returns the user for token. Every failure, whatever its cause,
// comes back wrapping backend.ErrUnauthenticated.
func (p *Provider) Resolve(ctx context.Context, token string) (model.User, error) {
	if token == "" {
		return model.User{}, backend.ErrUnauthenticated
	}

	p.mu.Lock()
	if c, ok := p.entries[token]; ok && p.now().Before(c.expires) {
		p.mu.Unlock()
		return c.user, nil
	}
	p.mu.Unlock()

	user, err := p.resolver.Me(ctx, token)
	if err != nil {
		if errors.Is(err, backend.ErrUnauthenticated) {
			return model.User{}, err
		}
		return model.User{}, fmt.Errorf("%w: %w", backend.ErrUnauthenticated, err)
	}

	if p.ttl > 0 {
		p.mu.Lock()
		p.entries[token] = cached{user: user, expires: p.now().Add(p.ttl)}
		p.mu.Unlock()
	}
	return user, nil
}

// Refresh forgets token so the next Resolve asks the data service again,
// and tells subscribers.
func (p *Provider) Refresh(token string) {
	p.mu.Lock()
	delete(p.entries, token)
	p.mu.Unlock()

	p.subMu.Lock()
	subs := make([]func(string), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.subMu.Unlock()
	for _, fn := range subs {
		fn(token)
	}
}

// Subscribe registers fn for every Refresh and returns its removal func.
func (p *Provider) Subscribe(fn func(token string)) func() {
	p.subMu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	p.subMu.Unlock()
	return func() {
		p.subMu.Lock()
		delete(p.subs, id)
		p.subMu.Unlock()
	}
}

// Close drops every cached session and subscriber.
func (p *Provider) Close() {
	p.mu.Lock()
	p.entries = make(map[string]cached)
	p.mu.Unlock()
	p.subMu.Lock()
	p.subs = make(map[int]func(string))
	p.subMu.Unlock()
}
