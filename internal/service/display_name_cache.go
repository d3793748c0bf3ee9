package service

import (
	"context"
	"sync"
	"time"
)

// DisplayNameCacheStore holds resolved taxonomy names across requests.
// Namespaces are taxonomy kinds; keys are the raw stored references.
type DisplayNameCacheStore interface {
	Get(ctx context.Context, namespace, key string) (string, bool, error)
	Set(ctx context.Context, namespace, key, name string, ttl time.Duration) error
	InvalidateNamespace(ctx context.Context, namespace string) error
}

type NoopDisplayNameCacheStore struct{}

func NewNoopDisplayNameCacheStore() *NoopDisplayNameCacheStore {
	return &NoopDisplayNameCacheStore{}
}

func (s *NoopDisplayNameCacheStore) Get(context.Context, string, string) (string, bool, error) {
	return "", false, nil
}

func (s *NoopDisplayNameCacheStore) Set(context.Context, string, string, string, time.Duration) error {
	return nil
}

func (s *NoopDisplayNameCacheStore) InvalidateNamespace(context.Context, string) error {
	return nil
}

type cachedName struct {
	name      string
	expiresAt time.Time
}

type InMemoryDisplayNameCacheStore struct {
	mu    sync.RWMutex
	store map[string]map[string]cachedName
}

func NewInMemoryDisplayNameCacheStore() *InMemoryDisplayNameCacheStore {
	return &InMemoryDisplayNameCacheStore{
		store: make(map[string]map[string]cachedName),
	}
}

func (s *InMemoryDisplayNameCacheStore) Get(_ context.Context, namespace, key string) (string, bool, error) {
	now := time.Now().UTC()
	s.mu.RLock()
	ns, ok := s.store[namespace]
	if !ok {
		s.mu.RUnlock()
		return "", false, nil
	}
	entry, ok := ns[key]
	s.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if now.After(entry.expiresAt) {
		s.mu.Lock()
		if ns2, ok2 := s.store[namespace]; ok2 {
			delete(ns2, key)
			if len(ns2) == 0 {
				delete(s.store, namespace)
			}
		}
		s.mu.Unlock()
		return "", false, nil
	}
	return entry.name, true, nil
}

func (s *InMemoryDisplayNameCacheStore) Set(_ context.Context, namespace, key, name string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.store[namespace]
	if !ok {
		ns = make(map[string]cachedName)
		s.store[namespace] = ns
	}
	ns[key] = cachedName{name: name, expiresAt: time.Now().UTC().Add(ttl)}
	return nil
}

func (s *InMemoryDisplayNameCacheStore) InvalidateNamespace(_ context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.store, namespace)
	return nil
}
