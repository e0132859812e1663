// Package memstore is an in-process LRU front for the shared tile cache.
// Entries have no TTL; the LRU bound and upstream invalidation keep it fresh
// enough for a front tier.
package memstore

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type Store struct {
	lru *lru.Cache[string, []byte]
}

func New(size int) (*Store, error) {
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("memstore: %w", err)
	}
	return &Store{lru: c}, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.lru.Get(key)
	return v, ok, nil
}

func (s *Store) Set(_ context.Context, key string, val []byte, _ time.Duration) error {
	s.lru.Add(key, val)
	return nil
}

func (s *Store) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		s.lru.Remove(k)
	}
	return nil
}

// Purge drops everything, used when invalidation cannot enumerate keys.
func (s *Store) Purge() {
	s.lru.Purge()
}

func (s *Store) Len() int { return s.lru.Len() }
