package kv

import (
	"context"
	"strings"
	"sync"
	"time"
)

type entry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !e.expiresAt.After(now)
}

// Memory is the in-process KV driver. Expired entries are dropped lazily
// on access, so no sweeper goroutine is required for correctness.
type Memory struct {
	mu  sync.Mutex
	m   map[string]entry
	now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{m: make(map[string]entry), now: time.Now}
}

// SetClock overrides the time source. Test hook.
func (s *Memory) SetClock(now func() time.Time) { s.now = now }

func (s *Memory) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var exp time.Time
	if ttl > 0 {
		exp = s.now().Add(ttl)
	}
	s.m[key] = entry{value: append([]byte(nil), value...), expiresAt: exp}
	return nil
}

func (s *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[key]
	if !ok {
		return nil, false, nil
	}
	if e.expired(s.now()) {
		delete(s.m, key)
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (s *Memory) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

func (s *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var out []string
	for k, e := range s.m {
		if e.expired(now) {
			delete(s.m, k)
			continue
		}
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}
