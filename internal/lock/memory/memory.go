// Package memory is an in-process lock.Service, used by tests and by
// single-process deployments the way internal/store/memory stands in
// for a relational backend.
package memory

import (
	"context"
	"sync"
	"time"

	uuid "github.com/satori/go.uuid"

	"github.com/clarketm/prbot/internal/errs"
	"github.com/clarketm/prbot/internal/lock"
)

type entry struct {
	token   string
	expires time.Time
}

// Service is a map-backed lock.Service. Expiry is checked lazily on
// each acquisition attempt rather than by a background sweeper.
type Service struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New returns an empty in-memory lock service.
func New() *Service {
	return &Service{entries: make(map[string]*entry)}
}

var _ lock.Service = (*Service)(nil)

type handle struct {
	svc   *Service
	name  string
	token string
}

func (h *handle) Release(ctx context.Context) error {
	h.svc.mu.Lock()
	defer h.svc.mu.Unlock()
	if e, ok := h.svc.entries[h.name]; ok && e.token == h.token {
		delete(h.svc.entries, h.name)
	}
	return nil
}

func (s *Service) TryLock(ctx context.Context, name string, ttl time.Duration) (lock.Handle, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if e, ok := s.entries[name]; ok && e.expires.After(now) {
		return nil, false, nil
	}

	token := uuid.NewV4().String()
	s.entries[name] = &entry{token: token, expires: now.Add(ttl)}
	return &handle{svc: s, name: name, token: token}, true, nil
}

func (s *Service) WaitLock(ctx context.Context, name string, ttl, timeout time.Duration) (lock.Handle, error) {
	deadline := time.Now().Add(timeout)
	for {
		if h, ok, err := s.TryLock(ctx, name, ttl); err != nil {
			return nil, err
		} else if ok {
			return h, nil
		}

		if time.Now().After(deadline) {
			return nil, errs.New(errs.KindLockTimeout, "timed out waiting for lock "+name)
		}

		select {
		case <-ctx.Done():
			return nil, errs.Wrap(errs.KindLockTimeout, ctx.Err(), "context cancelled waiting for lock %s", name)
		case <-time.After(20 * time.Millisecond):
		}
	}
}
