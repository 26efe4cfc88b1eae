// Package redis is the production lock.Service backend: a Redis
// `SET NX PX` try-lock and a polling wait-lock, grounded on the
// github.com/redis/go-redis/v9 client used elsewhere in the retrieval
// pack for exactly this kind of distributed coordination.
package redis

import (
	"context"
	"time"

	uuid "github.com/satori/go.uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/clarketm/prbot/internal/errs"
	"github.com/clarketm/prbot/internal/lock"
)

// releaseScript only deletes the key if it still holds our token,
// so a lock that expired and was re-acquired by someone else is left
// alone.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`

// Service is a lock.Service backed by a Redis client.
type Service struct {
	rdb    *goredis.Client
	prefix string
}

// New wraps an already-configured *goredis.Client. Connection setup
// (addr, auth, TLS) is the out-of-scope adapter's job (§1, "store DSN,
// lock service DSN" in §6.4 is only a config value the adapter reads).
func New(rdb *goredis.Client, keyPrefix string) *Service {
	return &Service{rdb: rdb, prefix: keyPrefix}
}

var _ lock.Service = (*Service)(nil)

type handle struct {
	svc   *Service
	name  string
	token string
}

func (h *handle) Release(ctx context.Context) error {
	err := h.svc.rdb.Eval(ctx, releaseScript, []string{h.svc.key(h.name)}, h.token).Err()
	if err != nil && err != goredis.Nil {
		return errs.Wrap(errs.KindDomainError, err, "release lock %s", h.name)
	}
	return nil
}

func (s *Service) key(name string) string { return s.prefix + name }

func (s *Service) TryLock(ctx context.Context, name string, ttl time.Duration) (lock.Handle, bool, error) {
	token := uuid.NewV4().String()
	ok, err := s.rdb.SetNX(ctx, s.key(name), token, ttl).Result()
	if err != nil {
		return nil, false, errs.Wrap(errs.KindDomainError, err, "try-lock %s", name)
	}
	if !ok {
		return nil, false, nil
	}
	return &handle{svc: s, name: name, token: token}, true, nil
}

func (s *Service) WaitLock(ctx context.Context, name string, ttl, timeout time.Duration) (lock.Handle, error) {
	deadline := time.Now().Add(timeout)
	for {
		h, ok, err := s.TryLock(ctx, name, ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return h, nil
		}

		if time.Now().After(deadline) {
			return nil, errs.New(errs.KindLockTimeout, "timed out waiting for lock "+name)
		}

		select {
		case <-ctx.Done():
			return nil, errs.Wrap(errs.KindLockTimeout, ctx.Err(), "context cancelled waiting for lock %s", name)
		case <-time.After(50 * time.Millisecond):
		}
	}
}
