package resolution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld indica que outro processo detém o lock.
var ErrLockHeld = errors.New("lock held")

// Lease é um lock adquirido. Extend renova o TTL enquanto o dono ainda o detém.
type Lease interface {
	Extend(ctx context.Context, ttl time.Duration) error
	Release()
}

// Locker obtém um lock exclusivo com TTL.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// unlockLua só apaga a chave se o valor for o token de quem adquiriu.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// extendLua só renova o TTL se o valor ainda for o token de quem adquiriu.
const extendLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

// RedisLocker implementa Locker com SETNX + TTL e liberação condicional via Lua.
type RedisLocker struct {
	rdb    *redis.Client
	unlock *redis.Script
	extend *redis.Script
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb, unlock: redis.NewScript(unlockLua), extend: redis.NewScript(extendLua)}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	token := uuid.NewString()
	lk := "lock:" + key

	ok, err := l.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &redisLease{l: l, key: lk, token: token}, nil
}

type redisLease struct {
	l     *RedisLocker
	key   string
	token string

	once sync.Once
}

// Extend devolve ErrLockHeld se o lock expirou e outro processo o pegou.
func (r *redisLease) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := r.l.extend.Run(ctx, r.l.rdb, []string{r.key}, r.token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", r.key, err)
	}
	if n == 0 {
		return ErrLockHeld
	}
	return nil
}

func (r *redisLease) Release() {
	r.once.Do(func() {
		// contexto próprio para liberar mesmo com o do chamador cancelado
		uctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.l.unlock.Run(uctx, r.l.rdb, []string{r.key}, r.token).Err()
	})
}
