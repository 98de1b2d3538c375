package stats

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache guarda Stats serializadas no Redis com TTL.
// Um *Cache nil (ou sem client) se comporta como cache sempre vazio.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(c *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: c, ttl: ttl}
}

// key gera a chave Redis das estatísticas de uma enquete
func key(pollID int64) string { return "stats:poll:" + strconv.FormatInt(pollID, 10) }

func (c *Cache) enabled() bool { return c != nil && c.client != nil }

func (c *Cache) Get(ctx context.Context, pollID int64) (*Stats, bool) {
	if !c.enabled() {
		return nil, false
	}
	b, err := c.client.Get(ctx, key(pollID)).Bytes()
	if err != nil {
		return nil, false
	}
	var st Stats
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, false
	}
	return &st, true
}

func (c *Cache) Set(ctx context.Context, st *Stats) error {
	if !c.enabled() {
		return nil
	}
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key(st.PollID), b, c.ttl).Err()
}

func (c *Cache) Delete(ctx context.Context, pollID int64) error {
	if !c.enabled() {
		return nil
	}
	err := c.client.Del(ctx, key(pollID)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
