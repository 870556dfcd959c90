package repository

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/shubham-shewale/market-sim/pkg/keys"
)

// Compile-time check to ensure RedisStore implements PriceStore
var _ PriceStore = (*RedisStore)(nil)

type RedisStore struct {
	client *redis.Client
	pubsub *redis.PubSub
	mu     sync.Mutex // serializes (un)subscribe calls on the shared PubSub
}

func NewRedisStore(client *redis.Client) *RedisStore {
	ps := client.Subscribe(context.Background())
	return &RedisStore{
		client: client,
		pubsub: ps,
	}
}

// GetSnapshots fetches the latest update for each symbol (MGET); missing symbols are skipped
func (r *RedisStore) GetSnapshots(ctx context.Context, symbols []string) ([]string, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	ks := make([]string, len(symbols))
	for i, sym := range symbols {
		ks[i] = keys.Snapshot(sym)
	}

	results, err := r.client.MGet(ctx, ks...).Result()
	if err != nil {
		return nil, err
	}

	var snapshots []string
	for _, val := range results {
		if payload, ok := val.(string); ok && payload != "" {
			snapshots = append(snapshots, payload)
		}
	}
	return snapshots, nil
}

// GetHistory reads each symbol's capped history list in one round trip.
// Symbols without history map to an empty series.
func (r *RedisStore) GetHistory(ctx context.Context, symbols []string) (map[string][]json.RawMessage, error) {
	out := make(map[string][]json.RawMessage, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringSliceCmd, len(symbols))
	for i, sym := range symbols {
		cmds[i] = pipe.LRange(ctx, keys.History(sym), 0, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	for i, sym := range symbols {
		points := make([]json.RawMessage, 0, len(cmds[i].Val()))
		for _, p := range cmds[i].Val() {
			points = append(points, json.RawMessage(p))
		}
		out[sym] = points
	}
	return out, nil
}

// SubscribeToFeed tells Redis we want to listen to this channel
func (r *RedisStore) SubscribeToFeed(ctx context.Context, symbol string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pubsub.Subscribe(ctx, keys.Channel(symbol))
}

// UnsubscribeFromFeed tells Redis to stop sending messages for this channel
func (r *RedisStore) UnsubscribeFromFeed(ctx context.Context, symbol string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pubsub.Unsubscribe(ctx, keys.Channel(symbol))
}

// RunPubSub blocks, passing each message's symbol and payload to onMessage, until ctx is done or the PubSub is closed
func (r *RedisStore) RunPubSub(ctx context.Context, onMessage func(symbol string, payload string)) {
	ch := r.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			symbol, found := strings.CutPrefix(msg.Channel, keys.ChannelPrefix)
			if !found || symbol == "" {
				continue
			}
			onMessage(symbol, msg.Payload)
		}
	}
}

func (r *RedisStore) Close() error {
	if err := r.pubsub.Close(); err != nil {
		return err
	}
	return r.client.Close()
}
