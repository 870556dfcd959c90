package repository

import (
	"context"
	"encoding/json"
)

// PriceStore is the gateway's view of the processor's Redis output.
type PriceStore interface {
	GetSnapshots(ctx context.Context, symbols []string) ([]string, error)
	GetHistory(ctx context.Context, symbols []string) (map[string][]json.RawMessage, error)
	SubscribeToFeed(ctx context.Context, symbol string) error
	UnsubscribeFromFeed(ctx context.Context, symbol string) error
	RunPubSub(ctx context.Context, onMessage func(symbol string, payload string))
	Close() error
}
