package testutils

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/shubham-shewale/market-sim/cmd/gateway/internal/protocol"
)

// MockClient simulates a connected websocket client
type MockClient struct {
	IDVal    string
	Messages []protocol.WSResponse // Stores decoded JSON messages
	RawBytes []string              // Stores raw bytes
	Closed   bool
	Mu       sync.Mutex
}

func NewMockClient(id string) *MockClient {
	return &MockClient{IDVal: id, Messages: make([]protocol.WSResponse, 0)}
}

func (m *MockClient) ID() string { return m.IDVal }

func (m *MockClient) Close() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
}

func (m *MockClient) SendJSON(v interface{}) {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	// If it's a response, store it
	if resp, ok := v.(protocol.WSResponse); ok {
		m.Messages = append(m.Messages, resp)
	}
}

func (m *MockClient) SendBytes(b []byte) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.RawBytes = append(m.RawBytes, string(b))
}

func (m *MockClient) LastMsg() protocol.WSResponse {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if len(m.Messages) == 0 {
		return protocol.WSResponse{}
	}
	return m.Messages[len(m.Messages)-1]
}

func (m *MockClient) LastMsgType() string {
	return m.LastMsg().Type
}

func (m *MockClient) IsClosed() bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Closed
}

func (m *MockClient) RawCount() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.RawBytes)
}

// MockPriceStore simulates Redis
type MockPriceStore struct {
	SubscribedChannels map[string]int // symbol -> count
	History            map[string][]json.RawMessage
	Err                error // returned by the read methods when set
	Mu                 sync.Mutex
}

func NewMockStore() *MockPriceStore {
	return &MockPriceStore{
		SubscribedChannels: make(map[string]int),
		History:            make(map[string][]json.RawMessage),
	}
}

func (m *MockPriceStore) GetSnapshots(ctx context.Context, symbols []string) ([]string, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, fmt.Sprintf(`{"symbol":%q,"price":"100"}`, s))
	}
	return out, nil
}

func (m *MockPriceStore) GetHistory(ctx context.Context, symbols []string) (map[string][]json.RawMessage, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make(map[string][]json.RawMessage, len(symbols))
	for _, s := range symbols {
		out[s] = append([]json.RawMessage{}, m.History[s]...)
	}
	return out, nil
}

func (m *MockPriceStore) SubscribeToFeed(ctx context.Context, symbol string) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.SubscribedChannels[symbol]++
	return nil
}

func (m *MockPriceStore) UnsubscribeFromFeed(ctx context.Context, symbol string) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.SubscribedChannels[symbol]--
	if m.SubscribedChannels[symbol] <= 0 {
		delete(m.SubscribedChannels, symbol)
	}
	return nil
}

func (m *MockPriceStore) Subscribed(symbol string) int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.SubscribedChannels[symbol]
}

func (m *MockPriceStore) ActiveFeeds() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.SubscribedChannels)
}

// RunPubSub blocks until ctx is cancelled, like the real feed loop.
func (m *MockPriceStore) RunPubSub(ctx context.Context, onMessage func(symbol string, payload string)) {
	<-ctx.Done()
}

func (m *MockPriceStore) Close() error { return nil }
