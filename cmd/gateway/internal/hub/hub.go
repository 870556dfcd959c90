package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/market-sim/cmd/gateway/internal/protocol"
	"github.com/shubham-shewale/market-sim/cmd/gateway/internal/repository"
)

const storeTimeout = 2 * time.Second

type ClientInterface interface {
	ID() string
	SendJSON(v interface{})
	SendBytes(b []byte)
	Close()
}

type Hub struct {
	subscribers map[string]map[ClientInterface]bool
	clientSubs  map[ClientInterface]map[string]bool

	store    repository.PriceStore
	catalog  *Catalog
	logger   *zap.Logger
	mu       sync.RWMutex
	refCount map[string]int

	cancel context.CancelFunc
	done   chan struct{}
}

func NewHub(store repository.PriceStore, catalog *Catalog, logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		subscribers: make(map[string]map[ClientInterface]bool),
		clientSubs:  make(map[ClientInterface]map[string]bool),
		store:       store,
		catalog:     catalog,
		logger:      logger,
		refCount:    make(map[string]int),
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	go func() {
		defer close(h.done)
		h.store.RunPubSub(ctx, h.Broadcast)
	}()

	return h
}

// Shutdown stops the feed loop and disconnects every client.
func (h *Hub) Shutdown() {
	h.cancel()
	<-h.done

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clientSubs {
		client.Close()
	}
	h.clientSubs = make(map[ClientInterface]map[string]bool)
	h.subscribers = make(map[string]map[ClientInterface]bool)
	h.refCount = make(map[string]int)
}

func (h *Hub) HandleCommand(client ClientInterface, req protocol.WSRequest) {
	switch req.Action {
	case protocol.ActionSubscribe:
		h.handleSubscribe(client, req)
	case protocol.ActionUnsubscribe:
		h.handleUnsubscribe(client, req)
	case protocol.ActionUnsubscribeAll:
		h.handleUnsubscribeAll(client, req)
	case protocol.ActionHistory:
		h.handleHistory(client, req)
	case protocol.ActionSnapshot:
		h.handleSnapshot(client, req)
	default:
		h.sendError(client, req.ID, "Unknown action: "+req.Action)
	}
}

// Register tracks a client with no subscriptions so Shutdown can reach it.
func (h *Hub) Register(client ClientInterface) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clientSubs[client] == nil {
		h.clientSubs[client] = make(map[string]bool)
	}
}

func (h *Hub) handleSubscribe(client ClientInterface, req protocol.WSRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()

	requested, _ := h.catalog.Resolve(req.Payload)

	var valid []string
	for _, s := range requested {
		// Idempotency: Ignore if already subscribed
		if h.clientSubs[client] != nil && h.clientSubs[client][s] {
			continue
		}
		valid = append(valid, s)
	}

	if len(valid) == 0 {
		h.sendError(client, req.ID, "No valid/new symbols provided")
		return
	}

	if h.clientSubs[client] == nil {
		h.clientSubs[client] = make(map[string]bool)
	}

	for _, sym := range valid {
		h.clientSubs[client][sym] = true
		if h.subscribers[sym] == nil {
			h.subscribers[sym] = make(map[ClientInterface]bool)
		}
		h.subscribers[sym][client] = true

		// Manage upstream subscription (Ref counting)
		h.refCount[sym]++
		if h.refCount[sym] == 1 {
			if err := h.store.SubscribeToFeed(context.Background(), sym); err != nil {
				h.logger.Error("Failed to subscribe upstream", zap.String("symbol", sym), zap.Error(err))
			}
		}
	}

	h.sendAck(client, req.ID, "success", fmt.Sprintf("Subscribed to %v", valid))

	// Send Snapshots (Async to avoid blocking lock)
	go func(targets []string) {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		snapshots, err := h.store.GetSnapshots(ctx, targets)
		if err != nil {
			h.logger.Warn("Snapshot fetch failed", zap.Strings("symbols", targets), zap.Error(err))
			return
		}
		for _, snap := range snapshots {
			client.SendBytes([]byte(snap))
		}
	}(valid)
}

func (h *Hub) handleUnsubscribe(client ClientInterface, req protocol.WSRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()

	requested, _ := h.catalog.Resolve(req.Payload)

	var removed []string
	if subs, ok := h.clientSubs[client]; ok {
		for _, sym := range requested {
			if subs[sym] {
				delete(subs, sym)
				delete(h.subscribers[sym], client)
				removed = append(removed, sym)
				h.decreaseRefCount(sym)
			}
		}
	}

	if len(removed) > 0 {
		h.sendAck(client, req.ID, "success", fmt.Sprintf("Unsubscribed from %v", removed))
	} else {
		h.sendError(client, req.ID, fmt.Sprintf("Not subscribed to: %v", describe(req.Payload)))
	}
}

func (h *Hub) handleUnsubscribeAll(client ClientInterface, req protocol.WSRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.clientSubs[client]; ok {
		for sym := range subs {
			delete(h.subscribers[sym], client)
			h.decreaseRefCount(sym)
		}
		// Clear the map but keep the client registered
		h.clientSubs[client] = make(map[string]bool)
	}
	h.sendAck(client, req.ID, "success", "Unsubscribed from all symbols")
}

// handleHistory replies with the stored price history of each requested symbol.
func (h *Hub) handleHistory(client ClientInterface, req protocol.WSRequest) {
	symbols, unknown := h.catalog.Resolve(req.Payload)
	if len(symbols) == 0 {
		h.sendError(client, req.ID, fmt.Sprintf("No valid symbols provided: %v", unknown))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	history, err := h.store.GetHistory(ctx, symbols)
	if err != nil {
		h.logger.Error("History fetch failed", zap.Strings("symbols", symbols), zap.Error(err))
		h.sendError(client, req.ID, "History unavailable")
		return
	}
	client.SendJSON(protocol.WSResponse{Type: protocol.TypeHistory, ID: req.ID, Status: "success", Data: history})
}

// handleSnapshot replies with the latest stored update of each requested symbol,
// or of every served symbol when the payload is empty.
func (h *Hub) handleSnapshot(client ClientInterface, req protocol.WSRequest) {
	symbols, unknown := h.catalog.Resolve(req.Payload)
	if len(req.Payload.Symbols) == 0 && len(req.Payload.Categories) == 0 {
		symbols = h.catalog.Symbols()
	}
	if len(symbols) == 0 {
		h.sendError(client, req.ID, fmt.Sprintf("No valid symbols provided: %v", unknown))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	snapshots, err := h.store.GetSnapshots(ctx, symbols)
	if err != nil {
		h.logger.Error("Snapshot fetch failed", zap.Strings("symbols", symbols), zap.Error(err))
		h.sendError(client, req.ID, "Snapshot unavailable")
		return
	}

	data := make([]json.RawMessage, 0, len(snapshots))
	for _, s := range snapshots {
		data = append(data, json.RawMessage(s))
	}
	client.SendJSON(protocol.WSResponse{Type: protocol.TypeSnapshot, ID: req.ID, Status: "success", Data: data})
}

func (h *Hub) Unregister(client ClientInterface) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.clientSubs[client]
	if !ok {
		// Already dropped by Shutdown
		return
	}
	for sym := range subs {
		delete(h.subscribers[sym], client)
		h.decreaseRefCount(sym)
	}
	delete(h.clientSubs, client)
	client.Close()
}

func (h *Hub) Broadcast(symbol string, payload string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if clients, ok := h.subscribers[symbol]; ok {
		msgBytes := []byte(payload)
		for client := range clients {
			client.SendBytes(msgBytes)
		}
	}
}

// Subscribers reports how many clients currently follow symbol.
func (h *Hub) Subscribers(symbol string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[symbol])
}

func (h *Hub) decreaseRefCount(symbol string) {
	h.refCount[symbol]--
	if h.refCount[symbol] <= 0 {
		if err := h.store.UnsubscribeFromFeed(context.Background(), symbol); err != nil {
			h.logger.Error("Failed to unsubscribe upstream", zap.String("symbol", symbol), zap.Error(err))
		}
		delete(h.refCount, symbol)
		delete(h.subscribers, symbol)
	}
}

func (h *Hub) sendAck(c ClientInterface, id, status, msg string) {
	c.SendJSON(protocol.WSResponse{Type: protocol.TypeAck, ID: id, Status: status, Message: msg})
}

func (h *Hub) sendError(c ClientInterface, id, msg string) {
	c.SendJSON(protocol.WSResponse{Type: protocol.TypeError, ID: id, Status: "error", Message: msg})
}

func describe(p protocol.RequestPayload) string {
	return strings.Join(append(append([]string{}, p.Symbols...), p.Categories...), ",")
}
