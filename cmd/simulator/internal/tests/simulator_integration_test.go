package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/market-sim/cmd/simulator/internal/api"
	"github.com/shubham-shewale/market-sim/cmd/simulator/internal/publisher"
	"github.com/shubham-shewale/market-sim/cmd/simulator/internal/testutils"
	"github.com/shubham-shewale/market-sim/pkg/market"
	"github.com/shubham-shewale/market-sim/pkg/models"
)

func TestSimulator_ComponentWiring(t *testing.T) {
	// Real randomness and clock with a fast interval; only Kafka is faked.
	cfg := market.DefaultConfig()
	cfg.Interval = 5 * time.Millisecond

	engine, err := market.New(cfg, zap.NewNop(), nil, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	writer := &testutils.MockKafkaWriter{}
	pub := publisher.NewPublisher(zap.NewNop(), writer, engine)

	ctx, cancel := context.WithCancel(context.Background())
	pubDone := make(chan struct{})
	go func() {
		pub.Run(ctx)
		close(pubDone)
	}()

	// Give Run a moment to subscribe before the first tick fires.
	time.Sleep(10 * time.Millisecond)
	if err := engine.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for writer.Count() < 30 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	engine.Stop()
	cancel()
	<-pubDone

	writer.Mu.Lock()
	msgs := writer.Messages
	writer.Mu.Unlock()

	if len(msgs) < 30 {
		t.Fatalf("Expected at least 3 published ticks, got %d messages", len(msgs))
	}

	lastSeq := map[string]int64{}
	for _, msg := range msgs {
		var update models.InstrumentUpdate
		if err := json.Unmarshal(msg.Value, &update); err != nil {
			t.Fatalf("Invalid payload: %v", err)
		}
		if update.SeqID < lastSeq[update.Symbol] {
			t.Errorf("%s: SeqID went backwards %d -> %d", update.Symbol, lastSeq[update.Symbol], update.SeqID)
		}
		lastSeq[update.Symbol] = update.SeqID
	}
	if len(lastSeq) != 10 {
		t.Errorf("Expected updates for 10 symbols, got %d", len(lastSeq))
	}

	// The read API serves the engine's final state.
	router := api.NewRouter(engine, zap.NewNop(), time.Second)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/history/BTC", nil)
	router.ServeHTTP(w, req)

	var res struct {
		Data struct {
			Points []models.HistoryPoint `json:"points"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("Invalid API response: %v", err)
	}
	want := 7 + int(engine.Ticks())
	if want > 50 {
		want = 50
	}
	if len(res.Data.Points) != want {
		t.Errorf("Expected %d history points, got %d", want, len(res.Data.Points))
	}
}
