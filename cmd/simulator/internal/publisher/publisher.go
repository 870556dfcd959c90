package publisher

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shubham-shewale/market-sim/pkg/models"
)

// Publisher forwards every engine tick to Kafka, one message per instrument
// keyed by symbol so a symbol always lands on the same partition.
type Publisher struct {
	logger *zap.Logger
	writer KafkaWriter
	source Source
}

func NewPublisher(logger *zap.Logger, writer KafkaWriter, source Source) *Publisher {
	return &Publisher{
		logger: logger,
		writer: writer,
		source: source,
	}
}

// Run blocks until ctx is cancelled. Notifications arriving while a batch is
// being written collapse into one; each batch reads the latest snapshot.
func (p *Publisher) Run(ctx context.Context) {
	pending := make(chan struct{}, 1)
	unsubscribe := p.source.Subscribe(func() {
		select {
		case pending <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	p.logger.Info("Publisher Started")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Publisher stopping")
			return
		case <-pending:
			if err := p.PublishSnapshot(ctx); err != nil {
				p.logger.Error("Kafka Write Error", zap.Error(err))
			}
		}
	}
}

// PublishSnapshot writes the current snapshot tagged with the tick that produced it.
func (p *Publisher) PublishSnapshot(ctx context.Context) error {
	snapshot, tick := p.source.SnapshotSeq()
	seq := int64(tick)

	symbols := make([]string, 0, len(snapshot))
	for sym := range snapshot {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	msgs := make([]kafka.Message, 0, len(symbols))
	for _, sym := range symbols {
		payload, err := json.Marshal(models.InstrumentUpdate{Instrument: snapshot[sym], SeqID: seq})
		if err != nil {
			p.logger.Error("JSON Marshal Error", zap.String("symbol", sym), zap.Error(err))
			continue
		}
		msgs = append(msgs, kafka.Message{Key: []byte(sym), Value: payload})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return err
	}
	p.logger.Debug("Published tick", zap.Int64("seq_id", seq), zap.Int("instruments", len(msgs)))
	return nil
}
