package processor

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/market-sim/pkg/config"
	"github.com/shubham-shewale/market-sim/pkg/keys"
	"github.com/shubham-shewale/market-sim/pkg/models"
)

const workerBuffer = 100

// Processor moves instrument updates from Kafka into Redis: the latest
// snapshot per symbol, a capped history list, and a pub/sub fan-out.
type Processor struct {
	logger      Logger
	rdb         RedisClient
	reader      KafkaReader
	numWorkers  int
	snapshotTTL time.Duration
	historyCap  int64
}

func NewProcessor(cfg *config.Config, logger Logger, rdb RedisClient, reader KafkaReader) *Processor {
	historyCap := cfg.Processor.HistoryCap
	if historyCap < 1 {
		historyCap = 50
	}
	numWorkers := cfg.Processor.NumWorkers
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Processor{
		logger:      logger,
		rdb:         rdb,
		reader:      reader,
		numWorkers:  numWorkers,
		snapshotTTL: cfg.Processor.SnapshotTTL,
		historyCap:  int64(historyCap),
	}
}

// Run blocks until ctx is done, then drains the workers.
func (p *Processor) Run(ctx context.Context) error {
	workerChans := make([]chan []byte, p.numWorkers)
	var wg sync.WaitGroup

	for i := 0; i < p.numWorkers; i++ {
		workerChans[i] = make(chan []byte, workerBuffer)
		wg.Add(1)
		go p.worker(i, workerChans[i], &wg)
	}

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		p.logger.Info("Processor Started", zap.Int("workers", p.numWorkers))
		for {
			m, err := p.reader.ReadMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
					return
				}
				p.logger.Error("Kafka Read Error", zap.Error(err))
				continue
			}

			// Same symbol always goes to the same worker, which keeps its updates ordered
			workerID := getWorkerID(m.Key, p.numWorkers)

			select {
			case workerChans[workerID] <- m.Value:
			case <-ctx.Done():
				return
			default:
				// A newer tick supersedes this one
				p.logger.Warn("Dropping slow packet", zap.String("key", string(m.Key)), zap.Int("worker_id", workerID))
			}
		}
	}()

	<-ctx.Done()
	p.logger.Info("Shutdown signal received, stopping processor...")

	<-readerDone
	for _, ch := range workerChans {
		close(ch)
	}
	p.logger.Info("Waiting for workers to drain...")
	wg.Wait()

	return nil
}

func (p *Processor) worker(id int, msgs <-chan []byte, wg *sync.WaitGroup) {
	defer wg.Done()
	ctx := context.Background() // finish in-flight writes during shutdown

	// Dedup state is per worker; sharding makes it complete per symbol
	lastSeq := make(map[string]int64)

	for payload := range msgs {
		var update models.InstrumentUpdate
		if err := json.Unmarshal(payload, &update); err != nil {
			p.logger.Error("JSON Unmarshal Error", zap.Error(err))
			continue
		}
		if update.Symbol == "" {
			p.logger.Warn("Update without symbol", zap.Int64("seq_id", update.SeqID))
			continue
		}

		if update.SeqID <= lastSeq[update.Symbol] {
			p.logger.Debug("Skipping duplicate update", zap.String("symbol", update.Symbol), zap.Int64("seq_id", update.SeqID))
			continue
		}

		if err := p.store(ctx, update, payload); err != nil {
			p.logger.Error("Redis Pipeline Error", zap.Error(err), zap.String("symbol", update.Symbol))
			continue
		}
		p.logger.Debug("Processed", zap.String("symbol", update.Symbol), zap.Int("worker_id", id), zap.Int64("seq_id", update.SeqID))
		lastSeq[update.Symbol] = update.SeqID
	}
}

func (p *Processor) store(ctx context.Context, update models.InstrumentUpdate, payload []byte) error {
	point, err := json.Marshal(models.HistoryPoint{Timestamp: update.LastUpdated, Value: update.Price})
	if err != nil {
		return err
	}

	historyKey := keys.History(update.Symbol)

	pipe := p.rdb.Pipeline()
	pipe.Set(ctx, keys.Snapshot(update.Symbol), payload, p.snapshotTTL)
	pipe.RPush(ctx, historyKey, point)
	pipe.LTrim(ctx, historyKey, -p.historyCap, -1)
	pipe.Publish(ctx, keys.Channel(update.Symbol), payload)

	_, err = pipe.Exec(ctx)
	return err
}

func getWorkerID(key []byte, numWorkers int) int {
	h := fnv.New32a()
	h.Write(key)
	return int(h.Sum32() % uint32(numWorkers))
}
