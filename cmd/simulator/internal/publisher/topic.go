package publisher

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const readinessAttempts = 5

var ErrTopicNotReady = errors.New("topic has no partitions")

// TopicCreator makes sure the tick topic exists before the engine starts
// publishing, so the first snapshot is not lost to auto-creation.
type TopicCreator struct {
	logger  *zap.Logger
	dialer  KafkaDialer
	sleeper Sleeper
}

func NewTopicCreator(logger *zap.Logger, dialer KafkaDialer, sleeper Sleeper) *TopicCreator {
	return &TopicCreator{
		logger:  logger,
		dialer:  dialer,
		sleeper: sleeper,
	}
}

// Ensure creates topicName with one partition per instrument and waits until
// the broker reports its partitions.
func (tc *TopicCreator) Ensure(ctx context.Context, brokers []string, topicName string, partitions int) error {
	conn, err := tc.dialAny(ctx, brokers)
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return err
	}

	controllerAddr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	controllerConn, err := tc.dialer.DialContext(ctx, "tcp", controllerAddr)
	if err != nil {
		return err
	}
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             topicName,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	})
	if err != nil {
		// TopicAlreadyExists lands here on every restart.
		tc.logger.Info("Topic creation finished (might already exist)", zap.Error(err))
	} else {
		tc.logger.Info("Topic creation request sent", zap.String("topic", topicName), zap.Int("partitions", partitions))
	}

	return tc.waitForTopic(conn, topicName)
}

func (tc *TopicCreator) dialAny(ctx context.Context, brokers []string) (KafkaConn, error) {
	var lastErr error
	for _, addr := range brokers {
		conn, err := tc.dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		tc.logger.Warn("Failed to dial broker", zap.String("broker", addr), zap.Error(err))
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no brokers configured")
	}
	return nil, lastErr
}

func (tc *TopicCreator) waitForTopic(conn KafkaConn, topicName string) error {
	for i := 0; i < readinessAttempts; i++ {
		partitions, err := conn.ReadPartitions(topicName)
		if err == nil && len(partitions) > 0 {
			tc.logger.Info("Topic is ready", zap.String("topic", topicName), zap.Int("partitions", len(partitions)))
			return nil
		}
		tc.sleeper.Sleep(200 * time.Millisecond)
	}
	return ErrTopicNotReady
}
