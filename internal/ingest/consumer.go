package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aegisshield/chain-monitor/internal/config"
	"github.com/aegisshield/chain-monitor/internal/metrics"
	"github.com/aegisshield/chain-monitor/internal/models"
)

// transactionMessage is the wire envelope published on the transaction
// topic by upstream chain watchers.
type transactionMessage struct {
	Hash        string    `json:"hash"`
	FromAddress string    `json:"from_address"`
	ToAddress   string    `json:"to_address"`
	Amount      string    `json:"amount"`
	GasPrice    string    `json:"gas_price"`
	GasUsed     int64     `json:"gas_used"`
	Network     string    `json:"network"`
	BlockNumber int64     `json:"block_number"`
	Timestamp   time.Time `json:"timestamp"`
}

// Consumer reads transaction messages from Kafka and pushes them into the
// ingest buffer for the monitor agent.
type Consumer struct {
	reader    *kafka.Reader
	buffer    *Buffer
	collector *metrics.Collector
	logger    *zap.Logger
}

// NewConsumer creates a kafka consumer feeding the given buffer.
func NewConsumer(cfg *config.KafkaConfig, buffer *Buffer, collector *metrics.Collector, logger *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.ConsumerGroup,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
		MaxWait:  time.Duration(cfg.MaxWait) * time.Second,
	})
	return &Consumer{
		reader:    reader,
		buffer:    buffer,
		collector: collector,
		logger:    logger.Named("ingest"),
	}
}

// Run consumes messages until the context is cancelled. Malformed messages
// are logged and skipped.
func (c *Consumer) Run(ctx context.Context) {
	c.logger.Info("kafka consumer started", zap.String("topic", c.reader.Config().Topic))
	for {
		message, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("kafka consumer stopped")
				return
			}
			c.logger.Error("failed to read kafka message", zap.Error(err))
			continue
		}

		tx, err := decodeTransaction(message.Value)
		if err != nil {
			c.logger.Warn("skipping malformed transaction message",
				zap.Int64("offset", message.Offset),
				zap.Error(err))
			continue
		}
		c.buffer.Push(tx)
		if c.collector != nil {
			c.collector.RecordIngested("kafka")
		}
	}
}

// Close releases the underlying kafka reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func decodeTransaction(payload []byte) (*models.Transaction, error) {
	var msg transactionMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode transaction message: %w", err)
	}
	if msg.Hash == "" {
		return nil, fmt.Errorf("transaction message missing hash")
	}
	if _, err := decimal.NewFromString(msg.Amount); err != nil {
		return nil, fmt.Errorf("invalid transaction amount %q: %w", msg.Amount, err)
	}

	timestamp := msg.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	return &models.Transaction{
		Hash:        msg.Hash,
		FromAddress: msg.FromAddress,
		ToAddress:   msg.ToAddress,
		Amount:      msg.Amount,
		GasPrice:    msg.GasPrice,
		GasUsed:     msg.GasUsed,
		Network:     msg.Network,
		BlockNumber: msg.BlockNumber,
		Timestamp:   timestamp,
		Status:      models.TransactionStatusPending,
	}, nil
}
