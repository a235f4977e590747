package outbox

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	kafka_infra "github.com/williamfortunademoraes/woocommerce-asaas/internal/infrastructure/kafka"
	"github.com/williamfortunademoraes/woocommerce-asaas/internal/repository/outbox_repo"
)

// Processor polls pending operator alerts and publishes them to Kafka.
// Rows are marked SENT only after a successful write, so a crash between
// publish and mark yields redelivery, never loss.
type Processor struct {
	db           *sql.DB
	outboxRepo   outbox_repo.OutboxRepository
	producer     kafka_infra.Producer
	pollInterval time.Duration
	pollTimeout  time.Duration
	batchSize    int
	logger       *zap.Logger
}

func NewProcessor(
	db *sql.DB,
	outboxRepo outbox_repo.OutboxRepository,
	producer kafka_infra.Producer,
	pollInterval time.Duration,
	pollTimeout time.Duration,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		db:           db,
		outboxRepo:   outboxRepo,
		producer:     producer,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
		batchSize:    10,
		logger:       logger,
	}
}

func (p *Processor) Start(ctx context.Context) {
	p.logger.Info("Starting outbox processor", zap.Duration("poll_interval", p.pollInterval))
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox processor stopping.")
			return
		case <-ticker.C:
			p.processPending(ctx)
		}
	}
}

func (p *Processor) processPending(ctx context.Context) {
	queryCtx, cancel := context.WithTimeout(ctx, p.pollTimeout)
	defer cancel()

	messages, err := p.outboxRepo.GetPendingMessages(queryCtx, p.db, p.batchSize)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return
		}
		p.logger.Error("Failed to get pending outbox messages", zap.Error(err))
		return
	}
	if len(messages) == 0 {
		return
	}

	p.logger.Info("Found pending outbox messages", zap.Int("count", len(messages)))

	var sent, failed []string
	for _, msg := range messages {
		if err := p.producer.Produce(ctx, msg.Topic, msg.Key, msg.Payload); err != nil {
			p.logger.Error("Failed to publish outbox message",
				zap.String("message_id", msg.ID),
				zap.String("topic", msg.Topic),
				zap.Error(err))
			failed = append(failed, msg.ID)
			continue
		}
		sent = append(sent, msg.ID)
	}

	if err := p.outboxRepo.MarkMessagesAsSent(ctx, p.db, sent); err != nil {
		p.logger.Error("Failed to mark outbox messages as sent", zap.Error(err))
	}
	if err := p.outboxRepo.MarkMessagesAsFailed(ctx, p.db, failed); err != nil {
		p.logger.Error("Failed to mark outbox messages as failed", zap.Error(err))
	}
}
