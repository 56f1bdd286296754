package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/elo-ledger/internal/config"
	"github.com/elo-ledger/internal/domain"
)

// GameReporter applies and records finished games
type GameReporter interface {
	ReportGame(ctx context.Context, caller, owner domain.Identity, mode domain.GameMode, outcome domain.GameOutcome) (*domain.GameReport, error)
}

// TokenVerifier resolves an identity token to the identity that signed it
type TokenVerifier interface {
	Verify(token string) (domain.Identity, error)
}

// Consumer consumes game outcome messages from Kafka
type Consumer struct {
	config        *config.KafkaConfig
	processor     *processor
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, reporter GameReporter, verifier TokenVerifier, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		config:        cfg,
		processor:     newProcessor(cfg, reporter, verifier, logger),
		logger:        logger,
		consumerGroup: consumerGroup,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan bool),
	}, nil
}

// Start begins consuming messages from Kafka
func (c *Consumer) Start() error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &consumerGroupHandler{
				consumer: c,
				ready:    c.ready,
			}

			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Error("error from consumer", "error", err)
			}

			// Check if context was cancelled
			if c.ctx.Err() != nil {
				return
			}

			c.ready = make(chan bool)
		}
	}()

	// Wait until consumer is ready
	<-c.ready
	c.logger.Info("Kafka consumer ready")

	// Handle errors in separate goroutine
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ready    chan bool
}

// Setup is called at the beginning of a new session
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

// Cleanup is called at the end of a session
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim processes messages from a topic partition
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	cfg := h.consumer.config
	p := h.consumer.processor
	batch := make([]pendingOutcome, 0, cfg.BatchSize)
	batchTimer := time.NewTimer(cfg.BatchTimeout)
	defer batchTimer.Stop()

	processBatch := func() {
		if len(batch) == 0 {
			return
		}
		p.processBatch(session.Context(), batch)
		batch = batch[:0]
	}

	for {
		select {
		case <-session.Context().Done():
			// Process remaining batch before exit
			processBatch()
			return nil

		case <-batchTimer.C:
			processBatch()
			batchTimer.Reset(cfg.BatchTimeout)

		case message, ok := <-claim.Messages():
			if !ok {
				processBatch()
				return nil
			}

			outcome, err := p.decode(message.Value)
			if err != nil {
				h.consumer.logger.Warn("dropping invalid outcome message",
					"error", err,
					"offset", message.Offset,
					"partition", message.Partition,
				)
				session.MarkMessage(message, "")
				continue
			}

			batch = append(batch, outcome)
			session.MarkMessage(message, "")

			if len(batch) >= cfg.BatchSize {
				processBatch()
				batchTimer.Reset(cfg.BatchTimeout)
			}
		}
	}
}

// OutcomeMessage is the wire format of the game outcome topic. Player
// defaults to the identity that signed Token.
type OutcomeMessage struct {
	Token  string           `json:"token"`
	Player *domain.Identity `json:"player,omitempty"`
	Mode   domain.GameMode  `json:"mode"`
	Won    bool             `json:"won"`
	Delta  int32            `json:"delta"`
	Label  string           `json:"label"`
	PnL    int64            `json:"pnl"`
}

type pendingOutcome struct {
	caller  domain.Identity
	owner   domain.Identity
	mode    domain.GameMode
	outcome domain.GameOutcome
}

// processor decodes outcome messages and hands them to the ledger
type processor struct {
	reporter GameReporter
	verifier TokenVerifier
	config   *config.KafkaConfig
	logger   *slog.Logger
	sleep    func(time.Duration)
}

func newProcessor(cfg *config.KafkaConfig, reporter GameReporter, verifier TokenVerifier, logger *slog.Logger) *processor {
	return &processor{
		reporter: reporter,
		verifier: verifier,
		config:   cfg,
		logger:   logger,
		sleep:    time.Sleep,
	}
}

// decode parses a message and verifies its identity token. Unknown modes are
// rejected by the JSON decoder.
func (p *processor) decode(value []byte) (pendingOutcome, error) {
	var msg OutcomeMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return pendingOutcome{}, fmt.Errorf("unmarshaling message: %w", err)
	}
	if !msg.Mode.Valid() {
		return pendingOutcome{}, domain.ErrInvalidMode
	}

	caller, err := p.verifier.Verify(msg.Token)
	if err != nil {
		return pendingOutcome{}, err
	}

	owner := caller
	if msg.Player != nil {
		owner = *msg.Player
	}

	return pendingOutcome{
		caller: caller,
		owner:  owner,
		mode:   msg.Mode,
		outcome: domain.GameOutcome{
			Won:   msg.Won,
			Delta: msg.Delta,
			Label: msg.Label,
			PnL:   msg.PnL,
		},
	}, nil
}

// processBatch reports each outcome in order. Rejected outcomes are logged
// and skipped; infrastructure failures are retried.
func (p *processor) processBatch(ctx context.Context, batch []pendingOutcome) {
	reported := 0
	for _, o := range batch {
		if err := p.report(ctx, o); err != nil {
			p.logger.Error("failed to report game",
				"player", o.owner,
				"error", err,
			)
			continue
		}
		reported++
	}
	p.logger.Debug("processed batch", "batch_size", len(batch), "reported", reported)
}

func (p *processor) report(ctx context.Context, o pendingOutcome) error {
	var err error
	for attempt := 0; attempt <= p.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			p.sleep(p.config.RetryDelay)
		}

		reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, err = p.reporter.ReportGame(reqCtx, o.caller, o.owner, o.mode, o.outcome)
		cancel()

		if err == nil || !retryable(err) || ctx.Err() != nil {
			return err
		}
		p.logger.Warn("retrying game report", "player", o.owner, "attempt", attempt+1, "error", err)
	}
	return err
}

// retryable reports whether err may succeed on a later attempt
func retryable(err error) bool {
	switch {
	case domain.IsValidationError(err),
		domain.IsNotFoundError(err),
		errors.Is(err, domain.ErrUnauthorized):
		return false
	}
	return true
}
