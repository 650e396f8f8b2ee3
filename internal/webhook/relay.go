// Package webhook forwards inbound messages to an operator-configured URL.
// Delivery is strictly fire-and-forget: failures are logged and recorded,
// never retried, and never fed back into session state.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wabridge/wabridge/internal/domain"
	"github.com/wabridge/wabridge/internal/storage"
)

const (
	DefaultMaxInFlight    = 8
	defaultRequestTimeout = 10 * time.Second
)

// Payload is the normalized body POSTed to the webhook.
type Payload struct {
	From      string    `json:"from"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
	ChatID    string    `json:"chatId"`
	IsGroup   bool      `json:"isGroup"`
	HasMedia  bool      `json:"hasMedia"`
}

// Relay posts inbound messages to the configured webhook with a bounded
// number of in-flight deliveries.
type Relay struct {
	client *http.Client
	logger *zap.Logger
	log    *storage.MessageLog
	sem    chan struct{}
	wg     sync.WaitGroup
}

// New creates a Relay. messageLog may be nil, in which case outcomes are not
// recorded.
func New(logger *zap.Logger, messageLog *storage.MessageLog, maxInFlight int) *Relay {
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	return &Relay{
		client: &http.Client{Timeout: defaultRequestTimeout},
		logger: logger,
		log:    messageLog,
		sem:    make(chan struct{}, maxInFlight),
	}
}

// Deliver records the message and, when url is non-empty, spawns an
// asynchronous POST. When all delivery slots are busy the message is logged
// as failed rather than queued: backpressure here must never stall the
// controller's event loop.
func (r *Relay) Deliver(url string, msg domain.InboundMessage) {
	var logID int64
	if r.log != nil {
		id, err := r.log.RecordInbound(msg)
		if err != nil {
			r.logger.Warn("failed to record inbound message", zap.Error(err))
		} else {
			logID = id
		}
	}

	if url == "" {
		return
	}

	select {
	case r.sem <- struct{}{}:
	default:
		r.logger.Warn("webhook delivery dropped, too many in flight",
			zap.String("chat_id", msg.ChatID))
		r.recordOutcome(logID, storage.DeliveryFailed)
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() { <-r.sem }()
		r.post(url, msg, logID)
	}()
}

func (r *Relay) post(url string, msg domain.InboundMessage, logID int64) {
	payload := Payload{
		From:      msg.From,
		Body:      msg.Body,
		Timestamp: msg.Timestamp,
		ChatID:    msg.ChatID,
		IsGroup:   msg.IsGroup(),
		HasMedia:  msg.HasMedia,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		r.logger.Warn("failed to marshal webhook payload", zap.Error(err))
		r.recordOutcome(logID, storage.DeliveryFailed)
		return
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		r.logger.Warn("failed to build webhook request", zap.Error(err))
		r.recordOutcome(logID, storage.DeliveryFailed)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warn("webhook delivery failed",
			zap.String("url", url), zap.Error(err))
		r.recordOutcome(logID, storage.DeliveryFailed)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		r.logger.Warn("webhook rejected delivery",
			zap.String("url", url), zap.Int("status", resp.StatusCode))
		r.recordOutcome(logID, storage.DeliveryFailed)
		return
	}

	r.logger.Debug("webhook delivered",
		zap.String("chat_id", msg.ChatID), zap.Int("status", resp.StatusCode))
	r.recordOutcome(logID, storage.DeliveryDelivered)
}

func (r *Relay) recordOutcome(logID int64, status storage.DeliveryStatus) {
	if r.log == nil || logID == 0 {
		return
	}
	if err := r.log.SetDelivery(logID, status); err != nil {
		r.logger.Warn("failed to record delivery outcome", zap.Error(err))
	}
}

// Wait blocks until all in-flight deliveries finish. Used in shutdown and
// tests.
func (r *Relay) Wait() {
	r.wg.Wait()
}
