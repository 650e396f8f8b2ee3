// Package controller owns the session lifecycle: it drives initialization,
// consumes client events in order, and self-heals through the restart guard
// when the session dies, re-pairs, or goes silently stale.
package controller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/wabridge/wabridge/internal/client"
	"github.com/wabridge/wabridge/internal/domain"
	"github.com/wabridge/wabridge/internal/state"
	"github.com/wabridge/wabridge/internal/storage"
	"github.com/wabridge/wabridge/internal/webhook"
)

const (
	DefaultSettleDelay = 5 * time.Second

	defaultDestroyTimeout  = 10 * time.Second
	defaultEventBufferSize = 64

	rapidRestartThreshold = 3
	rapidRestartWindow    = 2 * time.Minute
	rapidRestartPenalty   = 30 * time.Second
)

var ErrNotReady = errors.New("session not ready")

// Config tunes the controller's recovery behavior.
type Config struct {
	// SettleDelay is the pause before reinitializing after teardown, so the
	// external service finishes its own cleanup first.
	SettleDelay time.Duration
}

// Controller is the lifecycle state machine. It is the sole writer of the
// state store: client events are drained on one goroutine, so they are
// applied strictly in emission order.
type Controller struct {
	cfg      Config
	logger   *zap.Logger
	store    *state.Store
	factory  client.Factory
	relay    *webhook.Relay
	caches   storage.CacheDirs
	clock    clock.Clock
	throttle *restartThrottle

	events chan domain.Event

	mu  sync.Mutex
	cli client.Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config, logger *zap.Logger, store *state.Store, factory client.Factory, relay *webhook.Relay, caches storage.CacheDirs, clk clock.Clock) *Controller {
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if clk == nil {
		clk = clock.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		factory:  factory,
		relay:    relay,
		caches:   caches,
		clock:    clk,
		throttle: newRestartThrottle(rapidRestartThreshold, rapidRestartWindow, rapidRestartPenalty),
		events:   make(chan domain.Event, defaultEventBufferSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the event loop and kicks off the first initialization.
func (c *Controller) Start() {
	c.wg.Add(1)
	go c.loop()
	c.initialize()
}

// Stop shuts the controller down: no more recoveries, current client
// destroyed, event loop drained.
func (c *Controller) Stop() {
	c.cancel()

	c.mu.Lock()
	cli := c.cli
	c.cli = nil
	c.mu.Unlock()
	if cli != nil {
		ctx, cancel := context.WithTimeout(context.Background(), defaultDestroyTimeout)
		if err := cli.Destroy(ctx); err != nil {
			c.logger.Debug("destroy on shutdown failed", zap.Error(err))
		}
		cancel()
	}

	c.wg.Wait()
}

func (c *Controller) loop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.events:
			c.handleEvent(ev)
		}
	}
}

// handleEvent applies one client event to the state machine. Events with no
// defined transition from the current phase are ignored without side
// effects.
func (c *Controller) handleEvent(ev domain.Event) {
	switch ev.Type {
	case domain.EventTypeQR:
		data, ok := ev.Data.(domain.QRData)
		if !ok {
			return
		}
		if c.store.SetQR(data.Payload) {
			c.logger.Info("qr code received, awaiting pairing")
		} else {
			c.logger.Debug("ignoring qr event", zap.Stringer("phase", c.store.Phase()))
		}

	case domain.EventTypeAuthenticated:
		if c.store.SetAuthenticated() {
			c.logger.Info("session authenticated")
		} else {
			c.logger.Debug("ignoring authenticated event", zap.Stringer("phase", c.store.Phase()))
		}

	case domain.EventTypeReady:
		if c.store.SetReady(c.clock.Now()) {
			c.throttle.Reset()
			c.logger.Info("session ready")
		} else {
			c.logger.Debug("ignoring ready event", zap.Stringer("phase", c.store.Phase()))
		}

	case domain.EventTypeMessage:
		data, ok := ev.Data.(domain.MessageData)
		if !ok {
			return
		}
		snap := c.store.Snapshot()
		if !snap.Listening {
			return
		}
		c.relay.Deliver(snap.WebhookURL, data.Message)

	case domain.EventTypeAuthFailure:
		reason := "auth failure"
		if data, ok := ev.Data.(domain.AuthFailureData); ok && data.Reason != "" {
			reason = "auth failure: " + data.Reason
		}
		go c.Recover(true, reason)

	case domain.EventTypeDisconnected:
		reason := "disconnected"
		if data, ok := ev.Data.(domain.DisconnectedData); ok && data.Reason != "" {
			reason = "disconnected: " + data.Reason
		}
		go c.Recover(false, reason)
	}
}

// Recover runs the recovery sequence: guard, best-effort teardown, optional
// credential wipe, settle delay, reinitialize. The guard check is the first
// thing that happens, before any blocking call, so concurrent triggers
// collapse to exactly one recovery; the losers are dropped no-ops.
func (c *Controller) Recover(wipe bool, reason string) {
	if !c.store.BeginRestart() {
		c.logger.Debug("recovery already in flight, dropping trigger",
			zap.String("reason", reason))
		return
	}

	c.logger.Warn("restarting session",
		zap.String("reason", reason), zap.Bool("wipe_credentials", wipe))

	c.mu.Lock()
	cli := c.cli
	c.cli = nil
	c.mu.Unlock()
	if cli != nil {
		ctx, cancel := context.WithTimeout(context.Background(), defaultDestroyTimeout)
		if err := cli.Destroy(ctx); err != nil {
			// The session may already be dead; teardown is best effort.
			c.logger.Debug("destroy failed during recovery", zap.Error(err))
		}
		cancel()
	}

	if wipe {
		if err := c.caches.Wipe(); err != nil {
			c.logger.Warn("credential wipe incomplete", zap.Error(err))
		} else {
			c.logger.Info("credential caches wiped, next start will re-pair")
		}
	}

	delay := c.cfg.SettleDelay + c.throttle.RecordRestart(c.clock.Now())
	c.logger.Info("settling before reinitialization", zap.Duration("delay", delay))
	select {
	case <-c.clock.After(delay):
	case <-c.ctx.Done():
		return
	}

	c.store.EndRestart()
	c.initialize()
}

// initialize builds a fresh client and connects it. A failed attempt feeds
// back into recovery, which paces the retry.
func (c *Controller) initialize() {
	if c.ctx.Err() != nil {
		return
	}
	c.store.ResetForInit()
	c.logger.Info("initializing session")

	cli, err := c.factory(c.events)
	if err == nil {
		err = cli.Connect(c.ctx)
	}
	if err != nil {
		c.logger.Error("session initialization failed", zap.Error(err))
		go c.Recover(false, "initialization failed")
		return
	}

	c.mu.Lock()
	c.cli = cli
	c.mu.Unlock()
}

// SendMessage normalizes the target and forwards to the live client. The
// caller is responsible for the ready-phase gate; this only fails when the
// handle is missing or the provider rejects the send.
func (c *Controller) SendMessage(ctx context.Context, target, body string, opts *client.SendOptions) (*client.SendResponse, error) {
	cli := c.currentClient()
	if cli == nil {
		return nil, ErrNotReady
	}
	return cli.SendMessage(ctx, client.NormalizeJID(target), body, opts)
}

// GetChats enumerates chats on the live client.
func (c *Controller) GetChats(ctx context.Context) ([]domain.Chat, error) {
	cli := c.currentClient()
	if cli == nil {
		return nil, ErrNotReady
	}
	return cli.GetChats(ctx)
}

func (c *Controller) currentClient() client.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cli
}
