// Package client defines the session handle contract: the opaque connection
// to the messaging network that the lifecycle controller owns, tears down,
// and rebuilds. The bridge subpackage provides the production implementation.
package client

import (
	"context"

	"github.com/wabridge/wabridge/internal/domain"
)

// SendOptions carries optional send parameters.
type SendOptions struct {
	// QuotedMessageID attaches a quoted-message reference, turning the send
	// into a reply.
	QuotedMessageID string
}

// SendResponse is the provider's acknowledgement of a sent message.
type SendResponse struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Ack       int    `json:"ack,omitempty"`
}

// Client is a live session handle. Lifecycle events flow out on the event
// channel the client was constructed with; the controller drains that channel
// on a single goroutine, so events are observed in emission order.
//
// Destroy must be safe to call on a handle that is already dead: during
// recovery the session may have failed long before teardown runs.
type Client interface {
	// Connect starts the session. It returns once the connection attempt is
	// underway; events (qr, authenticated, ready, ...) may arrive on the
	// event channel any time after the call.
	Connect(ctx context.Context) error

	// Destroy tears the session down. Idempotent.
	Destroy(ctx context.Context) error

	// SendMessage delivers body to the fully-qualified jid.
	SendMessage(ctx context.Context, jid, body string, opts *SendOptions) (*SendResponse, error)

	// GetChats enumerates the conversations known to the session.
	GetChats(ctx context.Context) ([]domain.Chat, error)
}

// Factory constructs a fresh Client wired to the given event channel. The
// controller calls it on every (re)initialization; handles are never reused
// across recoveries.
type Factory func(events chan<- domain.Event) (Client, error)
