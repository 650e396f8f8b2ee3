// Package api defines the wire types of the HTTP control surface.
package api

import "time"

// SessionStatus is the collapsed external view of the session: anything that
// is not fully ready reports disconnected, whatever the internal cause.
type SessionStatus string

const (
	StatusConnected    SessionStatus = "connected"
	StatusDisconnected SessionStatus = "disconnected"
)

type HealthResponse struct {
	Status        SessionStatus `json:"status"`
	Authenticated bool          `json:"authenticated"`
	UptimeSeconds int64         `json:"uptime"`
	Timestamp     time.Time     `json:"timestamp"`
}

// QRResponse carries either the encoded QR image or an informational
// message, never both.
type QRResponse struct {
	QR      string `json:"qr,omitempty"`
	Message string `json:"message,omitempty"`
}

type SendRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

type ReplyRequest struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
	ReplyText string `json:"replyText"`
}

type SendResponse struct {
	Success  bool   `json:"success"`
	Response any    `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

type Group struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type GroupsResponse struct {
	Groups []Group `json:"groups"`
}

type ListenResponse struct {
	Message string `json:"message"`
}

type WebhookSetRequest struct {
	URL string `json:"url"`
}

type WebhookSetResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
}

type LoggedMessage struct {
	ID        int64     `json:"id"`
	From      string    `json:"from"`
	Body      string    `json:"body"`
	ChatID    string    `json:"chatId"`
	IsGroup   bool      `json:"isGroup"`
	HasMedia  bool      `json:"hasMedia"`
	Timestamp time.Time `json:"timestamp"`
	Delivery  string    `json:"delivery"`
}

type MessagesResponse struct {
	Messages []LoggedMessage `json:"messages"`
}

type ErrorResponse struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}
