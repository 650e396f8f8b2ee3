package domain

import "time"

type EventType int

const (
	EventTypeQR EventType = iota
	EventTypeAuthenticated
	EventTypeReady
	EventTypeMessage
	EventTypeAuthFailure
	EventTypeDisconnected
)

func (t EventType) String() string {
	switch t {
	case EventTypeQR:
		return "qr"
	case EventTypeAuthenticated:
		return "authenticated"
	case EventTypeReady:
		return "ready"
	case EventTypeMessage:
		return "message"
	case EventTypeAuthFailure:
		return "auth_failure"
	case EventTypeDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is a single lifecycle or message event emitted by the session client.
// Events are delivered to the controller on a channel and processed strictly
// in emission order.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      any
}

type QRData struct {
	Payload string
}

type MessageData struct {
	Message InboundMessage
}

type AuthFailureData struct {
	Reason string
}

type DisconnectedData struct {
	Reason string
}

func NewQREvent(payload string) Event {
	return Event{
		Type:      EventTypeQR,
		Timestamp: time.Now(),
		Data:      QRData{Payload: payload},
	}
}

func NewAuthenticatedEvent() Event {
	return Event{
		Type:      EventTypeAuthenticated,
		Timestamp: time.Now(),
	}
}

func NewReadyEvent() Event {
	return Event{
		Type:      EventTypeReady,
		Timestamp: time.Now(),
	}
}

func NewMessageEvent(msg InboundMessage) Event {
	return Event{
		Type:      EventTypeMessage,
		Timestamp: time.Now(),
		Data:      MessageData{Message: msg},
	}
}

func NewAuthFailureEvent(reason string) Event {
	return Event{
		Type:      EventTypeAuthFailure,
		Timestamp: time.Now(),
		Data:      AuthFailureData{Reason: reason},
	}
}

func NewDisconnectedEvent(reason string) Event {
	return Event{
		Type:      EventTypeDisconnected,
		Timestamp: time.Now(),
		Data:      DisconnectedData{Reason: reason},
	}
}
