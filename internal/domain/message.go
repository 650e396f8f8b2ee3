package domain

import (
	"strings"
	"time"
)

// GroupJIDSuffix is the chat domain for group conversations; individual
// chats use UserJIDSuffix.
const (
	GroupJIDSuffix = "@g.us"
	UserJIDSuffix  = "@c.us"
)

// InboundMessage is a message received on the live session, normalized for
// webhook delivery and the local message log.
type InboundMessage struct {
	From      string    `json:"from"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
	ChatID    string    `json:"chatId"`
	HasMedia  bool      `json:"hasMedia"`
}

// IsGroup reports whether the message originated in a group chat, derived
// from the sender's JID domain.
func (m InboundMessage) IsGroup() bool {
	return strings.HasSuffix(m.From, GroupJIDSuffix)
}

// Chat is one conversation known to the session.
type Chat struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IsGroup bool   `json:"isGroup"`
}
