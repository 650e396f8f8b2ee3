package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wabridge/wabridge/internal/domain"
)

// MessageLog is a SQLite-backed audit trail of inbound messages and their
// webhook delivery outcomes. It is append-only from the relay's point of
// view; the HTTP facade reads recent entries back out.
type MessageLog struct {
	db *sql.DB
}

// DeliveryStatus records what happened to a webhook delivery attempt.
type DeliveryStatus string

const (
	DeliverySkipped   DeliveryStatus = "skipped"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// LoggedMessage is one inbound message as read back from the log.
type LoggedMessage struct {
	ID        int64          `json:"id"`
	From      string         `json:"from"`
	Body      string         `json:"body"`
	ChatID    string         `json:"chatId"`
	IsGroup   bool           `json:"isGroup"`
	HasMedia  bool           `json:"hasMedia"`
	Timestamp time.Time      `json:"timestamp"`
	Delivery  DeliveryStatus `json:"delivery"`
}

// OpenMessageLog creates or opens the log database at the given path.
func OpenMessageLog(dbPath string) (*MessageLog, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?cache=shared&mode=rwc&_journal_mode=WAL", dbPath))
	if err != nil {
		return nil, fmt.Errorf("open message log: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	log := &MessageLog{db: db}
	if err := log.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate message log: %w", err)
	}
	return log, nil
}

func (l *MessageLog) Close() error {
	return l.db.Close()
}

func (l *MessageLog) migrate() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS inbound_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sender TEXT NOT NULL,
			body TEXT NOT NULL,
			chat_id TEXT NOT NULL,
			is_group INTEGER NOT NULL DEFAULT 0,
			has_media INTEGER NOT NULL DEFAULT 0,
			received_at TIMESTAMP NOT NULL,
			delivery TEXT NOT NULL DEFAULT 'skipped'
		)
	`)
	if err != nil {
		return fmt.Errorf("create inbound_messages: %w", err)
	}
	_, err = l.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_inbound_received_at
		ON inbound_messages (received_at DESC)
	`)
	if err != nil {
		return fmt.Errorf("create received_at index: %w", err)
	}
	return nil
}

// RecordInbound appends a message and returns its row ID so the delivery
// outcome can be attached later.
func (l *MessageLog) RecordInbound(msg domain.InboundMessage) (int64, error) {
	res, err := l.db.Exec(`
		INSERT INTO inbound_messages (sender, body, chat_id, is_group, has_media, received_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.From, msg.Body, msg.ChatID, msg.IsGroup(), msg.HasMedia, msg.Timestamp.UTC())
	if err != nil {
		return 0, fmt.Errorf("record inbound message: %w", err)
	}
	return res.LastInsertId()
}

// SetDelivery updates the webhook outcome for a logged message.
func (l *MessageLog) SetDelivery(id int64, status DeliveryStatus) error {
	_, err := l.db.Exec(`UPDATE inbound_messages SET delivery = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("set delivery status: %w", err)
	}
	return nil
}

// RecentInbound returns up to limit messages, newest first.
func (l *MessageLog) RecentInbound(limit int) ([]LoggedMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.Query(`
		SELECT id, sender, body, chat_id, is_group, has_media, received_at, delivery
		FROM inbound_messages
		ORDER BY received_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	defer rows.Close()

	messages := make([]LoggedMessage, 0, limit)
	for rows.Next() {
		var m LoggedMessage
		var delivery string
		if err := rows.Scan(&m.ID, &m.From, &m.Body, &m.ChatID, &m.IsGroup, &m.HasMedia, &m.Timestamp, &delivery); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		m.Delivery = DeliveryStatus(delivery)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
