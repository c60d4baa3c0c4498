package notification

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Level represents the tone of a user-facing notification
type Level string

const (
	LevelSuccess Level = "SUCCESS"
	LevelFailure Level = "FAILURE"
	LevelInfo    Level = "INFO"
	LevelWarning Level = "WARNING"
)

// Topic groups notifications by the component that raised them
type Topic string

const (
	TopicTransaction Topic = "transaction"
	TopicStep        Topic = "step"
	TopicDemo        Topic = "demo"
	TopicBadge       Topic = "badge"
	TopicLevel       Topic = "level"
	TopicDispute     Topic = "dispute"
	TopicRelease     Topic = "release"
)

// Message is a fire-and-forget notification for one wallet
type Message struct {
	MessageID uuid.UUID       `json:"messageId"`
	WalletID  string          `json:"walletId"`
	Topic     Topic           `json:"topic"`
	Level     Level           `json:"level"`
	Title     string          `json:"title"`
	Body      string          `json:"body"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// NewMessage creates a notification message
func NewMessage(walletID string, topic Topic, level Level, title, body string) *Message {
	return &Message{
		MessageID: uuid.New(),
		WalletID:  walletID,
		Topic:     topic,
		Level:     level,
		Title:     title,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
}

// WithPayload attaches a JSON payload; marshal failures leave it empty
func (m *Message) WithPayload(v interface{}) *Message {
	if data, err := json.Marshal(v); err == nil {
		m.Payload = data
	}
	return m
}

// SSEClient represents an active SSE connection
type SSEClient struct {
	ClientID    string
	WalletID    *string
	Groups      []string
	ConnectedAt time.Time
	MessageChan chan *SSEMessage
}

// NewSSEClient creates a new SSE client
func NewSSEClient(clientID string, walletID *string, groups []string) *SSEClient {
	return &SSEClient{
		ClientID:    clientID,
		WalletID:    walletID,
		Groups:      groups,
		ConnectedAt: time.Now().UTC(),
		MessageChan: make(chan *SSEMessage, 100),
	}
}

// Close closes the client's message channel
func (c *SSEClient) Close() {
	close(c.MessageChan)
}

// SSEMessage represents a message to be sent via SSE
type SSEMessage struct {
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Retry     *int            `json:"retry,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewSSEMessage creates a new SSE message
func NewSSEMessage(event string, data json.RawMessage) *SSEMessage {
	return &SSEMessage{
		ID:        uuid.New().String(),
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}
