package notification

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_sink.go -package=mocks . Sink

import (
	"context"
)

// Sink delivers notifications. Delivery is fire-and-forget and never
// affects the outcome of the operation that raised the notification.
type Sink interface {
	Notify(ctx context.Context, msg *Message)
}

// SSEHub defines the interface for managing SSE connections
type SSEHub interface {
	Sink

	Register(client *SSEClient)
	Unregister(clientID string)

	BroadcastToAll(message *SSEMessage)
	BroadcastToWallet(walletID string, message *SSEMessage)

	Stop()
}

// NopSink discards every notification
type NopSink struct{}

func (NopSink) Notify(context.Context, *Message) {}
