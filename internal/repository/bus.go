package repository

// MessageBus publishes ledger events. Implementations live under internal/transport.
type MessageBus interface {
	Publish(topic string, data []byte) error
}

// NopBus drops every message.
type NopBus struct{}

func (NopBus) Publish(string, []byte) error { return nil }
