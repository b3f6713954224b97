package grpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

var ErrBusFull = errors.New("grpc bus buffer is full")

const publishTimeout = 5 * time.Second

// GrpcBus publishes events to a remote EventService over gRPC.
// Used when BusProvider == "grpc" in config. Publish only enqueues; a single sender
// forwards events in order so the caller never waits on the network.
type GrpcBus struct {
	client *eventClient
	queue  chan *EventRequest
	done   chan struct{}
	once   sync.Once
	mu     sync.RWMutex
	closed bool
	logger *zap.Logger
}

// NewGrpcBusFromAddr dials the remote EventService and returns a GrpcBus and a cleanup function.
func NewGrpcBusFromAddr(addr string, bufferSize int, logger *zap.Logger) (*GrpcBus, func(), error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("dial event service %s: %w", addr, err)
	}
	bus := NewGrpcBus(conn, bufferSize, logger)
	cleanup := func() {
		bus.Close()
		_ = conn.Close()
	}
	return bus, cleanup, nil
}

func NewGrpcBus(cc grpc.ClientConnInterface, bufferSize int, logger *zap.Logger) *GrpcBus {
	if bufferSize < 1 {
		bufferSize = 1
	}
	b := &GrpcBus{
		client: &eventClient{cc: cc},
		queue:  make(chan *EventRequest, bufferSize),
		done:   make(chan struct{}),
		logger: logger.With(zap.String("component", "grpc-bus")),
	}
	go b.run()
	return b
}

// Publish enqueues an event. It fails fast when the buffer is full or the bus is closed.
func (b *GrpcBus) Publish(topic string, data []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return errors.New("grpc bus is closed")
	}
	select {
	case b.queue <- &EventRequest{Topic: topic, Payload: data}:
		return nil
	default:
		return ErrBusFull
	}
}

func (b *GrpcBus) run() {
	defer close(b.done)
	for req := range b.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		res, err := b.client.Publish(ctx, req)
		cancel()
		switch {
		case err != nil:
			b.logger.Error("failed to deliver event", zap.String("topic", req.Topic), zap.Error(err))
		case !res.Success:
			b.logger.Warn("event rejected by remote", zap.String("topic", req.Topic), zap.String("error", res.ErrorMessage))
		}
	}
}

// Close stops accepting events and waits until the queued ones are sent.
func (b *GrpcBus) Close() {
	b.once.Do(func() {
		b.mu.Lock()
		b.closed = true
		close(b.queue)
		b.mu.Unlock()
	})
	<-b.done
}
