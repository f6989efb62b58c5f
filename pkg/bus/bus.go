package bus

import (
	"context"
	"errors"
)

// ErrQueueFull is returned when a bounded queue cannot accept another
// message; publishers decide whether to drop or retry.
var ErrQueueFull = errors.New("message queue full")

// Inbound is one user utterance arriving from a channel adapter.
type Inbound struct {
	Channel string // adapter name, e.g. "discord"
	UserID  string // engine user id, stable across sessions
	Text    string
	ReplyTo string // adapter-specific reply address
}

// Outbound is one reply heading back to a channel adapter.
type Outbound struct {
	Channel string
	ReplyTo string
	Text    string
}

// Bus decouples channel adapters from the engine with bounded queues:
// adapters publish inbound and consume outbound, the dispatcher does
// the reverse. Bounded capacity keeps a slow generator from buffering
// unlimited chat backlog.
type Bus struct {
	in  chan Inbound
	out chan Outbound
}

func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 64
	}
	return &Bus{
		in:  make(chan Inbound, capacity),
		out: make(chan Outbound, capacity),
	}
}

// PublishInbound enqueues without blocking; a full queue is an error.
func (b *Bus) PublishInbound(msg Inbound) error {
	select {
	case b.in <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// PublishOutbound enqueues without blocking; a full queue is an error.
func (b *Bus) PublishOutbound(msg Outbound) error {
	select {
	case b.out <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Outbound returns the consumer side of the reply queue.
func (b *Bus) Outbound() <-chan Outbound { return b.out }

// Handler produces the reply for one inbound message.
type Handler func(ctx context.Context, msg Inbound) (string, error)

// Dispatch consumes inbound messages until ctx is cancelled, invoking
// handler for each and publishing the reply. Handler errors drop the
// message; the adapters surface their own failure text to users.
func (b *Bus) Dispatch(ctx context.Context, handler Handler, onError func(Inbound, error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.in:
			reply, err := handler(ctx, msg)
			if err != nil {
				if onError != nil {
					onError(msg, err)
				}
				continue
			}
			if err := b.PublishOutbound(Outbound{
				Channel: msg.Channel,
				ReplyTo: msg.ReplyTo,
				Text:    reply,
			}); err != nil && onError != nil {
				onError(msg, err)
			}
		}
	}
}
