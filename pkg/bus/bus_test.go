package bus

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestPublishInbound_FullQueueIsError(t *testing.T) {
	b := New(2)
	if err := b.PublishInbound(Inbound{Text: "a"}); err != nil {
		t.Fatalf("publish 1: %v", err)
	}
	if err := b.PublishInbound(Inbound{Text: "b"}); err != nil {
		t.Fatalf("publish 2: %v", err)
	}
	if err := b.PublishInbound(Inbound{Text: "c"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestDispatch_RepliesOnOutbound(t *testing.T) {
	b := New(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go b.Dispatch(ctx, func(ctx context.Context, msg Inbound) (string, error) {
		return "回复:" + msg.Text, nil
	}, nil)

	if err := b.PublishInbound(Inbound{Channel: "discord", ReplyTo: "chan-1", Text: "今晚吃什么"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case out := <-b.Outbound():
		if out.Channel != "discord" || out.ReplyTo != "chan-1" {
			t.Fatalf("routing lost: %+v", out)
		}
		if out.Text != "回复:今晚吃什么" {
			t.Fatalf("unexpected reply %q", out.Text)
		}
	case <-time.After(time.Second):
		t.Fatalf("no outbound message")
	}
}

func TestDispatch_HandlerErrorDropsMessage(t *testing.T) {
	b := New(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go b.Dispatch(ctx, func(ctx context.Context, msg Inbound) (string, error) {
		return "", fmt.Errorf("generator down")
	}, func(msg Inbound, err error) {
		errCh <- err
	})

	if err := b.PublishInbound(Inbound{Text: "hi"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatalf("expected error callback")
		}
	case <-time.After(time.Second):
		t.Fatalf("error callback never fired")
	}
	select {
	case out := <-b.Outbound():
		t.Fatalf("unexpected outbound %+v", out)
	case <-time.After(50 * time.Millisecond):
	}
}
