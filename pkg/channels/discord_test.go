package channels

import (
	"testing"

	"github.com/linqiu/chefmate/pkg/bus"
	"github.com/linqiu/chefmate/pkg/logger"
)

func TestNewDiscord_RequiresToken(t *testing.T) {
	if _, err := NewDiscord("  ", nil, bus.New(4), logger.Nop()); err == nil {
		t.Fatalf("expected error without token")
	}
}

func TestAllowed(t *testing.T) {
	d, err := NewDiscord("tok", []string{"123", " 456 ", ""}, bus.New(4), logger.Nop())
	if err != nil {
		t.Fatalf("new discord: %v", err)
	}
	if !d.allowed("123") || !d.allowed("456") {
		t.Fatalf("allowlisted author rejected")
	}
	if d.allowed("789") {
		t.Fatalf("unlisted author accepted")
	}

	open, err := NewDiscord("tok", nil, bus.New(4), logger.Nop())
	if err != nil {
		t.Fatalf("new discord: %v", err)
	}
	if !open.allowed("anyone") {
		t.Fatalf("empty allowlist must admit everyone")
	}
}

func TestStripMention(t *testing.T) {
	if got := stripMention("<@99> 今晚吃什么", "99"); got != " 今晚吃什么" {
		t.Fatalf("unexpected strip result %q", got)
	}
	if got := stripMention("<@!99>来点辣的", "99"); got != "来点辣的" {
		t.Fatalf("unexpected strip result %q", got)
	}
	if got := stripMention("无提及", "99"); got != "无提及" {
		t.Fatalf("plain content changed: %q", got)
	}
}
