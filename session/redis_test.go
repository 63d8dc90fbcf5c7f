package session

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestRedisMirrorQueueDropsWhenFull(t *testing.T) {
	m := &RedisMirror{
		queue:  make(chan mirrorOp, 2),
		logger: zap.NewNop(),
	}

	m.Created("a", time.Now())
	m.Updated("a", 10, time.Now())
	// queue is full; this must not block
	m.Removed("a")

	if len(m.queue) != 2 {
		t.Fatalf("queue length = %d, want 2", len(m.queue))
	}

	first := <-m.queue
	if first.kind != opCreated || first.id != "a" {
		t.Errorf("first op = %+v, want created a", first)
	}
	second := <-m.queue
	if second.kind != opUpdated || second.pcmLength != 10 {
		t.Errorf("second op = %+v, want updated a 10", second)
	}
}

func TestSessionKey(t *testing.T) {
	if got := sessionKey("abc"); got != "session:abc" {
		t.Errorf("sessionKey = %q, want session:abc", got)
	}
}
