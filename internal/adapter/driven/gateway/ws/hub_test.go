package ws

import (
	"sync"
	"testing"
	"time"

	"github.com/Wyydra/callrelay/internal/core/domain"
)

type closeRecorder struct {
	id domain.ConnID

	mu     sync.Mutex
	closed int
}

func (c *closeRecorder) ID() domain.ConnID { return c.id }

func (c *closeRecorder) Close() error {
	c.mu.Lock()
	c.closed++
	c.mu.Unlock()
	return nil
}

func (c *closeRecorder) closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubRegisterUnregister(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Stop()

	a := &closeRecorder{id: domain.NewConnID()}
	b := &closeRecorder{id: domain.NewConnID()}
	h.Register(a)
	h.Register(b)
	waitFor(t, func() bool { return h.Count() == 2 })

	h.Unregister(a)
	h.Unregister(a)
	waitFor(t, func() bool { return h.Count() == 1 })
	if a.closes() != 0 {
		t.Fatalf("unregister closed the client")
	}
}

func TestHubStopClosesClients(t *testing.T) {
	h := NewHub()
	go h.Run()

	clients := []*closeRecorder{
		{id: domain.NewConnID()},
		{id: domain.NewConnID()},
	}
	for _, c := range clients {
		h.Register(c)
	}
	waitFor(t, func() bool { return h.Count() == 2 })

	h.Stop()
	h.Stop()

	for _, c := range clients {
		if c.closes() != 1 {
			t.Fatalf("client closed %d times", c.closes())
		}
	}
	if h.Count() != 0 {
		t.Fatalf("Count = %d after stop", h.Count())
	}

	late := &closeRecorder{id: domain.NewConnID()}
	h.Register(late)
	if late.closes() != 1 {
		t.Fatalf("client registered after stop was not closed")
	}
}
