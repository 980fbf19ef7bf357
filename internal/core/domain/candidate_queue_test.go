package domain

import (
	"errors"
	"testing"
)

func TestCandidateQueueOrderAndLimit(t *testing.T) {
	q := NewCandidateQueue(3)
	for _, p := range []string{"c1", "c2", "c3"} {
		if err := q.Push([]byte(p)); err != nil {
			t.Fatalf("Push(%s): %v", p, err)
		}
	}
	if err := q.Push([]byte("c4")); !errors.Is(err, ErrCandidateBufferFull) {
		t.Fatalf("Push over limit: %v", err)
	}

	got := q.Drain()
	if len(got) != 3 || string(got[0]) != "c1" || string(got[2]) != "c3" {
		t.Fatalf("Drain = %q", got)
	}
	if q.Len() != 0 || len(q.Drain()) != 0 {
		t.Fatalf("queue not empty after drain")
	}
	if err := q.Push([]byte("c5")); err != nil {
		t.Fatalf("Push after drain: %v", err)
	}
}

func TestCandidateQueueUnbounded(t *testing.T) {
	q := NewCandidateQueue(0)
	for i := 0; i < 1000; i++ {
		if err := q.Push([]byte{byte(i)}); err != nil {
			t.Fatalf("Push #%d: %v", i, err)
		}
	}
	if q.Len() != 1000 {
		t.Fatalf("Len = %d", q.Len())
	}
}
