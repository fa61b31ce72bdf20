package ephemeral

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestStore_SetGetDelete(t *testing.T) {
	s := New()
	defer s.Stop()

	s.Set("k", 42, 0)
	v, ok := s.Get("k")
	if !ok || v.(int) != 42 {
		t.Fatalf("Get(k) = %v, %v; want 42, true", v, ok)
	}

	s.Delete("k")
	if _, ok := s.Get("k"); ok {
		t.Fatalf("expected k gone after delete")
	}
}

func TestStore_TTLExpires(t *testing.T) {
	s := New()
	defer s.Stop()

	s.Set("short", "x", 20*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	if _, ok := s.Get("short"); ok {
		t.Fatalf("expected short-lived key to expire")
	}
}

func TestStore_TTLReported(t *testing.T) {
	s := New()
	defer s.Stop()

	s.Set("bounded", "x", time.Hour)
	ttl, ok := s.TTL("bounded")
	if !ok || ttl <= 0 {
		t.Fatalf("TTL(bounded) = %v, %v; want positive, true", ttl, ok)
	}

	if _, ok := s.TTL("absent"); ok {
		t.Fatalf("expected no TTL for an absent key")
	}
}

func TestStore_ClearAuction(t *testing.T) {
	s := New()
	defer s.Stop()

	gone, kept := uuid.New(), uuid.New()
	s.Set(RTMKey(gone), "state", time.Hour)
	s.Set(BidMirrorKey(gone), "mirror", time.Hour)
	s.PushBack(QueueKey(gone, "M1"), uuid.New())
	s.PushBack(AcceleratedQueueKey(gone), uuid.New())
	s.Set(RTMKey(kept), "state", time.Hour)
	s.PushBack(QueueKey(kept, "M1"), uuid.New())

	s.ClearAuction(gone)

	if _, ok := s.Get(RTMKey(gone)); ok {
		t.Fatalf("expected rtm key cleared")
	}
	if _, ok := s.Get(BidMirrorKey(gone)); ok {
		t.Fatalf("expected bid mirror cleared")
	}
	if n := s.ListLen(QueueKey(gone, "M1")); n != 0 {
		t.Fatalf("set queue len = %d, want 0", n)
	}
	if n := s.ListLen(AcceleratedQueueKey(gone)); n != 0 {
		t.Fatalf("accelerated queue len = %d, want 0", n)
	}

	// Other auctions are untouched.
	if _, ok := s.Get(RTMKey(kept)); !ok {
		t.Fatalf("expected other auction's rtm key intact")
	}
	if n := s.ListLen(QueueKey(kept, "M1")); n != 1 {
		t.Fatalf("other auction's queue len = %d, want 1", n)
	}
}

func TestStore_ListFIFO(t *testing.T) {
	s := New()
	defer s.Stop()

	a, b := uuid.New(), uuid.New()
	s.PushBack("q", a)
	s.PushBack("q", b)
	if n := s.ListLen("q"); n != 2 {
		t.Fatalf("ListLen = %d, want 2", n)
	}

	got, ok := s.PopFront("q")
	if !ok || got != a {
		t.Fatalf("first pop = %v, want %v", got, a)
	}
	got, ok = s.PopFront("q")
	if !ok || got != b {
		t.Fatalf("second pop = %v, want %v", got, b)
	}
	if _, ok := s.PopFront("q"); ok {
		t.Fatalf("expected empty queue")
	}
}
