// Package ephemeral is the TTL-bound scratchpad: RTM negotiation state,
// the current-bid mirror, and the per-set player queues. Nothing here is
// a system of record — losing a key only degrades to "treat as expired".
package ephemeral

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
)

type Store struct {
	kv *ttlcache.Cache[string, any]

	mu    sync.Mutex
	lists map[string][]uuid.UUID
}

func New() *Store {
	kv := ttlcache.New[string, any](
		ttlcache.WithDisableTouchOnHit[string, any](),
	)
	go kv.Start()
	return &Store{
		kv:    kv,
		lists: make(map[string][]uuid.UUID),
	}
}

// Stop halts the expiry loop. Safe to call once on shutdown.
func (s *Store) Stop() { s.kv.Stop() }

func (s *Store) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	s.kv.Set(key, value, ttl)
}

func (s *Store) Get(key string) (any, bool) {
	item := s.kv.Get(key)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

func (s *Store) Delete(key string) { s.kv.Delete(key) }

// TTL reports the time-to-live recorded for a key. Zero means the key
// never expires on its own.
func (s *Store) TTL(key string) (time.Duration, bool) {
	item := s.kv.Get(key)
	if item == nil {
		return 0, false
	}
	return item.TTL(), true
}

// ClearAuction drops every key an auction owns: its RTM slot, its bid
// mirror, and all of its queue lists.
func (s *Store) ClearAuction(auctionID uuid.UUID) {
	s.kv.Delete(RTMKey(auctionID))
	s.kv.Delete(BidMirrorKey(auctionID))

	prefix := fmt.Sprintf("queue:%s:", auctionID)
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.lists {
		if strings.HasPrefix(key, prefix) {
			delete(s.lists, key)
		}
	}
}

// PushBack appends an id to the named FIFO list.
func (s *Store) PushBack(list string, id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[list] = append(s.lists[list], id)
}

// PopFront removes and returns the head of the named list.
func (s *Store) PopFront(list string) (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.lists[list]
	if len(q) == 0 {
		return uuid.Nil, false
	}
	head := q[0]
	s.lists[list] = q[1:]
	return head, true
}

func (s *Store) ListLen(list string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lists[list])
}

func (s *Store) ClearList(list string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lists, list)
}

// Key layout. One RTM slot and one bid mirror per auction, one queue per
// (auction, set), one curated queue per auction for accelerated rounds.

func RTMKey(auctionID uuid.UUID) string {
	return fmt.Sprintf("rtm:%s", auctionID)
}

func BidMirrorKey(auctionID uuid.UUID) string {
	return fmt.Sprintf("bid:%s", auctionID)
}

func QueueKey(auctionID uuid.UUID, set string) string {
	return fmt.Sprintf("queue:%s:%s", auctionID, set)
}

func AcceleratedQueueKey(auctionID uuid.UUID) string {
	return fmt.Sprintf("queue:%s:accelerated", auctionID)
}

// BidMirror is the low-latency read copy of the auction's bid fields.
type BidMirror struct {
	PlayerID uuid.UUID
	TeamID   uuid.UUID
	Amount   int64
}
