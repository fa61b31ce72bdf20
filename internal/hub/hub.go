// Package hub owns the registry of live auction rooms, itself an actor
// so registry mutations never race.
package hub

import (
	"context"

	"github.com/google/uuid"

	"github.com/auctionhq/ipl-auction-backend/internal/room"
)

type HubMsg interface{ isHubMsg() }

type GetRoom struct {
	AuctionID uuid.UUID
	Reply     chan *room.Room
}

// EnsureRoom returns the existing room or spins one up.
type EnsureRoom struct {
	AuctionID uuid.UUID
	Reply     chan *room.Room
}

type RemoveRoom struct {
	AuctionID uuid.UUID
}

type ShutdownHub struct{}

func (GetRoom) isHubMsg()     {}
func (EnsureRoom) isHubMsg()  {}
func (RemoveRoom) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	inbox  chan HubMsg
	rooms  map[uuid.UUID]*room.Room
	deps   room.Deps
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, deps room.Deps) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[uuid.UUID]*room.Room),
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case GetRoom:
				msg.Reply <- h.rooms[msg.AuctionID] // may be nil

			case EnsureRoom:
				if rm := h.rooms[msg.AuctionID]; rm != nil {
					msg.Reply <- rm
					break
				}
				rm := room.NewRoom(h.ctx, msg.AuctionID, h.deps)
				h.rooms[msg.AuctionID] = rm
				msg.Reply <- rm

			case RemoveRoom:
				if rm := h.rooms[msg.AuctionID]; rm != nil {
					rm.Inbox() <- room.Shutdown{}
					delete(h.rooms, msg.AuctionID)
				}

			case ShutdownHub:
				for _, rm := range h.rooms {
					rm.Inbox() <- room.Shutdown{}
				}
				clear(h.rooms)
				h.cancel()
			}
		}
	}
}
