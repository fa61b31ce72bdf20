// Package ws bridges websocket connections to auction rooms: one reader
// loop feeding the room's inbox, one writer goroutine draining the
// client's outbox.
package ws

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/auctionhq/ipl-auction-backend/internal/hub"
	"github.com/auctionhq/ipl-auction-backend/internal/room"
	"github.com/auctionhq/ipl-auction-backend/internal/store"
	"github.com/auctionhq/ipl-auction-backend/internal/types"
)

const (
	writeTimeout = 3 * time.Second
	// Generous read deadline: viewers may idle between lots.
	readTimeout = 10 * time.Minute
)

func Handler(h *hub.Hub, st store.Store, log *zap.Logger) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		auctionID, err := uuid.Parse(r.URL.Query().Get("auction"))
		if err != nil {
			http.Error(w, "missing or malformed auction id", http.StatusBadRequest)
			return
		}

		// The durable row is the system of record; a missing room only
		// means the process restarted since the auction was created.
		if _, err := st.GetAuction(r.Context(), auctionID); err != nil {
			http.Error(w, "auction not found", http.StatusNotFound)
			return
		}
		reply := make(chan *room.Room, 1)
		h.Inbox() <- hub.EnsureRoom{AuctionID: auctionID, Reply: reply}
		rm := <-reply
		if rm == nil {
			http.Error(w, "auction not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		// The session id is the client's identity for the lifetime of
		// the connection: join_team binds it to a team's owner slot.
		sessionID := r.URL.Query().Get("session")
		if sessionID == "" {
			sessionID = randID(12)
		}

		out := make(chan types.ServerMessage, 16)
		rm.Inbox() <- room.Join{SessionID: sessionID, Outbox: out}
		defer func() { rm.Inbox() <- room.Leave{SessionID: sessionID} }()

		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go writeLoop(writeCtx, conn, out, log)

		for {
			ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
			_, data, err := conn.Read(ctx)
			cancel()
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				_ = conn.Write(r.Context(), websocket.MessageText,
					[]byte(`{"type":"error","error":"bad json"}`))
				continue
			}

			rm.Inbox() <- room.FromClient{SessionID: sessionID, Msg: cm}
		}
	}
}

// wireConn is the slice of *websocket.Conn the writer needs.
type wireConn interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// writeLoop drains the room outbox onto the wire. A closed outbox means
// the room dropped this client (or shut down): close the connection so
// the reader loop stops feeding actions nobody can answer.
func writeLoop(ctx context.Context, conn wireConn, out <-chan types.ServerMessage, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	for msg := range out {
		payload, err := json.Marshal(msg)
		if err != nil {
			log.Error("marshaling server message", zap.Error(err))
			continue
		}
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		_ = conn.Write(wctx, websocket.MessageText, payload)
		cancel()
	}
	_ = conn.Close(websocket.StatusGoingAway, "stream closed")
}

func randID(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return string(b)
}
