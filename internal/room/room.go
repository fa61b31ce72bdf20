// Package room runs one auction's serialized execution context. Every
// bid, sale, RTM action, and queue advance for an auction goes through
// the room's single goroutine, so no two operations on the same auction
// ever interleave; different auctions run fully in parallel. Broadcasts
// go out only after the corresponding state mutation commits, in commit
// order.
package room

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/auctionhq/ipl-auction-backend/internal/bidding"
	"github.com/auctionhq/ipl-auction-backend/internal/ephemeral"
	"github.com/auctionhq/ipl-auction-backend/internal/models"
	"github.com/auctionhq/ipl-auction-backend/internal/queue"
	"github.com/auctionhq/ipl-auction-backend/internal/rtm"
	"github.com/auctionhq/ipl-auction-backend/internal/store"
	"github.com/auctionhq/ipl-auction-backend/internal/types"
)

var (
	ErrNotAdmin       = errors.New("invalid admin token")
	ErrNotYourTeam    = errors.New("session does not own this team")
	ErrBadID          = errors.New("malformed id")
	ErrAlreadyStarted = errors.New("auction already started")
	ErrUnknownAction  = errors.New("unknown action type")
	ErrBadRound       = errors.New("invalid round transition")
	ErrRTMPending     = errors.New("rtm negotiation in progress")
)

type Msg interface{ isRoomMsg() }

type Join struct {
	SessionID string
	Outbox    chan types.ServerMessage
}

func (Join) isRoomMsg() {}

type Leave struct{ SessionID string }

func (Leave) isRoomMsg() {}

type FromClient struct {
	SessionID string
	Msg       types.ClientMessage
}

func (FromClient) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

// View reflects room internals without data races. Test hook.
type View struct {
	NumClients int
	Auction    models.Auction
}

type Deps struct {
	Store       store.Store
	Ephemeral   *ephemeral.Store
	Ledger      *bidding.Ledger
	Negotiator  *rtm.Negotiator
	Progression *queue.Progression
	Log         *zap.Logger
}

type Room struct {
	auctionID uuid.UUID
	deps      Deps
	inbox     chan Msg
	clients   map[string]chan types.ServerMessage
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewRoom(parent context.Context, auctionID uuid.UUID, deps Deps) *Room {
	ctx, cancel := context.WithCancel(parent)
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	r := &Room{
		auctionID: auctionID,
		deps:      deps,
		inbox:     make(chan Msg, 64),
		clients:   make(map[string]chan types.ServerMessage),
		ctx:       ctx,
		cancel:    cancel,
	}
	go r.loop()
	return r
}

// Inbox exposes the message channel to the WS layer and tests.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.clients[msg.SessionID] = msg.Outbox

			case Leave:
				delete(r.clients, msg.SessionID)

			case FromClient:
				if err := r.handle(msg.SessionID, msg.Msg); err != nil {
					// Rejections go to the acting client only; the rest
					// of the room never sees a failed action.
					r.sendTo(msg.SessionID, types.ServerMessage{
						Type:  types.EvtError,
						Error: err.Error(),
					})
				}

			case GetState:
				view := View{NumClients: len(r.clients)}
				if a, err := r.deps.Store.GetAuction(r.ctx, r.auctionID); err == nil {
					view.Auction = *a
				}
				msg.Reply <- view

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) shutdown() {
	for id, ch := range r.clients {
		close(ch)
		delete(r.clients, id)
	}
	r.cancel()
}

func (r *Room) broadcast(msg types.ServerMessage) {
	msg.AuctionID = r.auctionID.String()
	for id, ch := range r.clients {
		select {
		case ch <- msg:
		default:
			// Slow client: drop it rather than stall the auction.
			close(ch)
			delete(r.clients, id)
		}
	}
}

func (r *Room) sendTo(sessionID string, msg types.ServerMessage) {
	ch, ok := r.clients[sessionID]
	if !ok {
		return
	}
	msg.AuctionID = r.auctionID.String()
	select {
	case ch <- msg:
	default:
		close(ch)
		delete(r.clients, sessionID)
	}
}

func (r *Room) handle(sessionID string, cm types.ClientMessage) error {
	a, err := r.deps.Store.GetAuction(r.ctx, r.auctionID)
	if err != nil {
		return err
	}

	switch cm.Type {
	case types.ActionJoinTeam:
		return r.handleJoinTeam(sessionID, cm)
	case types.ActionStartAuction:
		return r.handleStartAuction(a, cm)
	case types.ActionPlaceBid:
		return r.handlePlaceBid(a, sessionID, cm)
	case types.ActionSellPlayer:
		return r.handleSellPlayer(a, cm)
	case types.ActionMarkUnsold:
		return r.handleMarkUnsold(a, cm)
	case types.ActionNextPlayer:
		return r.handleNextPlayer(a, cm)
	case types.ActionUseRTM:
		return r.handleUseRTM(a, sessionID, cm)
	case types.ActionRTMCounterBid:
		return r.handleCounterBid(a, sessionID, cm)
	case types.ActionFinalizeRTM:
		return r.handleFinalizeRTM(a, sessionID, cm)
	case types.ActionStartRound:
		return r.handleStartRound(a, cm)
	case types.ActionQueuePlayer:
		return r.handleQueuePlayer(a, sessionID, cm)
	case types.ActionLoadPlayer:
		return r.handleLoadPlayer(a, cm)
	default:
		return ErrUnknownAction
	}
}

func (r *Room) handleJoinTeam(sessionID string, cm types.ClientMessage) error {
	teamID, err := uuid.Parse(cm.TeamID)
	if err != nil {
		return ErrBadID
	}
	team, err := r.deps.Store.GetTeam(r.ctx, teamID)
	if err != nil {
		return err
	}
	if team.AuctionID != r.auctionID {
		return store.ErrNotFound
	}
	team, err = r.deps.Store.BindTeamOwner(r.ctx, teamID, sessionID)
	if err != nil {
		return err
	}
	r.broadcast(types.ServerMessage{
		Type: types.EvtTeamJoined,
		Team: types.SnapshotTeam(team),
	})
	return nil
}

func (r *Room) handleStartAuction(a *models.Auction, cm types.ClientMessage) error {
	if err := r.requireAdmin(a, cm.AdminToken); err != nil {
		return err
	}
	if a.Status != models.StatusWaiting {
		return ErrAlreadyStarted
	}
	if err := r.deps.Progression.Initialize(r.ctx, a.ID); err != nil {
		return err
	}
	a.Status = models.StatusInProgress
	r.broadcast(types.ServerMessage{
		Type:  types.EvtAuctionStarted,
		Round: string(a.CurrentRound),
	})
	res, err := r.deps.Progression.LoadFirst(r.ctx, a)
	if err != nil {
		return err
	}
	r.broadcastProgress(a, res)
	return nil
}

func (r *Room) handlePlaceBid(a *models.Auction, sessionID string, cm types.ClientMessage) error {
	// A live negotiation freezes the bidding: the matched amount is the
	// only price on the table until the episode resolves.
	if handled, err := r.resolvePendingRTM(a); handled || err != nil {
		return err
	}
	team, err := r.ownedTeam(sessionID, cm.TeamID)
	if err != nil {
		return err
	}
	playerID, err := uuid.Parse(cm.PlayerID)
	if err != nil {
		return ErrBadID
	}
	team, err = r.deps.Ledger.PlaceBid(r.ctx, a, team.ID, playerID, cm.Amount)
	if err != nil {
		return err
	}
	r.broadcast(types.ServerMessage{
		Type:   types.EvtBidPlaced,
		Team:   types.SnapshotTeam(team),
		Amount: cm.Amount,
	})
	return nil
}

// handleSellPlayer is where the direct-sale and RTM paths meet. A
// winning bid first offers the player's previous team its right to
// match; only when RTM does not apply is the sale concluded directly.
func (r *Room) handleSellPlayer(a *models.Auction, cm types.ClientMessage) error {
	if err := r.requireAdmin(a, cm.AdminToken); err != nil {
		return err
	}
	playerID, err := uuid.Parse(cm.PlayerID)
	if err != nil {
		return ErrBadID
	}
	if a.CurrentPlayerID == nil || *a.CurrentPlayerID != playerID {
		return bidding.ErrWrongPlayer
	}

	if handled, err := r.resolvePendingRTM(a); handled || err != nil {
		return err
	}

	if a.CurrentBidAmount == nil || a.CurrentBiddingTeamID == nil {
		return bidding.ErrNoBidOnTable
	}
	player, err := r.deps.Store.GetPlayer(r.ctx, playerID)
	if err != nil {
		return err
	}

	state, err := r.deps.Negotiator.Trigger(r.ctx, a, player, *a.CurrentBiddingTeamID, *a.CurrentBidAmount)
	if err != nil {
		return err
	}
	if state != nil {
		rtmTeam, err := r.deps.Store.GetTeam(r.ctx, state.RTMTeamID)
		if err != nil {
			return err
		}
		winner, err := r.deps.Store.GetTeam(r.ctx, state.OriginalWinnerTeamID)
		if err != nil {
			return err
		}
		r.broadcast(types.ServerMessage{
			Type:    types.EvtRTMTriggered,
			Player:  types.SnapshotPlayer(player, true, rtmTeam.Name),
			Team:    types.SnapshotTeam(winner),
			RTMTeam: types.SnapshotTeam(rtmTeam),
			Amount:  state.MatchedBidAmount,
		})
		return nil
	}

	assignment, team, err := r.deps.Ledger.SellPlayer(r.ctx, a)
	if err != nil {
		return err
	}
	r.broadcast(types.ServerMessage{
		Type:   types.EvtPlayerSold,
		Player: types.SnapshotPlayer(player, false, ""),
		Team:   types.SnapshotTeam(team),
		Amount: assignment.PurchasePrice,
	})
	return r.advance(a)
}

func (r *Room) handleMarkUnsold(a *models.Auction, cm types.ClientMessage) error {
	if err := r.requireAdmin(a, cm.AdminToken); err != nil {
		return err
	}
	if handled, err := r.resolvePendingRTM(a); handled || err != nil {
		return err
	}
	playerID, err := uuid.Parse(cm.PlayerID)
	if err != nil {
		return ErrBadID
	}
	if err := r.deps.Ledger.MarkUnsold(r.ctx, a, playerID); err != nil {
		return err
	}
	player, err := r.deps.Store.GetPlayer(r.ctx, playerID)
	if err != nil {
		return err
	}
	r.broadcast(types.ServerMessage{
		Type:   types.EvtPlayerUnsold,
		Player: types.SnapshotPlayer(player, false, ""),
	})
	return r.advance(a)
}

func (r *Room) handleNextPlayer(a *models.Auction, cm types.ClientMessage) error {
	if err := r.requireAdmin(a, cm.AdminToken); err != nil {
		return err
	}
	if handled, err := r.resolvePendingRTM(a); handled || err != nil {
		return err
	}
	return r.advance(a)
}

func (r *Room) handleUseRTM(a *models.Auction, sessionID string, cm types.ClientMessage) error {
	team, err := r.ownedTeam(sessionID, cm.TeamID)
	if err != nil {
		return err
	}
	state, err := r.deps.Negotiator.Use(r.ctx, a.ID, team.ID)
	if errors.Is(err, rtm.ErrExpired) {
		_, rerr := r.resolvePendingRTM(a)
		return rerr
	}
	if err != nil {
		return err
	}
	r.broadcast(types.ServerMessage{
		Type:    types.EvtRTMUsed,
		RTMTeam: types.SnapshotTeam(team),
		Amount:  state.MatchedBidAmount,
	})
	return nil
}

func (r *Room) handleCounterBid(a *models.Auction, sessionID string, cm types.ClientMessage) error {
	team, err := r.ownedTeam(sessionID, cm.TeamID)
	if err != nil {
		return err
	}
	state, err := r.deps.Negotiator.CounterBid(r.ctx, a.ID, team.ID, cm.Amount)
	if errors.Is(err, rtm.ErrExpired) {
		_, rerr := r.resolvePendingRTM(a)
		return rerr
	}
	if err != nil {
		return err
	}
	r.broadcast(types.ServerMessage{
		Type:   types.EvtRTMCounterBid,
		Team:   types.SnapshotTeam(team),
		Amount: state.MatchedBidAmount,
	})
	return nil
}

func (r *Room) handleFinalizeRTM(a *models.Auction, sessionID string, cm types.ClientMessage) error {
	team, err := r.ownedTeam(sessionID, cm.TeamID)
	if err != nil {
		return err
	}
	outcome, err := r.deps.Negotiator.Finalize(r.ctx, a, team.ID, cm.RTMAccepts)
	if err != nil {
		return err
	}
	return r.concludeRTM(a, outcome)
}

func (r *Room) handleStartRound(a *models.Auction, cm types.ClientMessage) error {
	if err := r.requireAdmin(a, cm.AdminToken); err != nil {
		return err
	}
	if handled, err := r.resolvePendingRTM(a); handled || err != nil {
		return err
	}

	next := models.Round(cm.Round)
	valid := (a.CurrentRound == models.RoundNormal && next == models.RoundAccelerated1) ||
		(a.CurrentRound == models.RoundAccelerated1 && next == models.RoundAccelerated2)
	completing := a.CurrentRound == models.RoundAccelerated2 && cm.Round == "completed"
	if !valid && !completing {
		return ErrBadRound
	}

	a.CurrentPlayerID = nil
	a.CurrentBidAmount = nil
	a.CurrentBiddingTeamID = nil
	a.CurrentSet = nil
	if completing {
		a.Status = models.StatusCompleted
	} else {
		a.CurrentRound = next
		r.deps.Progression.ClearAccelerated(a.ID)
	}
	if err := r.deps.Store.UpdateAuction(r.ctx, a); err != nil {
		return err
	}
	r.broadcast(types.ServerMessage{
		Type:  types.EvtRoundStarted,
		Round: cm.Round,
	})
	return nil
}

func (r *Room) handleQueuePlayer(a *models.Auction, sessionID string, cm types.ClientMessage) error {
	if err := r.requireAdmin(a, cm.AdminToken); err != nil {
		return err
	}
	playerID, err := uuid.Parse(cm.PlayerID)
	if err != nil {
		return ErrBadID
	}
	if err := r.deps.Progression.Queue(r.ctx, a, playerID); err != nil {
		return err
	}
	player, err := r.deps.Store.GetPlayer(r.ctx, playerID)
	if err != nil {
		return err
	}
	// Queueing is admin bookkeeping, not an auction transition: ack the
	// admin only.
	r.sendTo(sessionID, types.ServerMessage{
		Type:   types.EvtPlayerQueued,
		Player: types.SnapshotPlayer(player, false, ""),
	})
	return nil
}

func (r *Room) handleLoadPlayer(a *models.Auction, cm types.ClientMessage) error {
	if err := r.requireAdmin(a, cm.AdminToken); err != nil {
		return err
	}
	if handled, err := r.resolvePendingRTM(a); handled || err != nil {
		return err
	}
	playerID, err := uuid.Parse(cm.PlayerID)
	if err != nil {
		return ErrBadID
	}
	res, err := r.deps.Progression.LoadSpecific(r.ctx, a, playerID)
	if err != nil {
		return err
	}
	r.broadcastProgress(a, res)
	return nil
}

// advance moves to the next player after a terminal outcome. Runs on
// the room goroutine like everything else, so a racing admin action
// cannot interleave with it.
func (r *Room) advance(a *models.Auction) error {
	res, err := r.deps.Progression.LoadNext(r.ctx, a)
	if err != nil {
		return err
	}
	r.broadcastProgress(a, res)
	return nil
}

func (r *Room) broadcastProgress(a *models.Auction, res queue.Result) {
	switch {
	case res.Player != nil:
		el, err := r.deps.Negotiator.CheckEligibility(r.ctx, a.ID, res.Player)
		if err != nil {
			r.deps.Log.Warn("rtm badge check failed", zap.Error(err))
		}
		r.broadcast(types.ServerMessage{
			Type:   types.EvtNewPlayer,
			Player: types.SnapshotPlayer(res.Player, el.Eligible, el.TeamName),
		})
	case res.RoundComplete:
		r.broadcast(types.ServerMessage{
			Type:  types.EvtRoundCompleted,
			Round: string(a.CurrentRound),
		})
	case res.QueueEmpty:
		r.broadcast(types.ServerMessage{
			Type:  types.EvtQueueEmpty,
			Round: string(a.CurrentRound),
		})
	}
}

// resolvePendingRTM finalizes an expired negotiation as an implicit
// decline. Returns handled=true when a live negotiation blocked the
// caller's action or an expired one was resolved in its place.
func (r *Room) resolvePendingRTM(a *models.Auction) (bool, error) {
	state, expired := r.deps.Negotiator.Current(a.ID)
	if state == nil {
		return false, nil
	}
	if !expired {
		return false, ErrRTMPending
	}
	outcome, err := r.deps.Negotiator.Finalize(r.ctx, a, uuid.Nil, false)
	if err != nil {
		return true, err
	}
	if err := r.concludeRTM(a, outcome); err != nil {
		return true, err
	}
	return true, nil
}

func (r *Room) concludeRTM(a *models.Auction, outcome *rtm.Outcome) error {
	player, err := r.deps.Store.GetPlayer(r.ctx, outcome.PlayerID)
	if err != nil {
		return err
	}
	winner, err := r.deps.Store.GetTeam(r.ctx, outcome.WinnerTeamID)
	if err != nil {
		return err
	}
	rtmTeam, err := r.deps.Store.GetTeam(r.ctx, outcome.RTMTeamID)
	if err != nil {
		return err
	}
	r.broadcast(types.ServerMessage{
		Type:    types.EvtPlayerSold,
		Player:  types.SnapshotPlayer(player, false, ""),
		Team:    types.SnapshotTeam(winner),
		RTMTeam: types.SnapshotTeam(rtmTeam),
		Amount:  outcome.Price,
		IsRTM:   true,
	})
	return r.advance(a)
}

func (r *Room) requireAdmin(a *models.Auction, token string) error {
	if token == "" || token != a.AdminToken {
		return ErrNotAdmin
	}
	return nil
}

func (r *Room) ownedTeam(sessionID, teamIDStr string) (*models.Team, error) {
	teamID, err := uuid.Parse(teamIDStr)
	if err != nil {
		return nil, ErrBadID
	}
	team, err := r.deps.Store.GetTeam(r.ctx, teamID)
	if err != nil {
		return nil, err
	}
	if team.AuctionID != r.auctionID {
		return nil, store.ErrNotFound
	}
	if team.OwnerSessionID == nil || *team.OwnerSessionID != sessionID {
		return nil, ErrNotYourTeam
	}
	return team, nil
}
