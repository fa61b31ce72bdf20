// Package bidding validates and records bids and performs the sale and
// unsold transitions. Purse is only deducted at sale, never at bid time.
package bidding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/auctionhq/ipl-auction-backend/internal/ephemeral"
	"github.com/auctionhq/ipl-auction-backend/internal/increment"
	"github.com/auctionhq/ipl-auction-backend/internal/models"
	"github.com/auctionhq/ipl-auction-backend/internal/store"
)

// bidMirrorTTL bounds the life of an abandoned mirror key. The sale and
// RTM paths clear it explicitly; the TTL is only the safety net for
// auctions that stall mid-item.
const bidMirrorTTL = 12 * time.Hour

var (
	ErrAuctionNotLive    = errors.New("auction is not in progress")
	ErrWrongPlayer       = errors.New("player is not on the block")
	ErrTeamNotJoined     = errors.New("team has not joined the auction")
	ErrBidTooLow         = errors.New("bid below minimum next bid")
	ErrInsufficientPurse = errors.New("insufficient purse")
	ErrSquadFull         = errors.New("squad is full")
	ErrOverseasQuota     = errors.New("overseas quota exhausted")
	ErrNoBidOnTable      = errors.New("no bid to sell at")
)

type Ledger struct {
	store store.Store
	eph   *ephemeral.Store
	log   *zap.Logger
}

func NewLedger(st store.Store, eph *ephemeral.Store, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{store: st, eph: eph, log: log}
}

// ValidateBid applies every bid rule without mutating anything.
func ValidateBid(a *models.Auction, team *models.Team, player *models.Player, amount int64) error {
	if a.Status != models.StatusInProgress {
		return ErrAuctionNotLive
	}
	if a.CurrentPlayerID == nil || *a.CurrentPlayerID != player.ID {
		return ErrWrongPlayer
	}
	if !team.Joined() {
		return ErrTeamNotJoined
	}
	if amount < increment.MinimumNextBid(a.CurrentBidAmount, player.BasePrice) {
		return ErrBidTooLow
	}
	if team.PurseRemaining < amount {
		return ErrInsufficientPurse
	}
	if team.PlayerCount >= models.MaxSquadSize {
		return ErrSquadFull
	}
	if player.IsOverseas && team.OverseasCount >= models.MaxOverseas {
		return ErrOverseasQuota
	}
	return nil
}

// PlaceBid re-validates, records the bid on the auction row, appends a
// BID log entry, and mirrors the bid into the ephemeral store. Returns
// the bidding team for broadcast denormalization.
func (l *Ledger) PlaceBid(ctx context.Context, a *models.Auction, teamID, playerID uuid.UUID, amount int64) (*models.Team, error) {
	team, err := l.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if team.AuctionID != a.ID {
		return nil, ErrTeamNotJoined
	}
	player, err := l.store.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if err := ValidateBid(a, team, player, amount); err != nil {
		return nil, err
	}

	bid := amount
	bidder := team.ID
	a.CurrentBidAmount = &bid
	a.CurrentBiddingTeamID = &bidder
	if err := l.store.UpdateAuction(ctx, a); err != nil {
		return nil, fmt.Errorf("recording bid: %w", err)
	}

	if err := l.store.AppendEvent(ctx, &models.AuctionEvent{
		AuctionID: a.ID,
		PlayerID:  player.ID,
		TeamID:    &bidder,
		Kind:      models.EventBid,
		Amount:    &bid,
	}); err != nil {
		return nil, fmt.Errorf("logging bid: %w", err)
	}

	l.eph.Set(ephemeral.BidMirrorKey(a.ID), ephemeral.BidMirror{
		PlayerID: player.ID,
		TeamID:   bidder,
		Amount:   bid,
	}, bidMirrorTTL)

	return team, nil
}

// SellPlayer concludes the item at the standing bid. The assignment
// insert carries the anti-double-sale constraint; a violation here is a
// consistency bug, not a user error, and is logged loudly. The current
// player is left on the auction — advancing is the orchestrator's call.
func (l *Ledger) SellPlayer(ctx context.Context, a *models.Auction) (*models.AuctionAssignment, *models.Team, error) {
	if a.CurrentPlayerID == nil || a.CurrentBidAmount == nil || a.CurrentBiddingTeamID == nil {
		return nil, nil, ErrNoBidOnTable
	}

	assignment, err := l.store.FinalizeSale(ctx, store.Sale{
		AuctionID: a.ID,
		PlayerID:  *a.CurrentPlayerID,
		TeamID:    *a.CurrentBiddingTeamID,
		Price:     *a.CurrentBidAmount,
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyAssigned) {
			l.log.Error("double sale attempt",
				zap.String("auction", a.ID.String()),
				zap.String("player", a.CurrentPlayerID.String()))
		}
		return nil, nil, err
	}

	team, err := l.store.GetTeam(ctx, assignment.TeamID)
	if err != nil {
		return nil, nil, err
	}
	return assignment, team, nil
}

// MarkUnsold records an UNSOLD entry for the current player. Mutates no
// team; the player stays current until the orchestrator advances.
func (l *Ledger) MarkUnsold(ctx context.Context, a *models.Auction, playerID uuid.UUID) error {
	if a.CurrentPlayerID == nil || *a.CurrentPlayerID != playerID {
		return ErrWrongPlayer
	}
	return l.store.AppendEvent(ctx, &models.AuctionEvent{
		AuctionID: a.ID,
		PlayerID:  playerID,
		Kind:      models.EventUnsold,
	})
}
