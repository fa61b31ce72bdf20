// Package rtm runs the Right to Match negotiation: a player's previous
// team may reclaim them after losing the bidding, subject to per-team
// card quotas, one permitted counter-bid from the original winner, and
// a 60 second window.
package rtm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/auctionhq/ipl-auction-backend/internal/ephemeral"
	"github.com/auctionhq/ipl-auction-backend/internal/models"
	"github.com/auctionhq/ipl-auction-backend/internal/store"
)

// DefaultWindow is the negotiation window after triggering.
const DefaultWindow = 60 * time.Second

var (
	ErrNoNegotiation      = errors.New("no rtm negotiation in progress")
	ErrNegotiationPending = errors.New("an rtm negotiation is already in progress")
	ErrExpired            = errors.New("rtm window has expired")
	ErrNotYourCall        = errors.New("caller may not act at this stage")
	ErrWrongStage         = errors.New("action not valid at this stage")
	ErrCounterTooLow      = errors.New("counter-bid must exceed the matched amount")
	ErrInsufficientPurse  = errors.New("insufficient purse to match")
	ErrSquadFull          = errors.New("squad is full")
	ErrOverseasQuota      = errors.New("overseas quota exhausted")
	ErrQuotaExhausted     = errors.New("rtm card quota exhausted")
)

// Stage is the explicit negotiation state. Terminal (finalized) episodes
// have no stored state at all.
type Stage string

const (
	StageTriggered      Stage = "triggered"
	StageCounterAllowed Stage = "counter_allowed"
	StageCounterMade    Stage = "counter_made"
)

// State is the ephemeral scratchpad for one negotiation. At most one
// live instance exists per auction.
type State struct {
	AuctionID            uuid.UUID
	PlayerID             uuid.UUID
	OriginalWinnerTeamID uuid.UUID
	RTMTeamID            uuid.UUID
	MatchedBidAmount     int64
	Stage                Stage
	ExpiresAt            time.Time
}

// Eligibility is the presentation-time RTM badge. Quotas can change
// between presentation and sale, so it is re-derived before triggering.
type Eligibility struct {
	Eligible bool
	TeamID   uuid.UUID
	TeamName string
	Reason   string
}

// Outcome of a finalized negotiation.
type Outcome struct {
	PlayerID     uuid.UUID
	WinnerTeamID uuid.UUID
	RTMTeamID    uuid.UUID
	Price        int64
	CardConsumed bool
	RTMTeamWon   bool
	Assignment   *models.AuctionAssignment
}

type Negotiator struct {
	store  store.Store
	eph    *ephemeral.Store
	window time.Duration
	log    *zap.Logger

	// now is swappable so tests can drive the window.
	now func() time.Time
}

func NewNegotiator(st store.Store, eph *ephemeral.Store, window time.Duration, log *zap.Logger) *Negotiator {
	if window <= 0 {
		window = DefaultWindow
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Negotiator{store: st, eph: eph, window: window, log: log, now: time.Now}
}

// CheckEligibility decides whether the player can be reclaimed and by
// whom. Eligible only when the previous-team name matches a joined team
// in this auction with a card left and quota room in the right bucket.
func (n *Negotiator) CheckEligibility(ctx context.Context, auctionID uuid.UUID, player *models.Player) (Eligibility, error) {
	if player.PreviousTeamName == nil {
		return Eligibility{Reason: "no previous team"}, nil
	}
	team, err := n.store.TeamByName(ctx, auctionID, *player.PreviousTeamName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Eligibility{Reason: "previous team not in auction"}, nil
		}
		return Eligibility{}, err
	}
	if !team.Joined() {
		return Eligibility{Reason: "previous team has not joined"}, nil
	}
	if team.RTMCardsLeft() <= 0 {
		return Eligibility{Reason: "no rtm cards left"}, nil
	}
	if player.IsCapped && team.RTMCappedUsed >= models.MaxRTMCapped {
		return Eligibility{Reason: "capped quota exhausted"}, nil
	}
	if !player.IsCapped && team.RTMUncappedUsed >= models.MaxRTMUncapped {
		return Eligibility{Reason: "uncapped quota exhausted"}, nil
	}
	return Eligibility{Eligible: true, TeamID: team.ID, TeamName: team.Name}, nil
}

// Trigger opens a negotiation after a winning bid is identified but
// before the sale. Returns nil when RTM does not apply: the player is
// ineligible, or the eligible team is the winner itself.
func (n *Negotiator) Trigger(ctx context.Context, a *models.Auction, player *models.Player, winningTeamID uuid.UUID, finalBid int64) (*State, error) {
	if st, _ := n.Current(a.ID); st != nil {
		return nil, ErrNegotiationPending
	}

	el, err := n.CheckEligibility(ctx, a.ID, player)
	if err != nil {
		return nil, err
	}
	if !el.Eligible || el.TeamID == winningTeamID {
		return nil, nil
	}

	state := &State{
		AuctionID:            a.ID,
		PlayerID:             player.ID,
		OriginalWinnerTeamID: winningTeamID,
		RTMTeamID:            el.TeamID,
		MatchedBidAmount:     finalBid,
		Stage:                StageTriggered,
		ExpiresAt:            n.now().Add(n.window),
	}
	n.save(state)
	n.log.Info("rtm triggered",
		zap.String("auction", a.ID.String()),
		zap.String("player", player.ID.String()),
		zap.String("rtm_team", el.TeamName),
		zap.Int64("matched", finalBid))
	return state, nil
}

// Current returns the live negotiation, if any, and whether it has
// passed its window. Expiry is resolved lazily on the next touch; the
// TTL on the stored key is only a safety net.
func (n *Negotiator) Current(auctionID uuid.UUID) (*State, bool) {
	v, ok := n.eph.Get(ephemeral.RTMKey(auctionID))
	if !ok {
		return nil, false
	}
	state := v.(*State)
	return state, n.now().After(state.ExpiresAt)
}

// Use is the RTM team committing to match the bid. It does not consume
// the card yet — the original winner may still counter-bid.
func (n *Negotiator) Use(ctx context.Context, auctionID, teamID uuid.UUID) (*State, error) {
	state, expired, err := n.live(auctionID)
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, ErrExpired
	}
	if state.Stage != StageTriggered {
		return nil, ErrWrongStage
	}
	if teamID != state.RTMTeamID {
		return nil, ErrNotYourCall
	}

	team, err := n.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	player, err := n.store.GetPlayer(ctx, state.PlayerID)
	if err != nil {
		return nil, err
	}
	if err := n.canAcquire(team, player, state.MatchedBidAmount); err != nil {
		return nil, err
	}

	state.Stage = StageCounterAllowed
	n.save(state)
	return state, nil
}

// CounterBid is the original winner's single permitted raise. The stage
// transition to CounterMade is what enforces one-shot: a second call
// lands in the wrong stage.
func (n *Negotiator) CounterBid(ctx context.Context, auctionID, teamID uuid.UUID, newAmount int64) (*State, error) {
	state, expired, err := n.live(auctionID)
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, ErrExpired
	}
	if state.Stage != StageCounterAllowed {
		return nil, ErrWrongStage
	}
	if teamID != state.OriginalWinnerTeamID {
		return nil, ErrNotYourCall
	}
	if newAmount <= state.MatchedBidAmount {
		return nil, ErrCounterTooLow
	}

	team, err := n.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if team.PurseRemaining < newAmount {
		return nil, ErrInsufficientPurse
	}

	state.MatchedBidAmount = newAmount
	state.Stage = StageCounterMade
	n.save(state)
	return state, nil
}

// Finalize resolves the negotiation to exactly one winner and concludes
// the sale. An expired episode resolves as an implicit decline — the
// original winner keeps the player at the matched amount, no card spent —
// no matter who touches it. Otherwise authorization is stage-gated:
//
//	Triggered:      RTM team declines without spending the card.
//	CounterAllowed: original winner passes; player defaults to RTM team.
//	CounterMade:    RTM team's explicit accept/decline decides.
func (n *Negotiator) Finalize(ctx context.Context, a *models.Auction, callerTeamID uuid.UUID, rtmAccepts bool) (*Outcome, error) {
	state, expired, err := n.live(a.ID)
	if err != nil {
		return nil, err
	}

	var rtmWins bool
	switch {
	case expired:
		rtmWins = false
	case state.Stage == StageTriggered:
		if callerTeamID != state.RTMTeamID {
			return nil, ErrNotYourCall
		}
		rtmWins = false
	case state.Stage == StageCounterAllowed:
		if callerTeamID != state.OriginalWinnerTeamID {
			return nil, ErrNotYourCall
		}
		// The card was committed and no counter-bid came: the player
		// always goes to the RTM team at the matched amount.
		rtmWins = true
	case state.Stage == StageCounterMade:
		if callerTeamID != state.RTMTeamID {
			return nil, ErrNotYourCall
		}
		rtmWins = rtmAccepts
	}

	winner := state.OriginalWinnerTeamID
	consumeCard := false
	if rtmWins {
		winner = state.RTMTeamID
		consumeCard = true

		// Quota state can change between trigger and finalize; re-check
		// before consuming the card.
		team, err := n.store.GetTeam(ctx, winner)
		if err != nil {
			return nil, err
		}
		player, err := n.store.GetPlayer(ctx, state.PlayerID)
		if err != nil {
			return nil, err
		}
		if err := n.canAcquire(team, player, state.MatchedBidAmount); err != nil {
			return nil, err
		}
		if err := checkCardQuota(team, player); err != nil {
			return nil, err
		}
	}

	assignment, err := n.store.FinalizeSale(ctx, store.Sale{
		AuctionID:      a.ID,
		PlayerID:       state.PlayerID,
		TeamID:         winner,
		Price:          state.MatchedBidAmount,
		IsRTM:          true,
		ConsumeRTMCard: consumeCard,
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyAssigned) {
			n.log.Error("rtm finalize raced a completed sale",
				zap.String("auction", a.ID.String()),
				zap.String("player", state.PlayerID.String()))
		}
		return nil, fmt.Errorf("finalizing rtm sale: %w", err)
	}

	a.CurrentPlayerID = nil
	a.CurrentBidAmount = nil
	a.CurrentBiddingTeamID = nil
	if err := n.store.UpdateAuction(ctx, a); err != nil {
		return nil, err
	}
	n.eph.Delete(ephemeral.RTMKey(a.ID))
	n.eph.Delete(ephemeral.BidMirrorKey(a.ID))

	return &Outcome{
		PlayerID:     state.PlayerID,
		WinnerTeamID: winner,
		RTMTeamID:    state.RTMTeamID,
		Price:        state.MatchedBidAmount,
		CardConsumed: consumeCard,
		RTMTeamWon:   rtmWins,
		Assignment:   assignment,
	}, nil
}

func (n *Negotiator) live(auctionID uuid.UUID) (*State, bool, error) {
	state, expired := n.Current(auctionID)
	if state == nil {
		return nil, false, ErrNoNegotiation
	}
	return state, expired, nil
}

func (n *Negotiator) save(state *State) {
	// TTL at twice the window: lazy expiry-on-access is the control
	// flow, the TTL just stops abandoned episodes from leaking.
	n.eph.Set(ephemeral.RTMKey(state.AuctionID), state, 2*n.window)
}

func (n *Negotiator) canAcquire(team *models.Team, player *models.Player, price int64) error {
	if team.PurseRemaining < price {
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

func checkCardQuota(team *models.Team, player *models.Player) error {
	if team.RTMCardsLeft() <= 0 {
		return ErrQuotaExhausted
	}
	if player.IsCapped && team.RTMCappedUsed >= models.MaxRTMCapped {
		return ErrQuotaExhausted
	}
	if !player.IsCapped && team.RTMUncappedUsed >= models.MaxRTMUncapped {
		return ErrQuotaExhausted
	}
	return nil
}
