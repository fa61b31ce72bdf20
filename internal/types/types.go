// Package types defines the realtime channel messages. Outbound events
// carry denormalized team/player snapshots so clients never need a
// follow-up query to render them.
package types

import (
	"github.com/auctionhq/ipl-auction-backend/internal/models"
)

// ClientMessage is one inbound action. Type selects which fields apply.
type ClientMessage struct {
	Type       string `json:"type"`
	TeamID     string `json:"team_id,omitempty"`
	PlayerID   string `json:"player_id,omitempty"`
	Amount     int64  `json:"amount,omitempty"`
	AdminToken string `json:"admin_token,omitempty"`
	RTMAccepts bool   `json:"rtm_accepts,omitempty"`
	Round      string `json:"round,omitempty"`
}

// Inbound action types.
const (
	ActionJoinTeam      = "join_team"
	ActionStartAuction  = "start_auction"
	ActionPlaceBid      = "place_bid"
	ActionSellPlayer    = "sell_player"
	ActionMarkUnsold    = "mark_unsold"
	ActionNextPlayer    = "next_player"
	ActionUseRTM        = "use_rtm"
	ActionRTMCounterBid = "rtm_counter_bid"
	ActionFinalizeRTM   = "finalize_rtm"
	ActionStartRound    = "start_round"
	ActionQueuePlayer   = "queue_player"
	ActionLoadPlayer    = "load_player"
)

// Outbound event types.
const (
	EvtTeamJoined     = "team_joined"
	EvtAuctionStarted = "auction_started"
	EvtBidPlaced      = "bid_placed"
	EvtPlayerSold     = "player_sold"
	EvtPlayerUnsold   = "player_unsold"
	EvtRTMTriggered   = "rtm_triggered"
	EvtRTMUsed        = "rtm_used"
	EvtRTMCounterBid  = "rtm_counter_bid_placed"
	EvtNewPlayer      = "new_player"
	EvtRoundStarted   = "round_started"
	EvtRoundCompleted = "round_completed"
	EvtQueueEmpty     = "queue_empty"
	EvtPlayerQueued   = "player_queued"
	EvtError          = "error"
)

type TeamSnapshot struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	PurseRemaining  int64  `json:"purse_remaining"`
	PlayerCount     int    `json:"player_count"`
	OverseasCount   int    `json:"overseas_count"`
	RTMCardsLeft    int    `json:"rtm_cards_left"`
	RTMCappedUsed   int    `json:"rtm_capped_used"`
	RTMUncappedUsed int    `json:"rtm_uncapped_used"`
}

type PlayerSnapshot struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	BasePrice    int64  `json:"base_price"`
	IsCapped     bool   `json:"is_capped"`
	IsOverseas   bool   `json:"is_overseas"`
	AuctionSet   string `json:"auction_set"`
	PreviousTeam string `json:"previous_team,omitempty"`
	RTMEligible  bool   `json:"rtm_eligible"`
	RTMTeamName  string `json:"rtm_team_name,omitempty"`
}

// ServerMessage is one outbound event (broadcast) or a targeted error.
type ServerMessage struct {
	Type      string          `json:"type"`
	AuctionID string          `json:"auction_id,omitempty"`
	Round     string          `json:"round,omitempty"`
	Player    *PlayerSnapshot `json:"player,omitempty"`
	Team      *TeamSnapshot   `json:"team,omitempty"`
	RTMTeam   *TeamSnapshot   `json:"rtm_team,omitempty"`
	Amount    int64           `json:"amount,omitempty"`
	IsRTM     bool            `json:"is_rtm,omitempty"`
	Error     string          `json:"error,omitempty"`
}

func SnapshotTeam(t *models.Team) *TeamSnapshot {
	if t == nil {
		return nil
	}
	return &TeamSnapshot{
		ID:              t.ID.String(),
		Name:            t.Name,
		PurseRemaining:  t.PurseRemaining,
		PlayerCount:     t.PlayerCount,
		OverseasCount:   t.OverseasCount,
		RTMCardsLeft:    t.RTMCardsLeft(),
		RTMCappedUsed:   t.RTMCappedUsed,
		RTMUncappedUsed: t.RTMUncappedUsed,
	}
}

func SnapshotPlayer(p *models.Player, rtmEligible bool, rtmTeamName string) *PlayerSnapshot {
	if p == nil {
		return nil
	}
	snap := &PlayerSnapshot{
		ID:          p.ID.String(),
		Name:        p.Name,
		BasePrice:   p.BasePrice,
		IsCapped:    p.IsCapped,
		IsOverseas:  p.IsOverseas,
		AuctionSet:  p.AuctionSet,
		RTMEligible: rtmEligible,
		RTMTeamName: rtmTeamName,
	}
	if p.PreviousTeamName != nil {
		snap.PreviousTeam = *p.PreviousTeamName
	}
	return snap
}
