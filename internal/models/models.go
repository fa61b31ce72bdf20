// Package models defines the durable rows. All prices are integer lakh.
package models

import (
	"time"

	"github.com/google/uuid"
)

type AuctionStatus string

const (
	StatusWaiting    AuctionStatus = "waiting"
	StatusInProgress AuctionStatus = "in_progress"
	StatusCompleted  AuctionStatus = "completed"
)

type Round string

const (
	RoundNormal       Round = "normal"
	RoundAccelerated1 Round = "accelerated_1"
	RoundAccelerated2 Round = "accelerated_2"
)

// Squad composition limits per team.
const (
	MaxSquadSize   = 25
	MaxOverseas    = 8
	MaxRTMCapped   = 5
	MaxRTMUncapped = 2
)

type Auction struct {
	ID     uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	Status AuctionStatus `gorm:"type:varchar(16);not null;default:'waiting'" json:"status"`

	CurrentRound Round   `gorm:"type:varchar(16);not null;default:'normal'" json:"current_round"`
	CurrentSet   *string `gorm:"type:varchar(32)" json:"current_set"`

	// Both bid fields are null or both are set.
	CurrentPlayerID      *uuid.UUID `gorm:"type:uuid" json:"current_player_id"`
	CurrentBidAmount     *int64     `json:"current_bid_amount"`
	CurrentBiddingTeamID *uuid.UUID `gorm:"type:uuid" json:"current_bidding_team_id"`

	// Opaque capability, compared by equality only.
	AdminToken string `gorm:"type:varchar(64);not null" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Team struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AuctionID uuid.UUID `gorm:"type:uuid;not null;index" json:"auction_id"`
	Name      string    `gorm:"type:varchar(64);not null" json:"name"`

	PurseRemaining int64 `gorm:"not null" json:"purse_remaining"`
	PlayerCount    int   `gorm:"not null;default:0" json:"player_count"`
	OverseasCount  int   `gorm:"not null;default:0" json:"overseas_count"`

	RTMCardsTotal   int `gorm:"not null;default:0" json:"rtm_cards_total"`
	RTMCardsUsed    int `gorm:"not null;default:0" json:"rtm_cards_used"`
	RTMCappedUsed   int `gorm:"not null;default:0" json:"rtm_capped_used"`
	RTMUncappedUsed int `gorm:"not null;default:0" json:"rtm_uncapped_used"`

	// Set once when the owner's websocket session claims the team.
	OwnerSessionID *string `gorm:"type:varchar(64)" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Joined reports whether an owner session has claimed this team.
func (t *Team) Joined() bool { return t.OwnerSessionID != nil }

func (t *Team) RTMCardsLeft() int { return t.RTMCardsTotal - t.RTMCardsUsed }

type Player struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AuctionID uuid.UUID `gorm:"type:uuid;not null;index" json:"auction_id"`
	Name      string    `gorm:"type:varchar(128);not null" json:"name"`

	BasePrice  int64  `gorm:"not null" json:"base_price"`
	IsCapped   bool   `gorm:"not null;default:false" json:"is_capped"`
	IsOverseas bool   `gorm:"not null;default:false" json:"is_overseas"`
	AuctionSet string `gorm:"type:varchar(32);not null" json:"auction_set"`

	// Drives RTM eligibility by exact name match against a Team row.
	PreviousTeamName *string `gorm:"type:varchar(64)" json:"previous_team_name"`

	CreatedAt time.Time `json:"created_at"`
}

// AuctionAssignment records a sold (or retained) player. The composite
// unique index is the anti-double-sale constraint: inserting a second
// assignment for the same (auction, player) fails at the database, not
// in application code.
type AuctionAssignment struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AuctionID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_auction_player" json:"auction_id"`
	PlayerID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_auction_player" json:"player_id"`
	TeamID        uuid.UUID `gorm:"type:uuid;not null" json:"team_id"`
	PurchasePrice int64     `gorm:"not null" json:"purchase_price"`
	IsRetained    bool      `gorm:"not null;default:false" json:"is_retained"`
	CreatedAt     time.Time `json:"created_at"`
}

type EventKind string

const (
	EventBid    EventKind = "BID"
	EventSold   EventKind = "SOLD"
	EventUnsold EventKind = "UNSOLD"
)

// AuctionEvent is the append-only audit log. Never mutated; deleted only
// by the auction deletion cascade.
type AuctionEvent struct {
	ID        uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	AuctionID uuid.UUID  `gorm:"type:uuid;not null;index" json:"auction_id"`
	PlayerID  uuid.UUID  `gorm:"type:uuid;not null" json:"player_id"`
	TeamID    *uuid.UUID `gorm:"type:uuid" json:"team_id"`
	Kind      EventKind  `gorm:"type:varchar(8);not null" json:"kind"`
	Amount    *int64     `json:"amount"`
	IsRTM     bool       `gorm:"not null;default:false" json:"is_rtm"`
	CreatedAt time.Time  `json:"created_at"`
}
