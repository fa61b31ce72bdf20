// Package store is the durable persistence boundary. Two implementations
// share the same semantics: Gorm against postgres and Memory for tests.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/auctionhq/ipl-auction-backend/internal/models"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrAlreadyAssigned is the anti-double-sale constraint firing: the
	// player already has an assignment in this auction. Callers treat it
	// as a consistency fault, never as a retryable user error.
	ErrAlreadyAssigned = errors.New("player already assigned in this auction")

	// ErrOwnerAlreadyBound rejects a second session claiming a team.
	ErrOwnerAlreadyBound = errors.New("team already joined by another session")
)

// Sale is everything FinalizeSale needs to conclude an auction item in
// one transaction: assignment insert, team purse/count updates, SOLD log.
type Sale struct {
	AuctionID uuid.UUID
	PlayerID  uuid.UUID
	TeamID    uuid.UUID
	Price     int64
	IsRTM     bool
	// ConsumeRTMCard increments the winning team's used-card counters;
	// the quota bucket follows the player's capped status.
	ConsumeRTMCard bool
	// IsRetained marks a pre-auction retention. Purse and squad counts
	// still apply, but no SOLD event is logged.
	IsRetained bool
}

type Store interface {
	CreateAuction(ctx context.Context, a *models.Auction) error
	GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error)
	UpdateAuction(ctx context.Context, a *models.Auction) error
	DeleteAuction(ctx context.Context, id uuid.UUID) error
	CompletedBefore(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)

	CreateTeam(ctx context.Context, t *models.Team) error
	GetTeam(ctx context.Context, id uuid.UUID) (*models.Team, error)
	TeamByName(ctx context.Context, auctionID uuid.UUID, name string) (*models.Team, error)
	TeamsByAuction(ctx context.Context, auctionID uuid.UUID) ([]models.Team, error)
	BindTeamOwner(ctx context.Context, teamID uuid.UUID, sessionID string) (*models.Team, error)

	CreatePlayer(ctx context.Context, p *models.Player) error
	GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error)
	PlayersByAuction(ctx context.Context, auctionID uuid.UUID) ([]models.Player, error)

	GetAssignment(ctx context.Context, auctionID, playerID uuid.UUID) (*models.AuctionAssignment, error)
	AssignedPlayerIDs(ctx context.Context, auctionID uuid.UUID) (map[uuid.UUID]bool, error)

	AppendEvent(ctx context.Context, e *models.AuctionEvent) error
	EventsByAuction(ctx context.Context, auctionID uuid.UUID) ([]models.AuctionEvent, error)

	// FinalizeSale atomically creates the assignment, applies the team
	// updates, and appends the SOLD event. Returns ErrAlreadyAssigned if
	// the player already has an assignment in this auction.
	FinalizeSale(ctx context.Context, s Sale) (*models.AuctionAssignment, error)
}
