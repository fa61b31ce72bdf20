package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/auctionhq/ipl-auction-backend/internal/models"
)

// Gorm is the postgres-backed Store.
type Gorm struct {
	db *gorm.DB
}

// Open connects to postgres and migrates the schema. TranslateError is on
// so the unique-index violation surfaces as gorm.ErrDuplicatedKey.
func Open(dsn string) (*Gorm, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.AutoMigrate(
		&models.Auction{},
		&models.Team{},
		&models.Player{},
		&models.AuctionAssignment{},
		&models.AuctionEvent{},
	); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &Gorm{db: db}, nil
}

func (g *Gorm) CreateAuction(ctx context.Context, a *models.Auction) error {
	return g.db.WithContext(ctx).Create(a).Error
}

func (g *Gorm) GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	var a models.Auction
	if err := g.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (g *Gorm) UpdateAuction(ctx context.Context, a *models.Auction) error {
	// Save writes zero/null fields too; the bid fields must be clearable.
	return g.db.WithContext(ctx).Save(a).Error
}

func (g *Gorm) DeleteAuction(ctx context.Context, id uuid.UUID) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range []any{
			&models.AuctionEvent{},
			&models.AuctionAssignment{},
			&models.Player{},
			&models.Team{},
		} {
			if err := tx.Where("auction_id = ?", id).Delete(m).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.Auction{}, "id = ?", id).Error
	})
}

func (g *Gorm) CompletedBefore(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := g.db.WithContext(ctx).
		Model(&models.Auction{}).
		Where("status = ? AND updated_at < ?", models.StatusCompleted, cutoff).
		Pluck("id", &ids).Error
	return ids, err
}

func (g *Gorm) CreateTeam(ctx context.Context, t *models.Team) error {
	return g.db.WithContext(ctx).Create(t).Error
}

func (g *Gorm) GetTeam(ctx context.Context, id uuid.UUID) (*models.Team, error) {
	var t models.Team
	if err := g.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

func (g *Gorm) TeamByName(ctx context.Context, auctionID uuid.UUID, name string) (*models.Team, error) {
	var t models.Team
	err := g.db.WithContext(ctx).
		First(&t, "auction_id = ? AND name = ?", auctionID, name).Error
	if err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

func (g *Gorm) TeamsByAuction(ctx context.Context, auctionID uuid.UUID) ([]models.Team, error) {
	var teams []models.Team
	err := g.db.WithContext(ctx).
		Where("auction_id = ?", auctionID).Order("name").Find(&teams).Error
	return teams, err
}

func (g *Gorm) BindTeamOwner(ctx context.Context, teamID uuid.UUID, sessionID string) (*models.Team, error) {
	// Guarded update: only claims an unowned team.
	res := g.db.WithContext(ctx).
		Model(&models.Team{}).
		Where("id = ? AND owner_session_id IS NULL", teamID).
		Update("owner_session_id", sessionID)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		t, err := g.GetTeam(ctx, teamID)
		if err != nil {
			return nil, err
		}
		if t.OwnerSessionID != nil && *t.OwnerSessionID == sessionID {
			return t, nil // same session re-joining is a no-op
		}
		return nil, ErrOwnerAlreadyBound
	}
	return g.GetTeam(ctx, teamID)
}

func (g *Gorm) CreatePlayer(ctx context.Context, p *models.Player) error {
	return g.db.WithContext(ctx).Create(p).Error
}

func (g *Gorm) GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error) {
	var p models.Player
	if err := g.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (g *Gorm) PlayersByAuction(ctx context.Context, auctionID uuid.UUID) ([]models.Player, error) {
	var players []models.Player
	err := g.db.WithContext(ctx).
		Where("auction_id = ?", auctionID).Find(&players).Error
	return players, err
}

func (g *Gorm) GetAssignment(ctx context.Context, auctionID, playerID uuid.UUID) (*models.AuctionAssignment, error) {
	var a models.AuctionAssignment
	err := g.db.WithContext(ctx).
		First(&a, "auction_id = ? AND player_id = ?", auctionID, playerID).Error
	if err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (g *Gorm) AssignedPlayerIDs(ctx context.Context, auctionID uuid.UUID) (map[uuid.UUID]bool, error) {
	var ids []uuid.UUID
	err := g.db.WithContext(ctx).
		Model(&models.AuctionAssignment{}).
		Where("auction_id = ?", auctionID).
		Pluck("player_id", &ids).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

func (g *Gorm) AppendEvent(ctx context.Context, e *models.AuctionEvent) error {
	return g.db.WithContext(ctx).Create(e).Error
}

func (g *Gorm) EventsByAuction(ctx context.Context, auctionID uuid.UUID) ([]models.AuctionEvent, error) {
	var events []models.AuctionEvent
	err := g.db.WithContext(ctx).
		Where("auction_id = ?", auctionID).Order("id").Find(&events).Error
	return events, err
}

func (g *Gorm) FinalizeSale(ctx context.Context, s Sale) (*models.AuctionAssignment, error) {
	var out *models.AuctionAssignment
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var player models.Player
		if err := tx.First(&player, "id = ?", s.PlayerID).Error; err != nil {
			return translate(err)
		}

		assignment := &models.AuctionAssignment{
			ID:            uuid.New(),
			AuctionID:     s.AuctionID,
			PlayerID:      s.PlayerID,
			TeamID:        s.TeamID,
			PurchasePrice: s.Price,
			IsRetained:    s.IsRetained,
		}
		if err := tx.Create(assignment).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyAssigned
			}
			return err
		}

		var team models.Team
		if err := tx.First(&team, "id = ?", s.TeamID).Error; err != nil {
			return translate(err)
		}
		team.PurseRemaining -= s.Price
		team.PlayerCount++
		if player.IsOverseas {
			team.OverseasCount++
		}
		if s.ConsumeRTMCard {
			team.RTMCardsUsed++
			if player.IsCapped {
				team.RTMCappedUsed++
			} else {
				team.RTMUncappedUsed++
			}
		}
		if err := tx.Save(&team).Error; err != nil {
			return err
		}

		if !s.IsRetained {
			teamID := s.TeamID
			amount := s.Price
			event := &models.AuctionEvent{
				AuctionID: s.AuctionID,
				PlayerID:  s.PlayerID,
				TeamID:    &teamID,
				Kind:      models.EventSold,
				Amount:    &amount,
				IsRTM:     s.IsRTM,
			}
			if err := tx.Create(event).Error; err != nil {
				return err
			}
		}

		out = assignment
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
