package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/auctionhq/ipl-auction-backend/internal/models"
)

func seedSale(t *testing.T) (*Memory, Sale) {
	t.Helper()
	ctx := context.Background()
	m := NewMemory()

	auction := &models.Auction{ID: uuid.New(), Status: models.StatusInProgress}
	require.NoError(t, m.CreateAuction(ctx, auction))

	team := &models.Team{
		ID:             uuid.New(),
		AuctionID:      auction.ID,
		Name:           "Chennai",
		PurseRemaining: 1000,
		RTMCardsTotal:  6,
	}
	require.NoError(t, m.CreateTeam(ctx, team))

	player := &models.Player{
		ID:         uuid.New(),
		AuctionID:  auction.ID,
		Name:       "R Sharma",
		BasePrice:  30,
		IsCapped:   true,
		IsOverseas: true,
		AuctionSet: "M1",
	}
	require.NoError(t, m.CreatePlayer(ctx, player))

	return m, Sale{
		AuctionID: auction.ID,
		PlayerID:  player.ID,
		TeamID:    team.ID,
		Price:     200,
	}
}

func TestMemory_FinalizeSale_UpdatesTeamAndLogsSold(t *testing.T) {
	ctx := context.Background()
	m, sale := seedSale(t)

	assignment, err := m.FinalizeSale(ctx, sale)
	require.NoError(t, err)
	require.Equal(t, sale.PlayerID, assignment.PlayerID)
	require.Equal(t, int64(200), assignment.PurchasePrice)

	team, err := m.GetTeam(ctx, sale.TeamID)
	require.NoError(t, err)
	require.Equal(t, int64(800), team.PurseRemaining)
	require.Equal(t, 1, team.PlayerCount)
	require.Equal(t, 1, team.OverseasCount, "overseas player must count against the quota")

	events, err := m.EventsByAuction(ctx, sale.AuctionID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, models.EventSold, events[0].Kind)
	require.Equal(t, int64(200), *events[0].Amount)
}

func TestMemory_FinalizeSale_SecondAssignmentRejected(t *testing.T) {
	ctx := context.Background()
	m, sale := seedSale(t)

	_, err := m.FinalizeSale(ctx, sale)
	require.NoError(t, err)

	_, err = m.FinalizeSale(ctx, sale)
	require.ErrorIs(t, err, ErrAlreadyAssigned)

	// The losing attempt must not have touched the team.
	team, err := m.GetTeam(ctx, sale.TeamID)
	require.NoError(t, err)
	require.Equal(t, 1, team.PlayerCount)
}

func TestMemory_FinalizeSale_ConsumesRTMCard(t *testing.T) {
	ctx := context.Background()
	m, sale := seedSale(t)
	sale.IsRTM = true
	sale.ConsumeRTMCard = true

	_, err := m.FinalizeSale(ctx, sale)
	require.NoError(t, err)

	team, err := m.GetTeam(ctx, sale.TeamID)
	require.NoError(t, err)
	require.Equal(t, 1, team.RTMCardsUsed)
	require.Equal(t, 1, team.RTMCappedUsed, "capped player consumes the capped bucket")
	require.Equal(t, 0, team.RTMUncappedUsed)

	events, _ := m.EventsByAuction(ctx, sale.AuctionID)
	require.True(t, events[0].IsRTM)
}

func TestMemory_FinalizeSale_RetentionSkipsEventLog(t *testing.T) {
	ctx := context.Background()
	m, sale := seedSale(t)
	sale.IsRetained = true

	assignment, err := m.FinalizeSale(ctx, sale)
	require.NoError(t, err)
	require.True(t, assignment.IsRetained)

	events, _ := m.EventsByAuction(ctx, sale.AuctionID)
	require.Empty(t, events)
}

func TestMemory_BindTeamOwner_SetOnce(t *testing.T) {
	ctx := context.Background()
	m, sale := seedSale(t)

	team, err := m.BindTeamOwner(ctx, sale.TeamID, "sess-1")
	require.NoError(t, err)
	require.True(t, team.Joined())

	// Same session re-joining is fine; a different one is not.
	_, err = m.BindTeamOwner(ctx, sale.TeamID, "sess-1")
	require.NoError(t, err)
	_, err = m.BindTeamOwner(ctx, sale.TeamID, "sess-2")
	require.ErrorIs(t, err, ErrOwnerAlreadyBound)
}

func TestMemory_DeleteAuction_Cascades(t *testing.T) {
	ctx := context.Background()
	m, sale := seedSale(t)
	_, err := m.FinalizeSale(ctx, sale)
	require.NoError(t, err)

	require.NoError(t, m.DeleteAuction(ctx, sale.AuctionID))

	_, err = m.GetAuction(ctx, sale.AuctionID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = m.GetTeam(ctx, sale.TeamID)
	require.ErrorIs(t, err, ErrNotFound)
	events, _ := m.EventsByAuction(ctx, sale.AuctionID)
	require.Empty(t, events)
}
