package rtm

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/auctionhq/ipl-auction-backend/internal/ephemeral"
	"github.com/auctionhq/ipl-auction-backend/internal/models"
	"github.com/auctionhq/ipl-auction-backend/internal/store"
)

// fixture: Team X wins Player P at 200; Team Y is P's previous team.
type fixture struct {
	neg     *Negotiator
	store   *store.Memory
	auction *models.Auction
	player  *models.Player
	winner  *models.Team // X
	rtmTeam *models.Team // Y
	clock   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	eph := ephemeral.New()
	t.Cleanup(eph.Stop)

	prevTeam := "Chennai"
	player := &models.Player{
		ID:               uuid.New(),
		Name:             "S Curran",
		BasePrice:        50,
		IsCapped:         true,
		AuctionSet:       "AL1",
		PreviousTeamName: &prevTeam,
	}
	bid := int64(200)
	auction := &models.Auction{
		ID:               uuid.New(),
		Status:           models.StatusInProgress,
		CurrentPlayerID:  &player.ID,
		CurrentBidAmount: &bid,
		AdminToken:       "tok",
	}
	player.AuctionID = auction.ID

	sessX, sessY := "sess-x", "sess-y"
	winner := &models.Team{
		ID:             uuid.New(),
		AuctionID:      auction.ID,
		Name:           "Punjab",
		PurseRemaining: 1000,
		OwnerSessionID: &sessX,
	}
	rtmTeam := &models.Team{
		ID:             uuid.New(),
		AuctionID:      auction.ID,
		Name:           "Chennai",
		PurseRemaining: 1000,
		RTMCardsTotal:  6,
		OwnerSessionID: &sessY,
	}
	auction.CurrentBiddingTeamID = &winner.ID

	require.NoError(t, mem.CreateAuction(ctx, auction))
	require.NoError(t, mem.CreateTeam(ctx, winner))
	require.NoError(t, mem.CreateTeam(ctx, rtmTeam))
	require.NoError(t, mem.CreatePlayer(ctx, player))

	f := &fixture{
		neg:     NewNegotiator(mem, eph, DefaultWindow, nil),
		store:   mem,
		auction: auction,
		player:  player,
		winner:  winner,
		rtmTeam: rtmTeam,
		clock:   time.Now(),
	}
	f.neg.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) trigger(t *testing.T) *State {
	t.Helper()
	state, err := f.neg.Trigger(context.Background(), f.auction, f.player, f.winner.ID, 200)
	require.NoError(t, err)
	require.NotNil(t, state)
	return state
}

func TestCheckEligibility(t *testing.T) {
	cases := []struct {
		name       string
		mutate     func(f *fixture)
		eligible   bool
		wantReason string
	}{
		{
			name:     "previous team with cards and quota room",
			eligible: true,
		},
		{
			name:       "no previous team",
			mutate:     func(f *fixture) { f.player.PreviousTeamName = nil },
			wantReason: "no previous team",
		},
		{
			name: "previous team not in auction",
			mutate: func(f *fixture) {
				name := "Gujarat"
				f.player.PreviousTeamName = &name
			},
			wantReason: "previous team not in auction",
		},
		{
			name: "previous team never joined",
			mutate: func(f *fixture) {
				f.rtmTeam.OwnerSessionID = nil
				f.saveRTMTeam(t)
			},
			wantReason: "previous team has not joined",
		},
		{
			name: "no cards left",
			mutate: func(f *fixture) {
				f.rtmTeam.RTMCardsUsed = f.rtmTeam.RTMCardsTotal
				f.saveRTMTeam(t)
			},
			wantReason: "no rtm cards left",
		},
		{
			name: "capped quota exhausted",
			mutate: func(f *fixture) {
				f.rtmTeam.RTMCappedUsed = models.MaxRTMCapped
				f.saveRTMTeam(t)
			},
			wantReason: "capped quota exhausted",
		},
		{
			name: "uncapped quota exhausted",
			mutate: func(f *fixture) {
				f.player.IsCapped = false
				f.rtmTeam.RTMUncappedUsed = models.MaxRTMUncapped
				f.saveRTMTeam(t)
			},
			wantReason: "uncapped quota exhausted",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			if tc.mutate != nil {
				tc.mutate(f)
			}
			el, err := f.neg.CheckEligibility(context.Background(), f.auction.ID, f.player)
			require.NoError(t, err)
			require.Equal(t, tc.eligible, el.Eligible)
			if !tc.eligible {
				require.Equal(t, tc.wantReason, el.Reason)
			} else {
				require.Equal(t, f.rtmTeam.ID, el.TeamID)
				require.Equal(t, "Chennai", el.TeamName)
			}
		})
	}
}

// saveRTMTeam persists fixture mutations; Memory hands out copies.
func (f *fixture) saveRTMTeam(t *testing.T) {
	t.Helper()
	f.store.CreateTeam(context.Background(), f.rtmTeam)
}

func TestTrigger_NoRTMWhenWinnerIsPreviousTeam(t *testing.T) {
	f := newFixture(t)
	// You cannot RTM your own win.
	state, err := f.neg.Trigger(context.Background(), f.auction, f.player, f.rtmTeam.ID, 200)
	require.NoError(t, err)
	require.Nil(t, state)
}

func TestTrigger_CreatesTriggeredState(t *testing.T) {
	f := newFixture(t)
	state := f.trigger(t)

	require.Equal(t, StageTriggered, state.Stage)
	require.Equal(t, f.rtmTeam.ID, state.RTMTeamID)
	require.Equal(t, f.winner.ID, state.OriginalWinnerTeamID)
	require.Equal(t, int64(200), state.MatchedBidAmount)

	// Only one live negotiation per auction.
	_, err := f.neg.Trigger(context.Background(), f.auction, f.player, f.winner.ID, 200)
	require.ErrorIs(t, err, ErrNegotiationPending)
}

func TestUse_OnlyRTMTeamWhileTriggered(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.trigger(t)

	_, err := f.neg.Use(ctx, f.auction.ID, f.winner.ID)
	require.ErrorIs(t, err, ErrNotYourCall)

	state, err := f.neg.Use(ctx, f.auction.ID, f.rtmTeam.ID)
	require.NoError(t, err)
	require.Equal(t, StageCounterAllowed, state.Stage)

	// Stage-inappropriate repeat is rejected, not queued.
	_, err = f.neg.Use(ctx, f.auction.ID, f.rtmTeam.ID)
	require.ErrorIs(t, err, ErrWrongStage)
}

func TestUse_RequiresPurse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.trigger(t)

	f.rtmTeam.PurseRemaining = 100 // below the matched 200
	f.saveRTMTeam(t)

	_, err := f.neg.Use(ctx, f.auction.ID, f.rtmTeam.ID)
	require.ErrorIs(t, err, ErrInsufficientPurse)
}

func TestCounterBid_OneShot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.trigger(t)

	// Not allowed before the card is committed.
	_, err := f.neg.CounterBid(ctx, f.auction.ID, f.winner.ID, 220)
	require.ErrorIs(t, err, ErrWrongStage)

	_, err = f.neg.Use(ctx, f.auction.ID, f.rtmTeam.ID)
	require.NoError(t, err)

	// Only the original winner may counter.
	_, err = f.neg.CounterBid(ctx, f.auction.ID, f.rtmTeam.ID, 220)
	require.ErrorIs(t, err, ErrNotYourCall)

	// Must exceed the matched amount.
	_, err = f.neg.CounterBid(ctx, f.auction.ID, f.winner.ID, 200)
	require.ErrorIs(t, err, ErrCounterTooLow)

	state, err := f.neg.CounterBid(ctx, f.auction.ID, f.winner.ID, 220)
	require.NoError(t, err)
	require.Equal(t, StageCounterMade, state.Stage)
	require.Equal(t, int64(220), state.MatchedBidAmount)

	// Exactly one counter-bid per episode.
	_, err = f.neg.CounterBid(ctx, f.auction.ID, f.winner.ID, 240)
	require.ErrorIs(t, err, ErrWrongStage)
}

// Scenario: Y uses the card, X counters to 220, Y declines. X wins at
// 220 and no card is consumed.
func TestFinalize_DeclineAfterCounter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.trigger(t)

	_, err := f.neg.Use(ctx, f.auction.ID, f.rtmTeam.ID)
	require.NoError(t, err)
	_, err = f.neg.CounterBid(ctx, f.auction.ID, f.winner.ID, 220)
	require.NoError(t, err)

	// After a counter, only the RTM team decides.
	_, err = f.neg.Finalize(ctx, f.auction, f.winner.ID, false)
	require.ErrorIs(t, err, ErrNotYourCall)

	outcome, err := f.neg.Finalize(ctx, f.auction, f.rtmTeam.ID, false)
	require.NoError(t, err)
	require.Equal(t, f.winner.ID, outcome.WinnerTeamID)
	require.Equal(t, int64(220), outcome.Price)
	require.False(t, outcome.CardConsumed)

	winner, _ := f.store.GetTeam(ctx, f.winner.ID)
	require.Equal(t, int64(780), winner.PurseRemaining)
	rtmTeam, _ := f.store.GetTeam(ctx, f.rtmTeam.ID)
	require.Equal(t, 0, rtmTeam.RTMCardsUsed)

	// State cleared and auction bid fields reset.
	st, _ := f.neg.Current(f.auction.ID)
	require.Nil(t, st)
	require.Nil(t, f.auction.CurrentPlayerID)
	require.Nil(t, f.auction.CurrentBidAmount)
}

func TestFinalize_AcceptAfterCounter_ConsumesCard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.trigger(t)

	_, err := f.neg.Use(ctx, f.auction.ID, f.rtmTeam.ID)
	require.NoError(t, err)
	_, err = f.neg.CounterBid(ctx, f.auction.ID, f.winner.ID, 220)
	require.NoError(t, err)

	outcome, err := f.neg.Finalize(ctx, f.auction, f.rtmTeam.ID, true)
	require.NoError(t, err)
	require.True(t, outcome.RTMTeamWon)
	require.True(t, outcome.CardConsumed)
	require.Equal(t, int64(220), outcome.Price)

	rtmTeam, _ := f.store.GetTeam(ctx, f.rtmTeam.ID)
	require.Equal(t, int64(780), rtmTeam.PurseRemaining)
	require.Equal(t, 1, rtmTeam.RTMCardsUsed)
	require.Equal(t, 1, rtmTeam.RTMCappedUsed)
}

func TestFinalize_WinnerPassesWithoutCounter_RTMTeamDefaults(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.trigger(t)

	_, err := f.neg.Use(ctx, f.auction.ID, f.rtmTeam.ID)
	require.NoError(t, err)

	// In CounterAllowed only the original winner may pass; the player
	// then always goes to the RTM team, accept flag notwithstanding.
	_, err = f.neg.Finalize(ctx, f.auction, f.rtmTeam.ID, true)
	require.ErrorIs(t, err, ErrNotYourCall)

	outcome, err := f.neg.Finalize(ctx, f.auction, f.winner.ID, false)
	require.NoError(t, err)
	require.True(t, outcome.RTMTeamWon)
	require.True(t, outcome.CardConsumed)
	require.Equal(t, int64(200), outcome.Price)
}

func TestFinalize_DeclineWithoutCard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.trigger(t)

	// RTM team bows out while still in Triggered: original winner keeps
	// the player at the original amount, card untouched.
	outcome, err := f.neg.Finalize(ctx, f.auction, f.rtmTeam.ID, true)
	require.NoError(t, err)
	require.False(t, outcome.RTMTeamWon)
	require.False(t, outcome.CardConsumed)
	require.Equal(t, int64(200), outcome.Price)
}

// Scenario: Y never touches the negotiation inside the window. The next
// touch resolves as an implicit decline: X wins at 200, no card spent.
func TestFinalize_ExpiryIsImplicitDecline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.trigger(t)

	f.clock = f.clock.Add(DefaultWindow + time.Second)

	_, err := f.neg.Use(ctx, f.auction.ID, f.rtmTeam.ID)
	require.ErrorIs(t, err, ErrExpired)

	// Anyone may resolve an expired episode.
	outcome, err := f.neg.Finalize(ctx, f.auction, uuid.Nil, false)
	require.NoError(t, err)
	require.Equal(t, f.winner.ID, outcome.WinnerTeamID)
	require.Equal(t, int64(200), outcome.Price)
	require.False(t, outcome.CardConsumed)
}

func TestFinalize_QuotaRecheckedBeforeConsuming(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.trigger(t)

	_, err := f.neg.Use(ctx, f.auction.ID, f.rtmTeam.ID)
	require.NoError(t, err)

	// Quota state changed between trigger and finalize.
	f.rtmTeam.RTMCappedUsed = models.MaxRTMCapped
	f.saveRTMTeam(t)

	_, err = f.neg.Finalize(ctx, f.auction, f.winner.ID, false)
	require.ErrorIs(t, err, ErrQuotaExhausted)
}

func TestFinalize_NoNegotiation(t *testing.T) {
	f := newFixture(t)
	_, err := f.neg.Finalize(context.Background(), f.auction, f.rtmTeam.ID, true)
	require.ErrorIs(t, err, ErrNoNegotiation)
}

func TestFinalize_DoubleSaleIsConsistencyFault(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.trigger(t)

	// A direct sale already concluded the item behind our back.
	_, err := f.store.FinalizeSale(ctx, store.Sale{
		AuctionID: f.auction.ID,
		PlayerID:  f.player.ID,
		TeamID:    f.winner.ID,
		Price:     200,
	})
	require.NoError(t, err)

	_, err = f.neg.Finalize(ctx, f.auction, f.rtmTeam.ID, false)
	require.ErrorIs(t, err, store.ErrAlreadyAssigned)
}
