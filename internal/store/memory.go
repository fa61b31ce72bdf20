package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/auctionhq/ipl-auction-backend/internal/models"
)

// Memory is an in-process Store with the same semantics as Gorm,
// including the (auction, player) uniqueness on assignments. Used by
// tests and usable as a no-database dev mode.
type Memory struct {
	mu          sync.Mutex
	auctions    map[uuid.UUID]models.Auction
	teams       map[uuid.UUID]models.Team
	players     map[uuid.UUID]models.Player
	assignments map[uuid.UUID][]models.AuctionAssignment // by auction
	events      map[uuid.UUID][]models.AuctionEvent      // by auction
	nextEventID uint
}

func NewMemory() *Memory {
	return &Memory{
		auctions:    make(map[uuid.UUID]models.Auction),
		teams:       make(map[uuid.UUID]models.Team),
		players:     make(map[uuid.UUID]models.Player),
		assignments: make(map[uuid.UUID][]models.AuctionAssignment),
		events:      make(map[uuid.UUID][]models.AuctionEvent),
	}
}

func (m *Memory) CreateAuction(_ context.Context, a *models.Auction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	m.auctions[a.ID] = *a
	return nil
}

func (m *Memory) GetAuction(_ context.Context, id uuid.UUID) (*models.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (m *Memory) UpdateAuction(_ context.Context, a *models.Auction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.auctions[a.ID]; !ok {
		return ErrNotFound
	}
	a.UpdatedAt = time.Now()
	m.auctions[a.ID] = *a
	return nil
}

func (m *Memory) DeleteAuction(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.auctions, id)
	delete(m.assignments, id)
	delete(m.events, id)
	for tid, t := range m.teams {
		if t.AuctionID == id {
			delete(m.teams, tid)
		}
	}
	for pid, p := range m.players {
		if p.AuctionID == id {
			delete(m.players, pid)
		}
	}
	return nil
}

func (m *Memory) CompletedBefore(_ context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for id, a := range m.auctions {
		if a.Status == models.StatusCompleted && a.UpdatedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *Memory) CreateTeam(_ context.Context, t *models.Team) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.CreatedAt = time.Now()
	m.teams[t.ID] = *t
	return nil
}

func (m *Memory) GetTeam(_ context.Context, id uuid.UUID) (*models.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (m *Memory) TeamByName(_ context.Context, auctionID uuid.UUID, name string) (*models.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.teams {
		if t.AuctionID == auctionID && t.Name == name {
			out := t
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) TeamsByAuction(_ context.Context, auctionID uuid.UUID) ([]models.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Team
	for _, t := range m.teams {
		if t.AuctionID == auctionID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *Memory) BindTeamOwner(_ context.Context, teamID uuid.UUID, sessionID string) (*models.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[teamID]
	if !ok {
		return nil, ErrNotFound
	}
	if t.OwnerSessionID != nil {
		if *t.OwnerSessionID == sessionID {
			return &t, nil
		}
		return nil, ErrOwnerAlreadyBound
	}
	t.OwnerSessionID = &sessionID
	m.teams[teamID] = t
	return &t, nil
}

func (m *Memory) CreatePlayer(_ context.Context, p *models.Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.CreatedAt = time.Now()
	m.players[p.ID] = *p
	return nil
}

func (m *Memory) GetPlayer(_ context.Context, id uuid.UUID) (*models.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *Memory) PlayersByAuction(_ context.Context, auctionID uuid.UUID) ([]models.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Player
	for _, p := range m.players {
		if p.AuctionID == auctionID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *Memory) GetAssignment(_ context.Context, auctionID, playerID uuid.UUID) (*models.AuctionAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.assignments[auctionID] {
		if a.PlayerID == playerID {
			out := a
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) AssignedPlayerIDs(_ context.Context, auctionID uuid.UUID) (map[uuid.UUID]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uuid.UUID]bool)
	for _, a := range m.assignments[auctionID] {
		out[a.PlayerID] = true
	}
	return out, nil
}

func (m *Memory) AppendEvent(_ context.Context, e *models.AuctionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendEventLocked(e)
	return nil
}

func (m *Memory) appendEventLocked(e *models.AuctionEvent) {
	m.nextEventID++
	e.ID = m.nextEventID
	e.CreatedAt = time.Now()
	m.events[e.AuctionID] = append(m.events[e.AuctionID], *e)
}

func (m *Memory) EventsByAuction(_ context.Context, auctionID uuid.UUID) ([]models.AuctionEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.AuctionEvent, len(m.events[auctionID]))
	copy(out, m.events[auctionID])
	return out, nil
}

func (m *Memory) FinalizeSale(_ context.Context, s Sale) (*models.AuctionAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.assignments[s.AuctionID] {
		if a.PlayerID == s.PlayerID {
			return nil, ErrAlreadyAssigned
		}
	}

	player, ok := m.players[s.PlayerID]
	if !ok {
		return nil, ErrNotFound
	}
	team, ok := m.teams[s.TeamID]
	if !ok {
		return nil, ErrNotFound
	}

	assignment := models.AuctionAssignment{
		ID:            uuid.New(),
		AuctionID:     s.AuctionID,
		PlayerID:      s.PlayerID,
		TeamID:        s.TeamID,
		PurchasePrice: s.Price,
		IsRetained:    s.IsRetained,
		CreatedAt:     time.Now(),
	}
	m.assignments[s.AuctionID] = append(m.assignments[s.AuctionID], assignment)

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
	m.teams[s.TeamID] = team

	if !s.IsRetained {
		teamID := s.TeamID
		amount := s.Price
		m.appendEventLocked(&models.AuctionEvent{
			AuctionID: s.AuctionID,
			PlayerID:  s.PlayerID,
			TeamID:    &teamID,
			Kind:      models.EventSold,
			Amount:    &amount,
			IsRTM:     s.IsRTM,
		})
	}

	return &assignment, nil
}
