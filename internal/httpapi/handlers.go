// Package httpapi is the REST surface: auction/team/player setup and
// read-only listings. Live play happens over the websocket.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/auctionhq/ipl-auction-backend/internal/ephemeral"
	"github.com/auctionhq/ipl-auction-backend/internal/hub"
	"github.com/auctionhq/ipl-auction-backend/internal/models"
	"github.com/auctionhq/ipl-auction-backend/internal/queue"
	"github.com/auctionhq/ipl-auction-backend/internal/room"
	"github.com/auctionhq/ipl-auction-backend/internal/rtm"
	"github.com/auctionhq/ipl-auction-backend/internal/store"
	"github.com/auctionhq/ipl-auction-backend/internal/types"
)

type Handlers struct {
	Store       store.Store
	Ephemeral   *ephemeral.Store
	Hub         *hub.Hub
	Progression *queue.Progression
	Negotiator  *rtm.Negotiator
	Log         *zap.Logger
}

func (h *Handlers) CreateAuction(w http.ResponseWriter, r *http.Request) {
	auction := &models.Auction{
		ID:           uuid.New(),
		Status:       models.StatusWaiting,
		CurrentRound: models.RoundNormal,
		AdminToken:   uuid.NewString(),
	}
	if err := h.Store.CreateAuction(r.Context(), auction); err != nil {
		h.Log.Error("creating auction", zap.Error(err))
		http.Error(w, "failed to create auction", http.StatusInternalServerError)
		return
	}

	reply := make(chan *room.Room, 1)
	h.Hub.Inbox() <- hub.EnsureRoom{AuctionID: auction.ID, Reply: reply}
	if <-reply == nil {
		http.Error(w, "failed to open auction room", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"id":          auction.ID.String(),
		"admin_token": auction.AdminToken,
	})
}

func (h *Handlers) DeleteAuction(w http.ResponseWriter, r *http.Request) {
	auction, ok := h.adminAuction(w, r)
	if !ok {
		return
	}
	if err := h.Store.DeleteAuction(r.Context(), auction.ID); err != nil {
		http.Error(w, "failed to delete auction", http.StatusInternalServerError)
		return
	}
	h.Hub.Inbox() <- hub.RemoveRoom{AuctionID: auction.ID}
	h.Ephemeral.ClearAuction(auction.ID)
	w.WriteHeader(http.StatusNoContent)
}

type createTeamRequest struct {
	Name     string `json:"name"`
	Purse    int64  `json:"purse"`
	RTMCards int    `json:"rtm_cards"`
}

func (h *Handlers) CreateTeam(w http.ResponseWriter, r *http.Request) {
	auction, ok := h.adminAuction(w, r)
	if !ok {
		return
	}
	var req createTeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || req.Purse <= 0 {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if _, err := h.Store.TeamByName(r.Context(), auction.ID, req.Name); err == nil {
		http.Error(w, "team name already taken", http.StatusConflict)
		return
	}
	team := &models.Team{
		ID:             uuid.New(),
		AuctionID:      auction.ID,
		Name:           req.Name,
		PurseRemaining: req.Purse,
		RTMCardsTotal:  req.RTMCards,
	}
	if err := h.Store.CreateTeam(r.Context(), team); err != nil {
		http.Error(w, "failed to create team", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, team)
}

type createPlayerRequest struct {
	Name           string  `json:"name"`
	BasePrice      int64   `json:"base_price"`
	IsCapped       bool    `json:"is_capped"`
	IsOverseas     bool    `json:"is_overseas"`
	AuctionSet     string  `json:"auction_set"`
	PreviousTeam   *string `json:"previous_team,omitempty"`
	RetainedByTeam *string `json:"retained_by_team,omitempty"`
	RetentionPrice int64   `json:"retention_price,omitempty"`
}

func (h *Handlers) CreatePlayer(w http.ResponseWriter, r *http.Request) {
	auction, ok := h.adminAuction(w, r)
	if !ok {
		return
	}
	if auction.Status != models.StatusWaiting {
		http.Error(w, "auction already started", http.StatusConflict)
		return
	}
	var req createPlayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || req.BasePrice <= 0 || req.AuctionSet == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	player := &models.Player{
		ID:               uuid.New(),
		AuctionID:        auction.ID,
		Name:             req.Name,
		BasePrice:        req.BasePrice,
		IsCapped:         req.IsCapped,
		IsOverseas:       req.IsOverseas,
		AuctionSet:       req.AuctionSet,
		PreviousTeamName: req.PreviousTeam,
	}
	if err := h.Store.CreatePlayer(r.Context(), player); err != nil {
		http.Error(w, "failed to create player", http.StatusInternalServerError)
		return
	}

	// Retained players enter the auction already assigned: purse and
	// squad counts apply, the queues skip them.
	if req.RetainedByTeam != nil {
		team, err := h.Store.TeamByName(r.Context(), auction.ID, *req.RetainedByTeam)
		if err != nil {
			http.Error(w, "retaining team not found", http.StatusBadRequest)
			return
		}
		if _, err := h.Store.FinalizeSale(r.Context(), store.Sale{
			AuctionID:  auction.ID,
			PlayerID:   player.ID,
			TeamID:     team.ID,
			Price:      req.RetentionPrice,
			IsRetained: true,
		}); err != nil {
			http.Error(w, "failed to retain player", http.StatusInternalServerError)
			return
		}
	}

	writeJSON(w, http.StatusCreated, player)
}

// ListEligiblePlayers returns the presentation list for the auction's
// current round, each entry carrying its RTM badge. The badge is only a
// display hint: eligibility is re-derived before any sale.
func (h *Handlers) ListEligiblePlayers(w http.ResponseWriter, r *http.Request) {
	auction, ok := h.findAuction(w, r)
	if !ok {
		return
	}
	players, err := h.Progression.Eligible(r.Context(), auction)
	if err != nil {
		http.Error(w, "failed to list players", http.StatusInternalServerError)
		return
	}
	out := make([]*types.PlayerSnapshot, 0, len(players))
	for i := range players {
		el, err := h.Negotiator.CheckEligibility(r.Context(), auction.ID, &players[i])
		if err != nil {
			h.Log.Warn("rtm badge check failed", zap.Error(err))
		}
		out = append(out, types.SnapshotPlayer(&players[i], el.Eligible, el.TeamName))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	auction, ok := h.findAuction(w, r)
	if !ok {
		return
	}
	events, err := h.Store.EventsByAuction(r.Context(), auction.ID)
	if err != nil {
		http.Error(w, "failed to list events", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) findAuction(w http.ResponseWriter, r *http.Request) (*models.Auction, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "auctionID"))
	if err != nil {
		http.Error(w, "malformed auction id", http.StatusBadRequest)
		return nil, false
	}
	auction, err := h.Store.GetAuction(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "auction not found", http.StatusNotFound)
		} else {
			http.Error(w, "failed to load auction", http.StatusInternalServerError)
		}
		return nil, false
	}
	return auction, true
}

func (h *Handlers) adminAuction(w http.ResponseWriter, r *http.Request) (*models.Auction, bool) {
	auction, ok := h.findAuction(w, r)
	if !ok {
		return nil, false
	}
	if r.Header.Get("X-Admin-Token") != auction.AdminToken {
		http.Error(w, "invalid admin token", http.StatusForbidden)
		return nil, false
	}
	return auction, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
