package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/auctionhq/ipl-auction-backend/internal/ws"
)

func SetupRoutes(h *Handlers) http.Handler {
	r := chi.NewRouter()

	r.Post("/auctions", h.CreateAuction)
	r.Delete("/auctions/{auctionID}", h.DeleteAuction)
	r.Post("/auctions/{auctionID}/teams", h.CreateTeam)
	r.Post("/auctions/{auctionID}/players", h.CreatePlayer)
	r.Get("/auctions/{auctionID}/players", h.ListEligiblePlayers)
	r.Get("/auctions/{auctionID}/events", h.ListEvents)
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(h.Hub, h.Store, h.Log))
	return r
}
