// Package queue owns player progression: per-set FIFO queues for the
// normal round and the admin-curated queue for accelerated rounds.
package queue

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/auctionhq/ipl-auction-backend/internal/ephemeral"
	"github.com/auctionhq/ipl-auction-backend/internal/models"
	"github.com/auctionhq/ipl-auction-backend/internal/store"
)

var (
	ErrPlayerAssigned = errors.New("player already assigned in this auction")
	ErrWrongAuction   = errors.New("player does not belong to this auction")
	ErrNotAccelerated = errors.New("only available in accelerated rounds")
	ErrUnknownRound   = errors.New("unknown round")
	ErrAlreadyInitial = errors.New("queues already initialized")
	errNoCurrentSet   = errors.New("auction has no current set")
)

// Result of a load operation. Exactly one of Player, RoundComplete,
// QueueEmpty is meaningful.
type Result struct {
	Player        *models.Player
	RoundComplete bool
	QueueEmpty    bool
}

type Progression struct {
	store store.Store
	eph   *ephemeral.Store
	log   *zap.Logger

	// shuffle is swappable so tests can pin an order.
	shuffle func(n int, swap func(i, j int))
}

func NewProgression(st store.Store, eph *ephemeral.Store, log *zap.Logger) *Progression {
	if log == nil {
		log = zap.NewNop()
	}
	return &Progression{
		store:   st,
		eph:     eph,
		log:     log,
		shuffle: rand.Shuffle,
	}
}

// Initialize partitions every unassigned normal-round player by set,
// shuffles each set independently, and fills the per-set queues. Runs
// once at auction start; retained players never enter a queue.
func (p *Progression) Initialize(ctx context.Context, auctionID uuid.UUID) error {
	for _, set := range CanonicalSetOrder {
		if p.eph.ListLen(ephemeral.QueueKey(auctionID, set)) > 0 {
			return ErrAlreadyInitial
		}
	}

	players, err := p.store.PlayersByAuction(ctx, auctionID)
	if err != nil {
		return fmt.Errorf("loading players: %w", err)
	}
	assigned, err := p.store.AssignedPlayerIDs(ctx, auctionID)
	if err != nil {
		return fmt.Errorf("loading assignments: %w", err)
	}

	bySet := make(map[string][]uuid.UUID)
	for _, pl := range players {
		if assigned[pl.ID] || !IsNormalRoundSet(pl.AuctionSet) {
			continue
		}
		bySet[pl.AuctionSet] = append(bySet[pl.AuctionSet], pl.ID)
	}

	for _, set := range CanonicalSetOrder {
		ids := bySet[set]
		p.shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
		for _, id := range ids {
			p.eph.PushBack(ephemeral.QueueKey(auctionID, set), id)
		}
		p.log.Debug("set queue filled",
			zap.String("auction", auctionID.String()),
			zap.String("set", set),
			zap.Int("players", len(ids)))
	}
	return nil
}

// LoadFirst positions the auction at the head of the first canonical set.
func (p *Progression) LoadFirst(ctx context.Context, a *models.Auction) (Result, error) {
	first := CanonicalSetOrder[0]
	a.CurrentSet = &first
	return p.LoadNext(ctx, a)
}

// LoadNext advances to the next player. In the normal round it walks the
// canonical set order; in accelerated rounds it pops the curated queue.
// Persists the updated auction row before returning.
func (p *Progression) LoadNext(ctx context.Context, a *models.Auction) (Result, error) {
	switch a.CurrentRound {
	case models.RoundNormal:
		return p.loadNextNormal(ctx, a)
	case models.RoundAccelerated1, models.RoundAccelerated2:
		return p.loadNextAccelerated(ctx, a)
	default:
		return Result{}, ErrUnknownRound
	}
}

func (p *Progression) loadNextNormal(ctx context.Context, a *models.Auction) (Result, error) {
	if a.CurrentSet == nil {
		return Result{}, errNoCurrentSet
	}
	set := *a.CurrentSet
	for {
		if id, ok := p.eph.PopFront(ephemeral.QueueKey(a.ID, set)); ok {
			return p.present(ctx, a, id)
		}
		nxt, ok := nextSet(set)
		if !ok {
			// Last set drained: the normal round is complete.
			a.CurrentSet = nil
			p.clearCurrent(a)
			if err := p.store.UpdateAuction(ctx, a); err != nil {
				return Result{}, err
			}
			return Result{RoundComplete: true}, nil
		}
		set = nxt
		cur := set
		a.CurrentSet = &cur
	}
}

func (p *Progression) loadNextAccelerated(ctx context.Context, a *models.Auction) (Result, error) {
	id, ok := p.eph.PopFront(ephemeral.AcceleratedQueueKey(a.ID))
	if !ok {
		// Not round-complete: the admin may still queue more players.
		p.clearCurrent(a)
		if err := p.store.UpdateAuction(ctx, a); err != nil {
			return Result{}, err
		}
		return Result{QueueEmpty: true}, nil
	}
	return p.present(ctx, a, id)
}

// LoadSpecific puts an admin-chosen player on the block immediately.
// Accelerated rounds only; rejects players already assigned.
func (p *Progression) LoadSpecific(ctx context.Context, a *models.Auction, playerID uuid.UUID) (Result, error) {
	if a.CurrentRound == models.RoundNormal {
		return Result{}, ErrNotAccelerated
	}
	if err := p.checkQueueable(ctx, a, playerID); err != nil {
		return Result{}, err
	}
	return p.present(ctx, a, playerID)
}

// Queue appends a player to the accelerated-round queue without loading.
func (p *Progression) Queue(ctx context.Context, a *models.Auction, playerID uuid.UUID) error {
	if a.CurrentRound == models.RoundNormal {
		return ErrNotAccelerated
	}
	if err := p.checkQueueable(ctx, a, playerID); err != nil {
		return err
	}
	p.eph.PushBack(ephemeral.AcceleratedQueueKey(a.ID), playerID)
	return nil
}

// ClearAccelerated drops the curated queue, e.g. on a round change.
func (p *Progression) ClearAccelerated(auctionID uuid.UUID) {
	p.eph.ClearList(ephemeral.AcceleratedQueueKey(auctionID))
}

func (p *Progression) checkQueueable(ctx context.Context, a *models.Auction, playerID uuid.UUID) error {
	player, err := p.store.GetPlayer(ctx, playerID)
	if err != nil {
		return err
	}
	if player.AuctionID != a.ID {
		return ErrWrongAuction
	}
	if _, err := p.store.GetAssignment(ctx, a.ID, playerID); err == nil {
		return ErrPlayerAssigned
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

// present makes the player current, clearing any prior bid.
func (p *Progression) present(ctx context.Context, a *models.Auction, playerID uuid.UUID) (Result, error) {
	player, err := p.store.GetPlayer(ctx, playerID)
	if err != nil {
		return Result{}, fmt.Errorf("loading queued player: %w", err)
	}
	id := player.ID
	a.CurrentPlayerID = &id
	a.CurrentBidAmount = nil
	a.CurrentBiddingTeamID = nil
	if err := p.store.UpdateAuction(ctx, a); err != nil {
		return Result{}, err
	}
	p.eph.Delete(ephemeral.BidMirrorKey(a.ID))
	return Result{Player: player}, nil
}

func (p *Progression) clearCurrent(a *models.Auction) {
	a.CurrentPlayerID = nil
	a.CurrentBidAmount = nil
	a.CurrentBiddingTeamID = nil
	p.eph.Delete(ephemeral.BidMirrorKey(a.ID))
}

// Eligible lists the players presentable in the auction's current round,
// sorted by canonical set order then name. Accelerated round 1 covers
// players outside the normal-round sets; accelerated round 2 covers every
// unassigned player regardless of set.
func (p *Progression) Eligible(ctx context.Context, a *models.Auction) ([]models.Player, error) {
	players, err := p.store.PlayersByAuction(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	assigned, err := p.store.AssignedPlayerIDs(ctx, a.ID)
	if err != nil {
		return nil, err
	}

	var out []models.Player
	for _, pl := range players {
		if assigned[pl.ID] {
			continue
		}
		switch a.CurrentRound {
		case models.RoundNormal:
			if IsNormalRoundSet(pl.AuctionSet) {
				out = append(out, pl)
			}
		case models.RoundAccelerated1:
			if !IsNormalRoundSet(pl.AuctionSet) {
				out = append(out, pl)
			}
		case models.RoundAccelerated2:
			out = append(out, pl)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		si, sj := SetIndex(out[i].AuctionSet), SetIndex(out[j].AuctionSet)
		if si != sj {
			return si < sj
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}
