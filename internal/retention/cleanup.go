// Package retention deletes completed auctions after their retention
// window, event-log cascade included.
package retention

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/auctionhq/ipl-auction-backend/internal/ephemeral"
	"github.com/auctionhq/ipl-auction-backend/internal/store"
)

type Cleaner struct {
	store         store.Store
	eph           *ephemeral.Store
	retentionDays int
	interval      time.Duration
	log           *zap.Logger
}

func NewCleaner(st store.Store, eph *ephemeral.Store, retentionDays int, log *zap.Logger) *Cleaner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cleaner{
		store:         st,
		eph:           eph,
		retentionDays: retentionDays,
		interval:      1 * time.Hour,
		log:           log,
	}
}

// Run blocks until ctx is cancelled, sweeping on a fixed interval.
func (c *Cleaner) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

func (c *Cleaner) sweep(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -c.retentionDays)
	ids, err := c.store.CompletedBefore(ctx, cutoff)
	if err != nil {
		c.log.Error("retention sweep failed", zap.Error(err))
		return
	}
	for _, id := range ids {
		if err := c.store.DeleteAuction(ctx, id); err != nil {
			c.log.Error("deleting expired auction",
				zap.String("auction", id.String()), zap.Error(err))
			continue
		}
		c.eph.ClearAuction(id)
		c.log.Info("archived auction", zap.String("auction", id.String()))
	}
}
