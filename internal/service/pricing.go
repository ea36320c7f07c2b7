package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"cardvault-api/internal/cache"
	"cardvault-api/internal/model"
)

// rapSmoothing is the divisor of the rolling average: each sale moves the
// RAP a tenth of the way towards the sale price.
var rapSmoothing = decimal.NewFromInt(10)

// NextRap returns the RAP after a sale at price. With no prior RAP the sale
// price becomes the RAP.
func NextRap(prior *float64, price int64) float64 {
	sale := decimal.NewFromInt(price)
	if prior == nil {
		return sale.InexactFloat64()
	}
	p := decimal.NewFromFloat(*prior)
	return p.Add(sale.Sub(p).Div(rapSmoothing)).InexactFloat64()
}

// BackfillResult summarizes one backfill run.
type BackfillResult struct {
	Items   int    `json:"items"`
	Written int    `json:"written"`
	Date    string `json:"date"`
}

// PricingService maintains RAP records and their daily history.
type PricingService struct {
	*core
}

// Rap returns the item's RAP record through the cache, or nil if the item
// never sold.
func (s *PricingService) Rap(ctx context.Context, t model.ItemType, name string) (*model.RapRecord, error) {
	return cache.Cached(ctx, s.cache, rapCacheKey(t, name), s.opts.RapTTL, func(ctx context.Context) (*model.RapRecord, error) {
		return s.repos.Prices.GetRap(ctx, t, name)
	})
}

func utcDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Backfill writes a snapshot of the current RAP for every day since each
// item's last snapshot, through today. Existing snapshots are never
// overwritten, so running it twice on one day writes nothing new.
func (s *PricingService) Backfill(ctx context.Context) (res BackfillResult, err error) {
	defer func() { observe("pricing.backfill", err) }()

	today := utcDate(s.now())
	res.Date = today.Format(model.DateLayout)

	registry, err := s.repos.Prices.Registry(ctx)
	if err != nil {
		return res, err
	}

	changed := false
	for _, entry := range registry {
		rec, err := s.repos.Prices.GetRap(ctx, entry.ItemType, entry.ItemName)
		if err != nil {
			return res, err
		}
		if rec == nil {
			continue
		}
		res.Items++

		start := utcDate(rec.LastUpdated).AddDate(0, 0, 1)
		if rec.LastSnapshotDate != "" {
			last, err := time.Parse(model.DateLayout, rec.LastSnapshotDate)
			if err != nil {
				return res, fmt.Errorf("item %s/%s: bad lastSnapshotDate: %w", entry.ItemType, entry.ItemName, err)
			}
			start = last.AddDate(0, 0, 1)
		}

		for day := start; !day.After(today); day = day.AddDate(0, 0, 1) {
			written, err := s.repos.Prices.PutHistory(ctx, entry.ItemType, entry.ItemName, model.RapHistoryEntry{
				Date: day.Format(model.DateLayout),
				Rap:  rec.Rap,
			})
			if err != nil {
				return res, err
			}
			if written {
				res.Written++
				changed = true
			}
		}

		if rec.LastSnapshotDate != res.Date {
			if err := s.repos.Prices.MarkSnapshot(ctx, entry.ItemType, entry.ItemName, res.Date); err != nil {
				return res, err
			}
			changed = true
		}
	}

	if changed {
		s.cache.Invalidate(ctx, historyCacheKey)
	}
	s.log.Debug().Int("items", res.Items).Int("written", res.Written).Msg("history backfill done")
	return res, nil
}

// History returns every tracked item with its RAP and daily history. A
// cache miss runs a backfill before loading.
func (s *PricingService) History(ctx context.Context) ([]model.ItemHistory, error) {
	return cache.Cached(ctx, s.cache, historyCacheKey, s.opts.HistoryTTL, s.loadHistory)
}

func (s *PricingService) loadHistory(ctx context.Context) ([]model.ItemHistory, error) {
	if _, err := s.Backfill(ctx); err != nil {
		return nil, err
	}

	registry, err := s.repos.Prices.Registry(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]model.ItemHistory, len(registry))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, entry := range registry {
		i, entry := i, entry
		g.Go(func() error {
			rec, err := s.repos.Prices.GetRap(gctx, entry.ItemType, entry.ItemName)
			if err != nil {
				return err
			}
			history, err := s.repos.Prices.History(gctx, entry.ItemType, entry.ItemName)
			if err != nil {
				return err
			}
			item := model.ItemHistory{
				ItemType: entry.ItemType,
				ItemName: entry.ItemName,
				History:  history,
			}
			if rec != nil {
				item.Rap = rec.Rap
				item.LastUpdated = rec.LastUpdated
				item.LastSnapshotDate = rec.LastSnapshotDate
			}
			items[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].ItemType != items[j].ItemType {
			return items[i].ItemType < items[j].ItemType
		}
		return items[i].ItemName < items[j].ItemName
	})
	return items, nil
}
