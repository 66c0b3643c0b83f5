// Package trigger implements cron-based background jobs, currently the
// daily low-stock digest that runs for every active tenant.
package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/ovenworks/banneton/internal/audit"
	"github.com/ovenworks/banneton/internal/store"
)

// DefaultDigestCron fires the low-stock digest at 06:00 every day.
const DefaultDigestCron = "0 6 * * *"

// DefaultLowStockThreshold marks products needing attention in the digest.
const DefaultLowStockThreshold = 5

// Scheduler manages cron-based background jobs.
// Cron expressions use the standard 5-field format: minute hour day-of-month month day-of-week
// (e.g. "0 6 * * *" for 06:00 daily). Do not use WithSeconds() so docs and configs match.
type Scheduler struct {
	cron     *cron.Cron
	store    *store.Store
	recorder *audit.Recorder
}

// NewScheduler creates a scheduler over the business store. Digest runs
// are recorded on the audit trail like any other operation.
func NewScheduler(st *store.Store, recorder *audit.Recorder) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		store:    st,
		recorder: recorder,
	}
}

// RegisterLowStockDigest adds the digest job on the given cron expression.
func (s *Scheduler) RegisterLowStockDigest(cronExpr string, threshold int) error {
	if cronExpr == "" {
		cronExpr = DefaultDigestCron
	}
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}

	_, err := s.cron.AddFunc(cronExpr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		s.RunLowStockDigest(ctx, threshold)
	})
	if err != nil {
		return fmt.Errorf("registering low stock digest cron %q: %w", cronExpr, err)
	}
	return nil
}

// RunLowStockDigest builds the digest for every active tenant. A failure
// for one tenant is logged and does not stop the others.
func (s *Scheduler) RunLowStockDigest(ctx context.Context, threshold int) {
	tenants, err := s.store.ListActiveTenants(ctx)
	if err != nil {
		log.Error().Err(err).Msg("low_stock_digest_tenant_list_failed")
		return
	}

	for _, t := range tenants {
		products, err := s.store.LowStock(ctx, t.ID, threshold)
		if err != nil {
			log.Error().Err(err).Str("tenant_id", t.ID).Msg("low_stock_digest_failed")
			continue
		}

		log.Info().
			Str("tenant_id", t.ID).
			Int("low_stock_count", len(products)).
			Int("threshold", threshold).
			Msg("low_stock_digest_completed")

		result, err := json.Marshal(map[string]any{
			"low_stock_count": len(products),
			"threshold":       threshold,
		})
		if err != nil {
			result = []byte("{}")
		}
		s.recorder.Record(ctx, &audit.Record{
			TenantID:   t.ID,
			UserID:     "system",
			ToolName:   "low_stock_digest",
			Parameters: []byte("{}"),
			Result:     result,
			Success:    true,
		})
	}
}

// Start begins executing registered cron jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for running jobs to complete.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Entries returns the number of registered cron entries (for testing).
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
