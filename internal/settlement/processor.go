package settlement

import (
	"context"
	"time"

	"github.com/ksred/atlas-api/internal/recommendation"
	"github.com/ksred/atlas-api/internal/types"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Processor is the background sweep: it moves settlement legs whose date
// has arrived from PENDING to PROCESSING and expires stale
// recommendations. Completion still requires an explicit bank
// confirmation through the API.
type Processor struct {
	settlements     *Service
	recommendations *recommendation.Service
	interval        time.Duration
}

func NewProcessor(gormDB *gorm.DB, interval time.Duration) *Processor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Processor{
		settlements:     NewService(gormDB),
		recommendations: recommendation.NewService(gormDB),
		interval:        interval,
	}
}

// Start runs the sweep loop until the context is cancelled. One sweep runs
// immediately on startup.
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("service", "settlement_processor").Logger()
	logger.Info().Dur("interval", p.interval).Msg("starting settlement processor")

	p.sweep()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("stopping settlement processor")
			return
		case <-ticker.C:
			p.sweep()
		}
	}
}

// Sweep runs one pass. Exposed for the internal trigger endpoint so
// operators can force a run between ticks.
func (p *Processor) Sweep() (int, int64) {
	return p.sweepCounts()
}

func (p *Processor) sweep() {
	p.sweepCounts()
}

func (p *Processor) sweepCounts() (int, int64) {
	logger := log.With().Str("service", "settlement_processor").Logger()
	now := p.settlements.now()

	due, err := p.settlements.db.ListDuePending(now)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list due settlements")
		return 0, 0
	}

	processed := 0
	for i := range due {
		stl := &due[i]
		stl.Status = types.SettlementProcessing
		stl.ProcessedAt = &now
		if err := p.settlements.db.UpdateSettlement(stl); err != nil {
			logger.Error().
				Err(err).
				Str("settlement_id", stl.SettlementID).
				Msg("failed to move settlement to processing")
			continue
		}
		processed++
	}

	expired, err := p.recommendations.ExpireOld()
	if err != nil {
		logger.Error().Err(err).Msg("failed to expire recommendations")
	}

	if processed > 0 || expired > 0 {
		logger.Info().
			Int("settlements_processing", processed).
			Int64("recommendations_expired", expired).
			Msg("sweep completed")
	}
	return processed, expired
}
