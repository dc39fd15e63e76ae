package metrics

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// StatsSource provides functions to retrieve current counts for gauge metrics.
// Nil functions are skipped.
type StatsSource struct {
	ReportCount         func() int
	ReportCountByStatus func() map[string]int
	SessionCount        func() int
}

// StartCollector launches a goroutine that periodically updates gauge metrics.
// It runs every interval until the context is cancelled.
func StartCollector(ctx context.Context, src StatsSource, interval time.Duration) {
	// Do an initial collection immediately
	collect(src)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				collect(src)
			}
		}
	}()

	log.Info().Dur("interval", interval).Msg("Metrics collector started")
}

func collect(src StatsSource) {
	if src.ReportCount != nil {
		ReportsTotal.Set(float64(src.ReportCount()))
	}
	if src.ReportCountByStatus != nil {
		for status, count := range src.ReportCountByStatus() {
			ReportsByStatus.WithLabelValues(status).Set(float64(count))
		}
	}
	if src.SessionCount != nil {
		SessionsLive.Set(float64(src.SessionCount()))
	}
}
