// Package stats periodically logs the gateway's operational counters so
// coalescing effectiveness shows up in logs without scraping metrics.
package stats

import (
	"github.com/robfig/cron/v3"

	"github.com/linuxfoundation/lfx-gateway/internal/logging"
	"github.com/linuxfoundation/lfx-gateway/internal/querylock"
)

// Source is anything that can snapshot dedup counters.
type Source interface {
	Stats() querylock.Stats
}

// Reporter logs a stats snapshot on a fixed schedule.
type Reporter struct {
	cron   *cron.Cron
	source Source
	logger *logging.Logger
}

// NewReporter creates a Reporter. schedule is a cron expression; an empty
// string uses a one-minute interval.
func NewReporter(source Source, logger *logging.Logger, schedule string) (*Reporter, error) {
	if schedule == "" {
		schedule = "@every 1m"
	}

	r := &Reporter{
		cron:   cron.New(),
		source: source,
		logger: logger,
	}
	if _, err := r.cron.AddFunc(schedule, r.report); err != nil {
		return nil, err
	}
	return r, nil
}

// Start begins scheduled reporting.
func (r *Reporter) Start() {
	r.cron.Start()
}

// Stop halts the schedule and waits for a running report to finish.
func (r *Reporter) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Reporter) report() {
	s := r.source.Stats()
	r.logger.WithFields(map[string]interface{}{
		"queries_in_flight": s.InFlight,
		"dedup_hits":        s.Hits,
		"dedup_misses":      s.Misses,
	}).Info("Warehouse query stats")
}
