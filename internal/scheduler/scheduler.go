package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fentz26/baton/internal/audit"
	"github.com/fentz26/baton/internal/metrics"
)

// ViolationPruner drops violations older than the tracker window.
type ViolationPruner interface {
	PruneOld() int
}

// WorkflowClearer removes completed workflows older than maxAge.
type WorkflowClearer interface {
	ClearCompleted(maxAge time.Duration) []string
}

// RecordPruner deletes decision records older than cutoff.
type RecordPruner interface {
	PrunePDR(ctx context.Context, cutoff time.Time) (int64, error)
}

// Report summarises one sweep.
type Report struct {
	Violations int   `json:"violations"`
	Workflows  int   `json:"workflows"`
	Records    int64 `json:"records"`
}

// Scheduler runs housekeeping on a fixed interval.
type Scheduler struct {
	tracker   ViolationPruner
	workflows WorkflowClearer
	records   RecordPruner
	pdr       audit.Recorder
	config    *Config
	logger    *zap.Logger
	now       func() time.Time

	mu     sync.Mutex
	runs   int
	failed int
	last   Report
	lastAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new scheduler. records may be nil when nothing is persisted.
func New(tracker ViolationPruner, workflows WorkflowClearer, records RecordPruner, pdr audit.Recorder, cfg *Config, logger *zap.Logger) *Scheduler {
	if pdr == nil {
		pdr = audit.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		tracker:   tracker,
		workflows: workflows,
		records:   records,
		pdr:       pdr,
		config:    cfg.withDefaults(),
		logger:    logger.Named("scheduler"),
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins the sweep loop.
func (sch *Scheduler) Start() {
	sch.wg.Add(1)
	go sch.loop()
	sch.logger.Info("scheduler started",
		zap.Duration("interval", sch.config.Interval),
		zap.Duration("retention", sch.config.Retention),
	)
}

// Stop gracefully stops the scheduler, waiting for an in-flight sweep.
func (sch *Scheduler) Stop() {
	sch.cancel()
	sch.wg.Wait()
	sch.logger.Info("scheduler stopped")
}

func (sch *Scheduler) loop() {
	defer sch.wg.Done()

	ticker := time.NewTicker(sch.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-sch.ctx.Done():
			return
		case <-ticker.C:
			if _, err := sch.Sweep(sch.ctx); err != nil {
				sch.logger.Warn("housekeeping sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep prunes violations, completed workflows and old decision records.
// The three jobs run concurrently; the first error is returned after all
// of them finish.
func (sch *Scheduler) Sweep(ctx context.Context) (Report, error) {
	var report Report
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if sch.tracker != nil {
			report.Violations = sch.tracker.PruneOld()
		}
		return nil
	})
	g.Go(func() error {
		if sch.workflows != nil {
			report.Workflows = len(sch.workflows.ClearCompleted(sch.config.Retention))
		}
		return nil
	})
	g.Go(func() error {
		if sch.records == nil {
			return nil
		}
		n, err := sch.records.PrunePDR(gctx, sch.now().Add(-sch.config.Retention))
		if err != nil {
			return fmt.Errorf("prune decision records: %w", err)
		}
		report.Records = n
		return nil
	})

	err := g.Wait()

	result := "success"
	if err != nil {
		result = "error"
	}
	metrics.HousekeepingRuns.WithLabelValues(result).Inc()

	sch.mu.Lock()
	sch.runs++
	if err != nil {
		sch.failed++
	}
	sch.last = report
	sch.lastAt = sch.now()
	sch.mu.Unlock()

	if report.Workflows > 0 || report.Records > 0 || report.Violations > 0 {
		if _, perr := sch.pdr.Record("scheduler.sweep", report, result, "",
			fmt.Sprintf("Pruned %d violations, %d workflows, %d records", report.Violations, report.Workflows, report.Records)); perr != nil {
			sch.logger.Warn("failed to write decision record", zap.Error(perr))
		}
		sch.logger.Info("housekeeping sweep",
			zap.Int("violations", report.Violations),
			zap.Int("workflows", report.Workflows),
			zap.Int64("records", report.Records),
		)
	}

	return report, err
}

// GetStats returns current scheduler statistics.
func (sch *Scheduler) GetStats() map[string]interface{} {
	sch.mu.Lock()
	defer sch.mu.Unlock()

	return map[string]interface{}{
		"runs":        sch.runs,
		"failed_runs": sch.failed,
		"last_report": sch.last,
		"last_run_at": sch.lastAt,
		"interval":    sch.config.Interval.String(),
		"retention":   sch.config.Retention.String(),
	}
}
