// Package scraper drives the periodic gather cycles: read cluster state,
// resolve prices, derive costs, publish gauges.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/costscope/costscope-agent/internal/cost"
	agenterrors "github.com/costscope/costscope-agent/internal/errors"
	"github.com/costscope/costscope-agent/internal/observability"
	"github.com/costscope/costscope-agent/pkg/model"
)

// SnapshotReader lists the cluster's pod and node resource records.
type SnapshotReader interface {
	ListPodRecords(ctx context.Context) ([]model.PodResourceRecord, error)
	ListNodeRecords(ctx context.Context) ([]model.NodeResourceRecord, error)
}

// PriceResolver resolves a per-vCPU-hour price for a node identity.
type PriceResolver interface {
	ResolvePrice(ctx context.Context, region, instanceType, operatingSystem string) model.Price
}

// CostPublisher receives the finished records of a cycle.
type CostPublisher interface {
	PublishPods(records []model.PodResourceRecord)
	PublishNodes(records []model.NodeResourceRecord)
}

// Scraper runs gather cycles at a fixed interval. The interval is measured
// from the end of one cycle to the start of the next, so a slow cycle delays
// the following one instead of overlapping it.
type Scraper struct {
	reader    SnapshotReader
	prices    PriceResolver
	publisher CostPublisher

	interval time.Duration
	gate     *Gate

	errs *agenterrors.ErrorCollector
	obs  *observability.Metrics

	// cycleMu serializes whole cycles. The pod phase and the node phase of
	// one cycle never interleave with any phase of another cycle.
	cycleMu sync.Mutex
	ready   atomic.Bool
}

// NewScraper creates a Scraper. concurrency bounds simultaneous gather
// operations; errs and obs may be nil.
func NewScraper(reader SnapshotReader, prices PriceResolver, publisher CostPublisher, interval time.Duration, concurrency int, errs *agenterrors.ErrorCollector, obs *observability.Metrics) *Scraper {
	return &Scraper{
		reader:    reader,
		prices:    prices,
		publisher: publisher,
		interval:  interval,
		gate:      NewGate(concurrency),
		errs:      errs,
		obs:       obs,
	}
}

// IsReady reports whether at least one cycle has completed.
// Implements health.ReadinessChecker.
func (s *Scraper) IsReady() bool {
	return s.ready.Load()
}

// Run executes cycles until the context is canceled. The first cycle starts
// immediately.
func (s *Scraper) Run(ctx context.Context) error {
	slog.Info("scraper starting", "interval", s.interval)
	for {
		s.RunCycle(ctx)
		s.ready.Store(true)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.interval):
		}
	}
}

// RunCycle executes one gather cycle: the pod phase followed by the node
// phase. A failed phase is contained; the other phase still runs and the
// prior published values for the failed phase remain in place.
func (s *Scraper) RunCycle(ctx context.Context) {
	if err := s.gate.Acquire(ctx); err != nil {
		return
	}
	defer s.gate.Release()

	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	start := time.Now()
	failed := false

	pods, err := s.podPhase(ctx)
	if err != nil {
		s.reportPhase("pods", err)
		failed = true
	}
	nodes, err := s.nodePhase(ctx)
	if err != nil {
		s.reportPhase("nodes", err)
		failed = true
	}

	elapsed := time.Since(start)
	if s.obs != nil {
		s.obs.CycleDuration.Observe(elapsed.Seconds())
		status := "success"
		if failed {
			status = "error"
		}
		s.obs.CyclesTotal.WithLabelValues(status).Inc()
	}
	slog.Info("cycle complete",
		"pods", pods,
		"nodes", nodes,
		"elapsed", elapsed.Round(time.Millisecond),
		"failed", failed,
	)
}

func (s *Scraper) podPhase(ctx context.Context) (int, error) {
	start := time.Now()
	records, err := s.reader.ListPodRecords(ctx)
	if err != nil {
		return 0, fmt.Errorf("pod phase: %w", err)
	}

	for i := range records {
		rec := &records[i]
		price := s.prices.ResolvePrice(ctx, rec.Region, rec.InstanceType, rec.OperatingSystem)
		if !price.Known {
			s.reportUnknownPrice(rec.Region, rec.InstanceType, rec.OperatingSystem)
		}
		rec.UsageCost, rec.WastageCost = cost.PodCost(*rec, price)
	}
	s.publisher.PublishPods(records)

	if s.obs != nil {
		s.obs.PhaseDuration.WithLabelValues("pods").Observe(time.Since(start).Seconds())
		s.obs.RecordsGathered.WithLabelValues("pod").Set(float64(len(records)))
	}
	return len(records), nil
}

func (s *Scraper) nodePhase(ctx context.Context) (int, error) {
	start := time.Now()
	records, err := s.reader.ListNodeRecords(ctx)
	if err != nil {
		return 0, fmt.Errorf("node phase: %w", err)
	}

	for i := range records {
		rec := &records[i]
		price := s.prices.ResolvePrice(ctx, rec.Region, rec.InstanceType, rec.OperatingSystem)
		if !price.Known {
			s.reportUnknownPrice(rec.Region, rec.InstanceType, rec.OperatingSystem)
		}
		rec.HourlyCost, rec.UsageCost, rec.WastageCost = cost.NodeCost(*rec, price)
	}
	s.publisher.PublishNodes(records)

	if s.obs != nil {
		s.obs.PhaseDuration.WithLabelValues("nodes").Observe(time.Since(start).Seconds())
		s.obs.RecordsGathered.WithLabelValues("node").Set(float64(len(records)))
	}
	return len(records), nil
}

// reportUnknownPrice records that costs for a price key were zeroed. The
// collector dedupes by code and component, so repeated records within a
// cycle collapse to one active entry.
func (s *Scraper) reportUnknownPrice(region, instanceType, operatingSystem string) {
	if s.errs == nil {
		return
	}
	s.errs.Report(agenterrors.AgentError{
		Code:      agenterrors.ErrPriceUnknown,
		Message:   fmt.Sprintf("no price for %s/%s/%s, costs zeroed", region, instanceType, operatingSystem),
		Component: "scraper",
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Scraper) reportPhase(phase string, err error) {
	if s.errs != nil {
		s.errs.Report(agenterrors.AgentError{
			Code:      agenterrors.ErrScrapePhaseFailed,
			Message:   fmt.Sprintf("%s phase failed: %v", phase, err),
			Component: "scraper",
			Timestamp: time.Now().UnixMilli(),
			Err:       err,
		})
	}
	slog.Error("phase failed", "phase", phase, "error", err)
}
