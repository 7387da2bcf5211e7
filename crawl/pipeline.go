// Package crawl discovers live rooms, probes one sample per sub-area for FLV
// availability and reconciles the verdicts into the rolling store.
package crawl

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/flvwatch/store"
	"github.com/onnwee/flvwatch/telemetry"
)

// RunSummary describes one completed pipeline run.
type RunSummary struct {
	RunID        string              `json:"runId"`
	StartedAt    time.Time           `json:"startedAt"`
	FinishedAt   time.Time           `json:"finishedAt"`
	SubAreas     int                 `json:"subAreas"`
	Rooms        int                 `json:"rooms"`
	Inconclusive int                 `json:"inconclusive"`
	Records      int                 `json:"records"`
	Observations []store.Observation `json:"-"`
}

// Available counts observations that reported FLV availability.
func (s RunSummary) Available() int {
	n := 0
	for _, o := range s.Observations {
		if o.FlvAvailable {
			n++
		}
	}
	return n
}

// Pipeline is the network-facing part of a run: discovery, probing and reconciliation.
// It never touches the store file; callers persist the returned store.
type Pipeline struct {
	Lister    RoomLister
	Prober    *Prober
	Discovery DiscoveryOptions
	// ProbeDelay is slept between consecutive room requests.
	ProbeDelay time.Duration
	Now        func() time.Time
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Run performs one crawl against prior and returns the reconciled store. On error the
// returned store is the zero value and prior must be kept as is.
func (p *Pipeline) Run(ctx context.Context, prior store.Store) (store.Store, RunSummary, error) {
	sum := RunSummary{RunID: uuid.NewString(), StartedAt: p.now()}
	if telemetry.GetCorrelation(ctx) == "" {
		ctx = telemetry.WithCorrelation(ctx, sum.RunID)
	}
	ctx, span := telemetry.StartSpan(ctx, "flvwatch/crawl", "crawl.run", telemetry.RunIDAttr(sum.RunID))
	defer span.End()
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "crawl"), slog.String("run_id", sum.RunID))

	groups, err := DiscoverRooms(ctx, p.Lister, p.Discovery)
	if err != nil {
		telemetry.RecordError(span, err)
		return store.Store{}, sum, err
	}
	sum.SubAreas = len(groups)
	sum.Rooms = len(Flatten(groups))
	logger.Info("discovery complete", slog.Int("sub_areas", sum.SubAreas), slog.Int("rooms", sum.Rooms))

	probed := 0
	for i, g := range groups {
		if i > 0 && p.ProbeDelay > 0 {
			select {
			case <-ctx.Done():
				telemetry.RecordError(span, ctx.Err())
				return store.Store{}, sum, ctx.Err()
			case <-time.After(p.ProbeDelay):
			}
		}
		obs, ok, err := p.Prober.probeSubArea(ctx, g, func(room Room, v Verdict, err error) {
			probed++
			attrs := []any{
				slog.String("room_id", room.RoomID),
				slog.String("sub_area_id", room.SubAreaID),
				slog.String("verdict", v.String()),
				slog.Int("probed", probed),
				slog.Int("rooms", sum.Rooms),
				slog.Int("progress_pct", probed*100/sum.Rooms),
			}
			if err != nil {
				attrs = append(attrs, slog.Any("err", err))
			}
			logger.Info("room probed", attrs...)
		})
		if err != nil {
			telemetry.RecordError(span, err)
			return store.Store{}, sum, err
		}
		if ok {
			sum.Observations = append(sum.Observations, obs)
		} else {
			sum.Inconclusive++
		}
		logger.Info("sub-area probed",
			slog.String("sub_area_id", g.SubAreaID),
			slog.Int("done", i+1),
			slog.Int("total", len(groups)),
			slog.Int("progress_pct", (i+1)*100/len(groups)),
			slog.Bool("observed", ok))
	}

	next := store.Reconcile(prior, sum.Observations, p.now())
	sum.Records = len(next.Records)
	sum.FinishedAt = p.now()
	telemetry.SetSpanSuccess(span)
	logger.Info("run reconciled",
		slog.Int("observations", len(sum.Observations)),
		slog.Int("available", sum.Available()),
		slog.Int("inconclusive", sum.Inconclusive),
		slog.Int("records", sum.Records))
	return next, sum, nil
}
