package crawl

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/onnwee/flvwatch/bilibili"
	"github.com/onnwee/flvwatch/telemetry"
)

// SamplesPerSubArea is how many rooms discovery keeps for each sub-area.
const SamplesPerSubArea = 2

// Room is a live room discovered through a ranking, tagged with its area and sub-area.
type Room = bilibili.RoomEntry

// RoomLister fetches one page of a ranking. *bilibili.Client implements it.
type RoomLister interface {
	ListRooms(ctx context.Context, sort string, page, pageSize int) (bilibili.PageResult, error)
}

// DiscoveryOptions controls how many ranking pages are walked and how bad pages are treated.
type DiscoveryOptions struct {
	Pages    int
	PageSize int
	// Strict turns a malformed page into a fatal error instead of an empty one.
	Strict bool
	// Delay is slept between consecutive page requests.
	Delay time.Duration
}

// SubAreaSamples groups the rooms retained for one sub-area, in retention order.
type SubAreaSamples struct {
	SubAreaID string
	Rooms     []Room
}

// DiscoverRooms walks both rankings page by page, interleaves them and keeps up to
// SamplesPerSubArea rooms per sub-area, first seen first. Sub-areas are returned in
// the order they were first seen. A platform error, a transport failure, or (in
// strict mode) a malformed page aborts discovery.
func DiscoverRooms(ctx context.Context, lister RoomLister, opts DiscoveryOptions) ([]SubAreaSamples, error) {
	byOnline, err := fetchRanking(ctx, lister, bilibili.SortOnline, opts)
	if err != nil {
		return nil, err
	}
	byLiveTime, err := fetchRanking(ctx, lister, bilibili.SortLiveTime, opts)
	if err != nil {
		return nil, err
	}
	return groupBySubArea(interleave(byOnline, byLiveTime), SamplesPerSubArea), nil
}

func fetchRanking(ctx context.Context, lister RoomLister, sort string, opts DiscoveryOptions) ([]Room, error) {
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "discovery"), slog.String("sort", sort))
	pages := opts.Pages
	if pages <= 0 {
		pages = 1
	}
	var rooms []Room
	for page := 1; page <= pages; page++ {
		if page > 1 && opts.Delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(opts.Delay):
			}
		}
		pctx, span := telemetry.StartSpan(ctx, "flvwatch/crawl", "discovery.page", telemetry.SortAttr(sort), telemetry.PageAttr(page))
		res, err := lister.ListRooms(pctx, sort, page, opts.PageSize)
		if err != nil {
			telemetry.RecordError(span, err)
			span.End()
			telemetry.ObservePage(sort, "error")
			return nil, &discoveryError{sort: sort, page: page, pages: pages, err: err}
		}
		telemetry.ObservePage(sort, res.Status.String())
		if res.Status == bilibili.PageMalformed {
			if opts.Strict {
				err := &discoveryError{sort: sort, page: page, pages: pages, err: fmt.Errorf("%w: %s", ErrMalformedPage, res.Reason)}
				telemetry.RecordError(span, err)
				span.End()
				return nil, err
			}
			logger.Warn("discovery page malformed, treating as empty", slog.Int("page", page), slog.String("reason", res.Reason))
		}
		telemetry.SetSpanSuccess(span)
		span.End()

		rooms = append(rooms, res.Rooms...)
		logger.Info("discovery page fetched",
			slog.Int("page", page),
			slog.Int("pages", pages),
			slog.Int("progress_pct", page*100/pages),
			slog.Int("rooms", len(res.Rooms)),
			slog.Int("dropped", res.Dropped))
	}
	return rooms, nil
}

// interleave alternates a and b one-for-one, appending the tail of the longer list.
func interleave(a, b []Room) []Room {
	out := make([]Room, 0, len(a)+len(b))
	for i := 0; i < len(a) || i < len(b); i++ {
		if i < len(a) {
			out = append(out, a[i])
		}
		if i < len(b) {
			out = append(out, b[i])
		}
	}
	return out
}

// groupBySubArea keeps at most limit rooms per sub-area in first-seen order.
// The same room seen in both rankings is kept once.
func groupBySubArea(rooms []Room, limit int) []SubAreaSamples {
	index := make(map[string]int)
	var out []SubAreaSamples
	for _, r := range rooms {
		if r.SubAreaID == "" || r.RoomID == "" {
			continue
		}
		i, ok := index[r.SubAreaID]
		if !ok {
			i = len(out)
			index[r.SubAreaID] = i
			out = append(out, SubAreaSamples{SubAreaID: r.SubAreaID})
		}
		g := &out[i]
		if len(g.Rooms) >= limit || containsRoom(g.Rooms, r.RoomID) {
			continue
		}
		g.Rooms = append(g.Rooms, r)
	}
	return out
}

func containsRoom(rooms []Room, id string) bool {
	for _, r := range rooms {
		if r.RoomID == id {
			return true
		}
	}
	return false
}

// Flatten returns the retained rooms in sub-area order.
func Flatten(groups []SubAreaSamples) []Room {
	var out []Room
	for _, g := range groups {
		out = append(out, g.Rooms...)
	}
	return out
}
