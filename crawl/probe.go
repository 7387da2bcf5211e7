package crawl

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/onnwee/flvwatch/store"
	"github.com/onnwee/flvwatch/telemetry"
)

const (
	DefaultManifestMarker = ".m3u8"
	DefaultFlvMarker      = ".flv?"
)

// PageFetcher returns the HTML of a room page. *bilibili.Client implements it.
type PageFetcher interface {
	FetchRoomPage(ctx context.Context, roomID string) (string, error)
}

// Verdict is the outcome of probing one room page.
type Verdict int

const (
	// VerdictInconclusive means the page lacked the manifest marker (offline room, bot wall).
	VerdictInconclusive Verdict = iota
	VerdictAvailable
	VerdictUnavailable
)

func (v Verdict) String() string {
	switch v {
	case VerdictAvailable:
		return telemetry.ProbeAvailable
	case VerdictUnavailable:
		return telemetry.ProbeUnavailable
	default:
		return telemetry.ProbeInconclusive
	}
}

// Classify applies the marker heuristics to a room page body.
func Classify(body, manifestMarker, flvMarker string) Verdict {
	if !strings.Contains(body, manifestMarker) {
		return VerdictInconclusive
	}
	if strings.Contains(body, flvMarker) {
		return VerdictAvailable
	}
	return VerdictUnavailable
}

// Prober fetches room pages one at a time and turns them into observations.
type Prober struct {
	Fetcher        PageFetcher
	ManifestMarker string
	FlvMarker      string
}

func (p *Prober) markers() (string, string) {
	m, f := p.ManifestMarker, p.FlvMarker
	if m == "" {
		m = DefaultManifestMarker
	}
	if f == "" {
		f = DefaultFlvMarker
	}
	return m, f
}

// ProbeRoom fetches a single room page and classifies it. Any returned error
// comes from the fetch; the verdict is then meaningless.
func (p *Prober) ProbeRoom(ctx context.Context, room Room) (Verdict, error) {
	ctx, span := telemetry.StartSpan(ctx, "flvwatch/crawl", "probe.room", telemetry.RoomAttr(room.RoomID), telemetry.SubAreaAttr(room.SubAreaID))
	defer span.End()

	start := time.Now()
	body, err := p.Fetcher.FetchRoomPage(ctx, room.RoomID)
	if err != nil {
		telemetry.ObserveProbe(telemetry.ProbeError, time.Since(start))
		telemetry.RecordError(span, err)
		return VerdictInconclusive, err
	}
	manifest, flv := p.markers()
	v := Classify(body, manifest, flv)
	telemetry.ObserveProbe(v.String(), time.Since(start))
	if v == VerdictInconclusive {
		telemetry.LoggerWithCorr(ctx).Info("room page lacks manifest marker",
			slog.String("component", "probe"),
			slog.String("room_id", room.RoomID),
			slog.String("sub_area_id", room.SubAreaID),
			slog.String("title", pageTitle(body)))
	}
	telemetry.SetSpanSuccess(span)
	return v, nil
}

// ProbeSubArea tries the retained rooms of one sub-area in order and returns an
// observation from the first conclusive one. ok is false when no sample was
// conclusive. The error is non-nil only when ctx ended; per-room failures are
// logged and the next sample is tried.
func (p *Prober) ProbeSubArea(ctx context.Context, g SubAreaSamples) (obs store.Observation, ok bool, err error) {
	return p.probeSubArea(ctx, g, nil)
}

// probeSubArea is ProbeSubArea with a hook called after every room request.
func (p *Prober) probeSubArea(ctx context.Context, g SubAreaSamples, probed func(Room, Verdict, error)) (store.Observation, bool, error) {
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "probe"), slog.String("sub_area_id", g.SubAreaID))
	for _, room := range g.Rooms {
		v, err := p.ProbeRoom(ctx, room)
		if probed != nil {
			probed(room, v, err)
		}
		if err != nil {
			if ctx.Err() != nil {
				return store.Observation{}, false, ctx.Err()
			}
			logger.Warn("room probe failed",
				slog.String("room_id", room.RoomID),
				slog.String("class", ClassifyError(err).String()),
				slog.Any("err", err))
			continue
		}
		if v == VerdictInconclusive {
			continue
		}
		return store.Observation{
			AreaID:       room.AreaID,
			AreaName:     room.AreaName,
			SubAreaID:    room.SubAreaID,
			SubAreaName:  room.SubAreaName,
			RoomID:       room.RoomID,
			FlvAvailable: v == VerdictAvailable,
		}, true, nil
	}
	return store.Observation{}, false, nil
}

// pageTitle extracts the document title for diagnostics; bot walls usually announce themselves there.
func pageTitle(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
