package crawl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/onnwee/flvwatch/bilibili"
	"github.com/onnwee/flvwatch/testutil"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Verdict
	}{
		{"both markers", testutil.RoomHTML("live", ".m3u8", ".flv?"), VerdictAvailable},
		{"manifest only", testutil.RoomHTML("live", ".m3u8"), VerdictUnavailable},
		{"flv without manifest is inconclusive", testutil.RoomHTML("live", ".flv?"), VerdictInconclusive},
		{"no markers", testutil.RoomHTML("offline"), VerdictInconclusive},
		{"empty body", "", VerdictInconclusive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.body, DefaultManifestMarker, DefaultFlvMarker); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProbeSubAreaUsesFirstConclusiveSample(t *testing.T) {
	mock := testutil.NewMockPlatformServer(t)
	mock.MockRoomPage("1", testutil.RoomHTML("验证码", "captcha"))
	mock.MockRoomPage("2", testutil.RoomHTML("live", ".m3u8", ".flv?"))
	mock.MockRoomPage("3", testutil.RoomHTML("live", ".m3u8"))

	p := &Prober{Fetcher: &bilibili.Client{RoomPageBase: mock.RoomPageBase()}}
	g := SubAreaSamples{SubAreaID: "86", Rooms: []Room{room("1", "86"), room("2", "86"), room("3", "86")}}

	obs, ok, err := p.ProbeSubArea(context.Background(), g)
	if err != nil || !ok {
		t.Fatalf("ProbeSubArea() = ok %v err %v", ok, err)
	}
	if obs.RoomID != "2" || !obs.FlvAvailable || obs.SubAreaID != "86" || obs.AreaName != "Games" {
		t.Errorf("observation = %+v", obs)
	}
	// the third room is never requested once a verdict exists
	for _, r := range mock.Requests() {
		if r == "room:3" {
			t.Error("probe continued after a conclusive sample")
		}
	}
}

func TestProbeSubAreaSkipsFailedRooms(t *testing.T) {
	mock := testutil.NewMockPlatformServer(t)
	mock.MockRoomHandler("1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	mock.MockRoomPage("2", testutil.RoomHTML("live", ".m3u8"))

	p := &Prober{Fetcher: &bilibili.Client{RoomPageBase: mock.RoomPageBase()}}
	obs, ok, err := p.ProbeSubArea(context.Background(), SubAreaSamples{SubAreaID: "5", Rooms: []Room{room("1", "5"), room("2", "5")}})
	if err != nil || !ok {
		t.Fatalf("ProbeSubArea() = ok %v err %v", ok, err)
	}
	if obs.RoomID != "2" || obs.FlvAvailable {
		t.Errorf("observation = %+v, want room 2 unavailable", obs)
	}
}

func TestProbeSubAreaAllInconclusive(t *testing.T) {
	mock := testutil.NewMockPlatformServer(t)
	mock.MockRoomPage("1", testutil.RoomHTML("offline"))
	// room 2 is unknown to the mock and 404s

	p := &Prober{Fetcher: &bilibili.Client{RoomPageBase: mock.RoomPageBase()}}
	_, ok, err := p.ProbeSubArea(context.Background(), SubAreaSamples{SubAreaID: "5", Rooms: []Room{room("1", "5"), room("2", "5")}})
	if err != nil {
		t.Fatalf("ProbeSubArea() error = %v, want nil", err)
	}
	if ok {
		t.Error("ProbeSubArea() ok = true, want no observation")
	}
}

func TestProbeSubAreaReportsEveryRoomRequest(t *testing.T) {
	p := &Prober{Fetcher: fetcherFunc(func(_ context.Context, roomID string) (string, error) {
		switch roomID {
		case "1":
			return "", &bilibili.StatusError{StatusCode: http.StatusTooManyRequests}
		case "2":
			return testutil.RoomHTML("offline"), nil
		default:
			return testutil.RoomHTML("live", ".m3u8", ".flv?"), nil
		}
	})}
	type report struct {
		room    string
		verdict Verdict
		failed  bool
	}
	var got []report
	g := SubAreaSamples{SubAreaID: "5", Rooms: []Room{room("1", "5"), room("2", "5"), room("3", "5")}}
	obs, ok, err := p.probeSubArea(context.Background(), g, func(r Room, v Verdict, err error) {
		got = append(got, report{r.RoomID, v, err != nil})
	})
	if err != nil || !ok || obs.RoomID != "3" {
		t.Fatalf("probeSubArea() = %+v ok %v err %v", obs, ok, err)
	}
	want := []report{
		{"1", VerdictInconclusive, true},
		{"2", VerdictInconclusive, false},
		{"3", VerdictAvailable, false},
	}
	if len(got) != len(want) {
		t.Fatalf("reports = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("report %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

type fetcherFunc func(ctx context.Context, roomID string) (string, error)

func (f fetcherFunc) FetchRoomPage(ctx context.Context, roomID string) (string, error) {
	return f(ctx, roomID)
}

func TestProbeSubAreaStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := &Prober{Fetcher: fetcherFunc(func(ctx context.Context, roomID string) (string, error) {
		calls++
		cancel()
		return "", fmt.Errorf("get room %s: %w", roomID, ctx.Err())
	})}
	_, _, err := p.ProbeSubArea(ctx, SubAreaSamples{SubAreaID: "5", Rooms: []Room{room("1", "5"), room("2", "5")}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("fetch calls = %d, want 1", calls)
	}
}

func TestProberCustomMarkers(t *testing.T) {
	p := &Prober{
		Fetcher: fetcherFunc(func(context.Context, string) (string, error) {
			return `{"codec":"hevc","format":"ts"}`, nil
		}),
		ManifestMarker: `"codec"`,
		FlvMarker:      `"format":"flv"`,
	}
	v, err := p.ProbeRoom(context.Background(), room("9", "1"))
	if err != nil {
		t.Fatal(err)
	}
	if v != VerdictUnavailable {
		t.Errorf("ProbeRoom() = %v, want unavailable", v)
	}
}

func TestPageTitle(t *testing.T) {
	if got := pageTitle(testutil.RoomHTML("  访问频繁  ")); got != "访问频繁" {
		t.Errorf("pageTitle() = %q", got)
	}
	if got := pageTitle("not html at all"); got != "" {
		t.Errorf("pageTitle(plain) = %q, want empty", got)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ErrorClassUnknown},
		{"platform error", fmt.Errorf("page 3: %w", &bilibili.APIError{Code: 1, Message: "busy"}), ErrorClassFatal},
		{"strict malformed", fmt.Errorf("page 1: %w", ErrMalformedPage), ErrorClassFatal},
		{"cancelled", fmt.Errorf("get: %w", context.Canceled), ErrorClassFatal},
		{"store", &storeError{op: "save", err: errors.New("disk full")}, ErrorClassFatal},
		{"ranking timeout", &discoveryError{sort: "online", page: 1, pages: 1, err: context.DeadlineExceeded}, ErrorClassFatal},
		{"ranking status", &discoveryError{sort: "livetime", page: 2, pages: 5, err: &bilibili.StatusError{StatusCode: 503}}, ErrorClassFatal},
		{"http status", &bilibili.StatusError{StatusCode: 412}, ErrorClassRecoverable},
		{"timeout", fmt.Errorf("get: %w", context.DeadlineExceeded), ErrorClassRecoverable},
		{"anything else", errors.New("weird"), ErrorClassRecoverable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError() = %v, want %v", got, tt.want)
			}
		})
	}
}
