package bilibili

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

// RoomEntry is one room from a ranking page with its area metadata.
type RoomEntry struct {
	RoomID      string
	AreaID      string
	AreaName    string
	SubAreaID   string
	SubAreaName string
}

// PageStatus tells discovery whether a page carried a usable list.
type PageStatus int

const (
	// PageOK means the page had a list (possibly empty).
	PageOK PageStatus = iota
	// PageMalformed means the page decoded but had no usable list.
	PageMalformed
)

func (s PageStatus) String() string {
	switch s {
	case PageOK:
		return "ok"
	case PageMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// PageResult is the validated outcome of a ranking page.
type PageResult struct {
	Status PageStatus
	Rooms  []RoomEntry
	// Reason describes why the page is malformed.
	Reason string
	// Dropped counts list entries missing a room or sub-area id.
	Dropped int
}

// APIError is a nonzero platform response code.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform error (%d) %s", e.Code, e.Message)
}

// StatusError is a non-200 HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %s", e.URL, e.Status)
}

// Temporary reports whether the status is worth trying again on a later run.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type listEnvelope struct {
	Code    *int   `json:"code"`
	Message string `json:"message"`
	Data    *struct {
		List json.RawMessage `json:"list"`
	} `json:"data"`
}

type listItem struct {
	RoomID      flexID `json:"roomid"`
	AreaID      flexID `json:"area_v2_parent_id"`
	AreaName    string `json:"area_v2_parent_name"`
	SubAreaID   flexID `json:"area_v2_id"`
	SubAreaName string `json:"area_v2_name"`
}

// ParsePage validates a ranking response body.
func ParsePage(body []byte) (PageResult, error) {
	var env listEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return malformed(fmt.Sprintf("invalid json: %v", err)), nil
	}
	if env.Code == nil {
		return malformed("missing code"), nil
	}
	if *env.Code != 0 {
		return PageResult{}, &APIError{Code: *env.Code, Message: env.Message}
	}
	if env.Data == nil {
		return malformed("missing data"), nil
	}
	list := bytes.TrimSpace(env.Data.List)
	if len(list) == 0 || list[0] != '[' {
		return malformed("data.list is not an array"), nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(list, &items); err != nil {
		return malformed(fmt.Sprintf("data.list: %v", err)), nil
	}
	res := PageResult{Status: PageOK, Rooms: make([]RoomEntry, 0, len(items))}
	for _, raw := range items {
		var it listItem
		if err := json.Unmarshal(raw, &it); err != nil || it.RoomID == "" || it.SubAreaID == "" {
			res.Dropped++
			continue
		}
		res.Rooms = append(res.Rooms, RoomEntry{
			RoomID:      string(it.RoomID),
			AreaID:      string(it.AreaID),
			AreaName:    it.AreaName,
			SubAreaID:   string(it.SubAreaID),
			SubAreaName: it.SubAreaName,
		})
	}
	return res, nil
}

func malformed(reason string) PageResult {
	return PageResult{Status: PageMalformed, Reason: reason}
}

// flexID accepts ids sent as JSON numbers or strings.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: expected string or number, got %s", string(b))
	}
	*f = flexID(n.String())
	return nil
}
