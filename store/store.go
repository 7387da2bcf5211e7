// Package store holds the persisted rolling-history dataset: one bounded 0/1
// availability history per sub-area, kept in a pretty-printed JSON file that the
// front-end reads directly.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
)

// HistoryLimit is the maximum number of observations kept per sub-area.
const HistoryLimit = 10

// SubAreaHistory is the persisted record for one sub-area.
type SubAreaHistory struct {
	AreaID            string `json:"areaId"`
	AreaName          string `json:"areaName"`
	SubAreaID         string `json:"subAreaId"`
	SubAreaName       string `json:"subAreaName"`
	FlvAvailabilities []int  `json:"flvAvailabilities"`
}

// Store is the whole persisted file. Records are ordered by numeric SubAreaID.
type Store struct {
	LastUpdated string           `json:"lastUpdated"`
	Records     []SubAreaHistory `json:"data"`
}

// Empty returns a store with no records. Records is non-nil so that it encodes as [].
func Empty() Store {
	return Store{Records: []SubAreaHistory{}}
}

// Load reads the store at path. A missing or empty file yields an empty store;
// invalid JSON is an error.
func Load(path string) (Store, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Info("store file not found, starting empty", slog.String("path", path), slog.String("component", "store"))
		return Empty(), nil
	}
	if err != nil {
		return Store{}, fmt.Errorf("read store %s: %w", path, err)
	}
	st, err := Decode(b)
	if err != nil {
		return Store{}, fmt.Errorf("decode store %s: %w", path, err)
	}
	return st, nil
}

// Decode parses store bytes. It accepts the records written by the first
// crawler generation, which stored a single flvAvailable boolean (and sometimes
// numeric ids) instead of a history.
func Decode(b []byte) (Store, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return Empty(), nil
	}
	var raw struct {
		LastUpdated looseString `json:"lastUpdated"`
		Data        []struct {
			AreaID            looseString `json:"areaId"`
			AreaName          string      `json:"areaName"`
			SubAreaID         looseString `json:"subAreaId"`
			SubAreaName       string      `json:"subAreaName"`
			FlvAvailabilities []int       `json:"flvAvailabilities"`
			FlvAvailable      *bool       `json:"flvAvailable"`
		} `json:"data"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return Store{}, err
	}
	st := Store{LastUpdated: string(raw.LastUpdated), Records: make([]SubAreaHistory, 0, len(raw.Data))}
	seen := make(map[string]int, len(raw.Data))
	for _, d := range raw.Data {
		id := string(d.SubAreaID)
		if id == "" {
			continue
		}
		hist := append([]int(nil), d.FlvAvailabilities...)
		if len(hist) == 0 && d.FlvAvailable != nil {
			hist = []int{boolToBit(*d.FlvAvailable)}
		}
		if hist == nil {
			hist = []int{}
		}
		rec := SubAreaHistory{
			AreaID:            string(d.AreaID),
			AreaName:          d.AreaName,
			SubAreaID:         id,
			SubAreaName:       d.SubAreaName,
			FlvAvailabilities: truncate(hist),
		}
		// a hand-edited file may repeat an id; the later entry wins
		if i, ok := seen[id]; ok {
			st.Records[i] = rec
			continue
		}
		seen[id] = len(st.Records)
		st.Records = append(st.Records, rec)
	}
	sortRecords(st.Records)
	return st, nil
}

// Encode renders the store the way it is written to disk.
func Encode(st Store) ([]byte, error) {
	if st.Records == nil {
		st.Records = []SubAreaHistory{}
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// Save atomically replaces the file at path with the encoded store. The data is
// written to a temp file in the same directory, synced, then renamed over path,
// so readers see either the old or the new file and never a partial write.
func Save(path string, st Store) error {
	b, err := Encode(st)
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp store: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		if err := os.Remove(tmpName); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to remove temp store", slog.String("path", tmpName), slog.Any("err", err))
		}
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp store: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp store: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replace store %s: %w", path, err)
	}
	return nil
}

// Find returns the record for subAreaID, if present.
func (s Store) Find(subAreaID string) (SubAreaHistory, bool) {
	for _, r := range s.Records {
		if r.SubAreaID == subAreaID {
			return r, true
		}
	}
	return SubAreaHistory{}, false
}

// looseString decodes either a JSON string or a JSON number into a string.
type looseString string

func (l *looseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*l = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*l = looseString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(b))
	}
	*l = looseString(n.String())
	return nil
}

// numericID parses a sub-area id for ordering.
func numericID(id string) (int64, bool) {
	n, err := strconv.ParseInt(id, 10, 64)
	return n, err == nil
}
