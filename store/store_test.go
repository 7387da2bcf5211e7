package store

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoadMissingFile(t *testing.T) {
	st, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}
	if st.LastUpdated != "" || len(st.Records) != 0 {
		t.Errorf("Load() = %+v, want empty store", st)
	}
}

func TestDecodeTolerantShapes(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty file", ""},
		{"whitespace", "  \n"},
		{"empty object", "{}"},
		{"null data", `{"lastUpdated":"","data":null}`},
		{"empty data", `{"lastUpdated":"","data":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := Decode([]byte(tt.input))
			if err != nil {
				t.Fatalf("Decode(%q) error = %v", tt.input, err)
			}
			if len(st.Records) != 0 {
				t.Errorf("Decode(%q) records = %v, want none", tt.input, st.Records)
			}
		})
	}
}

func TestDecodeRejectsCorruption(t *testing.T) {
	if _, err := Decode([]byte(`{"data":[{"subAreaId":`)); err == nil {
		t.Error("Decode() error = nil, want error for truncated JSON")
	}
}

func TestDecodeLegacyRecords(t *testing.T) {
	legacy := `{
  "lastUpdated": "1697000000000",
  "data": [
    {"areaId": 2, "areaName": "Online Games", "subAreaId": 86, "subAreaName": "A", "flvAvailable": true},
    {"areaId": "9", "areaName": "Virtual", "subAreaId": "21", "subAreaName": "B", "flvAvailable": false}
  ]
}`
	st, err := Decode([]byte(legacy))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	want := []SubAreaHistory{
		{AreaID: "9", AreaName: "Virtual", SubAreaID: "21", SubAreaName: "B", FlvAvailabilities: []int{0}},
		{AreaID: "2", AreaName: "Online Games", SubAreaID: "86", SubAreaName: "A", FlvAvailabilities: []int{1}},
	}
	if !reflect.DeepEqual(st.Records, want) {
		t.Errorf("records = %+v, want %+v", st.Records, want)
	}
	if st.LastUpdated != "1697000000000" {
		t.Errorf("LastUpdated = %q", st.LastUpdated)
	}
}

func TestDecodeTruncatesOverlongHistory(t *testing.T) {
	st, err := Decode([]byte(`{"data":[{"subAreaId":"1","flvAvailabilities":[0,0,0,0,0,0,0,0,0,0,1,1]}]}`))
	if err != nil {
		t.Fatal(err)
	}
	want := []int{0, 0, 0, 0, 0, 0, 0, 0, 1, 1}
	if !reflect.DeepEqual(st.Records[0].FlvAvailabilities, want) {
		t.Errorf("history = %v, want %v", st.Records[0].FlvAvailabilities, want)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data.json")
	st := Reconcile(Empty(), []Observation{
		{AreaID: "3", AreaName: "Mobile", SubAreaID: "35", SubAreaName: "Honor", FlvAvailable: true},
	}, time.UnixMilli(42))

	if err := Save(path, st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(got, st) {
		t.Errorf("Load() = %+v, want %+v", got, st)
	}
}

func TestSaveWritesPrettyJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	st := Store{LastUpdated: "7", Records: []SubAreaHistory{{AreaID: "1", SubAreaID: "2", FlvAvailabilities: []int{1, 0}}}}
	if err := Save(path, st); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"\n  \"lastUpdated\": \"7\"", "\n  \"data\": [", "\"flvAvailabilities\": ["} {
		if !strings.Contains(string(b), want) {
			t.Errorf("saved file missing %q:\n%s", want, b)
		}
	}
}

func TestSaveEmptyStoreEncodesEmptyList(t *testing.T) {
	b, err := Encode(Store{})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(b, []byte(`"data": []`)) {
		t.Errorf("Encode(Store{}) = %s, want empty data list", b)
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")
	for i := 0; i < 3; i++ {
		if err := Save(path, Empty()); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "data.json" {
		names := []string{}
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("dir entries = %v, want only data.json", names)
	}
}

func TestSaveFailureKeepsOriginal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")
	original := []byte("{\"lastUpdated\":\"1\",\"data\":[]}\n")
	if err := os.WriteFile(path, original, 0o644); err != nil {
		t.Fatal(err)
	}
	// a directory cannot be renamed over by a regular file
	bad := filepath.Join(dir, "sub")
	if err := os.MkdirAll(filepath.Join(bad, "x"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := Save(bad, Empty()); err == nil {
		t.Fatal("Save() onto a non-empty directory succeeded, want error")
	}
	b, _ := os.ReadFile(path)
	if !bytes.Equal(b, original) {
		t.Errorf("unrelated store changed: %s", b)
	}
}

func TestWriteCSV(t *testing.T) {
	st := Store{Records: []SubAreaHistory{
		{AreaID: "1", AreaName: "Games", SubAreaID: "5", SubAreaName: "RPG", FlvAvailabilities: []int{1, 1, 0, 1}},
	}}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, st); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), buf.String())
	}
	if lines[0] != "area_id,area_name,sub_area_id,sub_area_name,history,observations,available,availability_rate,latest" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "1,Games,5,RPG,1101,4,3,0.75,1" {
		t.Errorf("row = %q", lines[1])
	}
}

func TestWriteCSVEmptyStore(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, Empty()); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	if got := strings.Count(buf.String(), "\n"); got != 1 {
		t.Errorf("empty export has %d lines, want header only: %q", got, buf.String())
	}
}
