package store

import (
	"sort"
	"strconv"
	"time"
)

// Observation is one run's verdict for a sub-area, taken from a single sampled room.
type Observation struct {
	AreaID       string
	AreaName     string
	SubAreaID    string
	SubAreaName  string
	RoomID       string
	FlvAvailable bool
}

// Reconcile merges one run's observations into prior and returns the new store.
//
// Each observed sub-area gets its bit appended and its history trimmed to the
// newest HistoryLimit entries; display names follow the observation. Sub-areas
// without an observation are carried forward unchanged. prior is not modified.
func Reconcile(prior Store, obs []Observation, now time.Time) Store {
	byID := make(map[string]SubAreaHistory, len(prior.Records)+len(obs))
	for _, r := range prior.Records {
		r.FlvAvailabilities = append([]int(nil), r.FlvAvailabilities...)
		byID[r.SubAreaID] = r
	}
	for _, o := range obs {
		if o.SubAreaID == "" {
			continue
		}
		rec, ok := byID[o.SubAreaID]
		if !ok {
			rec = SubAreaHistory{SubAreaID: o.SubAreaID}
		}
		rec.AreaID = o.AreaID
		rec.AreaName = o.AreaName
		rec.SubAreaName = o.SubAreaName
		rec.FlvAvailabilities = appendBounded(rec.FlvAvailabilities, boolToBit(o.FlvAvailable))
		byID[o.SubAreaID] = rec
	}

	records := make([]SubAreaHistory, 0, len(byID))
	for _, r := range byID {
		if r.FlvAvailabilities == nil {
			r.FlvAvailabilities = []int{}
		}
		records = append(records, r)
	}
	sortRecords(records)
	return Store{
		LastUpdated: strconv.FormatInt(now.UnixMilli(), 10),
		Records:     records,
	}
}

// appendBounded returns a new slice holding hist plus bit, keeping the newest HistoryLimit entries.
func appendBounded(hist []int, bit int) []int {
	out := make([]int, 0, len(hist)+1)
	out = append(out, hist...)
	out = append(out, bit)
	return truncate(out)
}

func truncate(hist []int) []int {
	if len(hist) > HistoryLimit {
		return hist[len(hist)-HistoryLimit:]
	}
	return hist
}

// sortRecords orders records by numeric sub-area id. Ids that are not integers
// sort after all numeric ids, in lexical order.
func sortRecords(records []SubAreaHistory) {
	sort.SliceStable(records, func(i, j int) bool {
		a, aok := numericID(records[i].SubAreaID)
		b, bok := numericID(records[j].SubAreaID)
		switch {
		case aok && bok:
			if a != b {
				return a < b
			}
			return records[i].SubAreaID < records[j].SubAreaID
		case aok:
			return true
		case bok:
			return false
		default:
			return records[i].SubAreaID < records[j].SubAreaID
		}
	})
}

func boolToBit(b bool) int {
	if b {
		return 1
	}
	return 0
}
