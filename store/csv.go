package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"
)

// csvRow is the flattened export shape of a SubAreaHistory.
type csvRow struct {
	AreaID       string  `csv:"area_id"`
	AreaName     string  `csv:"area_name"`
	SubAreaID    string  `csv:"sub_area_id"`
	SubAreaName  string  `csv:"sub_area_name"`
	History      string  `csv:"history"`
	Observations int     `csv:"observations"`
	Available    int     `csv:"available"`
	Rate         float64 `csv:"availability_rate"`
	Latest       string  `csv:"latest"`
}

// WriteCSV exports the store records (in store order) as CSV with a header row.
func WriteCSV(w io.Writer, st Store) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if len(st.Records) == 0 {
		if err := enc.EncodeHeader(csvRow{}); err != nil {
			return fmt.Errorf("encode csv header: %w", err)
		}
	} else {
		rows := make([]csvRow, 0, len(st.Records))
		for _, r := range st.Records {
			rows = append(rows, toCSVRow(r))
		}
		if err := enc.Encode(rows); err != nil {
			return fmt.Errorf("encode csv rows: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func toCSVRow(r SubAreaHistory) csvRow {
	row := csvRow{
		AreaID:       r.AreaID,
		AreaName:     r.AreaName,
		SubAreaID:    r.SubAreaID,
		SubAreaName:  r.SubAreaName,
		Observations: len(r.FlvAvailabilities),
	}
	bits := make([]string, 0, len(r.FlvAvailabilities))
	for _, b := range r.FlvAvailabilities {
		bits = append(bits, strconv.Itoa(b))
		row.Available += b
	}
	row.History = strings.Join(bits, "")
	if n := len(r.FlvAvailabilities); n > 0 {
		row.Rate = float64(row.Available) / float64(n)
		row.Latest = strconv.Itoa(r.FlvAvailabilities[n-1])
	}
	return row
}
