package rigcounts

import (
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// rigRecord is one (week, region, rig type) observation.
type rigRecord struct {
	date    string
	region  string
	rigType string
	count   int64
}

// parseNACurrent reads the current North America report. The sheets carry a
// header row of week-ending dates somewhere in the first rows, then one row
// per region with the count under each date column.
func parseNACurrent(f *excelize.File) []rigRecord {
	var records []rigRecord
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) < 5 {
			continue
		}
		headerRow, dates := findDateHeader(rows)
		if headerRow < 0 {
			continue
		}
		for _, row := range rows[headerRow+1:] {
			if len(row) == 0 {
				continue
			}
			region := normalizeRegion(row[0])
			if region == "" {
				continue
			}
			for col, date := range dates {
				if date == "" || col >= len(row) {
					continue
				}
				count, ok := parseCount(row[col])
				if !ok {
					continue
				}
				records = append(records, rigRecord{
					date:    date,
					region:  region,
					rigType: "Total",
					count:   count,
				})
			}
		}
	}
	return records
}

// parseRigsByState reads the rigs-by-state workbook: a State/Location column
// followed by one column per week, with the Oil/Gas/Misc split carried in the
// sheet name.
func parseRigsByState(f *excelize.File) []rigRecord {
	var records []rigRecord
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) < 3 {
			continue
		}

		headerRow := 0
		for i := 0; i < len(rows) && i < 5; i++ {
			if len(rows[i]) == 0 {
				continue
			}
			if strings.Contains(rows[i][0], "State") || strings.Contains(rows[i][0], "Location") {
				headerRow = i
				break
			}
		}
		header := rows[headerRow]

		stateCol := 0
		for j, cell := range header {
			lower := strings.ToLower(cell)
			if strings.Contains(lower, "state") || strings.Contains(lower, "location") {
				stateCol = j
				break
			}
		}

		rigType := "Total"
		switch sheet {
		case "Oil", "Gas", "Misc":
			rigType = sheet
		}

		dates := make([]string, len(header))
		for j, cell := range header {
			if j == stateCol {
				continue
			}
			dates[j] = parseCellDate(cell)
		}

		for _, row := range rows[headerRow+1:] {
			if stateCol >= len(row) {
				continue
			}
			state := strings.TrimSpace(row[stateCol])
			if state == "" {
				continue
			}
			for j, date := range dates {
				if date == "" || j >= len(row) {
					continue
				}
				count, ok := parseCount(row[j])
				if !ok {
					continue
				}
				records = append(records, rigRecord{
					date:    date,
					region:  state,
					rigType: rigType,
					count:   count,
				})
			}
		}
	}
	return records
}

// findDateHeader locates the first row within the leading rows that holds at
// least five date cells, returning its index and the per-column parsed dates.
func findDateHeader(rows [][]string) (int, []string) {
	for i := 0; i < len(rows) && i < 10; i++ {
		dates := make([]string, len(rows[i]))
		n := 0
		for j, cell := range rows[i] {
			if d := parseCellDate(cell); d != "" {
				dates[j] = d
				n++
			}
		}
		if n >= 5 {
			return i, dates
		}
	}
	return -1, nil
}

func normalizeRegion(cell string) string {
	region := strings.TrimSpace(cell)
	switch strings.ToUpper(region) {
	case "TOTAL", "GRAND TOTAL", "US TOTAL":
		return "US Total"
	}
	return region
}

var cellDateLayouts = []string{
	"1/2/06",
	"1/2/2006",
	"2006-01-02",
	"2-Jan-06",
	"Jan 2, 2006",
	"January 2, 2006",
}

// parseCellDate normalizes a workbook date cell to YYYY-MM-DD. Cells arrive
// either formatted or as a raw Excel serial number (days since 1899-12-30).
func parseCellDate(cell string) string {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return ""
	}
	for _, layout := range cellDateLayouts {
		if t, err := time.Parse(layout, cell); err == nil {
			return t.Format("2006-01-02")
		}
	}
	if serial, err := strconv.ParseFloat(cell, 64); err == nil && serial > 20000 && serial < 80000 {
		t := time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC).
			Add(time.Duration(serial * float64(24*time.Hour)))
		return t.Format("2006-01-02")
	}
	return ""
}

// parseCount parses a rig count cell, tolerating float formatting and
// thousands separators.
func parseCount(cell string) (int64, bool) {
	cell = strings.ReplaceAll(strings.TrimSpace(cell), ",", "")
	if cell == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, false
	}
	return int64(f), true
}
