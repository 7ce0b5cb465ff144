package google

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	gsheet "google.golang.org/api/sheets/v4"
)

// matchingRows returns the zero-based indexes of rows whose first cell holds id.
// The header row never matches because its first cell is not numeric.
func matchingRows(values [][]interface{}, id int64) []int {
	var out []int
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		cell := strings.TrimSpace(fmt.Sprint(row[0]))
		got, err := strconv.ParseInt(cell, 10, 64)
		if err != nil {
			// numbers may come back formatted, e.g. "12.0"
			f, ferr := strconv.ParseFloat(strings.ReplaceAll(cell, ",", "."), 64)
			if ferr != nil {
				continue
			}
			got = int64(f)
			if float64(got) != f {
				continue
			}
		}
		if got == id {
			out = append(out, i)
		}
	}
	return out
}

// deleteRequests turns row indexes into DeleteDimension requests, merging
// contiguous runs and ordering them bottom-up so earlier deletions do not
// shift later ones.
func deleteRequests(sheetID int64, rows []int) []*gsheet.Request {
	if len(rows) == 0 {
		return nil
	}
	sorted := append([]int(nil), rows...)
	sort.Ints(sorted)

	type span struct{ start, end int }
	var spans []span
	for _, r := range sorted {
		if n := len(spans); n > 0 && spans[n-1].end == r {
			spans[n-1].end = r + 1
			continue
		}
		spans = append(spans, span{r, r + 1})
	}

	reqs := make([]*gsheet.Request, 0, len(spans))
	for i := len(spans) - 1; i >= 0; i-- {
		reqs = append(reqs, &gsheet.Request{
			DeleteDimension: &gsheet.DeleteDimensionRequest{
				Range: &gsheet.DimensionRange{
					SheetId:         sheetID,
					Dimension:       "ROWS",
					StartIndex:      int64(spans[i].start),
					EndIndex:        int64(spans[i].end),
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		})
	}
	return reqs
}
