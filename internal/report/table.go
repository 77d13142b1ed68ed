package report

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// formatTable aligns rows under headers. Columns set in right are
// right-aligned. Nil headers print the rows only.
func formatTable(headers []string, rows [][]string, right map[int]bool) []string {
	all := rows
	if len(headers) > 0 {
		all = append([][]string{headers}, rows...)
	}
	widths := columnWidths(all)
	if len(widths) == 0 {
		return nil
	}

	lines := make([]string, len(all))
	cells := make([]string, len(widths))
	for i, row := range all {
		for col, w := range widths {
			cell := ""
			if col < len(row) {
				cell = row[col]
			}
			if right[col] {
				cells[col] = runewidth.FillLeft(cell, w)
			} else {
				cells[col] = runewidth.FillRight(cell, w)
			}
		}
		lines[i] = strings.TrimRight(strings.Join(cells, " "), " ")
	}
	return lines
}

func columnWidths(rows [][]string) []int {
	var widths []int
	for _, row := range rows {
		for col, cell := range row {
			if col == len(widths) {
				widths = append(widths, 0)
			}
			widths[col] = max(widths[col], displayWidth(cell))
		}
	}
	return widths
}

// displayWidth counts terminal cells, so CJK names take two per rune.
func displayWidth(value string) int {
	return runewidth.StringWidth(value)
}
