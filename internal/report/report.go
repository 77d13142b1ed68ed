// Package report renders election results as plain terminal tables.
package report

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/verte-zerg/electmap/internal/color"
	"github.com/verte-zerg/electmap/internal/model"
	"github.com/verte-zerg/electmap/internal/swing"
	"github.com/verte-zerg/electmap/internal/tally"
)

const swatchGlyph = "██"

// Renderer writes reports to one output.
type Renderer struct {
	w     io.Writer
	color bool
}

// New returns a Renderer. Color swatches are drawn when w is a terminal, or
// always with forceColor, unless NO_COLOR is set.
func New(w io.Writer, forceColor bool) *Renderer {
	return &Renderer{w: w, color: ShouldUseColor(w, forceColor)}
}

// ShouldUseColor reports whether colored output suits w.
func ShouldUseColor(w io.Writer, force bool) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if force {
		return true
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}

// Seats writes the party seat table in party order.
func (r *Renderer) Seats(res model.Results) error {
	rows := make([][]string, 0, len(res.Parties))
	total := 0
	for _, p := range res.Parties {
		rows = append(rows, []string{p.PartyID, p.Name, strconv.Itoa(p.Seats), r.swatch(p.Color, p.Color)})
		total += p.Seats
	}
	lines := formatTable([]string{"Party", "Name", "Seats", "Color"}, rows, map[int]bool{2: true})
	lines = append(lines, fmt.Sprintf("%d seats awarded", total))
	return r.writeLines(lines)
}

// Districts writes one line per district result in vote table order.
func (r *Renderer) Districts(res model.Results) error {
	rows := make([][]string, 0, len(res.Order))
	for _, id := range res.Order {
		d := res.Districts[id]
		ratio := "-"
		if d.Contested {
			ratio = formatPct(d.Ratio)
		}
		rows = append(rows, []string{
			d.DistrictID,
			d.WinnerName,
			ratio,
			strconv.Itoa(d.Seats),
			strconv.Itoa(d.TotalVotes),
			r.swatch(d.Color, d.Color),
		})
	}
	lines := formatTable([]string{"District", "Winner", "Ratio", "Seats", "Votes", "Color"}, rows, map[int]bool{2: true, 3: true, 4: true})
	return r.writeLines(lines)
}

// Detail writes one district with its votes, highest first.
func (r *Renderer) Detail(detail model.DistrictDetail) error {
	d := detail.District
	lines := []string{
		fmt.Sprintf("%s (%s) province %s, %s, %d seat(s)", d.Name, d.ID, d.ProvinceID, d.Type, d.Seats),
	}
	rows := make([][]string, 0, len(detail.Votes))
	for _, v := range detail.Votes {
		share := "-"
		if detail.Total > 0 {
			share = formatPct(float64(v.Count) / float64(detail.Total))
		}
		rows = append(rows, []string{v.PartyID, v.Name, strconv.Itoa(v.Count), share})
	}
	lines = append(lines, formatTable([]string{"Party", "Name", "Votes", "Share"}, rows, map[int]bool{2: true, 3: true})...)
	lines = append(lines, fmt.Sprintf("%d votes", detail.Total))
	return r.writeLines(lines)
}

// Legend writes the color ramp of every party across the legend ratios.
func (r *Renderer) Legend(parties []model.Party) error {
	headers := []string{"Party"}
	for _, ratio := range color.LegendRatios {
		headers = append(headers, formatPct(ratio))
	}
	rows := make([][]string, 0, len(parties))
	for _, p := range parties {
		row := []string{p.Name}
		for _, step := range color.Ramp(p.Color) {
			row = append(row, step.Color)
		}
		rows = append(rows, row)
	}
	lines := formatTable(headers, rows, nil)
	if r.color {
		for i, p := range parties {
			var b strings.Builder
			for _, step := range color.Ramp(p.Color) {
				b.WriteString(r.swatch(step.Color, ""))
			}
			lines[i+1] += "  " + b.String()
		}
	}
	return r.writeLines(lines)
}

// Summary writes outcome counts and win ratio statistics.
func (r *Renderer) Summary(s tally.Summary) error {
	rows := [][]string{
		{"Districts", strconv.Itoa(s.Districts)},
		{"Contested", strconv.Itoa(s.Contested)},
		{model.NoDataLabel, strconv.Itoa(s.NoData)},
		{model.NoElectionLabel, strconv.Itoa(s.NoElection)},
		{"Total votes", strconv.Itoa(s.TotalVotes)},
		{"Total seats", strconv.Itoa(s.TotalSeats)},
		{"Mean win ratio", formatPct(s.MeanRatio)},
		{"Std dev", formatPct(s.StdDevRatio)},
	}
	return r.writeLines(formatTable(nil, rows, map[int]bool{1: true}))
}

// Swing writes the per-district effect of a swing.
func (r *Renderer) Swing(changes []swing.Change) error {
	if len(changes) == 0 {
		return r.writeLines([]string{"no district changed"})
	}
	rows := make([][]string, 0, len(changes))
	for _, c := range changes {
		rows = append(rows, []string{c.DistrictID, strconv.Itoa(c.Before), strconv.Itoa(c.After), fmt.Sprintf("%+d", c.Delta)})
	}
	lines := formatTable([]string{"District", "Before", "After", "Delta"}, rows, map[int]bool{1: true, 2: true, 3: true})
	lines = append(lines, fmt.Sprintf("%d district(s) changed", len(changes)))
	return r.writeLines(lines)
}

// History writes journaled operations.
func (r *Renderer) History(ops []model.Operation) error {
	if len(ops) == 0 {
		return r.writeLines([]string{"no operations recorded"})
	}
	rows := make([][]string, 0, len(ops))
	for _, op := range ops {
		rows = append(rows, []string{
			op.RecordedAt.Local().Format(time.DateTime),
			op.Kind,
			strconv.Itoa(op.Changed),
			shortID(op.ID),
			op.Params,
		})
	}
	return r.writeLines(formatTable([]string{"Time", "Kind", "Changed", "ID", "Params"}, rows, map[int]bool{2: true}))
}

// Timeline writes a party's seat totals after each journaled operation.
func (r *Renderer) Timeline(points []model.SeatPoint) error {
	if len(points) == 0 {
		return r.writeLines([]string{"no operations recorded"})
	}
	rows := make([][]string, 0, len(points))
	prev := 0
	for i, p := range points {
		change := ""
		if i > 0 && p.Seats != prev {
			change = fmt.Sprintf("%+d", p.Seats-prev)
		}
		rows = append(rows, []string{
			p.RecordedAt.Local().Format(time.DateTime),
			p.Kind,
			strconv.Itoa(p.Seats),
			change,
		})
		prev = p.Seats
	}
	return r.writeLines(formatTable([]string{"Time", "Kind", "Seats", "Change"}, rows, map[int]bool{2: true, 3: true}))
}

func (r *Renderer) swatch(hex, label string) string {
	if !r.color {
		return label
	}
	block := lipgloss.NewStyle().Foreground(lipgloss.Color(hex)).Render(swatchGlyph)
	if label == "" {
		return block
	}
	return block + " " + label
}

func (r *Renderer) writeLines(lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(r.w, line); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func formatPct(ratio float64) string {
	return strconv.FormatFloat(ratio*100, 'f', 1, 64) + "%"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
