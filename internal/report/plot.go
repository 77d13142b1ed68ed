package report

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// SeatSeries is one party's seat totals in journal order.
type SeatSeries struct {
	Name  string
	Color string
	Seats []int
}

type dashStyle struct {
	name   string
	period int
	on     int
}

const (
	defaultPlotHeight = 8
	minPlotWidth      = 10
	plotAxis          = " │ "
	fallbackTermWidth = 80
)

var dashStyles = []dashStyle{
	{name: "solid", period: 1, on: 1},
	{name: "dashed", period: 6, on: 3},
	{name: "dotted", period: 4, on: 1},
	{name: "dashdot", period: 8, on: 3},
}

// SeatPlot draws seat totals of several parties on one braille chart with a
// shared 0..max seat axis. Width <= 0 fits the terminal.
func (r *Renderer) SeatPlot(title string, series []SeatSeries, width, height int) error {
	kept := make([]SeatSeries, 0, len(series))
	maxSeats := 1
	for _, s := range series {
		if len(s.Seats) == 0 {
			continue
		}
		kept = append(kept, s)
		for _, n := range s.Seats {
			maxSeats = max(maxSeats, n)
		}
	}
	if len(kept) == 0 {
		return r.writeLines([]string{"no operations recorded"})
	}

	labelWidth := len(strconv.Itoa(maxSeats))
	if height <= 0 {
		height = defaultPlotHeight
	}
	if width <= 0 {
		width = PlotWidthFor(terminalWidth(), labelWidth)
	}
	width = max(width, minPlotWidth)

	layers := make([][][]uint8, len(kept))
	for si, s := range kept {
		layers[si] = makeCells(height, width)
		style := dashStyles[si%len(dashStyles)]
		prevX, prevY := -1, -1
		for x, v := range sampleSteps(s.Seats, width) {
			px, py := x*2, seatRow(v, maxSeats, height*4)
			if prevX >= 0 {
				drawLine(prevX, prevY, px, py, func(dx, dy int) {
					if style.on >= style.period || dx%style.period < style.on {
						setBrailleDot(layers[si], dx, dy)
					}
				})
			} else {
				setBrailleDot(layers[si], px, py)
			}
			prevX, prevY = px, py
		}
	}

	var lines []string
	if title != "" {
		lines = append(lines, title)
	}
	for y := 0; y < height; y++ {
		label := ""
		switch {
		case y == 0:
			label = strconv.Itoa(maxSeats)
		case y == height-1:
			label = "0"
		case y == height/2 && height > 2:
			label = strconv.Itoa(maxSeats / 2)
		}
		var row strings.Builder
		row.WriteString(fmt.Sprintf("%*s%s", labelWidth, label, plotAxis))
		for x := 0; x < width; x++ {
			mask, owner := composeCell(layers, x, y)
			ch := string(rune(0x2800 + int(mask)))
			if r.color && owner >= 0 {
				ch = lipgloss.NewStyle().Foreground(lipgloss.Color(kept[owner].Color)).Render(ch)
			}
			row.WriteString(ch)
		}
		lines = append(lines, row.String())
	}

	parts := make([]string, 0, len(kept))
	for i, s := range kept {
		last := s.Seats[len(s.Seats)-1]
		label := fmt.Sprintf("%s (%s) %d", s.Name, dashStyles[i%len(dashStyles)].name, last)
		parts = append(parts, r.swatch(s.Color, label))
	}
	lines = append(lines, "Legend: "+strings.Join(parts, "  "))
	return r.writeLines(lines)
}

// PlotWidthFor returns the chart width that fits totalWidth next to a seat
// axis of labelWidth digits.
func PlotWidthFor(totalWidth, labelWidth int) int {
	if totalWidth <= 0 {
		return minPlotWidth
	}
	return max(totalWidth-labelWidth-displayWidth(plotAxis), minPlotWidth)
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return fallbackTermWidth
	}
	return width
}

// sampleSteps picks one seat total per column. Totals only change at
// operations, so columns repeat the value in effect instead of interpolating.
func sampleSteps(values []int, width int) []int {
	out := make([]int, width)
	for i := range out {
		idx := i * len(values) / width
		out[i] = values[min(idx, len(values)-1)]
	}
	return out
}

func seatRow(seats, maxSeats, dots int) int {
	if dots <= 1 || maxSeats <= 0 {
		return 0
	}
	pos := float64(seats) / float64(maxSeats)
	row := int(math.Round((1 - pos) * float64(dots-1)))
	return min(max(row, 0), dots-1)
}

func makeCells(height, width int) [][]uint8 {
	cells := make([][]uint8, height)
	for y := range cells {
		cells[y] = make([]uint8, width)
	}
	return cells
}

// composeCell merges the layers at one cell. The first layer with a dot owns
// the cell color.
func composeCell(layers [][][]uint8, x, y int) (uint8, int) {
	var mask uint8
	owner := -1
	for i, cells := range layers {
		if y >= len(cells) || x >= len(cells[y]) {
			continue
		}
		if cells[y][x] == 0 {
			continue
		}
		if owner < 0 {
			owner = i
		}
		mask |= cells[y][x]
	}
	return mask, owner
}

func drawLine(x0, y0, x1, y1 int, plot func(x, y int)) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := -1, -1
	if x0 < x1 {
		sx = 1
	}
	if y0 < y1 {
		sy = 1
	}
	err := dx + dy
	for {
		plot(x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func setBrailleDot(cells [][]uint8, x, y int) {
	cellY, cellX := y/4, x/2
	if x < 0 || y < 0 || cellY >= len(cells) || cellX >= len(cells[cellY]) {
		return
	}
	cells[cellY][cellX] |= brailleDot(x%2, y%4)
}

// brailleDot maps a 2x4 sub-cell position to its Unicode braille bit.
func brailleDot(x, y int) uint8 {
	bits := [2][4]uint8{
		{0x01, 0x02, 0x04, 0x40},
		{0x08, 0x10, 0x20, 0x80},
	}
	return bits[x][y]
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
