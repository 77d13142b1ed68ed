// Package tui provides the Bubble Tea district browser.
package tui

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/electmap/internal/election"
	"github.com/verte-zerg/electmap/internal/model"
	"github.com/verte-zerg/electmap/internal/report"
	"github.com/verte-zerg/electmap/internal/tally"
)

const (
	tabDistricts = iota
	tabSeats
	tabLegend
)

const maxDetailHeight = 12

var (
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	detailStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), true, false, false, false).
			BorderForeground(lipgloss.Color("#4A4A4A"))
	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A")).
			Padding(1, 2)
)

// Service is the subset of election operations the browser uses.
type Service interface {
	Results(ctx context.Context) (model.Results, error)
	District(ctx context.Context, districtID string) (model.DistrictDetail, error)
	Swing(ctx context.Context, req election.SwingRequest) (election.SwingResult, error)
}

// Options configures the browser.
type Options struct {
	Title     string
	LockTotal bool
}

// Model implements the Bubble Tea district browser.
type Model struct {
	svc  Service
	opts Options

	results model.Results
	errMsg  string
	status  string

	tabs      []string
	activeTab int
	districts table.Model
	detail    viewport.Model
	viewports []viewport.Model

	width  int
	height int

	swingMode  bool
	swingAll   bool
	swingInput textinput.Model
	swingError string
}

// NewModel constructs a browser over svc and loads the current results.
func NewModel(svc Service, opts Options) *Model {
	m := &Model{
		svc:  svc,
		opts: opts,
		tabs: []string{"Districts", "Seats", "Legend"},
	}
	m.districts = table.New(
		table.WithColumns(districtColumns()),
		table.WithFocused(true),
		table.WithHeight(1),
	)
	m.districts.SetStyles(districtTableStyles())
	m.detail = viewport.New(0, 0)
	m.viewports = make([]viewport.Model, len(m.tabs))
	for i := range m.viewports {
		m.viewports[i] = viewport.New(0, 0)
	}
	m.swingInput = textinput.New()
	m.swingInput.Prompt = "Swing: "
	m.swingInput.Placeholder = "<party_id> <percent>"
	m.swingInput.Cursor.SetMode(cursor.CursorBlink)
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		m.renderTabContents()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.swingMode {
			return m.updateSwing(msg)
		}
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "left", "h":
			m.moveTab(-1)
			return m, tea.ClearScreen
		case "right", "l":
			m.moveTab(1)
			return m, tea.ClearScreen
		case "r":
			m.status = ""
			m.refresh()
			return m, nil
		case "s":
			return m.startSwing(false)
		case "S":
			return m.startSwing(true)
		case "g", "home":
			if m.activeTab == tabDistricts {
				m.districts.GotoTop()
				m.loadDetail()
			} else {
				m.viewports[m.activeTab].GotoTop()
			}
			return m, nil
		case "G", "end":
			if m.activeTab == tabDistricts {
				m.districts.GotoBottom()
				m.loadDetail()
			} else {
				m.viewports[m.activeTab].GotoBottom()
			}
			return m, nil
		default:
			if m.activeTab == tabDistricts {
				before := m.districts.Cursor()
				var cmd tea.Cmd
				m.districts, cmd = m.districts.Update(msg)
				if m.districts.Cursor() != before {
					m.loadDetail()
				}
				return m, cmd
			}
			vp := m.viewports[m.activeTab]
			var cmd tea.Cmd
			vp, cmd = vp.Update(msg)
			m.viewports[m.activeTab] = vp
			return m, cmd
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	if m.swingMode {
		return fitLines(m.renderSwingModal(), m.width, m.height)
	}
	headerHeight, bodyHeight, footerHeight := m.layoutHeights()
	header := fitLines(m.renderHeader(), m.width, headerHeight)
	body := fitLines(m.renderBody(bodyHeight), m.width, bodyHeight)
	footer := fitLines(m.renderFooter(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

// SelectedDistrict returns the ID of the highlighted district, if any.
func (m *Model) SelectedDistrict() (string, bool) {
	row := m.districts.SelectedRow()
	if len(row) == 0 {
		return "", false
	}
	return row[0], true
}

func (m *Model) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	tabsHeight := lipgloss.Height(activeNavStyle.Render("X"))
	if tabsHeight < 1 {
		tabsHeight = 1
	}
	headerHeight = tabsHeight + 1
	footerHeight = 1
	if m.errMsg != "" || m.status != "" {
		footerHeight++
	}
	bodyHeight = m.height - headerHeight - footerHeight
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	return headerHeight, bodyHeight, footerHeight
}

func (m *Model) splitBody(bodyHeight int) (tableHeight, detailHeight int) {
	detailHeight = min(maxDetailHeight, bodyHeight/2)
	tableHeight = max(1, bodyHeight-detailHeight)
	return tableHeight, detailHeight
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, bodyHeight, _ := m.layoutHeights()
	for i := range m.viewports {
		m.viewports[i].Width = m.width
		m.viewports[i].Height = bodyHeight
	}
	tableHeight, detailHeight := m.splitBody(bodyHeight)
	m.districts.SetWidth(m.width)
	m.districts.SetHeight(max(1, tableHeight-1))
	m.detail.Width = m.width
	m.detail.Height = max(0, detailHeight-1)
	promptWidth := lipgloss.Width(m.swingInput.Prompt)
	m.swingInput.Width = max(10, modalInnerWidth(m.width)-promptWidth)
}

func (m *Model) moveTab(delta int) {
	count := len(m.tabs)
	if count == 0 {
		return
	}
	next := m.activeTab + delta
	if next < 0 {
		next = count - 1
	}
	if next >= count {
		next = 0
	}
	m.activeTab = next
	if m.activeTab == tabDistricts {
		m.districts.Focus()
	} else {
		m.districts.Blur()
	}
}

// refresh reloads results and keeps the selected district when it still exists.
func (m *Model) refresh() {
	selected, hadSelection := m.SelectedDistrict()
	res, err := m.svc.Results(context.Background())
	if err != nil {
		m.errMsg = err.Error()
		m.districts.SetRows(nil)
		m.detail.SetContent("Failed to load results.")
		for i := range m.viewports {
			m.viewports[i].SetContent("Failed to load results.")
		}
		return
	}
	m.errMsg = ""
	m.results = res
	rows := districtRows(res)
	m.districts.SetRows(rows)
	if hadSelection {
		for i, row := range rows {
			if row[0] == selected {
				m.districts.SetCursor(i)
				break
			}
		}
	}
	m.loadDetail()
	m.renderTabContents()
}

func (m *Model) loadDetail() {
	id, ok := m.SelectedDistrict()
	if !ok {
		m.detail.SetContent("No districts loaded. Import a wide export first.")
		return
	}
	detail, err := m.svc.District(context.Background(), id)
	if err != nil {
		m.detail.SetContent(fmt.Sprintf("%s: %s", id, err))
		return
	}
	var buf bytes.Buffer
	if err := report.New(&buf, true).Detail(detail); err != nil {
		m.detail.SetContent(err.Error())
		return
	}
	m.detail.SetContent(strings.TrimRight(buf.String(), "\n"))
	m.detail.GotoTop()
}

func (m *Model) renderTabContents() {
	if m.errMsg != "" {
		return
	}
	var seats bytes.Buffer
	r := report.New(&seats, true)
	if err := r.Seats(m.results); err != nil {
		seats.WriteString(err.Error())
	}
	seats.WriteString("\n")
	if err := r.Summary(tally.Summarize(m.results)); err != nil {
		seats.WriteString(err.Error())
	}
	m.viewports[tabSeats].SetContent(strings.TrimRight(seats.String(), "\n"))

	var legend bytes.Buffer
	if err := report.New(&legend, true).Legend(partiesOf(m.results)); err != nil {
		legend.WriteString(err.Error())
	}
	m.viewports[tabLegend].SetContent(strings.TrimRight(legend.String(), "\n"))
}

func (m *Model) renderTabs() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		if i == m.activeTab {
			parts = append(parts, activeNavStyle.Render(tab))
		} else {
			parts = append(parts, inactiveNavStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) renderHeader() string {
	tabs := m.renderTabs()
	tabs = fitLines(tabs, m.width, lipgloss.Height(tabs))
	lock := "on"
	if !m.opts.LockTotal {
		lock = "off"
	}
	line := fmt.Sprintf("%s  districts=%d  lock-total=%s", m.opts.Title, len(m.results.Order), lock)
	return tabs + "\n" + titleStyle.Render(truncateLine(line, m.width))
}

func (m *Model) renderBody(height int) string {
	if m.activeTab != tabDistricts {
		return fitLines(m.viewports[m.activeTab].View(), m.width, height)
	}
	if len(m.districts.Rows()) == 0 {
		return fitLines("No districts loaded. Import a wide export first.", m.width, height)
	}
	tableHeight, detailHeight := m.splitBody(height)
	top := fitLines(m.districts.View(), m.width, tableHeight)
	if detailHeight <= 0 {
		return top
	}
	bottom := fitLines(detailStyle.Width(m.width).Render(m.detail.View()), m.width, detailHeight)
	return top + "\n" + bottom
}

func (m *Model) renderFooter() string {
	help := headerStyle.Render("Nav: left/right  Move: up/down  Swing: s (selected) / S (all)  Reload: r  Quit: q")
	switch {
	case m.errMsg != "":
		return help + "\n" + errorStyle.Render(m.errMsg)
	case m.status != "":
		return help + "\n" + statusStyle.Render(m.status)
	default:
		return help
	}
}

func (m *Model) startSwing(all bool) (tea.Model, tea.Cmd) {
	if len(m.districts.Rows()) == 0 {
		m.status = "nothing to swing"
		return m, nil
	}
	m.swingMode = true
	m.swingAll = all
	m.swingError = ""
	m.swingInput.SetValue("")
	return m, m.swingInput.Focus()
}

func (m *Model) updateSwing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.swingMode = false
		m.swingError = ""
		m.swingInput.Blur()
		return m, nil
	case tea.KeyEnter:
		if err := m.applySwing(); err != nil {
			m.swingError = err.Error()
			return m, nil
		}
		m.swingMode = false
		m.swingError = ""
		m.swingInput.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.swingInput, cmd = m.swingInput.Update(msg)
	return m, cmd
}

func (m *Model) applySwing() error {
	partyID, percent, err := parseSwingInput(m.swingInput.Value())
	if err != nil {
		return err
	}
	var ids []string
	if m.swingAll {
		ids = append(ids, m.results.Order...)
	} else if id, ok := m.SelectedDistrict(); ok {
		ids = []string{id}
	}
	res, err := m.svc.Swing(context.Background(), election.SwingRequest{
		DistrictIDs: ids,
		PartyID:     partyID,
		Percent:     percent,
		LockTotal:   m.opts.LockTotal,
	})
	if err != nil {
		return err
	}
	m.status = fmt.Sprintf("swing %s %s%%: %d district(s) changed", partyID, strings.TrimSuffix(percent, "%"), len(res.Changes))
	m.refresh()
	return nil
}

func (m *Model) renderSwingModal() string {
	scope := "selected district"
	if m.swingAll {
		scope = fmt.Sprintf("all %d districts", len(m.results.Order))
	} else if id, ok := m.SelectedDistrict(); ok {
		scope = "district " + id
	}
	body := []string{
		titleStyle.Render("Swing " + scope),
		m.swingInput.View(),
		headerStyle.Render("Party ID and percent, e.g. P_01 5 or P_02 -2.5"),
		headerStyle.Render("Enter to apply / Esc to cancel"),
	}
	if m.swingError != "" {
		body = append(body, errorStyle.Render(m.swingError))
	}
	box := modalStyle.Width(modalWidth(m.width)).Render(strings.Join(body, "\n"))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func parseSwingInput(input string) (partyID, percent string, err error) {
	fields := strings.Fields(input)
	if len(fields) != 2 {
		return "", "", fmt.Errorf("expected <party_id> <percent>")
	}
	return fields[0], fields[1], nil
}

func districtColumns() []table.Column {
	return []table.Column{
		{Title: "District", Width: 12},
		{Title: "Winner", Width: 18},
		{Title: "Ratio", Width: 7},
		{Title: "Seats", Width: 5},
		{Title: "Votes", Width: 9},
		{Title: "Color", Width: 8},
	}
}

func districtRows(res model.Results) []table.Row {
	rows := make([]table.Row, 0, len(res.Order))
	for _, id := range res.Order {
		d := res.Districts[id]
		ratio := "-"
		if d.Contested {
			ratio = strconv.FormatFloat(d.Ratio*100, 'f', 1, 64) + "%"
		}
		rows = append(rows, table.Row{
			d.DistrictID,
			d.WinnerName,
			ratio,
			strconv.Itoa(d.Seats),
			strconv.Itoa(d.TotalVotes),
			d.Color,
		})
	}
	return rows
}

func districtTableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Background(lipgloss.Color("#3A3A3A")).
		Bold(true)
	return styles
}

func partiesOf(res model.Results) []model.Party {
	parties := make([]model.Party, 0, len(res.Parties))
	for _, p := range res.Parties {
		parties = append(parties, model.Party{ID: p.PartyID, Name: p.Name, Color: p.Color})
	}
	return parties
}
