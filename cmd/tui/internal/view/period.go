package view

import (
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
)

// Period is a statement window relative to today.
type Period int

const (
	PeriodThisMonth Period = iota
	PeriodLastMonth
	PeriodThisQuarter
	PeriodLastQuarter
	PeriodYearToDate
	PeriodAll
	PeriodCustom
)

var periodNames = [...]string{
	PeriodThisMonth:   "This Month",
	PeriodLastMonth:   "Last Month",
	PeriodThisQuarter: "This Quarter",
	PeriodLastQuarter: "Last Quarter",
	PeriodYearToDate:  "Year to Date",
	PeriodAll:         "All Time",
	PeriodCustom:      "Custom Range",
}

func (p Period) String() string {
	if p < 0 || int(p) >= len(periodNames) {
		return "Unknown"
	}

	return periodNames[p]
}

// Range resolves p to inclusive UTC calendar days. ok is false for
// PeriodAll and PeriodCustom, which carry no fixed bounds.
func (p Period) Range(now time.Time) (start, end time.Time, ok bool) {
	today := calendarDay(now)
	monthStart := today.AddDate(0, 0, 1-today.Day())
	quarterStart := time.Date(today.Year(), time.Month((int(today.Month())-1)/3*3+1), 1, 0, 0, 0, 0, time.UTC)

	switch p {
	case PeriodThisMonth:
		return monthStart, today, true
	case PeriodLastMonth:
		return monthStart.AddDate(0, -1, 0), monthStart.AddDate(0, 0, -1), true
	case PeriodThisQuarter:
		return quarterStart, today, true
	case PeriodLastQuarter:
		return quarterStart.AddDate(0, -3, 0), quarterStart.AddDate(0, 0, -1), true
	case PeriodYearToDate:
		return time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, time.UTC), today, true
	}

	return time.Time{}, time.Time{}, false
}

// calendarDay drops the time of day; invoice dates are calendar days.
func calendarDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func parseDay(s string) (time.Time, error) {
	d, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, errors.New("use YYYY-MM-DD")
	}

	return d, nil
}

func parseRange(startStr, endStr string) (time.Time, time.Time, error) {
	start, err := parseDay(startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start date: %w", err)
	}

	end, err := parseDay(endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end date: %w", err)
	}

	if end.Before(start) {
		return time.Time{}, time.Time{}, errors.New("end date is before start date")
	}

	return start, end, nil
}

// PeriodSelectedMsg is emitted once a period is chosen. Start and End are
// zero when All is set.
type PeriodSelectedMsg struct {
	Start time.Time
	End   time.Time
	All   bool
}

// PeriodPicker lists the statement periods and collects a custom range
// through a huh form.
type PeriodPicker struct {
	cursor Period
	now    func() time.Time
	custom *huh.Form
	err    error
}

func NewPeriodPicker(now func() time.Time) PeriodPicker {
	return PeriodPicker{now: now}
}

func (m PeriodPicker) Update(msg tea.Msg) (PeriodPicker, tea.Cmd) {
	if m.custom != nil {
		return m.updateCustom(msg)
	}

	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch key.String() {
	case "up", "k":
		if m.cursor > PeriodThisMonth {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < PeriodCustom {
			m.cursor++
		}
	case "enter":
		return m.choose()
	}

	return m, nil
}

func (m PeriodPicker) choose() (PeriodPicker, tea.Cmd) {
	switch m.cursor {
	case PeriodAll:
		return m, selectPeriod(PeriodSelectedMsg{All: true})
	case PeriodCustom:
		m.custom = customRangeForm()
		return m, m.custom.Init()
	}

	start, end, _ := m.cursor.Range(m.now())

	return m, selectPeriod(PeriodSelectedMsg{Start: start, End: end})
}

func (m PeriodPicker) updateCustom(msg tea.Msg) (PeriodPicker, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.Type == tea.KeyEsc {
		m.custom = nil
		m.err = nil

		return m, nil
	}

	form, cmd := m.custom.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.custom = f
	}

	if m.custom.State != huh.StateCompleted {
		return m, cmd
	}

	start, end, err := parseRange(m.custom.GetString("start"), m.custom.GetString("end"))
	if err != nil {
		m.err = err
		m.custom = customRangeForm()

		return m, m.custom.Init()
	}

	m.err = nil
	m.custom = nil

	return m, selectPeriod(PeriodSelectedMsg{Start: start, End: end})
}

func selectPeriod(msg PeriodSelectedMsg) tea.Cmd {
	return func() tea.Msg { return msg }
}

func customRangeForm() *huh.Form {
	validate := func(s string) error {
		_, err := parseDay(s)
		return err
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Key("start").Title("Start date").Placeholder(time.DateOnly).Validate(validate),
			huh.NewInput().Key("end").Title("End date").Placeholder(time.DateOnly).Validate(validate),
		),
	).WithWidth(40).WithShowHelp(false)
}

func (m PeriodPicker) View() string {
	var b strings.Builder

	if m.custom != nil {
		b.WriteString("Custom Range (Esc to go back):\n\n")
		b.WriteString(m.custom.View())
	} else {
		b.WriteString("Statement Period:\n\n")

		for p := PeriodThisMonth; p <= PeriodCustom; p++ {
			if p == m.cursor {
				b.WriteString(activeStyle("> " + p.String()))
			} else {
				b.WriteString("  " + p.String())
			}

			b.WriteString("\n")
		}

		b.WriteString("\n(Enter to select, Esc to back)")
	}

	if m.err != nil {
		b.WriteString("\n\n" + errorStyle("Error: "+m.err.Error()))
	}

	return b.String()
}

// IsSelecting reports whether the period list, not the custom form, has focus.
func (m PeriodPicker) IsSelecting() bool {
	return m.custom == nil
}

func (m *PeriodPicker) Reset() {
	m.cursor = PeriodThisMonth
	m.custom = nil
	m.err = nil
}
