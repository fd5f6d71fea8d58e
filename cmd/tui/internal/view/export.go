package view

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/invoicer/internal/export"
	"github.com/MrJamesThe3rd/invoicer/internal/invoice"
)

const exportTimeout = 2 * time.Minute

type statementFormat string

const (
	statementCSV     statementFormat = "csv"
	statementSummary statementFormat = "summary"
)

// statementRequest is everything needed to write one statement file.
type statementRequest struct {
	period   PeriodSelectedMsg
	customer *uuid.UUID
	format   statementFormat
	path     string
}

func (r statementRequest) filter() invoice.ListFilter {
	f := invoice.ListFilter{CustomerID: r.customer}
	if !r.period.All {
		f.StartDate = &r.period.Start
		f.EndDate = &r.period.End
	}

	return f
}

// writeStatement writes the statement for req to req.path and returns the
// plain-text summary of the invoices it covered.
func writeStatement(ctx context.Context, svc *export.Service, req statementRequest) (string, error) {
	if err := os.MkdirAll(filepath.Dir(req.path), 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	f, err := os.Create(req.path)
	if err != nil {
		return "", fmt.Errorf("creating statement file: %w", err)
	}
	defer f.Close()

	var csvOut io.Writer = f
	if req.format == statementSummary {
		csvOut = io.Discard
	}

	invoices, err := svc.Statement(ctx, req.filter(), csvOut)
	if err != nil {
		return "", err
	}

	summary := svc.Summary(invoices)

	if req.format == statementSummary {
		if _, err := io.WriteString(f, summary); err != nil {
			return "", fmt.Errorf("writing summary: %w", err)
		}
	}

	return summary, nil
}

type exportStep int

const (
	exportStepPeriod exportStep = iota
	exportStepOptions
	exportStepWriting
	exportStepDone
)

// ExportModel writes a customer statement for a period to a file.
type ExportModel struct {
	statements *export.Service

	step    exportStep
	picker  PeriodPicker
	period  PeriodSelectedMsg
	options *huh.Form
	spinner spinner.Model

	path    string
	summary string
	err     error
}

func NewExportModel(svc *export.Service, now func() time.Time) ExportModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return ExportModel{
		statements: svc,
		picker:     NewPeriodPicker(now),
		spinner:    s,
	}
}

func (m ExportModel) Title() string { return "Export Statement" }

func (m ExportModel) ShortHelp() string {
	switch m.step {
	case exportStepWriting:
		return "Writing..."
	case exportStepDone:
		return "Esc: back to menu"
	}

	return "Esc: back | Enter: confirm"
}

func (m ExportModel) Init() tea.Cmd {
	return nil
}

func (m ExportModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case PeriodSelectedMsg:
		m.period = msg
		m.options = statementOptionsForm()
		m.step = exportStepOptions

		return m, m.options.Init()

	case statementWrittenMsg:
		m.step = exportStepDone
		m.path, m.summary, m.err = msg.path, msg.summary, msg.err

		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyEsc {
			return m.back()
		}
	}

	switch m.step {
	case exportStepPeriod:
		var cmd tea.Cmd
		m.picker, cmd = m.picker.Update(msg)

		return m, cmd

	case exportStepOptions:
		return m.updateOptions(msg)

	case exportStepWriting:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)

		return m, cmd
	}

	return m, nil
}

func (m ExportModel) back() (tea.Model, tea.Cmd) {
	switch m.step {
	case exportStepPeriod:
		if !m.picker.IsSelecting() {
			var cmd tea.Cmd
			m.picker, cmd = m.picker.Update(tea.KeyMsg{Type: tea.KeyEsc})

			return m, cmd
		}

		return m, Back

	case exportStepOptions:
		m.step = exportStepPeriod
		m.picker.Reset()

		return m, nil

	case exportStepDone:
		return m, Back
	}

	return m, nil
}

func (m ExportModel) updateOptions(msg tea.Msg) (tea.Model, tea.Cmd) {
	form, cmd := m.options.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.options = f
	}

	if m.options.State != huh.StateCompleted {
		return m, cmd
	}

	req := statementRequest{
		period: m.period,
		format: statementFormat(m.options.GetString("format")),
		path:   strings.TrimSpace(m.options.GetString("path")),
	}

	if raw := strings.TrimSpace(m.options.GetString("customer")); raw != "" {
		id := uuid.MustParse(raw)
		req.customer = &id
	}

	m.step = exportStepWriting

	return m, tea.Batch(m.spinner.Tick, m.writeCmd(req))
}

func statementOptionsForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("customer").
				Title("Customer ID").
				Description("Leave empty for every customer").
				Validate(func(s string) error {
					if s = strings.TrimSpace(s); s == "" {
						return nil
					}

					if _, err := uuid.Parse(s); err != nil {
						return errors.New("not a valid customer id")
					}

					return nil
				}),
			huh.NewSelect[string]().
				Key("format").
				Title("Format").
				Options(
					huh.NewOption("CSV statement", string(statementCSV)),
					huh.NewOption("Text summary", string(statementSummary)),
				),
			huh.NewInput().
				Key("path").
				Title("Output File").
				Value(new("./exports/statement.csv")).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("a file name is required")
					}

					return nil
				}),
		),
	).WithWidth(50).WithShowHelp(false)
}

type statementWrittenMsg struct {
	path    string
	summary string
	err     error
}

func (m ExportModel) writeCmd(req statementRequest) tea.Cmd {
	svc := m.statements

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
		defer cancel()

		summary, err := writeStatement(ctx, svc, req)

		return statementWrittenMsg{path: req.path, summary: summary, err: err}
	}
}

func (m ExportModel) View() string {
	pad := lipgloss.NewStyle().Padding(1)

	switch m.step {
	case exportStepPeriod:
		return pad.Render(m.picker.View())
	case exportStepOptions:
		return pad.Render(m.options.View())
	case exportStepWriting:
		return pad.Render(m.spinner.View() + " Writing statement...")
	}

	if m.err != nil {
		return pad.Render(errorStyle("Error: " + m.err.Error()))
	}

	header := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46")).
		Render("Statement written to " + m.path)

	return pad.Render(lipgloss.JoinVertical(lipgloss.Left, header, "", m.summary))
}
