package view

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/filepicker"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/invoicer/internal/importer"
	"github.com/MrJamesThe3rd/invoicer/internal/invoice"
	"github.com/MrJamesThe3rd/invoicer/internal/money"
)

const importTimeout = 30 * time.Second

type importState int

const (
	importStateNumber importState = iota
	importStateFilePick
	importStateImporting
	importStateResult
)

// ImportModel replaces the items of a draft invoice with the rows of a spreadsheet.
type ImportModel struct {
	invoices      *invoice.Service
	importService *importer.Service

	state      importState
	form       *huh.Form
	number     string
	filePicker filepicker.Model

	status string
	err    error
}

func NewImportModel(svc *invoice.Service, impSvc *importer.Service) ImportModel {
	fp := filepicker.New()
	fp.CurrentDirectory, _ = os.Getwd()
	fp.AllowedTypes = []string{".csv", ".txt"}
	fp.ShowHidden = false
	fp.DirAllowed = false
	fp.FileAllowed = true
	fp.SetHeight(15)

	m := ImportModel{
		invoices:      svc,
		importService: impSvc,
		filePicker:    fp,
	}
	m.form = m.buildNumberForm()

	return m
}

func (m ImportModel) Title() string { return "Import Line Items" }

func (m ImportModel) ShortHelp() string {
	return "Esc: back | Enter: select"
}

func (m ImportModel) Init() tea.Cmd {
	return m.form.Init()
}

func (m ImportModel) buildNumberForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("number").
				Title("Draft invoice number").
				Placeholder("INV-2026-000001").
				Validate(func(s string) error {
					_, _, err := invoice.ParseNumber(strings.ToUpper(strings.TrimSpace(s)))
					return err
				}),
		),
	).WithWidth(50).WithShowHelp(false)
}

func (m ImportModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyEsc {
			return m.handleEsc()
		}

	case importResultMsg:
		m.state = importStateResult
		m.err = msg.err

		if msg.err != nil {
			m.status = fmt.Sprintf("Error: %v", msg.err)
			return m, nil
		}

		m.status = fmt.Sprintf("Imported %d items into %s. Subtotal %s, total %s.",
			len(msg.inv.Items), msg.inv.Number, money.Format(msg.inv.Subtotal), money.Format(msg.inv.Total))

		return m, nil
	}

	switch m.state {
	case importStateNumber:
		return m.updateNumber(msg)
	case importStateFilePick:
		return m.updateFilePick(msg)
	}

	return m, nil
}

func (m ImportModel) updateNumber(msg tea.Msg) (tea.Model, tea.Cmd) {
	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	m.number = strings.ToUpper(strings.TrimSpace(m.form.GetString("number")))
	m.state = importStateFilePick

	return m, m.filePicker.Init()
}

func (m ImportModel) updateFilePick(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.filePicker, cmd = m.filePicker.Update(msg)

	if didSelect, path := m.filePicker.DidSelectFile(msg); didSelect {
		m.state = importStateImporting
		m.status = fmt.Sprintf("Importing %s into %s...", path, m.number)

		return m, m.importCmd(m.number, path)
	}

	return m, cmd
}

func (m ImportModel) handleEsc() (tea.Model, tea.Cmd) {
	switch m.state {
	case importStateFilePick, importStateResult:
		m.state = importStateNumber
		m.err = nil
		m.status = ""
		m.form = m.buildNumberForm()

		return m, m.form.Init()
	}

	return m, Back
}

func (m ImportModel) View() string {
	switch m.state {
	case importStateNumber:
		return lipgloss.NewStyle().Padding(1).Render(m.form.View())
	case importStateFilePick:
		return lipgloss.NewStyle().Padding(1).Render(
			fmt.Sprintf("Select spreadsheet for %s:\n\n%s", m.number, m.filePicker.View()),
		)
	case importStateImporting:
		return lipgloss.NewStyle().Padding(2).Render(m.status)
	case importStateResult:
		return m.viewResult()
	}

	return ""
}

func (m ImportModel) viewResult() string {
	style := lipgloss.NewStyle().Padding(2)
	if m.err != nil {
		return style.Render(errorStyle(m.status) + "\n\n(Esc to go back)")
	}

	return style.Render(
		lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Render(m.status) +
			"\n\n(Esc to go back)",
	)
}

// Messages

type importResultMsg struct {
	inv *invoice.Invoice
	err error
}

func (m ImportModel) importCmd(number, path string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), importTimeout)
		defer cancel()

		inv, err := m.invoices.GetByNumber(ctx, number)
		if err != nil {
			return importResultMsg{err: err}
		}

		f, err := os.Open(path)
		if err != nil {
			return importResultMsg{err: fmt.Errorf("opening file: %w", err)}
		}
		defer f.Close()

		items, err := m.importService.Import(importer.FormatCSV, f)
		if err != nil {
			return importResultMsg{err: err}
		}

		updated, err := m.invoices.Edit(ctx, inv.ID, invoice.EditParams{Items: items})

		return importResultMsg{inv: updated, err: err}
	}
}
