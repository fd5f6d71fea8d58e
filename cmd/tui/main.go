package main

import (
	"context"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"github.com/MrJamesThe3rd/invoicer/cmd/tui/internal/view"
	"github.com/MrJamesThe3rd/invoicer/internal/app"
	"github.com/MrJamesThe3rd/invoicer/internal/config"
)

type model struct {
	app *app.App

	current screen

	deskView   view.DeskModel
	importView view.ImportModel
	exportView view.ExportModel
}

type screen int

const (
	screenMenu screen = iota
	screenDesk
	screenImport
	screenExport
)

func initialModel(a *app.App) model {
	return model{
		app:        a,
		current:    screenMenu,
		deskView:   view.NewDeskModel(a.Invoices),
		importView: view.NewImportModel(a.Invoices, a.Import),
		exportView: view.NewExportModel(a.Export, a.Invoices.Now),
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.current == screenMenu {
			switch msg.String() {
			case "ctrl+c", "q":
				return m, tea.Quit
			case "1":
				m.current = screenDesk
				m.deskView = view.NewDeskModel(m.app.Invoices)

				return m, m.deskView.Init()
			case "2":
				m.current = screenImport
				m.importView = view.NewImportModel(m.app.Invoices, m.app.Import)

				return m, m.importView.Init()
			case "3":
				m.current = screenExport
				m.exportView = view.NewExportModel(m.app.Export, m.app.Invoices.Now)

				return m, m.exportView.Init()
			}
		}
	case view.BackMsg:
		m.current = screenMenu
		return m, nil
	}

	switch m.current {
	case screenDesk:
		var newModel tea.Model
		newModel, cmd = m.deskView.Update(msg)
		m.deskView = newModel.(view.DeskModel)
	case screenImport:
		var newModel tea.Model
		newModel, cmd = m.importView.Update(msg)
		m.importView = newModel.(view.ImportModel)
	case screenExport:
		var newModel tea.Model
		newModel, cmd = m.exportView.Update(msg)
		m.exportView = newModel.(view.ExportModel)
	}

	return m, cmd
}

func (m model) View() string {
	switch m.current {
	case screenMenu:
		return lipgloss.NewStyle().Padding(2).Render(
			"Invoicer\n\n" +
				"1. Invoice Desk\n" +
				"2. Import Line Items\n" +
				"3. Export Statement\n\n" +
				"q. Quit",
		)
	case screenDesk:
		return view.Frame(m.deskView)
	case screenImport:
		return view.Frame(m.importView)
	case screenExport:
		return view.Frame(m.exportView)
	}

	return "Unknown View"
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	a, err := app.Open(context.Background(), cfg)
	if err != nil {
		slog.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	p := tea.NewProgram(initialModel(a))
	if _, err := p.Run(); err != nil {
		slog.Error("failed to run TUI", "error", err)
		os.Exit(1)
	}
}
