package view

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/invoicer/internal/invoice"
	"github.com/MrJamesThe3rd/invoicer/internal/money"
)

type deskState int

const (
	deskStateBrowse deskState = iota
	deskStatePayment
)

var statusFilters = []struct {
	label  string
	status *invoice.Status
}{
	{"All", nil},
	{"Draft", new(invoice.StatusDraft)},
	{"Pending", new(invoice.StatusPending)},
	{"Partially paid", new(invoice.StatusPartiallyPaid)},
	{"Overdue", new(invoice.StatusOverdue)},
	{"Paid", new(invoice.StatusPaid)},
	{"Cancelled", new(invoice.StatusCancelled)},
}

var dateFilters = []Period{PeriodAll, PeriodThisMonth, PeriodLastMonth, PeriodThisQuarter, PeriodYearToDate}

// DeskModel lists invoices and drives their lifecycle: confirm, cancel and payments.
type DeskModel struct {
	invoices *invoice.Service

	state    deskState
	table    table.Model
	rows     []*invoice.Invoice
	form     *huh.Form
	filter   invoice.ListFilter
	total    int
	loading  bool
	err      error
	status   string
	statusAt int
	dateAt   int

	// Payment form bindings
	formAmount    string
	formMethod    string
	formReference string
}

func NewDeskModel(svc *invoice.Service) DeskModel {
	columns := []table.Column{
		{Title: "Number", Width: 17},
		{Title: "Issued", Width: 12},
		{Title: "Due", Width: 12},
		{Title: "Status", Width: 15},
		{Title: "Total", Width: 12},
		{Title: "Balance", Width: 12},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return DeskModel{
		invoices: svc,
		table:    t,
		filter:   invoice.ListFilter{Limit: invoice.MaxListLimit},
		loading:  true,
	}
}

func (m DeskModel) Title() string { return "Invoice Desk" }

func (m DeskModel) ShortHelp() string {
	if m.state == deskStatePayment {
		return "Navigate form | Esc: cancel"
	}

	return "Esc: back | c: confirm | x: cancel | p: payment | s: status filter | d: date filter | r: refresh"
}

func (m DeskModel) Init() tea.Cmd {
	return m.loadCmd()
}

func (m DeskModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case deskLoadMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}

		m.err = nil
		m.rows = msg.res.Invoices
		m.total = msg.res.Total
		m.refreshTable()

		return m, nil

	case deskActionMsg:
		m.state = deskStateBrowse
		m.form = nil
		m.table.Focus()

		if msg.err != nil {
			m.status = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
		} else {
			m.status = fmt.Sprintf("%s %s: now %s, balance %s",
				msg.inv.Number, msg.action, msg.inv.EffectiveStatus(m.invoices.Now()), money.Format(msg.inv.BalanceDue))
		}

		return m, m.loadCmd()

	case tea.WindowSizeMsg:
		m.table.SetHeight(msg.Height - 10)
		return m, nil
	}

	if m.state == deskStatePayment {
		return m.updatePayment(msg)
	}

	return m.updateBrowse(msg)
}

func (m DeskModel) selected() *invoice.Invoice {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.rows) {
		return nil
	}

	return m.rows[idx]
}

func (m DeskModel) updateBrowse(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "esc":
			return m, Back
		case "r":
			m.loading = true
			return m, m.loadCmd()
		case "s":
			m.statusAt = (m.statusAt + 1) % len(statusFilters)
			m.applyFilter()

			return m, m.loadCmd()
		case "d":
			m.dateAt = (m.dateAt + 1) % len(dateFilters)
			m.applyFilter()

			return m, m.loadCmd()
		case "c":
			if inv := m.selected(); inv != nil {
				return m, m.actionCmd("confirmed", inv, m.invoices.Confirm)
			}
		case "x":
			if inv := m.selected(); inv != nil {
				return m, m.actionCmd("cancelled", inv, m.invoices.Cancel)
			}
		case "p":
			if m.selected() != nil {
				return m.enterPayment()
			}
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func (m DeskModel) enterPayment() (tea.Model, tea.Cmd) {
	inv := m.selected()

	m.formAmount = money.Format(inv.BalanceDue)
	m.formMethod = "transfer"
	m.formReference = ""

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("amount").
				Title("Amount").
				Description("Balance due "+money.Format(inv.BalanceDue)).
				Value(&m.formAmount).
				Validate(func(s string) error {
					d, err := decimal.NewFromString(strings.TrimSpace(s))
					if err != nil || !d.IsPositive() {
						return fmt.Errorf("enter a positive amount")
					}

					return money.CheckAmount(d)
				}),

			huh.NewSelect[string]().
				Key("method").
				Title("Method").
				Options(huh.NewOptions("transfer", "card", "cash", "direct_debit")...).
				Value(&m.formMethod),

			huh.NewInput().
				Key("reference").
				Title("Reference").
				Value(&m.formReference),
		),
	).WithWidth(45).WithShowHelp(false)

	m.state = deskStatePayment
	m.table.Blur()

	return m, m.form.Init()
}

func (m DeskModel) updatePayment(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
		m.state = deskStateBrowse
		m.form = nil
		m.table.Focus()

		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	return m, m.paymentCmd()
}

func (m DeskModel) View() string {
	if m.loading {
		return lipgloss.NewStyle().Padding(2).Render("Loading invoices...")
	}

	if m.err != nil {
		return lipgloss.NewStyle().Padding(2).Render(errorStyle(fmt.Sprintf("Error: %v", m.err)))
	}

	header := fmt.Sprintf(
		"Filter: [s] Status: %s | [d] Date: %s | %d invoices",
		activeStyle(statusFilters[m.statusAt].label),
		activeStyle(dateFilters[m.dateAt].String()),
		m.total,
	)

	tableView := lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		Render(m.table.View())

	content := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().PaddingBottom(1).Render(header),
		tableView,
	)

	if m.state == deskStatePayment && m.form != nil {
		number := ""
		if inv := m.selected(); inv != nil {
			number = inv.Number
		}

		panel := lipgloss.NewStyle().
			Padding(1, 2).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Width(48).
			Render(fmt.Sprintf("Record Payment\n\n%s\n\n%s", number, m.form.View()))

		content = lipgloss.JoinHorizontal(lipgloss.Top, content, panel)
	}

	if m.status != "" {
		content = lipgloss.NewStyle().Faint(true).Render(m.status) + "\n" + content
	}

	return lipgloss.NewStyle().Padding(1).Render(content)
}

func (m *DeskModel) applyFilter() {
	m.filter.Status = statusFilters[m.statusAt].status

	m.filter.StartDate, m.filter.EndDate = nil, nil
	if start, end, ok := dateFilters[m.dateAt].Range(m.invoices.Now()); ok {
		m.filter.StartDate = &start
		m.filter.EndDate = &end
	}
}

func (m *DeskModel) refreshTable() {
	now := m.invoices.Now()

	rows := make([]table.Row, 0, len(m.rows))
	for _, inv := range m.rows {
		rows = append(rows, table.Row{
			inv.Number,
			FormatDate(inv.IssueDate),
			FormatDate(inv.DueDate),
			string(inv.EffectiveStatus(now)),
			money.Format(inv.Total),
			money.Format(inv.BalanceDue),
		})
	}

	m.table.SetRows(rows)
}

// Messages

type deskLoadMsg struct {
	res *invoice.ListResult
	err error
}

func (m DeskModel) loadCmd() tea.Cmd {
	filter := m.filter

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		res, err := m.invoices.List(ctx, filter)

		return deskLoadMsg{res: res, err: err}
	}
}

type deskActionMsg struct {
	action string
	inv    *invoice.Invoice
	err    error
}

func (m DeskModel) actionCmd(action string, inv *invoice.Invoice, fn actionFunc) tea.Cmd {
	id := inv.ID

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		updated, err := fn(ctx, id)

		return deskActionMsg{action: action, inv: updated, err: err}
	}
}

func (m DeskModel) paymentCmd() tea.Cmd {
	inv := m.selected()
	if inv == nil {
		return nil
	}

	// Bound fields live on the model copy the form was built from, so read the form.
	amount, err := decimal.NewFromString(strings.TrimSpace(m.form.GetString("amount")))
	if err != nil {
		return func() tea.Msg { return deskActionMsg{action: "payment", err: err} }
	}

	params := invoice.PaymentParams{
		Amount:    amount,
		Method:    m.form.GetString("method"),
		Reference: strings.TrimSpace(m.form.GetString("reference")),
	}

	return m.actionCmd("paid", inv, func(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error) {
		return m.invoices.AddPayment(ctx, id, params)
	})
}

type actionFunc func(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error)
