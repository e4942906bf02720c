// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Fuelink

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/fuelink/forecourt/internal/fleet"
	"github.com/fuelink/forecourt/pkg/twowire"
)

var monitorInterval int

var monitorCmd = &cobra.Command{
	Use:   "monitor <port> [address...]",
	Short: "Live terminal dashboard for the pumps on a line",
	Long: `Continuously poll pumps and render their states in a live table.

Addresses may be given explicitly; without them, the line is scanned first
and every responsive pump is monitored.

Keys:
  q / ctrl+c  quit
  s           emergency stop (all-stop broadcast plus per-pump stop)

Examples:
  forecourt monitor /dev/ttyUSB0
  forecourt monitor /dev/ttyUSB0 1 2 3 --interval 2`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().IntVar(&monitorInterval, "interval", 2, "Poll interval in seconds")
}

type sweepMsg []fleet.DeviceStatusResult

type stopDoneMsg int

type monitorTickMsg time.Time

var (
	monitorTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	monitorHelpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	monitorStopStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

type monitorModel struct {
	mgr      *fleet.Manager
	port     string
	interval time.Duration
	table    table.Model
	results  map[int]fleet.DeviceStatusResult
	stopped  int
	hasStop  bool
	quitting bool
}

func newMonitorModel(mgr *fleet.Manager, port string, interval time.Duration) monitorModel {
	columns := []table.Column{
		{Title: "ID", Width: 4},
		{Title: "Addr", Width: 5},
		{Title: "State", Width: 12},
		{Title: "Code", Width: 6},
		{Title: "Updated", Width: 10},
		{Title: "Detail", Width: 30},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(18),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true)
	t.SetStyles(styles)

	return monitorModel{
		mgr:      mgr,
		port:     port,
		interval: interval,
		table:    t,
		results:  make(map[int]fleet.DeviceStatusResult),
	}
}

func (m monitorModel) Init() tea.Cmd {
	return m.sweep()
}

func (m monitorModel) sweep() tea.Cmd {
	return func() tea.Msg {
		return sweepMsg(m.mgr.Statuses())
	}
}

func (m monitorModel) emergencyStop() tea.Cmd {
	return func() tea.Msg {
		return stopDoneMsg(m.mgr.StopAll())
	}
}

func (m monitorModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "s":
			return m, m.emergencyStop()
		}

	case sweepMsg:
		for _, r := range msg {
			m.results[r.DeviceID] = r
		}
		m.refreshRows()
		return m, m.tick()

	case monitorTickMsg:
		return m, m.sweep()

	case stopDoneMsg:
		m.stopped = int(msg)
		m.hasStop = true
		return m, m.sweep()
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *monitorModel) refreshRows() {
	devices := m.mgr.List()
	rows := make([]table.Row, 0, len(devices))
	for _, d := range devices {
		state := string(twowire.StateOffline)
		code := "-"
		updated := "-"
		detail := ""
		if r, ok := m.results[d.ID]; ok {
			state = string(r.State)
			if r.RawCode != "" {
				code = r.RawCode
			}
			updated = r.LastUpdated.Format("15:04:05")
			detail = r.ErrorMessage
		}
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", d.ID),
			fmt.Sprintf("%d", d.Address),
			state,
			code,
			updated,
			detail,
		})
	}
	m.table.SetRows(rows)
}

func (m monitorModel) View() string {
	if m.quitting {
		return ""
	}
	header := monitorTitleStyle.Render(fmt.Sprintf("Forecourt - %s", m.port))
	body := m.table.View()
	help := monitorHelpStyle.Render("q: quit  s: emergency stop")
	if m.hasStop {
		help += "  " + monitorStopStyle.Render(fmt.Sprintf("EMERGENCY STOP: %d pump(s) halted", m.stopped))
	}
	return fmt.Sprintf("%s\n\n%s\n\n%s\n", header, body, help)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	mgr, err := newManager()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Setup failed: %v\n", err)
		os.Exit(2)
	}
	port := args[0]

	if len(args) > 1 {
		for _, arg := range args[1:] {
			addr, err := parseAddress(arg)
			if err != nil {
				return err
			}
			if _, err := mgr.Add(port, addr, ""); err != nil {
				return err
			}
		}
	} else {
		fmt.Printf("Scanning %s for pumps...\n", port)
		res, err := mgr.Discover([]string{port}, fleet.DiscoveryConfig{
			Retries:    cfg.Discovery.Retries,
			RetryDelay: time.Duration(cfg.Discovery.RetryDelayMs) * time.Millisecond,
			AutoAdd:    true,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Scan failed: %v\n", err)
			os.Exit(2)
		}
		if res.TotalFound == 0 {
			fmt.Println("No pumps found")
			os.Exit(1)
		}
	}

	model := newMonitorModel(mgr, port, time.Duration(monitorInterval)*time.Second)
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("monitor failed: %w", err)
	}
	return nil
}
