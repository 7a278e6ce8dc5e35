package zmake

import (
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// targetState is one row of the fan-out monitor.
type targetState struct {
	label   string
	state   string
	started time.Time
}

// FanOutMonitor is a full-screen live view of a fan-out run: one row per
// target with its current state and elapsed time.
type FanOutMonitor struct {
	app   *tview.Application
	table *tview.Table

	mu      sync.Mutex
	rows    []*targetState
	rowByID map[string]int
}

// NewFanOutMonitor prepares the monitor for the given target labels, in
// display order.
func NewFanOutMonitor(labels []string) *FanOutMonitor {
	m := &FanOutMonitor{
		app:     tview.NewApplication(),
		table:   tview.NewTable(),
		rowByID: make(map[string]int),
	}

	m.table.SetBorder(true)
	m.table.SetTitle("zmake Fan-Out Monitor")
	m.table.SetCell(0, 0, tview.NewTableCell("TARGET").SetAttributes(tcell.AttrBold))
	m.table.SetCell(0, 1, tview.NewTableCell("STATE").SetAttributes(tcell.AttrBold))
	m.table.SetCell(0, 2, tview.NewTableCell("ELAPSED").SetAttributes(tcell.AttrBold))

	for i, label := range labels {
		m.rows = append(m.rows, &targetState{label: label, state: "waiting", started: time.Now()})
		m.rowByID[label] = i
	}

	m.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlQ, tcell.KeyEsc:
			m.app.Stop()
			return nil
		}
		if event.Rune() == 'q' {
			m.app.Stop()
			return nil
		}
		return event
	})

	m.redraw()
	return m
}

// Update records a target state transition. Safe to call from build
// goroutines.
func (m *FanOutMonitor) Update(label, state string) {
	m.mu.Lock()
	if idx, ok := m.rowByID[label]; ok {
		row := m.rows[idx]
		if state == "building" {
			row.started = time.Now()
		}
		row.state = state
	}
	m.mu.Unlock()

	m.app.QueueUpdateDraw(m.redraw)
}

func (m *FanOutMonitor) redraw() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, row := range m.rows {
		elapsed := ""
		if row.state != "waiting" {
			elapsed = time.Since(row.started).Round(time.Millisecond).String()
		}

		stateColor := tcell.ColorYellow
		switch row.state {
		case "done":
			stateColor = tcell.ColorGreen
		case "failed":
			stateColor = tcell.ColorRed
		case "waiting":
			stateColor = tcell.ColorGray
		}

		m.table.SetCell(i+1, 0, tview.NewTableCell(row.label))
		m.table.SetCell(i+1, 1, tview.NewTableCell(row.state).SetTextColor(stateColor))
		m.table.SetCell(i+1, 2, tview.NewTableCell(elapsed))
	}
}

// Run blocks in the terminal UI event loop until Stop is called or the user
// quits.
func (m *FanOutMonitor) Run() error {
	ticker := time.NewTicker(250 * time.Millisecond)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				m.app.QueueUpdateDraw(m.redraw)
			case <-done:
				return
			}
		}
	}()
	err := m.app.SetRoot(m.table, true).Run()
	ticker.Stop()
	close(done)
	return err
}

// Stop ends the event loop once the fan-out has finished.
func (m *FanOutMonitor) Stop() {
	m.app.Stop()
}
