package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/marcus/nhatky/internal/models"
	nksync "github.com/marcus/nhatky/internal/sync"
)

// Panel represents which panel is active
type Panel int

const (
	PanelQueue Panel = iota
	PanelEntries
	PanelConflicts
)

const panelCount = 3

// Source is the read side of the local store the monitor polls.
type Source interface {
	ListAllQueue(ctx context.Context) ([]models.SyncQueueItem, error)
	GetAllTimelineEntries(ctx context.Context, ownerID string) ([]*models.TimelineEntry, error)
	ListConflicts(ctx context.Context, limit int) ([]models.SyncConflict, error)
	SyncCounts(ctx context.Context) (models.SyncCounts, error)
	GetTimeSetting(ctx context.Context, key string) (time.Time, error)
}

// Syncer runs a reconciliation pass on demand.
type Syncer interface {
	RunPass(ctx context.Context) (nksync.PassResult, error)
}

// Connectivity reports the current network state.
type Connectivity interface {
	Online() bool
}

// Snapshot is everything one refresh reads from the store.
type Snapshot struct {
	Queue       []models.SyncQueueItem
	Entries     []*models.TimelineEntry
	Conflicts   []models.SyncConflict
	Counts      models.SyncCounts
	LastSuccess time.Time
	Online      bool
}

// Model is the Bubble Tea model for the sync monitor
type Model struct {
	Source  Source
	Syncer  Syncer
	Net     Connectivity
	OwnerID string

	// Window dimensions
	Width  int
	Height int

	Data Snapshot

	// UI state
	ActivePanel  Panel
	ScrollOffset map[Panel]int
	ShowHelp     bool
	LastRefresh  time.Time
	Err          error

	// Manual pass state
	Syncing  bool
	LastPass *nksync.PassResult
	PassErr  error

	RefreshInterval time.Duration

	spinner spinner.Model
}

// MinWidth is the minimum terminal width for proper display
const MinWidth = 40

// MinHeight is the minimum terminal height for proper display
const MinHeight = 15

// TickMsg triggers a data refresh
type TickMsg time.Time

// RefreshDataMsg carries refreshed data
type RefreshDataMsg struct {
	Data      Snapshot
	Err       error
	Timestamp time.Time
}

// PassDoneMsg carries the outcome of a manual pass.
type PassDoneMsg struct {
	Result nksync.PassResult
	Err    error
}

// NewModel creates a new monitor model
func NewModel(src Source, syncer Syncer, net Connectivity, ownerID string, interval time.Duration) Model {
	return Model{
		Source:          src,
		Syncer:          syncer,
		Net:             net,
		OwnerID:         ownerID,
		RefreshInterval: interval,
		ScrollOffset:    make(map[Panel]int),
		ActivePanel:     PanelQueue,
		spinner:         spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(syncingStyle)),
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.fetchData(),
		m.scheduleTick(),
	)
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		return m, nil

	case TickMsg:
		return m, tea.Batch(m.fetchData(), m.scheduleTick())

	case RefreshDataMsg:
		m.Err = msg.Err
		if msg.Err == nil {
			m.Data = msg.Data
			m.clampScroll()
		}
		m.LastRefresh = msg.Timestamp
		return m, nil

	case PassDoneMsg:
		m.Syncing = false
		m.PassErr = msg.Err
		if !errors.Is(msg.Err, nksync.ErrPassRunning) {
			res := msg.Result
			m.LastPass = &res
		}
		return m, m.fetchData()

	case spinner.TickMsg:
		if !m.Syncing {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// handleKey processes key input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "tab":
		m.ActivePanel = (m.ActivePanel + 1) % panelCount
		return m, nil

	case "shift+tab":
		m.ActivePanel = (m.ActivePanel + panelCount - 1) % panelCount
		return m, nil

	case "1":
		m.ActivePanel = PanelQueue
		return m, nil

	case "2":
		m.ActivePanel = PanelEntries
		return m, nil

	case "3":
		m.ActivePanel = PanelConflicts
		return m, nil

	case "j", "down":
		if m.ScrollOffset[m.ActivePanel] < m.panelLen(m.ActivePanel)-1 {
			m.ScrollOffset[m.ActivePanel]++
		}
		return m, nil

	case "k", "up":
		if m.ScrollOffset[m.ActivePanel] > 0 {
			m.ScrollOffset[m.ActivePanel]--
		}
		return m, nil

	case "r":
		return m, m.fetchData()

	case "s":
		if m.Syncing || m.Syncer == nil {
			return m, nil
		}
		m.Syncing = true
		m.PassErr = nil
		return m, tea.Batch(m.runPass(), m.spinner.Tick)

	case "?":
		m.ShowHelp = !m.ShowHelp
		return m, nil
	}

	return m, nil
}

// View implements tea.Model
func (m Model) View() string {
	return m.renderView()
}

func (m Model) panelLen(p Panel) int {
	switch p {
	case PanelQueue:
		return len(m.Data.Queue)
	case PanelEntries:
		return len(m.Data.Entries)
	case PanelConflicts:
		return len(m.Data.Conflicts)
	}
	return 0
}

// clampScroll keeps offsets inside panels that shrank after a refresh.
func (m *Model) clampScroll() {
	for p, off := range m.ScrollOffset {
		if n := m.panelLen(p); off >= n {
			m.ScrollOffset[p] = max(n-1, 0)
		}
	}
}

// scheduleTick returns a command that sends a TickMsg after the refresh interval
func (m Model) scheduleTick() tea.Cmd {
	return tea.Tick(m.RefreshInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m Model) fetchData() tea.Cmd {
	src, net, owner := m.Source, m.Net, m.OwnerID
	return func() tea.Msg {
		return FetchData(context.Background(), src, net, owner)
	}
}

func (m Model) runPass() tea.Cmd {
	syncer := m.Syncer
	return func() tea.Msg {
		res, err := syncer.RunPass(context.Background())
		return PassDoneMsg{Result: res, Err: err}
	}
}
