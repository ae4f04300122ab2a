// Package sync bridges store change notifications into Bubble Tea
// messages and runs manual refreshes of the registered stores.
package sync

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/nhle/complaint-desk/internal/api"
	"github.com/nhle/complaint-desk/internal/logging"
)

// Source names a watched store.
type Source string

// Sources watched by the application.
const (
	SourceComplaints Source = "complaints"
	SourceCategories Source = "categories"
	SourceSession    Source = "session"
)

// SyncState represents the current state of a source refresh.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

// SyncStatus holds the refresh state for a single source.
type SyncStatus struct {
	Source   Source
	State    SyncState
	LastSync time.Time
	Error    error
}

// ChangedMsg is a tea.Msg sent when a watched source changed.
type ChangedMsg struct {
	Source Source
}

// RefreshFunc reloads a source. Its outcome reaches the UI through the
// source's change channel.
type RefreshFunc func(ctx context.Context) error

// refreshTimeout is the maximum time allowed for a single refresh.
const refreshTimeout = 30 * time.Second

// sourceEntry holds a registered source.
type sourceEntry struct {
	name    Source
	changed <-chan struct{}
	refresh RefreshFunc
}

// Poller forwards change notifications of registered sources to the
// Bubble Tea runtime.
type Poller struct {
	sources  []sourceEntry
	statuses map[Source]*SyncStatus
	resultCh chan ChangedMsg
	stopCh   chan struct{}
	mu       gosync.Mutex
	running  bool
	log      *logrus.Entry
}

// New creates a new Poller.
func New(log *logrus.Logger) *Poller {
	return &Poller{
		statuses: make(map[Source]*SyncStatus),
		resultCh: make(chan ChangedMsg, 16),
		stopCh:   make(chan struct{}),
		log:      logging.Component(log, "poller"),
	}
}

// Register adds a source. changed may be nil for sources that only
// refresh, refresh may be nil for sources that are only watched.
func (p *Poller) Register(name Source, changed <-chan struct{}, refresh RefreshFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.sources = append(p.sources, sourceEntry{name: name, changed: changed, refresh: refresh})
	p.statuses[name] = &SyncStatus{Source: name, State: SyncIdle}
}

// Start returns a tea.Cmd that starts a forwarding goroutine per source
// and subscribes to the merged notifications.
func (p *Poller) Start() tea.Cmd {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	sources := make([]sourceEntry, len(p.sources))
	copy(sources, p.sources)
	p.mu.Unlock()

	for _, entry := range sources {
		if entry.changed != nil {
			go p.forward(entry)
		}
	}

	return p.waitForResult()
}

// Stop halts all forwarding goroutines.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	close(p.stopCh)
	p.running = false
}

// forward relays one source's notifications until Stop or until the
// source closes its channel on dispose.
func (p *Poller) forward(entry sourceEntry) {
	for {
		select {
		case <-p.stopCh:
			return
		case _, ok := <-entry.changed:
			if !ok {
				return
			}
			p.sendResult(ChangedMsg{Source: entry.name})
		}
	}
}

// Notify emits a ChangedMsg for name, for sources that have no channel
// of their own.
func (p *Poller) Notify(name Source) {
	p.sendResult(ChangedMsg{Source: name})
}

// RefreshAll reloads every source that has a refresh function. Each
// refresh runs on its own goroutine.
func (p *Poller) RefreshAll() {
	p.mu.Lock()
	sources := make([]sourceEntry, len(p.sources))
	copy(sources, p.sources)
	p.mu.Unlock()

	for _, entry := range sources {
		if entry.refresh != nil {
			go p.refresh(entry)
		}
	}
}

func (p *Poller) refresh(entry sourceEntry) {
	p.setStatus(entry.name, SyncRunning, nil)

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	err := entry.refresh(ctx)
	if err != nil && !api.IsAborted(err) {
		p.log.WithError(err).WithField("source", entry.name).Warn("refresh failed")
		p.setStatus(entry.name, SyncError, err)
		if errors.Is(err, context.DeadlineExceeded) {
			p.sendResult(ChangedMsg{Source: entry.name})
		}
		return
	}
	p.setStatus(entry.name, SyncIdle, nil)
}

// GetStatuses returns the current refresh status of all registered
// sources.
func (p *Poller) GetStatuses() []SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	statuses := make([]SyncStatus, 0, len(p.statuses))
	for _, s := range p.sources {
		statuses = append(statuses, *p.statuses[s.name])
	}
	return statuses
}

// setStatus updates the refresh status for a source.
func (p *Poller) setStatus(name Source, state SyncState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	status, ok := p.statuses[name]
	if !ok {
		return
	}

	status.State = state
	status.Error = err
	if state == SyncIdle && err == nil {
		status.LastSync = time.Now()
	}
}

// sendResult sends a ChangedMsg on the result channel without blocking.
// A full channel already holds a pending notification, and views always
// re-read the whole store state, so dropping is safe.
func (p *Poller) sendResult(msg ChangedMsg) {
	select {
	case p.resultCh <- msg:
	default:
	}
}

// waitForResult returns a tea.Cmd that waits for the next notification.
func (p *Poller) waitForResult() tea.Cmd {
	return func() tea.Msg {
		select {
		case result := <-p.resultCh:
			return result
		case <-p.stopCh:
			return nil
		}
	}
}

// WaitForNextResult returns a tea.Cmd that waits for the next
// notification. Call it after handling a ChangedMsg to keep listening.
func (p *Poller) WaitForNextResult() tea.Cmd {
	return p.waitForResult()
}
