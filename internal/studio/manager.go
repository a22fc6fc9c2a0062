package studio

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"postforge/internal/agent"
	"postforge/internal/schedule"
	"postforge/internal/store"
	"postforge/internal/workflow"
)

const (
	// DefaultIdleTTL evicts sessions nobody touched for this long.
	DefaultIdleTTL = 24 * time.Hour

	defaultSweepInterval = 5 * time.Minute
)

// Config wires the remote services shared by every session.
type Config struct {
	Agents        agent.Gateway
	Directory     agent.Directory
	Scheduler     schedule.Gateway
	ScheduleID    string
	ScheduleCron  string
	ScheduleTZ    string
	StageRecorder workflow.Recorder
	ToggleRec     schedule.ToggleRecorder
	// OnSessionCount, when set, receives the live session count after every
	// change.
	OnSessionCount func(n int)
	IdleTTL        time.Duration
	SweepInterval  time.Duration
}

// Manager owns the in-memory sessions, keyed by the operator's session ID,
// and evicts idle ones in the background until Close is called.
type Manager struct {
	cfg Config
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewManager creates a manager and starts its idle sweeper.
func NewManager(cfg Config) *Manager {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	m := &Manager{
		cfg:      cfg,
		now:      time.Now,
		sessions: make(map[string]*Session),
		stopCh:   make(chan struct{}),
	}

	m.wg.Add(1)
	go m.sweepLoop()
	return m
}

// Open returns the session for id, creating it on first use. A new session
// loads the schedule status and run history before it is returned.
func (m *Manager) Open(ctx context.Context, id string) *Session {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		s = m.newSession(id)
		m.sessions[id] = s
	}
	n := len(m.sessions)
	m.mu.Unlock()

	s.touch(m.now())
	if !ok {
		slog.Info("studio session opened", "session", shortID(id))
		m.reportCount(n)
		s.RefreshSchedule(ctx)
	}
	return s
}

// Lookup returns an existing session without creating one.
func (m *Manager) Lookup(id string) (*Session, bool) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if ok {
		s.touch(m.now())
	}
	return s, ok
}

// Drop discards a session, typically on logout.
func (m *Manager) Drop(id string) {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()

	if ok {
		slog.Info("studio session dropped", "session", shortID(id))
		m.reportCount(n)
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close stops the sweeper and waits for it to exit.
func (m *Manager) Close() {
	close(m.stopCh)
	m.wg.Wait()
}

func (m *Manager) newSession(id string) *Session {
	s := &Session{
		id:      id,
		content: store.NewContentStore(),
		screen:  ScreenDashboard,
		subs:    make(map[int]chan struct{}),
	}

	opts := []workflow.Option{workflow.WithOnChange(s.notify)}
	if m.cfg.StageRecorder != nil {
		opts = append(opts, workflow.WithRecorder(m.cfg.StageRecorder))
	}
	s.workflow = workflow.New(m.cfg.Agents, m.cfg.Directory, s.content, opts...)
	s.schedule = schedule.NewController(m.cfg.Scheduler, schedule.ControllerConfig{
		ScheduleID: m.cfg.ScheduleID,
		Cron:       m.cfg.ScheduleCron,
		Timezone:   m.cfg.ScheduleTZ,
		Recorder:   m.cfg.ToggleRec,
		OnChange:   s.notify,
	})
	return s
}

func (m *Manager) sweepLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stopCh:
			return
		}
	}
}

// sweep evicts sessions idle for longer than the TTL.
func (m *Manager) sweep() {
	cutoff := m.now().Add(-m.cfg.IdleTTL)

	m.mu.Lock()
	evicted := 0
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			delete(m.sessions, id)
			evicted++
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()

	if evicted > 0 {
		slog.Info("idle studio sessions evicted", "count", evicted, "remaining", n)
		m.reportCount(n)
	}
}

func (m *Manager) reportCount(n int) {
	if m.cfg.OnSessionCount != nil {
		m.cfg.OnSessionCount(n)
	}
}

// shortID keeps session identifiers out of logs.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
